package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CustomData holds per-recipient template values. Stored as JSONB; an empty
// map is stored as NULL.
type CustomData map[string]string

func (d CustomData) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *CustomData) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("custom data: unsupported type %T", src)
	}

	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("custom data: %w", err)
	}
	if len(m) == 0 {
		m = nil
	}
	*d = m
	return nil
}

// Clone returns an independent copy.
func (d CustomData) Clone() CustomData {
	if d == nil {
		return nil
	}
	out := make(CustomData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

type Recipient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	CampaignID  uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	PhoneNumber string     `db:"phone_number" json:"phone_number"`
	Name        *string    `db:"name" json:"name,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	CustomData  CustomData `db:"custom_data" json:"custom_data,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// RecipientInput is one raw recipient as submitted to the single or bulk
// ingestion endpoints.
type RecipientInput struct {
	PhoneNumber string                 `json:"phone_number"`
	Name        *string                `json:"name"`
	Email       *string                `json:"email"`
	CustomData  map[string]interface{} `json:"custom_data"`
}

type BulkRecipientsRequest struct {
	Recipients []RecipientInput `json:"recipients"`
}

// IngestResult is the outcome report of a batch ingestion call.
type IngestResult struct {
	CampaignID     uuid.UUID `json:"campaign_id"`
	AddedCount     int       `json:"added_count"`
	DuplicateCount int       `json:"duplicate_count"`
	ErrorCount     int       `json:"error_count"`
	Errors         []string  `json:"errors,omitempty"`
}

type RecipientFilter struct {
	Pagination
}
