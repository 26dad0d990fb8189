package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Campaign struct {
	Base
	TenantID          uuid.UUID      `db:"tenant_id" json:"tenant_id"`
	CreatedBy         uuid.UUID      `db:"created_by" json:"created_by"`
	Name              string         `db:"name" json:"name"`
	Description       *string        `db:"description" json:"description,omitempty"`
	MessageTemplate   string         `db:"message_template" json:"message_template"`
	TemplateVariables pq.StringArray `db:"template_variables" json:"template_variables,omitempty"`
	VariableDefaults  CustomData     `db:"variable_defaults" json:"variable_defaults,omitempty"`
	Status            CampaignStatus `db:"status" json:"status"`
	ScheduledAt       *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt         *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	TotalRecipients   int            `db:"total_recipients" json:"total_recipients"`
	SentCount         int            `db:"sent_count" json:"sent_count"`
	DeliveredCount    int            `db:"delivered_count" json:"delivered_count"`
	FailedCount       int            `db:"failed_count" json:"failed_count"`
}

// IsEditable reports whether recipients and content may still change.
func (c *Campaign) IsEditable() bool {
	return c.Status.IsEditable()
}

// IsSendable reports whether the campaign can start dispatching now.
func (c *Campaign) IsSendable() bool {
	return c.IsEditable() && c.TotalRecipients > 0
}

// SuccessRate is delivered/sent as a percentage, 0 before anything is sent.
func (c *Campaign) SuccessRate() float64 {
	if c.SentCount == 0 {
		return 0
	}
	return float64(c.DeliveredCount) / float64(c.SentCount) * 100
}

// Progress is sent/total as a percentage.
func (c *Campaign) Progress() float64 {
	if c.TotalRecipients == 0 {
		return 0
	}
	return float64(c.SentCount) / float64(c.TotalRecipients) * 100
}

// CampaignView is the API representation with derived fields.
type CampaignView struct {
	Campaign
	IsEditable         bool    `json:"is_editable"`
	IsSendable         bool    `json:"is_sendable"`
	SuccessRate        float64 `json:"success_rate"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

func (c *Campaign) View() CampaignView {
	return CampaignView{
		Campaign:           *c,
		IsEditable:         c.IsEditable(),
		IsSendable:         c.IsSendable(),
		SuccessRate:        c.SuccessRate(),
		ProgressPercentage: c.Progress(),
	}
}

type CreateCampaignRequest struct {
	Name              string            `json:"name" validate:"required,max=255"`
	Description       *string           `json:"description" validate:"omitempty,max=1000"`
	MessageTemplate   string            `json:"message_template" validate:"required,min=10,max=5000"`
	TemplateVariables []string          `json:"template_variables" validate:"omitempty,dive,required,max=100"`
	VariableDefaults  map[string]string `json:"variable_defaults"`
	ScheduledAt       *time.Time        `json:"scheduled_at"`
}

// UpdateCampaignRequest is a partial update; nil fields are left unchanged.
// Status is not settable here.
type UpdateCampaignRequest struct {
	Name              *string            `json:"name" validate:"omitnil,min=1,max=255"`
	Description       *string            `json:"description" validate:"omitempty,max=1000"`
	MessageTemplate   *string            `json:"message_template" validate:"omitnil,min=10,max=5000"`
	TemplateVariables *[]string          `json:"template_variables" validate:"omitnil,dive,required,max=100"`
	VariableDefaults  *map[string]string `json:"variable_defaults"`
	ScheduledAt       *time.Time         `json:"scheduled_at"`
}

type CampaignFilter struct {
	Pagination
	Status CampaignStatus `json:"status" form:"status"`
}

// DispatchReport is what the dispatcher hands back when it finishes a run.
type DispatchReport struct {
	Sent      int    `json:"sent"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Fatal     bool   `json:"fatal"`
	Reason    string `json:"reason,omitempty"`
}

type PreviewRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
}

type PreviewResult struct {
	CampaignID  uuid.UUID `json:"campaign_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Message     string    `json:"message"`
	Missing     []string  `json:"missing_variables,omitempty"`
}
