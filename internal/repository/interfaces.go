package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
)

// ErrNotFound is returned when a row does not exist or belongs to another tenant.
var ErrNotFound = stderrors.New("record not found")

// ErrDuplicate is returned when a write violates a uniqueness constraint.
var ErrDuplicate = stderrors.New("duplicate record")

// All repository interfaces in one file
type (
	// CampaignRepository reads and creates campaigns outside a unit of work.
	// Every lookup is scoped to a tenant.
	CampaignRepository interface {
		Create(ctx context.Context, campaign *model.Campaign) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error)
		List(ctx context.Context, tenantID uuid.UUID, filter model.CampaignFilter) ([]*model.Campaign, int, error)
	}

	RecipientRepository interface {
		Get(ctx context.Context, campaignID, id uuid.UUID) (*model.Recipient, error)
		List(ctx context.Context, campaignID uuid.UUID, filter model.RecipientFilter) ([]*model.Recipient, int, error)
		// ListAll returns every recipient of the campaign in insertion order.
		ListAll(ctx context.Context, campaignID uuid.UUID) ([]*model.Recipient, error)
	}

	OutboxRepository interface {
		// ClaimPending moves up to limit due events to processing and returns them.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkDead(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Tx is a unit of work. Writes that depend on campaign status must first
	// take the campaign row lock with LockCampaign.
	Tx interface {
		LockCampaign(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error)
		UpdateCampaign(ctx context.Context, campaign *model.Campaign) error
		DeleteCampaign(ctx context.Context, tenantID, id uuid.UUID) error

		// ExistingPhones returns the subset of phones already stored for the campaign.
		ExistingPhones(ctx context.Context, campaignID uuid.UUID, phones []string) (map[string]struct{}, error)
		// InsertRecipients skips rows whose phone is already stored and
		// returns the phones actually inserted.
		InsertRecipients(ctx context.Context, recipients []*model.Recipient) (map[string]struct{}, error)
		DeleteRecipient(ctx context.Context, campaignID, id uuid.UUID) error
		DeleteRecipients(ctx context.Context, campaignID uuid.UUID) (int64, error)
		CountRecipients(ctx context.Context, campaignID uuid.UUID) (int, error)

		CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error
	}

	Store interface {
		Campaigns() CampaignRepository
		Recipients() RecipientRepository
		Outbox() OutboxRepository
		// WithTx runs fn in a transaction, committing only if fn returns nil.
		WithTx(ctx context.Context, fn func(tx Tx) error) error
		Ping(ctx context.Context) error
	}
)
