package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
)

const recipientColumns = `id, campaign_id, phone_number, name, email, custom_data, created_at`

type recipientRepository struct {
	BaseRepository
}

func (r *recipientRepository) Get(ctx context.Context, campaignID, id uuid.UUID) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id = $1 AND campaign_id = $2`

	var rec model.Recipient
	if err := r.db.GetContext(ctx, &rec, query, id, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get recipient %s: %w", id, mapError(err))
	}
	return &rec, nil
}

func (r *recipientRepository) List(ctx context.Context, campaignID uuid.UUID, filter model.RecipientFilter) ([]*model.Recipient, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM recipients WHERE campaign_id = $1`, campaignID); err != nil {
		return nil, 0, fmt.Errorf("failed to count recipients: %w", err)
	}

	query := `
		SELECT ` + recipientColumns + `
		FROM recipients
		WHERE campaign_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`

	var recipients []*model.Recipient
	err := r.db.SelectContext(ctx, &recipients, query, campaignID, filter.PageSize, filter.Offset())
	r.metrics.DBOperation("list_recipients", err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recipients, total, nil
}

func (r *recipientRepository) ListAll(ctx context.Context, campaignID uuid.UUID) ([]*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE campaign_id = $1 ORDER BY seq`

	var recipients []*model.Recipient
	if err := r.db.SelectContext(ctx, &recipients, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recipients, nil
}
