package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
)

// insertChunkSize keeps a multi-row insert well under the 65535 bind
// parameter limit of the wire protocol.
const insertChunkSize = 1000

type txRepository struct {
	tx *sqlx.Tx
}

func (r *txRepository) LockCampaign(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error) {
	return getCampaign(ctx, r.tx, tenantID, id, true)
}

func (r *txRepository) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE campaigns SET
			name = :name,
			description = :description,
			message_template = :message_template,
			template_variables = :template_variables,
			variable_defaults = :variable_defaults,
			status = :status,
			scheduled_at = :scheduled_at,
			started_at = :started_at,
			completed_at = :completed_at,
			total_recipients = :total_recipients,
			sent_count = :sent_count,
			delivered_count = :delivered_count,
			failed_count = :failed_count,
			updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`

	res, err := r.tx.NamedExecContext(ctx, query, c)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", mapError(err))
	}
	return requireAffected(res.RowsAffected())
}

func (r *txRepository) DeleteCampaign(ctx context.Context, tenantID, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return requireAffected(res.RowsAffected())
}

func (r *txRepository) ExistingPhones(ctx context.Context, campaignID uuid.UUID, phones []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(phones) == 0 {
		return existing, nil
	}

	var found []string
	query := `SELECT phone_number FROM recipients WHERE campaign_id = $1 AND phone_number = ANY($2)`
	if err := r.tx.SelectContext(ctx, &found, query, campaignID, pq.Array(phones)); err != nil {
		return nil, fmt.Errorf("failed to load existing phones: %w", err)
	}
	for _, p := range found {
		existing[p] = struct{}{}
	}
	return existing, nil
}

func (r *txRepository) InsertRecipients(ctx context.Context, recipients []*model.Recipient) (map[string]struct{}, error) {
	inserted := make(map[string]struct{}, len(recipients))

	query := `
		INSERT INTO recipients (id, campaign_id, phone_number, name, email, custom_data, created_at)
		VALUES (:id, :campaign_id, :phone_number, :name, :email, :custom_data, :created_at)
		ON CONFLICT (campaign_id, phone_number) DO NOTHING
		RETURNING phone_number`

	for start := 0; start < len(recipients); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(recipients) {
			end = len(recipients)
		}

		bound, args, err := sqlx.Named(query, recipients[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to bind recipients: %w", err)
		}

		var phones []string
		if err := r.tx.SelectContext(ctx, &phones, r.tx.Rebind(bound), args...); err != nil {
			return nil, fmt.Errorf("failed to insert recipients: %w", mapError(err))
		}
		for _, p := range phones {
			inserted[p] = struct{}{}
		}
	}
	return inserted, nil
}

func (r *txRepository) DeleteRecipient(ctx context.Context, campaignID, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM recipients WHERE id = $1 AND campaign_id = $2`, id, campaignID)
	if err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}
	return requireAffected(res.RowsAffected())
}

func (r *txRepository) DeleteRecipients(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM recipients WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recipients: %w", err)
	}
	return res.RowsAffected()
}

func (r *txRepository) CountRecipients(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	if err := r.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM recipients WHERE campaign_id = $1`, campaignID); err != nil {
		return 0, fmt.Errorf("failed to count recipients: %w", err)
	}
	return n, nil
}

func (r *txRepository) CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, tenant_id, aggregate_id, event_type, payload, status,
			retry_count, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :aggregate_id, :event_type, :payload, :status,
			:retry_count, :created_at, :updated_at
		)`

	if _, err := r.tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func requireAffected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.Tx = (*txRepository)(nil)
