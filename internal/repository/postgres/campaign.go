package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/campaign-api/internal/model"
)

const campaignColumns = `
	id, tenant_id, created_by, name, description, message_template,
	template_variables, variable_defaults, status, scheduled_at, started_at,
	completed_at, total_recipients, sent_count, delivered_count, failed_count,
	created_at, updated_at`

type campaignRepository struct {
	BaseRepository
}

func (r *campaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES (
			:id, :tenant_id, :created_by, :name, :description, :message_template,
			:template_variables, :variable_defaults, :status, :scheduled_at, :started_at,
			:completed_at, :total_recipients, :sent_count, :delivered_count, :failed_count,
			:created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, c)
	r.metrics.DBOperation("create_campaign", err)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", mapError(err))
	}
	return nil
}

func (r *campaignRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error) {
	return getCampaign(ctx, r.db, tenantID, id, false)
}

func (r *campaignRepository) List(ctx context.Context, tenantID uuid.UUID, filter model.CampaignFilter) ([]*model.Campaign, int, error) {
	where := `WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if filter.Status != "" {
		where += ` AND status = $2`
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns `+where, args...); err != nil {
		r.metrics.DBOperation("count_campaigns", err)
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		campaignColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	var campaigns []*model.Campaign
	err := r.db.SelectContext(ctx, &campaigns, query, args...)
	r.metrics.DBOperation("list_campaigns", err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, total, nil
}

func getCampaign(ctx context.Context, q sqlx.QueryerContext, tenantID, id uuid.UUID, lock bool) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 AND tenant_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}

	var c model.Campaign
	if err := sqlx.GetContext(ctx, q, &c, query, id, tenantID); err != nil {
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, mapError(err))
	}
	return &c, nil
}
