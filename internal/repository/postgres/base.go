package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/campaign-api/internal/repository"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
)

const uniqueViolation = "23505"

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) BaseRepository {
	return BaseRepository{db: db, metrics: m}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.metrics.DBOperation("begin_tx", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		r.metrics.DBOperation("tx", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		r.metrics.DBOperation("commit", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.metrics.DBOperation("tx", nil)
	return nil
}

// Store is the Postgres-backed repository.Store.
type Store struct {
	BaseRepository
	campaigns  *campaignRepository
	recipients *recipientRepository
	outbox     *outboxRepository
}

func NewStore(db *sqlx.DB, m *metrics.Metrics) *Store {
	base := NewBaseRepository(db, m)
	return &Store{
		BaseRepository: base,
		campaigns:      &campaignRepository{base},
		recipients:     &recipientRepository{base},
		outbox:         &outboxRepository{base},
	}
}

func (s *Store) Campaigns() repository.CampaignRepository   { return s.campaigns }
func (s *Store) Recipients() repository.RecipientRepository { return s.recipients }
func (s *Store) Outbox() repository.OutboxRepository        { return s.outbox }

func (s *Store) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.BaseRepository.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&txRepository{tx: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
	}
	return err
}

var _ repository.Store = (*Store)(nil)
