package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
)

type outboxRepo struct{ s *Store }

func (r outboxRepo) ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	var claimed []*model.OutboxEvent
	for _, e := range r.s.state.outbox {
		if len(claimed) >= limit {
			break
		}
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = now
		claimed = append(claimed, copyEvent(e))
	}
	return claimed, nil
}

func (r outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent, now time.Time) {
		e.Status = model.OutboxStatusProcessed
		e.ErrorMessage = nil
		e.ProcessedAt = &now
	})
}

func (r outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.update(id, func(e *model.OutboxEvent, now time.Time) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryCount++
		e.RetryAt = &retryAt
	})
}

func (r outboxRepo) MarkDead(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.update(id, func(e *model.OutboxEvent, now time.Time) {
		e.Status = model.OutboxStatusDead
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.state.outbox[:0]
	var deleted int64
	for _, e := range r.s.state.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.state.outbox = kept
	return deleted, nil
}

func (r outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent, time.Time)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.state.outbox {
		if e.ID == id {
			now := time.Now().UTC()
			fn(e, now)
			e.UpdatedAt = now
			return nil
		}
	}
	return repository.ErrNotFound
}
