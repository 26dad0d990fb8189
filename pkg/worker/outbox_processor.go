package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"

	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/messaging"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
)

// Handler processes one claimed outbox event.
type Handler func(ctx context.Context, event *model.OutboxEvent) error

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("PollInterval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RetryAttempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("RetryDelay must be greater than 0")
	}
	return nil
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewOutboxProcessor builds a processor. broker may be nil, in which case
// events are only handed to registered handlers.
func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &OutboxProcessor{
		repo:     repo,
		broker:   broker,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: make(map[string]Handler),
	}, nil
}

// Handle registers h for eventType, replacing any previous handler.
func (p *OutboxProcessor) Handle(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = h
}

func (p *OutboxProcessor) handler(eventType string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[eventType]
	return h, ok
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessOnce claims one batch and processes it, returning how many events
// were claimed. Per-event failures are recorded on the event, not returned.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { p.metrics.ObserveOutboxBatch(time.Since(start)) }()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	p.metrics.DBOperation("claim_outbox_events", err)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType,
				"retry_count", event.RetryCount)
		}
	}
	return len(events), nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	if err := p.deliver(ctx, event); err != nil {
		p.metrics.OutboxFailed(event.EventType)
		if markErr := p.markFailed(ctx, event, err); markErr != nil {
			p.logger.Error(markErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.metrics.DBOperation("mark_outbox_processed", err)
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	p.metrics.OutboxProcessed()
	return nil
}

func (p *OutboxProcessor) deliver(ctx context.Context, event *model.OutboxEvent) error {
	h, ok := p.handler(event.EventType)
	if !ok && p.broker == nil {
		return fmt.Errorf("no handler registered for event type %s", event.EventType)
	}
	if ok {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	if p.broker != nil {
		if err := p.broker.Publish(ctx, event.EventType, event); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
	}
	return nil
}

// markFailed reschedules the event with linear back-off, or gives up once
// the retry budget is spent.
func (p *OutboxProcessor) markFailed(ctx context.Context, event *model.OutboxEvent, cause error) error {
	attempt := event.RetryCount + 1
	if attempt >= p.config.RetryAttempts {
		p.logger.Warn("Outbox event moved to dead letter",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", attempt)
		return p.repo.MarkDead(ctx, event.ID, cause.Error())
	}
	retryAt := p.now().Add(p.config.RetryDelay * time.Duration(attempt))
	return p.repo.MarkFailed(ctx, event.ID, cause.Error(), retryAt)
}
