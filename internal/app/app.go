// Package app wires configuration into the store, services and background
// workers shared by the api and worker commands.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/campaign-api/internal/config"
	"github.com/jwalitptl/campaign-api/internal/handler"
	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
	"github.com/jwalitptl/campaign-api/internal/repository/memory"
	"github.com/jwalitptl/campaign-api/internal/repository/postgres"
	"github.com/jwalitptl/campaign-api/internal/service/campaign"
	"github.com/jwalitptl/campaign-api/internal/service/dispatch"
	"github.com/jwalitptl/campaign-api/internal/service/recipient"
	"github.com/jwalitptl/campaign-api/internal/worker"
	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/messaging"
	"github.com/jwalitptl/campaign-api/pkg/messaging/redis"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
	pkgworker "github.com/jwalitptl/campaign-api/pkg/worker"
)

type App struct {
	Config     *config.Config
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Store      repository.Store
	Broker     messaging.Broker
	Campaigns  *campaign.Service
	Recipients *recipient.Service
	Dispatch   *dispatch.Service

	closers []func() error
}

// NewLogger builds the process logger from config and installs it as the
// zerolog global.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		JSON:   strings.EqualFold(cfg.Format, "json"),
		Output: os.Stdout,
	})
	log.Logger = l.Zerolog()
	return l
}

// New connects the store and, when enabled, the broker, then builds the
// services.
func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: l}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace)
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		l.Warn("using in-memory store; data is lost on restart")
		a.Store = memory.NewStore()
	default:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.Store = postgres.NewStore(db, a.Metrics)
	}

	if cfg.Redis.Enabled {
		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, l, a.Metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, broker.Close)
		a.Broker = broker
	}

	a.Campaigns = campaign.NewService(a.Store, l, a.Metrics)
	a.Recipients = recipient.NewService(a.Store, l, a.Metrics)
	a.Dispatch = dispatch.NewService(a.Store, a.Campaigns, dispatch.NewLogTransport(l), l, a.Metrics)
	return a, nil
}

// HealthChecks lists the dependencies readiness depends on.
func (a *App) HealthChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"database": a.Store}
	if p, ok := a.Broker.(handler.Pinger); ok {
		checks["redis"] = p
	}
	return checks
}

// StartWorkers runs the outbox processor and its cleanup until ctx is done.
// The returned function blocks until both have stopped.
func (a *App) StartWorkers(ctx context.Context) (func(), error) {
	cfg := a.Config.Outbox

	processor, err := pkgworker.NewOutboxProcessor(a.Store.Outbox(), a.Broker, pkgworker.OutboxProcessorConfig{
		BatchSize:     cfg.BatchSize,
		PollInterval:  cfg.PollInterval,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, a.Logger, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("invalid outbox configuration: %w", err)
	}
	processor.Handle(model.EventCampaignDispatch, a.Dispatch.HandleEvent)

	cleanup := worker.NewOutboxCleanupWorker(a.Store.Outbox(), cfg.RetentionDays, cfg.CleanupInterval, a.Logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	return wg.Wait, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error(err, "failed to close resource")
		}
	}
	a.closers = nil
}
