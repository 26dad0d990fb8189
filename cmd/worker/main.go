package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/campaign-api/internal/app"
	"github.com/jwalitptl/campaign-api/internal/config"
	"github.com/jwalitptl/campaign-api/internal/handler"
	"github.com/jwalitptl/campaign-api/pkg/logger"
)

const healthAddr = ":8081"

func setupHealthCheck(checks map[string]handler.Pinger, l *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				http.Error(w, fmt.Sprintf("%s: down", name), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Fatal().Msg("the worker needs a shared database; the memory driver only works embedded in the api")
	}

	l := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal(err, "failed to initialize worker")
	}
	defer a.Close()

	health := setupHealthCheck(a.HealthChecks(), l)

	wait, err := a.StartWorkers(ctx)
	if err != nil {
		l.Fatal(err, "failed to start outbox workers")
	}
	l.Info("Worker started", "batch_size", cfg.Outbox.BatchSize, "health_addr", healthAddr)

	<-ctx.Done()
	l.Info("Shutting down worker...")
	wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "health server forced to shutdown")
	}
	l.Info("Worker stopped")
}
