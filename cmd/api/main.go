package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/campaign-api/internal/app"
	"github.com/jwalitptl/campaign-api/internal/config"
	"github.com/jwalitptl/campaign-api/internal/handler"
	campaignHandler "github.com/jwalitptl/campaign-api/internal/handler/campaign"
	recipientHandler "github.com/jwalitptl/campaign-api/internal/handler/recipient"
	"github.com/jwalitptl/campaign-api/internal/middleware"
	"github.com/jwalitptl/campaign-api/internal/router"
	"github.com/jwalitptl/campaign-api/pkg/auth"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	l := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal(err, "failed to initialize application")
	}
	defer a.Close()

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(auth.NewHMACService(cfg.JWT.Secret, cfg.JWT.Issuer)),
		handler.NewHealthHandler(a.HealthChecks()),
		[]router.Handler{
			campaignHandler.NewHandler(a.Campaigns),
			recipientHandler.NewHandler(a.Recipients),
		},
		l,
		a.Metrics,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Upload.MaxBytes,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RateIdleExpiry:   cfg.RateLimit.IdleExpiry,
			CORSConfig:       middleware.DefaultCORSConfig(),
			MetricsPath:      cfg.Metrics.Path,
		},
	)
	r.Setup()

	// The worker command can run the outbox separately; embedded by default.
	wait := func() {}
	if cfg.Outbox.Enabled {
		wait, err = a.StartWorkers(ctx)
		if err != nil {
			l.Fatal(err, "failed to start outbox workers")
		}
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		l.Info("starting server", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "server forced to shutdown")
	}
	wait()

	l.Info("server exited properly")
}
