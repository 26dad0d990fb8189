package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/campaign-api/internal/handler"
	"github.com/jwalitptl/campaign-api/internal/middleware"
	"github.com/jwalitptl/campaign-api/pkg/httputil"
	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RateIdleExpiry   time.Duration

	CORSConfig  middleware.CORSConfig
	MetricsPath string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   *handler.HealthHandler
	handlers []Handler
	log      *logger.Logger
	metrics  *metrics.Metrics
	config   RouterConfig
}

// NewRouter builds the engine with the core middleware chain. m may be nil,
// which disables the metrics endpoint.
func NewRouter(
	auth *middleware.AuthMiddleware,
	health *handler.HealthHandler,
	handlers []Handler,
	log *logger.Logger,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		handlers: handlers,
		log:      log,
		metrics:  m,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.Metrics(m),
		middleware.CORS(config.CORSConfig),
		middleware.Timeout(config.RequestTimeout),
	)

	engine.NoRoute(func(c *gin.Context) {
		httputil.AbortWithStatus(c, http.StatusNotFound, "not_found", "route not found")
	})
	engine.NoMethod(func(c *gin.Context) {
		httputil.AbortWithStatus(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

func (r *Router) newLimiter() gin.HandlerFunc {
	return middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       r.config.RateLimit,
		Burst:      r.config.RateBurst,
		IdleExpiry: r.config.RateIdleExpiry,
	}).RateLimit()
}

func (r *Router) Setup() {
	r.setupHealthCheck()

	api := r.engine.Group("/api/v1")
	if r.config.RateLimitEnabled {
		// keyed by client IP: the principal is not known yet
		api.Use(r.newLimiter())
	}
	api.Use(r.auth.Authenticate())
	if r.config.RateLimitEnabled {
		api.Use(r.newLimiter())
	}
	api.Use(middleware.SizeLimit(r.config.MaxBodyBytes))

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) setupHealthCheck() {
	health := r.engine.Group("/health")
	{
		health.GET("/live", r.health.LivenessCheck)
		health.GET("/ready", r.health.ReadinessCheck)
	}

	if r.metrics != nil {
		path := r.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.HandlerFor(r.metrics.Registry, promhttp.HandlerOpts{})))
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
