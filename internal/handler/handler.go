// Package handler holds the HTTP helpers shared by the resource handlers and
// the health endpoints.
package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/middleware"
	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/httputil"
)

// Principal returns the authenticated caller or writes a 401 and reports
// false.
func Principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthorized(nil))
		return model.Principal{}, false
	}
	return p, true
}

// ParamUUID parses a path parameter, writing a 404 when it is not a UUID so
// malformed ids look like missing resources.
func ParamUUID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, errors.NotFound(resource, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the request body into obj, writing a 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &maxErr):
		return errors.Format("request body too large", err)
	case stderrors.Is(err, io.EOF):
		return errors.Format("request body is required", err)
	case stderrors.As(err, &typeErr):
		return errors.Validation(typeErr.Field, "has the wrong type")
	case stderrors.As(err, &syntaxErr):
		return errors.Format("invalid JSON body", err)
	default:
		return errors.Format("invalid request body", err)
	}
}

// Pinger is anything whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck pings every dependency and reports 503 if any is down.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = "down"
			continue
		}
		results[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().UTC(),
	})
}
