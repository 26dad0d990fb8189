package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/pkg/auth"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/httputil"
)

const ContextPrincipal = "principal"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the caller's principal
// in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.AbortWithError(c, unauthorized("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.AbortWithError(c, unauthorized("invalid authorization format"))
			return
		}

		p, err := m.jwt.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			appErr := errors.Unauthorized(err)
			appErr.Message = "invalid token"
			httputil.AbortWithError(c, appErr)
			return
		}

		c.Set(ContextPrincipal, p)
		c.Next()
	}
}

func unauthorized(msg string) *errors.AppError {
	err := errors.Unauthorized(nil)
	err.Message = msg
	return err
}

// GetPrincipal returns the principal stored by Authenticate.
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}
