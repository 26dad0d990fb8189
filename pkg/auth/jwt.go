// Package auth validates bearer tokens and maps them to a tenant principal.
package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
)

var ErrInvalidToken = stderrors.New("invalid token")

// Claims carries the tenant alongside the registered claims; the subject is
// the user id.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type JWTService interface {
	ValidateToken(token string) (model.Principal, error)
}

type HMACService struct {
	secret []byte
	issuer string
}

// NewHMACService validates HS256 tokens signed with secret. An empty issuer
// accepts tokens from any issuer.
func NewHMACService(secret, issuer string) *HMACService {
	return &HMACService{secret: []byte(secret), issuer: issuer}
}

func (s *HMACService) ValidateToken(token string) (model.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: tenant_id: %v", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: sub: %v", ErrInvalidToken, err)
	}
	return model.Principal{TenantID: tenantID, UserID: userID}, nil
}

// GenerateToken signs a token for p. Production tokens come from the
// identity provider; this backs local tooling and tests.
func (s *HMACService) GenerateToken(p model.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: p.TenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

var _ JWTService = (*HMACService)(nil)
