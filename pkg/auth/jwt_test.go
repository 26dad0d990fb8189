package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/campaign-api/internal/model"
)

func TestValidateToken(t *testing.T) {
	svc := NewHMACService("secret", "campaign-api")
	p := model.Principal{TenantID: uuid.New(), UserID: uuid.New()}

	token, err := svc.GenerateToken(p, time.Hour)
	require.NoError(t, err)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewHMACService("secret", "campaign-api")
	p := model.Principal{TenantID: uuid.New(), UserID: uuid.New()}

	expired, err := svc.GenerateToken(p, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewHMACService("other", "campaign-api").GenerateToken(p, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewHMACService("secret", "someone-else").GenerateToken(p, time.Hour)
	require.NoError(t, err)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    "campaign-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID:         p.TenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.UserID.String(), Issuer: "campaign-api"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no tenant":    noTenant,
		"no expiry":    noExpiry,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
