package model

import "github.com/google/uuid"

// Principal is the authenticated caller. Every campaign and recipient
// operation is scoped to its TenantID.
type Principal struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   uuid.UUID `json:"user_id"`
}
