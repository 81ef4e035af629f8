package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	ClinicID *uuid.UUID
	Role     enums.Role
	JTI      string
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID   uuid.UUID  `json:"user_id"`
	ClinicID *uuid.UUID `json:"clinic_id,omitempty"`
	Role     enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// CanAccessClinic reports whether the bearer may read or buy for clinicID.
// Admins may act for any clinic.
func (c *AccessTokenClaims) CanAccessClinic(clinicID uuid.UUID) bool {
	if c == nil {
		return false
	}
	if c.Role == enums.RoleAdmin {
		return true
	}
	return c.ClinicID != nil && *c.ClinicID == clinicID
}
