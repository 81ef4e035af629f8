package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// identity is the authenticated actor attached by Auth.
type identity struct {
	userID   string
	role     string
	clinicID string
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(ctxIdentity).(identity)
	return id
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// ClinicIDFromContext returns the clinic bound to the access token, or "" for
// tokens not scoped to a clinic.
func ClinicIDFromContext(ctx context.Context) string { return identityFrom(ctx).clinicID }

// UserUUIDFromContext parses the authenticated user id. It is nil for
// anonymous requests.
func UserUUIDFromContext(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}

// WithIdentity attaches the authenticated actor to ctx.
func WithIdentity(ctx context.Context, userID, role, clinicID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, identity{userID: userID, role: role, clinicID: clinicID})
}
