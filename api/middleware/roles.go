package middleware

import (
	"net/http"
	"slices"

	"github.com/salymed/salymed-backend/api/responses"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

// RequireRole admits only actors whose token role is one of roles.
func RequireRole(logg *logger.Logger, roles ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := enums.Role(RoleFromContext(r.Context()))
			if !slices.Contains(roles, role) {
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithActorRole(ctx, string(role))
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role for this operation"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
