package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/salymed/salymed-backend/api/responses"
	pkgAuth "github.com/salymed/salymed-backend/pkg/auth"
	"github.com/salymed/salymed-backend/pkg/config"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
)

// Auth requires a bearer access token and attaches its identity to the
// request context and the request logger.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			fields := map[string]any{
				"user_id":    claims.UserID.String(),
				"actor_role": string(claims.Role),
			}
			clinicID := ""
			if claims.ClinicID != nil {
				clinicID = claims.ClinicID.String()
				fields["clinic_id"] = clinicID
			}
			ctx = WithIdentity(ctx, claims.UserID.String(), string(claims.Role), clinicID)
			if logg != nil {
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
