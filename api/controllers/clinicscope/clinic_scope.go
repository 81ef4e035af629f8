package clinicscope

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/salymed/salymed-backend/api/middleware"
	"github.com/salymed/salymed-backend/pkg/enums"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

// Resolve returns the clinic a request acts for. An explicit id wins over the
// token's clinic; non-admin callers may only name their own clinic.
func Resolve(r *http.Request, requested string) (uuid.UUID, error) {
	ctx := r.Context()
	tokenClinic := middleware.ClinicIDFromContext(ctx)

	requested = strings.TrimSpace(requested)
	if requested == "" {
		if tokenClinic == "" {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "clinicId is required").
				WithDetails(map[string]any{"field": "clinicId"})
		}
		requested = tokenClinic
	}

	id, err := uuid.Parse(requested)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid clinic id").
			WithDetails(map[string]any{"field": "clinicId"})
	}
	if err := Authorize(r, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Authorize rejects callers that are neither admins nor bound to clinicID.
func Authorize(r *http.Request, clinicID uuid.UUID) error {
	ctx := r.Context()
	if enums.Role(middleware.RoleFromContext(ctx)) == enums.RoleAdmin {
		return nil
	}
	if middleware.ClinicIDFromContext(ctx) != clinicID.String() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "clinic access denied")
	}
	return nil
}
