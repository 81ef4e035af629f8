package validators

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

// ParseUUID parses a required identifier taken from a path or query value.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, field+" is required").WithDetails(map[string]any{"field": field})
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" must be a valid id").WithDetails(map[string]any{"field": field})
	}
	return id, nil
}

// ParseOptionalUUID returns nil for an empty value.
func ParseOptionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := ParseUUID(*raw, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
