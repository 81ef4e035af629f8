package validators

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
)

var errPlanRefType = errors.New("planId must be a string or an integer")

// PlanRef is a plan identifier sent either as a uuid or as the plan's
// numeric catalog id. {"planId": 2}, {"planId": "2"} and a uuid string all decode.
type PlanRef string

func (p *PlanRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*p = PlanRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return errPlanRefType
	}
	*p = PlanRef(n.String())
	return nil
}

// ParsePlanRef returns either the plan uuid or its positive catalog number.
func ParsePlanRef(raw PlanRef, field string) (uuid.UUID, int, error) {
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return uuid.Nil, 0, pkgerrors.New(pkgerrors.CodeValidation, field+" is required").WithDetails(map[string]any{"field": field})
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n <= 0 {
			return uuid.Nil, 0, pkgerrors.New(pkgerrors.CodeValidation, field+" must be a positive number").WithDetails(map[string]any{"field": field})
		}
		return uuid.Nil, n, nil
	}
	id, err := ParseUUID(value, field)
	return id, 0, err
}
