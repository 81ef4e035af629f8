package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// Describe maps err to its HTTP status and the public error body.
func Describe(err error) (int, types.APIError) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeUnauthorized,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict,
		pkgerrors.CodeIdempotency,
		pkgerrors.CodeRateLimit:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	apiErr := types.APIError{
		Code:    string(typed.Code()),
		Message: msg,
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			apiErr.Details = details
		}
	}
	return meta.HTTPStatus, apiErr
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	status, apiErr := Describe(err)
	LogError(ctx, logg, err)
	writeJSON(w, status, types.ErrorEnvelope{Error: apiErr})
}

// LogError records err with its unwrapped database diagnostics. Client
// faults are logged at warn, everything else at error.
func LogError(ctx context.Context, logg *logger.Logger, err error) {
	if logg == nil || err == nil {
		return
	}
	ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
	if status, _ := Describe(err); status < http.StatusInternalServerError {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "request rejected")
		return
	}
	logg.Error(ctx, "request failed", err)
}

// WriteJSON writes payload without the data envelope.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

// encodeFailure is written when a payload cannot be marshalled, before any
// header has gone out.
var encodeFailure = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}` + "\n")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, encodeFailure
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
