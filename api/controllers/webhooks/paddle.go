package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/salymed/salymed-backend/api/responses"
	paddlewebhook "github.com/salymed/salymed-backend/internal/webhooks/paddle"
	pkgerrors "github.com/salymed/salymed-backend/pkg/errors"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/paddle"
	"github.com/salymed/salymed-backend/pkg/types"
)

const maxWebhookBody = 1 << 20

type notificationProcessor interface {
	Process(ctx context.Context, n paddle.Notification, raw []byte) paddlewebhook.Result
}

type signatureVerifier interface {
	Verify(header string, body []byte) error
}

// PaddleWebhook verifies and applies a Paddle notification. Once a delivery is
// authentic and parseable it is always acknowledged with 200 so Paddle stops
// retrying; processing faults are logged and audited instead.
func PaddleWebhook(svc notificationProcessor, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := verifier.Verify(r.Header.Get(paddle.SignatureHeader), raw); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid signature"))
			return
		}

		var n paddle.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload"))
			return
		}
		if n.EventType == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event_type is required"))
			return
		}

		result := svc.Process(ctx, n, raw)
		responses.WriteSuccess(w, types.WebhookAck{
			Received: true,
			EventID:  result.EventID,
			Outcome:  string(result.Outcome),
		})
	}
}
