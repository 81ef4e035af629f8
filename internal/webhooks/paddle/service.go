package paddlewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salymed/salymed-backend/internal/billing"
	"github.com/salymed/salymed-backend/internal/subscriptions"
	"github.com/salymed/salymed-backend/pkg/config"
	"github.com/salymed/salymed-backend/pkg/enums"
	"github.com/salymed/salymed-backend/pkg/logger"
	"github.com/salymed/salymed-backend/pkg/outbox"
	"github.com/salymed/salymed-backend/pkg/paddle"
)

// Outcome classifies how a delivery was handled.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Result reports what happened to one notification. Faults are carried in Err
// and never turned into transport errors.
type Result struct {
	EventID   string
	EventType enums.PaddleEventType
	Outcome   Outcome
	Err       error
}

func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type webhookMetrics interface {
	IncWebhook(eventType, outcome string)
}

type handlerFunc func(ctx context.Context, tx *gorm.DB, repo billing.Repository, n paddle.Notification, raw []byte) (Outcome, error)

// ServiceParams groups dependencies for the webhook processor.
type ServiceParams struct {
	Repo      billing.Repository
	Activator *subscriptions.Activator
	TxRunner  txRunner
	Audit     *AuditLog
	Guard     *EventGuard
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Billing   config.BillingConfig
	Metrics   webhookMetrics
	Clock     func() time.Time
}

// Service applies Paddle notifications to the subscription store.
type Service struct {
	repo             billing.Repository
	activator        *subscriptions.Activator
	tx               txRunner
	audit            *AuditLog
	guard            *EventGuard
	outbox           outbox.Emitter
	logg             *logger.Logger
	releaseOnFailure bool
	metrics          webhookMetrics
	now              func() time.Time
	handlers         map[enums.PaddleEventType]handlerFunc
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("billing repository required")
	}
	if params.Activator == nil {
		return nil, errors.New("activator required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	s := &Service{
		repo:             params.Repo,
		activator:        params.Activator,
		tx:               params.TxRunner,
		audit:            params.Audit,
		guard:            params.Guard,
		outbox:           params.Outbox,
		logg:             params.Logger,
		releaseOnFailure: params.Billing.ReleaseOnFailure,
		metrics:          params.Metrics,
		now:              clock,
	}
	s.handlers = map[enums.PaddleEventType]handlerFunc{
		enums.PaddleEventTransactionCompleted:     s.handleTransactionSettled,
		enums.PaddleEventTransactionPaid:          s.handleTransactionSettled,
		enums.PaddleEventTransactionPaymentFailed: s.handlePaymentFailed,
		enums.PaddleEventSubscriptionCreated:      s.handleSubscriptionCreated,
		enums.PaddleEventSubscriptionUpdated:      s.handleSubscriptionUpdated,
		enums.PaddleEventSubscriptionCanceled:     s.handleSubscriptionCanceled,
	}
	return s, nil
}

// Process handles one verified notification. All writes of the delivery share
// one transaction.
func (s *Service) Process(ctx context.Context, n paddle.Notification, raw []byte) Result {
	eventID := n.DeliveryID()
	result := Result{EventID: eventID, EventType: n.EventType}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   eventID,
		"event_type": string(n.EventType),
	})
	if n.Data.ID != "" {
		ctx = s.logg.WithField(ctx, "paddle_entity_id", n.Data.ID)
	}

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, eventID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook event guard unavailable")
		} else if seen {
			result.Outcome = OutcomeDuplicate
			return s.finish(ctx, result)
		}
	}

	var auditID *uuid.UUID
	if s.audit != nil {
		row, err := s.audit.Record(ctx, n, raw, s.now())
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook audit record failed")
		} else {
			if settled(row) {
				result.Outcome = OutcomeDuplicate
				return s.finish(ctx, result)
			}
			auditID = &row.ID
		}
	}

	handler, ok := s.handlers[n.EventType]
	if !ok {
		result.Outcome = OutcomeIgnored
		s.finishAudit(ctx, nil, auditID, result)
		return s.finish(ctx, result)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		outcome, err := handler(ctx, tx, s.repo.WithTx(tx), n, raw)
		if err != nil {
			return err
		}
		result.Outcome = outcome
		if auditID != nil {
			return s.audit.Finish(ctx, tx, *auditID, outcome, nil, s.now())
		}
		return nil
	})
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		s.finishAudit(ctx, nil, auditID, result)
	}
	if result.Outcome != OutcomeProcessed && result.Outcome != OutcomeIgnored && s.guard != nil {
		if relErr := s.guard.Release(ctx, eventID); relErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "webhook event guard release failed")
		}
	}
	return s.finish(ctx, result)
}

func (s *Service) finishAudit(ctx context.Context, tx *gorm.DB, auditID *uuid.UUID, result Result) {
	if auditID == nil {
		return
	}
	if err := s.audit.Finish(ctx, tx, *auditID, result.Outcome, result.Err, s.now()); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook audit update failed")
	}
}

func (s *Service) finish(ctx context.Context, result Result) Result {
	if s.metrics != nil {
		s.metrics.IncWebhook(string(result.EventType), string(result.Outcome))
	}
	ctx = s.logg.WithField(ctx, "outcome", string(result.Outcome))
	switch result.Outcome {
	case OutcomeFailed:
		s.logg.ErrorWithDump(ctx, "paddle webhook processing failed", result.Err)
	case OutcomeNotFound:
		s.logg.Warn(ctx, "paddle webhook references unknown subscription")
	case OutcomeIgnored:
		s.logg.Info(ctx, "paddle webhook ignored")
	default:
		s.logg.Info(ctx, "paddle webhook handled")
	}
	return result
}
