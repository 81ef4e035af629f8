package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// ActorRef identifies who caused a billing change: a clinic user through the
// API, Paddle through a webhook, or the scheduler.
type ActorRef struct {
	UserID   *uuid.UUID `json:"userId,omitempty"`
	ClinicID *uuid.UUID `json:"clinicId,omitempty"`
	Source   string     `json:"source"`
}

// PayloadEnvelope is stored in outbox_events.payload and published as the
// Pub/Sub message body. Type and aggregate are repeated in the body so
// subscribers can route without reading message attributes.
type PayloadEnvelope struct {
	Version       int                       `json:"version"`
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	Actor         *ActorRef                 `json:"actor,omitempty"`
	Data          json.RawMessage           `json:"data"`
}
