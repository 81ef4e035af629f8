package paddlewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const provider = "paddle"

type eventStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WebhookEventKey(provider, eventID string) string
	Del(ctx context.Context, keys ...string) error
}

// EventGuard short-circuits redeliveries of an event id that is being or was
// recently handled.
type EventGuard struct {
	store eventStore
	ttl   time.Duration
}

func NewEventGuard(store eventStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark claims eventID and reports whether it was already claimed.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(provider, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook event key: %w", err)
	}
	return !set, nil
}

// Release drops the claim so a redelivery is processed again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(provider, eventID))
}
