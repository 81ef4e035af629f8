package enums

import (
	"fmt"
	"slices"
)

// SubscriptionStatus is the lifecycle state of a clinic subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionStatusActive         SubscriptionStatus = "active"
	SubscriptionStatusPaymentFailed  SubscriptionStatus = "payment_failed"
	SubscriptionStatusCancelled      SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired        SubscriptionStatus = "expired"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPendingPayment, SubscriptionStatusActive, SubscriptionStatusPaymentFailed,
	SubscriptionStatusCancelled, SubscriptionStatusExpired,
}

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPendingPayment: {SubscriptionStatusActive, SubscriptionStatusPaymentFailed},
	SubscriptionStatusActive:         {SubscriptionStatusCancelled, SubscriptionStatusExpired},
	// A later successful charge on the same Paddle transaction recovers a failed payment.
	SubscriptionStatusPaymentFailed: {SubscriptionStatusActive},
}

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool { return slices.Contains(subscriptionStatuses, s) }

// CanTransitionTo reports whether next is reachable from s in one step.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	return slices.Contains(subscriptionTransitions[s], next)
}

// IsTerminal reports whether no further transitions leave s.
func (s SubscriptionStatus) IsTerminal() bool {
	return len(subscriptionTransitions[s]) == 0
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid subscription status %q", value)
	}
	return s, nil
}
