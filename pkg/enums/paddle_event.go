package enums

// PaddleEventType is the event_type field of a Paddle webhook notification.
type PaddleEventType string

const (
	PaddleEventTransactionCompleted     PaddleEventType = "transaction.completed"
	PaddleEventTransactionPaid          PaddleEventType = "transaction.paid"
	PaddleEventTransactionPaymentFailed PaddleEventType = "transaction.payment_failed"
	PaddleEventSubscriptionCreated      PaddleEventType = "subscription.created"
	PaddleEventSubscriptionUpdated      PaddleEventType = "subscription.updated"
	PaddleEventSubscriptionCanceled     PaddleEventType = "subscription.canceled"
)

var handledPaddleEvents = []PaddleEventType{
	PaddleEventTransactionCompleted,
	PaddleEventTransactionPaid,
	PaddleEventTransactionPaymentFailed,
	PaddleEventSubscriptionCreated,
	PaddleEventSubscriptionUpdated,
	PaddleEventSubscriptionCanceled,
}

// String implements fmt.Stringer.
func (e PaddleEventType) String() string {
	return string(e)
}

// IsHandled reports whether the processor reacts to this event type.
func (e PaddleEventType) IsHandled() bool {
	for _, candidate := range handledPaddleEvents {
		if candidate == e {
			return true
		}
	}
	return false
}
