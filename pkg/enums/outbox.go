package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateInvoice      OutboxAggregateType = "invoice"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateSubscription || a == AggregateInvoice
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSubscriptionActivated  OutboxEventType = "subscription_activated"
	EventSubscriptionCancelled  OutboxEventType = "subscription_cancelled"
	EventSubscriptionExpired    OutboxEventType = "subscription_expired"
	EventSubscriptionPaymentErr OutboxEventType = "subscription_payment_failed"
	EventInvoiceCreated         OutboxEventType = "invoice_created"
)

// eventAggregates pins every event type to the aggregate it describes.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventSubscriptionActivated:  AggregateSubscription,
	EventSubscriptionCancelled:  AggregateSubscription,
	EventSubscriptionExpired:    AggregateSubscription,
	EventSubscriptionPaymentErr: AggregateSubscription,
	EventInvoiceCreated:         AggregateInvoice,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}
