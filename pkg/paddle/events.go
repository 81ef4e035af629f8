package paddle

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/salymed/salymed-backend/pkg/enums"
)

// Notification is the envelope Paddle posts to the webhook endpoint.
type Notification struct {
	EventID        string                `json:"event_id"`
	NotificationID string                `json:"notification_id"`
	EventType      enums.PaddleEventType `json:"event_type"`
	OccurredAt     *time.Time            `json:"occurred_at"`
	Data           EventData             `json:"data"`
}

// DeliveryID identifies the notification for dedup and audit purposes. Without
// an event or notification id the key is built from the event type, the entity
// and occurred_at, so distinct updates of one entity stay distinct.
func (n Notification) DeliveryID() string {
	if id := strings.TrimSpace(n.EventID); id != "" {
		return id
	}
	if id := strings.TrimSpace(n.NotificationID); id != "" {
		return id
	}
	entity := strings.TrimSpace(n.Data.ID)
	if entity == "" {
		entity = n.Data.PaddleSubscriptionID()
	}
	key := string(n.EventType) + ":" + entity
	if n.OccurredAt != nil {
		key += ":" + n.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return key
}

// EventData holds the transaction or subscription entity of the notification.
// For transaction events ID is the transaction id; for subscription events it is
// the subscription id and TransactionID links back to the originating checkout.
type EventData struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	SubscriptionID  string      `json:"subscription_id"`
	TransactionID   string      `json:"transaction_id"`
	CustomerID      string      `json:"customer_id"`
	PaymentMethodID string      `json:"payment_method_id"`
	CustomData      CustomData  `json:"custom_data"`
	Payments        []Payment   `json:"payments"`
	BillingPeriod   *TimeWindow `json:"billing_period"`
	Details         *Details    `json:"details"`
}

// CustomData echoes the identifiers sent when the checkout was created.
type CustomData struct {
	ClinicID FlexString `json:"clinic_id"`
	PlanID   FlexString `json:"plan_id"`
	UserID   FlexString `json:"user_id"`
}

// Payment is one payment attempt on a transaction.
type Payment struct {
	PaymentMethodID string        `json:"payment_method_id"`
	Status          string        `json:"status"`
	MethodDetails   MethodDetails `json:"method_details"`
}

// MethodDetails describes the instrument used for a payment.
type MethodDetails struct {
	Type string       `json:"type"`
	Card *CardDetails `json:"card"`
}

// CardDetails is the non-sensitive card snapshot Paddle shares.
type CardDetails struct {
	Type           string `json:"type"`
	Last4          string `json:"last4"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	CardholderName string `json:"cardholder_name"`
}

// TimeWindow is a billing period.
type TimeWindow struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Details carries the transaction totals.
type Details struct {
	Totals struct {
		Subtotal     string `json:"subtotal"`
		Tax          string `json:"tax"`
		Discount     string `json:"discount"`
		Total        string `json:"total"`
		CurrencyCode string `json:"currency_code"`
	} `json:"totals"`
}

// PaddleSubscriptionID returns the subscription an event refers to. The
// flattened payload names it subscription_id; a subscription entity carries it
// as its own id.
func (d EventData) PaddleSubscriptionID() string {
	if id := strings.TrimSpace(d.SubscriptionID); id != "" {
		return id
	}
	return strings.TrimSpace(d.ID)
}

// PrimaryPaymentMethodID returns the payment method referenced by the event.
func (d EventData) PrimaryPaymentMethodID() string {
	if d.PaymentMethodID != "" {
		return d.PaymentMethodID
	}
	for _, p := range d.Payments {
		if p.PaymentMethodID != "" {
			return p.PaymentMethodID
		}
	}
	return ""
}

// FirstCard returns the first payment carrying card details, if any.
func (d EventData) FirstCard() (*Payment, bool) {
	for i := range d.Payments {
		if d.Payments[i].MethodDetails.Card != nil {
			return &d.Payments[i], true
		}
	}
	return nil, false
}

// FlexString accepts JSON strings and numbers, since custom_data is free-form.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return err
	}
	*f = FlexString(raw)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
