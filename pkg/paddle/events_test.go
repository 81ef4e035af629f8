package paddle

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salymed/salymed-backend/pkg/enums"
)

const completedPayload = `{
  "event_id": "evt_01",
  "event_type": "transaction.completed",
  "occurred_at": "2026-03-01T10:00:00Z",
  "data": {
    "id": "txn_1",
    "status": "completed",
    "subscription_id": "sub_1",
    "custom_data": {"clinic_id": "7f1c", "plan_id": 2, "user_id": null},
    "payments": [
      {"payment_method_id": "paymtd_1", "method_details": {"type": "card", "card": {"type": "visa", "last4": "4242", "expiry_month": 12, "expiry_year": 2030, "cardholder_name": "Dr Who"}}}
    ]
  }
}`

func TestNotificationDecoding(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(completedPayload), &n))

	require.Equal(t, enums.PaddleEventTransactionCompleted, n.EventType)
	require.Equal(t, "evt_01", n.DeliveryID())
	require.Equal(t, "txn_1", n.Data.ID)
	require.Equal(t, "7f1c", n.Data.CustomData.ClinicID.String())
	require.Equal(t, "2", n.Data.CustomData.PlanID.String())
	require.Empty(t, n.Data.CustomData.UserID.String())
	require.Equal(t, "paymtd_1", n.Data.PrimaryPaymentMethodID())

	payment, ok := n.Data.FirstCard()
	require.True(t, ok)
	require.Equal(t, "4242", payment.MethodDetails.Card.Last4)
	require.Equal(t, 2030, payment.MethodDetails.Card.ExpiryYear)
}

func TestDeliveryIDFallsBackToEventAndEntity(t *testing.T) {
	n := Notification{EventType: enums.PaddleEventTransactionPaid, Data: EventData{ID: "txn_9"}}
	require.Equal(t, "transaction.paid:txn_9", n.DeliveryID())

	n.NotificationID = "ntf_1"
	require.Equal(t, "ntf_1", n.DeliveryID())
}

func TestDeliveryIDSeparatesUpdatesOfOneEntity(t *testing.T) {
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	a := Notification{EventType: enums.PaddleEventSubscriptionUpdated, OccurredAt: &first, Data: EventData{ID: "sub_1"}}
	b := Notification{EventType: enums.PaddleEventSubscriptionUpdated, OccurredAt: &second, Data: EventData{ID: "sub_1"}}

	require.NotEqual(t, a.DeliveryID(), b.DeliveryID())
	require.Equal(t, "subscription.updated:sub_1:2026-03-01T10:00:00Z", a.DeliveryID())

	flattened := Notification{EventType: enums.PaddleEventSubscriptionCanceled, OccurredAt: &first, Data: EventData{SubscriptionID: "sub_2"}}
	require.Equal(t, "subscription.canceled:sub_2:2026-03-01T10:00:00Z", flattened.DeliveryID())
}

func TestPaddleSubscriptionIDPrefersSubscriptionField(t *testing.T) {
	require.Equal(t, "sub_1", EventData{ID: "txn_1", SubscriptionID: "sub_1"}.PaddleSubscriptionID())
	require.Equal(t, "sub_2", EventData{ID: "sub_2"}.PaddleSubscriptionID())
	require.Empty(t, EventData{}.PaddleSubscriptionID())
}

func TestFlexStringRejectsObjects(t *testing.T) {
	var f FlexString
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &f))
}
