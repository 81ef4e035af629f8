package types

// SuccessEnvelope wraps read endpoints: {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the body of a failed enveloped request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// PaymentResult is the flat outcome carried by payment endpoints. Reason is a
// machine-readable code set only on failures a client can act on, such as
// checkout_in_progress.
type PaymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// WebhookAck is returned to Paddle for every authentic delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	EventID  string `json:"eventId,omitempty"`
	Outcome  string `json:"outcome"`
}
