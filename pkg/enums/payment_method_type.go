package enums

import (
	"fmt"
	"slices"
	"strings"
)

// PaymentMethodType is the category of a saved Paddle payment method.
type PaymentMethodType string

const (
	PaymentMethodTypeCard      PaymentMethodType = "card"
	PaymentMethodTypePayPal    PaymentMethodType = "paypal"
	PaymentMethodTypeApplePay  PaymentMethodType = "apple_pay"
	PaymentMethodTypeGooglePay PaymentMethodType = "google_pay"
	PaymentMethodTypeOther     PaymentMethodType = "other"
)

var paymentMethodTypes = []PaymentMethodType{
	PaymentMethodTypeCard, PaymentMethodTypePayPal, PaymentMethodTypeApplePay,
	PaymentMethodTypeGooglePay, PaymentMethodTypeOther,
}

func (p PaymentMethodType) String() string { return string(p) }

func (p PaymentMethodType) IsValid() bool { return slices.Contains(paymentMethodTypes, p) }

// ParsePaymentMethodType accepts Paddle's method type names case-insensitively.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	p := PaymentMethodType(strings.ToLower(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment method type %q", value)
	}
	return p, nil
}
