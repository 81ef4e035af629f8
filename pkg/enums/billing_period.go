package enums

import (
	"fmt"
	"strings"
	"time"
)

// BillingPeriod is the renewal cadence of a subscription plan.
type BillingPeriod string

const (
	BillingPeriodWeekly   BillingPeriod = "weekly"
	BillingPeriodMonthly  BillingPeriod = "monthly"
	BillingPeriodAnnually BillingPeriod = "annually"
)

var validBillingPeriods = []BillingPeriod{
	BillingPeriodWeekly,
	BillingPeriodMonthly,
	BillingPeriodAnnually,
}

// String implements fmt.Stringer.
func (p BillingPeriod) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p BillingPeriod) IsValid() bool {
	for _, candidate := range validBillingPeriods {
		if candidate == p {
			return true
		}
	}
	return false
}

// AddTo returns start advanced by one billing cycle. Unknown periods fall back
// to a monthly cycle.
func (p BillingPeriod) AddTo(start time.Time) time.Time {
	switch p {
	case BillingPeriodWeekly:
		return start.AddDate(0, 0, 7)
	case BillingPeriodAnnually:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// ParseBillingPeriod converts raw input (case-insensitive) into a BillingPeriod.
func ParseBillingPeriod(value string) (BillingPeriod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validBillingPeriods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing period %q", value)
}
