package enums

import "fmt"

// PaymentMethod describes how money changed hands for a payment entry.
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodBank       PaymentMethod = "bank_transfer"
	PaymentMethodCheque     PaymentMethod = "cheque"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodAdjustment PaymentMethod = "adjustment"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodBank,
	PaymentMethodCheque,
	PaymentMethodUPI,
	PaymentMethodAdjustment,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Empty input
// defaults to cash.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if value == "" {
		return PaymentMethodCash, nil
	}
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
