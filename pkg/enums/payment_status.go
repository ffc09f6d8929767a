package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus is the three-state settlement status shared by customer
// invoices, vendor invoices and the broker sub-ledger.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusPaid          PaymentStatus = "paid"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPartiallyPaid,
	PaymentStatusPaid,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Outstanding reports whether money is still owed.
func (p PaymentStatus) Outstanding() bool {
	return p == PaymentStatusUnpaid || p == PaymentStatusPartiallyPaid
}

// ParsePaymentStatus converts raw input into a PaymentStatus. Case, spaces and
// hyphens are folded so "Partially Paid" and "partially-paid" both match.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	folded := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(value)))
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == folded {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
