package enums

import "fmt"

// SheetStatus is the two-state status of a commission sheet. Partial receipts
// stay "not paid" and are visible through the pending amount.
type SheetStatus string

const (
	SheetStatusPaid    SheetStatus = "paid"
	SheetStatusNotPaid SheetStatus = "not paid"
)

var validSheetStatuses = []SheetStatus{
	SheetStatusPaid,
	SheetStatusNotPaid,
}

func (s SheetStatus) String() string {
	return string(s)
}

func (s SheetStatus) IsValid() bool {
	for _, candidate := range validSheetStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseSheetStatus(value string) (SheetStatus, error) {
	for _, candidate := range validSheetStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sheet status %q", value)
}
