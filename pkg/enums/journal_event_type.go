package enums

import "fmt"

// JournalEventType classifies entries in the reconciliation journal.
type JournalEventType string

const (
	JournalEventInvoiceCreated        JournalEventType = "invoice_created"
	JournalEventItemsEdited           JournalEventType = "items_edited"
	JournalEventPaymentRecorded       JournalEventType = "payment_recorded"
	JournalEventInvoiceDeleted        JournalEventType = "invoice_deleted"
	JournalEventBrokerPaymentRecorded JournalEventType = "broker_payment_recorded"
	JournalEventSheetCreated          JournalEventType = "sheet_created"
	JournalEventSheetUpdated          JournalEventType = "sheet_updated"
	JournalEventSheetDeleted          JournalEventType = "sheet_deleted"
	JournalEventCommissionerPayment   JournalEventType = "commissioner_payment"
	JournalEventPartialFailure        JournalEventType = "partial_failure"
	JournalEventDriftRepaired         JournalEventType = "drift_repaired"
)

var validJournalEventTypes = []JournalEventType{
	JournalEventInvoiceCreated,
	JournalEventItemsEdited,
	JournalEventPaymentRecorded,
	JournalEventInvoiceDeleted,
	JournalEventBrokerPaymentRecorded,
	JournalEventSheetCreated,
	JournalEventSheetUpdated,
	JournalEventSheetDeleted,
	JournalEventCommissionerPayment,
	JournalEventPartialFailure,
	JournalEventDriftRepaired,
}

// IsValid reports whether the value matches a known journal event type.
func (t JournalEventType) IsValid() bool {
	for _, candidate := range validJournalEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseJournalEventType converts raw input into JournalEventType.
func ParseJournalEventType(value string) (JournalEventType, error) {
	for _, candidate := range validJournalEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid journal event type %q", value)
}
