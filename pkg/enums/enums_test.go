package enums

import "testing"

func TestParsePaymentStatus(t *testing.T) {
	for _, raw := range []string{"unpaid", "partially_paid", "paid"} {
		got, err := ParsePaymentStatus(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if !got.IsValid() || got.String() != raw {
			t.Fatalf("unexpected status %q", got)
		}
	}
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	for _, raw := range []string{"Partially Paid", " partially-paid "} {
		if got, err := ParsePaymentStatus(raw); err != nil || got != PaymentStatusPartiallyPaid {
			t.Fatalf("expected %q to fold to partially_paid, got %q (%v)", raw, got, err)
		}
	}
}

func TestPaymentStatusOutstanding(t *testing.T) {
	if !PaymentStatusUnpaid.Outstanding() || !PaymentStatusPartiallyPaid.Outstanding() {
		t.Fatal("unpaid and partially paid should be outstanding")
	}
	if PaymentStatusPaid.Outstanding() {
		t.Fatal("paid should not be outstanding")
	}
}

func TestSheetStatusKeepsTwoStates(t *testing.T) {
	if _, err := ParseSheetStatus("not paid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if SheetStatus("partially_paid").IsValid() {
		t.Fatal("sheet status must not accept partially_paid")
	}
}

func TestParsePaymentMethodDefaultsToCash(t *testing.T) {
	got, err := ParsePaymentMethod("")
	if err != nil || got != PaymentMethodCash {
		t.Fatalf("expected cash default, got %q err=%v", got, err)
	}
	if _, err := ParsePaymentMethod("crypto"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestJournalEventTypes(t *testing.T) {
	if !JournalEventPartialFailure.IsValid() {
		t.Fatal("partial failure should be a valid journal event")
	}
	if _, err := ParseJournalEventType("refund"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
