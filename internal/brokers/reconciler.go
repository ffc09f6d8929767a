// Package brokers keeps the broker registry and reconciles broker commission
// payments. The commission sub-ledger lives inside customer invoices and is
// written only through the customer invoice reconciler.
package brokers

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tradeledger/internal/customerinvoices"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/google/uuid"
)

// InvoiceLedger is the part of the customer invoice reconciler that owns
// the broker sub-ledger.
type InvoiceLedger interface {
	ListByBroker(ctx context.Context, brokerID uuid.UUID) ([]models.CustomerInvoice, error)
	ApplyBrokerPayment(ctx context.Context, id uuid.UUID, input customerinvoices.BrokerPaymentInput) (*models.CustomerInvoice, error)
}

// Summary aggregates a broker's commission across linked invoices. It is
// recomputed on every read.
type Summary struct {
	BrokerID        uuid.UUID `json:"brokerId"`
	BrokerName      string    `json:"brokerName"`
	InvoiceCount    int       `json:"invoiceCount"`
	UnsettledCount  int       `json:"unsettledCount"`
	TotalCommission int64     `json:"totalCommission"`
	TotalPaid       int64     `json:"totalPaid"`
	TotalRemaining  int64     `json:"totalRemaining"`
}

// Reconciler records broker payments and reports broker totals.
type Reconciler interface {
	RecordPayment(ctx context.Context, invoiceID uuid.UUID, paidAmount int64, paymentDate *time.Time) (*models.CustomerInvoice, error)
	Summary(ctx context.Context, brokerID uuid.UUID) (*Summary, error)
}

type reconciler struct {
	registry Registry
	invoices InvoiceLedger
}

// NewReconciler builds the broker commission reconciler.
func NewReconciler(registry Registry, invoices InvoiceLedger) (Reconciler, error) {
	if registry == nil {
		return nil, fmt.Errorf("broker registry required")
	}
	if invoices == nil {
		return nil, fmt.Errorf("invoice ledger required")
	}
	return &reconciler{registry: registry, invoices: invoices}, nil
}

func (r *reconciler) RecordPayment(ctx context.Context, invoiceID uuid.UUID, paidAmount int64, paymentDate *time.Time) (*models.CustomerInvoice, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if paidAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broker paid amount cannot be negative")
	}
	invoice, err := r.invoices.ApplyBrokerPayment(ctx, invoiceID, customerinvoices.BrokerPaymentInput{
		PaidAmount:  &paidAmount,
		PaymentDate: paymentDate,
	})
	if err != nil {
		return nil, pkgerrors.Annotate(err, "broker payment")
	}
	return invoice, nil
}

func (r *reconciler) Summary(ctx context.Context, brokerID uuid.UUID) (*Summary, error) {
	broker, err := r.registry.Get(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	invoices, err := r.invoices.ListByBroker(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	summary := &Summary{BrokerID: broker.ID, BrokerName: broker.Name, InvoiceCount: len(invoices)}
	for _, inv := range invoices {
		summary.TotalCommission += inv.CommissionAmount
		summary.TotalPaid += inv.BrokerPaidAmount
		summary.TotalRemaining += inv.BrokerRemainingAmount
		if inv.BrokerPaymentStatus.Outstanding() {
			summary.UnsettledCount++
		}
	}
	return summary, nil
}
