// Package audit recomputes every derived amount and status in the ledgers
// and reports (optionally repairs) documents whose stored values drifted,
// for example after a partially applied operation.
package audit

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/angelmondragon/tradeledger/internal/invoicing"
	"github.com/angelmondragon/tradeledger/internal/journal"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/money"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Finding is one stored field that disagrees with its derivation.
type Finding struct {
	EntityType enums.EntityType `json:"entityType"`
	EntityID   string           `json:"entityId"`
	Label      string           `json:"label,omitempty"`
	Field      string           `json:"field"`
	Stored     any              `json:"stored"`
	Expected   any              `json:"expected"`
	Repaired   bool             `json:"repaired"`
}

type Report struct {
	CheckedAt time.Time      `json:"checkedAt"`
	Checked   map[string]int `json:"checked"`
	Findings  []Finding      `json:"findings"`
	Repaired  int            `json:"repaired"`
}

// Clean reports whether nothing drifted.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

type Options struct {
	Fix bool
}

type Service interface {
	Run(ctx context.Context, opts Options) (*Report, error)
}

type ServiceParams struct {
	CustomerInvoices docstore.Store[models.CustomerInvoice]
	VendorInvoices   docstore.Store[models.VendorInvoice]
	Brokers          docstore.Store[models.Broker]
	Sheets           docstore.Store[models.CommissionSheet]
	Payments         docstore.Store[models.CommissionerPayment]
	Locks            lock.Locker
	Journal          journal.Recorder
	Logger           *logger.Logger
	Now              func() time.Time
}

type service struct {
	ServiceParams
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.CustomerInvoices == nil:
		return nil, fmt.Errorf("customer invoice store required")
	case params.VendorInvoices == nil:
		return nil, fmt.Errorf("vendor invoice store required")
	case params.Brokers == nil:
		return nil, fmt.Errorf("broker store required")
	case params.Sheets == nil:
		return nil, fmt.Errorf("commission sheet store required")
	case params.Payments == nil:
		return nil, fmt.Errorf("commissioner payment store required")
	case params.Locks == nil:
		return nil, fmt.Errorf("locker required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{ServiceParams: params}, nil
}

// Run checks every collection. A collection that cannot be read is skipped
// and its error joined into the returned one; the report still carries the
// findings of the others.
func (s *service) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{CheckedAt: s.Now(), Checked: map[string]int{}, Findings: []Finding{}}

	var errs error
	errs = multierr.Append(errs, s.checkCustomerInvoices(ctx, report, opts))
	errs = multierr.Append(errs, s.checkVendorInvoices(ctx, report, opts))
	errs = multierr.Append(errs, s.checkBrokerLinks(ctx, report, opts))
	errs = multierr.Append(errs, s.checkSheets(ctx, report, opts))

	for _, f := range report.Findings {
		if f.Repaired {
			report.Repaired++
		}
	}
	logCtx := s.Logger.WithFields(ctx, map[string]any{
		"findings": len(report.Findings),
		"repaired": report.Repaired,
	})
	if errs != nil {
		s.Logger.Error(logCtx, "ledger audit incomplete", errs)
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, fmt.Sprintf("audit incomplete (%d errors)", len(multierr.Errors(errs))))
	}
	if report.Clean() {
		s.Logger.Info(logCtx, "ledger audit clean")
	} else {
		s.Logger.Warn(logCtx, "ledger audit found drift")
	}
	return report, nil
}

func (s *service) checkCustomerInvoices(ctx context.Context, report *Report, opts Options) error {
	invoices, err := s.CustomerInvoices.FindAll(ctx, docstore.Filter{}, docstore.FindOptions{})
	if err != nil {
		return fmt.Errorf("customer invoices: %w", err)
	}
	report.Checked[enums.EntityCustomerInvoice.String()] = len(invoices)

	var errs error
	for _, inv := range invoices {
		costs := invoicing.Costs{TransportCost: inv.TransportCost, LaborCost: inv.LaborCost}
		findings := paymentFindings(enums.EntityCustomerInvoice, inv.ID.String(), inv.InvoiceNo, costs.Total(inv.ItemsTotal), inv.PaymentState)
		if inv.HasBroker() {
			findings = append(findings, brokerFindings(inv)...)
		}
		if len(findings) == 0 {
			continue
		}
		if opts.Fix {
			repaired := repairDoc(ctx, s, enums.EntityCustomerInvoice, inv.ID, s.CustomerInvoices, func(doc *models.CustomerInvoice) {
				costs := invoicing.Costs{TransportCost: doc.TransportCost, LaborCost: doc.LaborCost}
				invoicing.Derive(&doc.PaymentState, costs.Total(doc.ItemsTotal), s.Now())
				if doc.HasBroker() {
					settled := money.Settle(doc.CommissionAmount, doc.BrokerPaidAmount)
					doc.BrokerRemainingAmount = settled.Remaining
					doc.BrokerPaymentStatus = settled.Status
				}
			})
			errs = multierr.Append(errs, s.mark(ctx, findings, repaired))
		}
		report.Findings = append(report.Findings, findings...)
	}
	return errs
}

func (s *service) checkVendorInvoices(ctx context.Context, report *Report, opts Options) error {
	invoices, err := s.VendorInvoices.FindAll(ctx, docstore.Filter{}, docstore.FindOptions{})
	if err != nil {
		return fmt.Errorf("vendor invoices: %w", err)
	}
	report.Checked[enums.EntityVendorInvoice.String()] = len(invoices)

	var errs error
	for _, inv := range invoices {
		costs := invoicing.Costs{TransportCost: inv.TransportCost, LaborCost: inv.LaborCost}
		findings := paymentFindings(enums.EntityVendorInvoice, inv.ID.String(), inv.InvoiceNo, costs.Total(inv.ItemsTotal), inv.PaymentState)
		if len(findings) == 0 {
			continue
		}
		if opts.Fix {
			repaired := repairDoc(ctx, s, enums.EntityVendorInvoice, inv.ID, s.VendorInvoices, func(doc *models.VendorInvoice) {
				costs := invoicing.Costs{TransportCost: doc.TransportCost, LaborCost: doc.LaborCost}
				invoicing.Derive(&doc.PaymentState, costs.Total(doc.ItemsTotal), s.Now())
			})
			errs = multierr.Append(errs, s.mark(ctx, findings, repaired))
		}
		report.Findings = append(report.Findings, findings...)
	}
	return errs
}

// checkBrokerLinks compares each broker's invoice list with the invoices
// that name the broker. The invoice side wins.
func (s *service) checkBrokerLinks(ctx context.Context, report *Report, opts Options) error {
	brokers, err := s.Brokers.FindAll(ctx, docstore.Filter{}, docstore.FindOptions{})
	if err != nil {
		return fmt.Errorf("brokers: %w", err)
	}
	report.Checked[enums.EntityBroker.String()] = len(brokers)

	var errs error
	for _, broker := range brokers {
		expected, err := s.linkedInvoiceIDs(ctx, broker.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		stored := slices.Clone(broker.InvoiceIDs)
		slices.Sort(stored)
		if slices.Equal(stored, expected) {
			continue
		}
		findings := []Finding{{
			EntityType: enums.EntityBroker,
			EntityID:   broker.ID.String(),
			Label:      broker.Name,
			Field:      "invoiceIds",
			Stored:     stored,
			Expected:   expected,
		}}
		if opts.Fix {
			repaired := repairDoc(ctx, s, enums.EntityBroker, broker.ID, s.Brokers, func(doc *models.Broker) {
				doc.InvoiceIDs = expected
			})
			errs = multierr.Append(errs, s.mark(ctx, findings, repaired))
		}
		report.Findings = append(report.Findings, findings...)
	}
	return errs
}

func (s *service) linkedInvoiceIDs(ctx context.Context, brokerID uuid.UUID) ([]string, error) {
	invoices, err := s.CustomerInvoices.FindAll(ctx, docstore.Filter{Equals: map[string]any{"broker_id": brokerID}}, docstore.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("invoices of broker %s: %w", brokerID, err)
	}
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID.String())
	}
	slices.Sort(ids)
	return ids, nil
}

// checkSheets re-projects each sheet from its items and the payment ledger.
// A stored commission price is trusted since it may be a manual override.
func (s *service) checkSheets(ctx context.Context, report *Report, opts Options) error {
	sheets, err := s.Sheets.FindAll(ctx, docstore.Filter{}, docstore.FindOptions{})
	if err != nil {
		return fmt.Errorf("commission sheets: %w", err)
	}
	report.Checked[enums.EntityCommissionSheet.String()] = len(sheets)

	var errs error
	for _, sheet := range sheets {
		received, err := s.receivedFor(ctx, sheet.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		var totalPrice int64
		for _, item := range sheet.Items {
			totalPrice += money.LineTotal(item.Price, item.NetWeight, item.PackagingCost, item.Quantity)
		}
		id, label := sheet.ID.String(), sheet.InvoiceNo
		var findings []Finding
		findings = appendDrift(findings, enums.EntityCommissionSheet, id, label, "totalPrice", sheet.TotalPrice, totalPrice)
		findings = appendDrift(findings, enums.EntityCommissionSheet, id, label, "receivedAmount", sheet.ReceivedAmount, received)
		findings = appendDrift(findings, enums.EntityCommissionSheet, id, label, "pendingAmount", sheet.PendingAmount, money.Remaining(sheet.CommissionPrice, received))
		findings = appendDrift(findings, enums.EntityCommissionSheet, id, label, "status", sheet.Status, money.Status2(sheet.CommissionPrice, received))
		if len(findings) == 0 {
			continue
		}
		if opts.Fix {
			repaired := repairDoc(ctx, s, enums.EntityCommissionSheet, sheet.ID, s.Sheets, func(doc *models.CommissionSheet) {
				var total int64
				for i, item := range doc.Items {
					doc.Items[i].Total = money.LineTotal(item.Price, item.NetWeight, item.PackagingCost, item.Quantity)
					total += doc.Items[i].Total
				}
				doc.TotalPrice = total
				doc.ReceivedAmount = received
				doc.PendingAmount = money.Remaining(doc.CommissionPrice, received)
				doc.Status = money.Status2(doc.CommissionPrice, received)
			})
			errs = multierr.Append(errs, s.mark(ctx, findings, repaired))
		}
		report.Findings = append(report.Findings, findings...)
	}
	return errs
}

func (s *service) receivedFor(ctx context.Context, sheetID uuid.UUID) (int64, error) {
	payments, err := s.Payments.FindAll(ctx, docstore.Filter{Equals: map[string]any{"sheet_id": sheetID}}, docstore.FindOptions{})
	if err != nil {
		return 0, fmt.Errorf("payments of sheet %s: %w", sheetID, err)
	}
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	return max(total, 0), nil
}

// mark flags findings as repaired and journals the repair.
func (s *service) mark(ctx context.Context, findings []Finding, err error) error {
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(findings))
	for i := range findings {
		findings[i].Repaired = true
		fields = append(fields, findings[i].Field)
	}
	journal.Note(ctx, s.Journal, s.Logger, journal.RecordInput{
		EntityType: findings[0].EntityType,
		EntityID:   findings[0].EntityID,
		Type:       enums.JournalEventDriftRepaired,
		Metadata:   map[string]any{"fields": fields},
	})
	return nil
}

// repairDoc reloads a document under its lock, applies fix and replaces it.
func repairDoc[T any](ctx context.Context, s *service, kind enums.EntityType, id uuid.UUID, store docstore.Store[T], fix func(*T)) error {
	release, err := s.Locks.Acquire(ctx, lock.Key(kind, id.String()))
	if err != nil {
		return err
	}
	defer release()

	doc, err := store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload %s %s: %w", kind, id, err)
	}
	fix(doc)
	if _, err := store.Replace(ctx, doc); err != nil {
		return fmt.Errorf("repair %s %s: %w", kind, id, err)
	}
	return nil
}

func paymentFindings(kind enums.EntityType, id, label string, expectedTotal int64, state models.PaymentState) []Finding {
	settled := money.Settle(expectedTotal, state.PaidAmount)
	var findings []Finding
	findings = appendDrift(findings, kind, id, label, "totalAmount", state.TotalAmount, expectedTotal)
	findings = appendDrift(findings, kind, id, label, "remainingAmount", state.RemainingAmount, settled.Remaining)
	findings = appendDrift(findings, kind, id, label, "status", state.Status, settled.Status)
	return findings
}

func brokerFindings(inv models.CustomerInvoice) []Finding {
	settled := money.Settle(inv.CommissionAmount, inv.BrokerPaidAmount)
	id := inv.ID.String()
	var findings []Finding
	findings = appendDrift(findings, enums.EntityCustomerInvoice, id, inv.InvoiceNo, "brokerRemainingAmount", inv.BrokerRemainingAmount, settled.Remaining)
	findings = appendDrift(findings, enums.EntityCustomerInvoice, id, inv.InvoiceNo, "brokerPaymentStatus", inv.BrokerPaymentStatus, settled.Status)
	return findings
}

func appendDrift[V comparable](findings []Finding, kind enums.EntityType, id, label, field string, stored, expected V) []Finding {
	if stored == expected {
		return findings
	}
	return append(findings, Finding{
		EntityType: kind,
		EntityID:   id,
		Label:      label,
		Field:      field,
		Stored:     stored,
		Expected:   expected,
	})
}
