package customerinvoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/internal/inventory"
	"github.com/angelmondragon/tradeledger/internal/invoicing"
	"github.com/angelmondragon/tradeledger/internal/journal"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/metrics"
	"github.com/angelmondragon/tradeledger/pkg/money"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/google/uuid"
)

// StockLedger applies inventory deltas for invoice lines.
type StockLedger interface {
	ApplyBatch(ctx context.Context, deltas []inventory.Delta, opts inventory.BatchOptions) (*inventory.BatchResult, error)
}

// BrokerLinker maintains the broker side of the invoice linkage.
type BrokerLinker interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Broker, error)
	Link(ctx context.Context, brokerID, invoiceID uuid.UUID) error
	Unlink(ctx context.Context, brokerID, invoiceID uuid.UUID) error
}

// Service reconciles customer invoices. It is the only writer of the
// embedded broker sub-ledger.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CustomerInvoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CustomerInvoice, error)
	List(ctx context.Context, input ListInput) (*pagination.Page[models.CustomerInvoice], error)
	ListByBroker(ctx context.Context, brokerID uuid.UUID) ([]models.CustomerInvoice, error)
	RecordPayment(ctx context.Context, id uuid.UUID, input invoicing.PaymentInput) (*models.CustomerInvoice, error)
	EditItems(ctx context.Context, id uuid.UUID, input EditItemsInput) (*models.CustomerInvoice, error)
	Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error)
	ApplyBrokerPayment(ctx context.Context, id uuid.UUID, input BrokerPaymentInput) (*models.CustomerInvoice, error)
}

// ServiceParams wires the reconciler's collaborators.
type ServiceParams struct {
	Invoices docstore.Store[models.CustomerInvoice]
	Ledger   StockLedger
	Brokers  BrokerLinker
	Locks    lock.Locker
	Journal  journal.Recorder
	Logger   *logger.Logger
	Metrics  *metrics.ReconcileMetrics
	Prefix   string
	Now      func() time.Time
}

type service struct {
	invoices docstore.Store[models.CustomerInvoice]
	ledger   StockLedger
	brokers  BrokerLinker
	locks    lock.Locker
	journal  journal.Recorder
	logg     *logger.Logger
	metrics  *metrics.ReconcileMetrics
	prefix   string
	now      func() time.Time
}

// NewService builds the customer invoice reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Invoices == nil {
		return nil, fmt.Errorf("customer invoice store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Brokers == nil {
		return nil, fmt.Errorf("broker linker required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Prefix == "" {
		params.Prefix = "INV-"
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		invoices: params.Invoices,
		ledger:   params.Ledger,
		brokers:  params.Brokers,
		locks:    params.Locks,
		journal:  params.Journal,
		logg:     params.Logger,
		metrics:  params.Metrics,
		prefix:   params.Prefix,
		now:      params.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (_ *models.CustomerInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("customer_invoice_create", started, err) }()

	customer := strings.TrimSpace(input.CustomerName)
	if customer == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	itemsTotal, err := invoicing.ValidateLines(pricedLines(input.Items), true)
	if err != nil {
		return nil, err
	}
	if err := input.Costs.Validate(); err != nil {
		return nil, err
	}
	if input.Payment != nil {
		if err := input.Payment.Validate(); err != nil {
			return nil, err
		}
	}

	var broker *models.Broker
	if input.Broker != nil {
		if err := validateBrokerTerms(*input.Broker); err != nil {
			return nil, err
		}
		if broker, err = s.brokers.Get(ctx, input.Broker.BrokerID); err != nil {
			return nil, err
		}
	}

	// numbering is a max+1 scan, so creation is serialized
	release, err := s.locks.Acquire(ctx, lock.Key(enums.EntityCustomerInvoice, "numbering"))
	if err != nil {
		return nil, err
	}
	defer release()

	invoiceNo, err := s.invoiceNumber(ctx, input.InvoiceNo)
	if err != nil {
		return nil, err
	}

	now := s.now()
	total := input.Costs.Total(itemsTotal)
	state, err := invoicing.NewState(total, input.Payment, now)
	if err != nil {
		return nil, err
	}
	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = now
	}
	invoice := &models.CustomerInvoice{
		ID:            uuid.New(),
		InvoiceNo:     invoiceNo,
		CustomerName:  customer,
		InvoiceDate:   invoiceDate,
		Items:         input.Items,
		ItemsTotal:    itemsTotal,
		TransportCost: input.TransportCost,
		LaborCost:     input.LaborCost,
		PaymentState:  state,
	}
	if broker != nil {
		attachBroker(invoice, broker, *input.Broker, now)
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityCustomerInvoice.String(), invoice.ID.String())

	if _, err := s.ledger.ApplyBatch(ctx, inventory.Consume(stockLines(invoice.Items)), inventory.BatchOptions{}); err != nil {
		return nil, pkgerrors.Annotate(err, "invoice "+invoiceNo)
	}
	completed := []string{"consume_stock"}

	if _, err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, s.partialFailure(ctx, "create_invoice", completed, invoice.ID, err)
	}
	completed = append(completed, "create_invoice")

	if invoice.HasBroker() {
		if err := s.brokers.Link(ctx, *invoice.BrokerID, invoice.ID); err != nil {
			return nil, s.partialFailure(ctx, "link_broker", completed, invoice.ID, err)
		}
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventInvoiceCreated,
		Amount:     invoice.TotalAmount,
		Metadata:   map[string]any{"invoice_no": invoice.InvoiceNo, "paid_amount": invoice.PaidAmount},
	})
	s.logg.Info(ctx, "customer invoice created")
	return invoice, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.CustomerInvoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("customer invoice %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer invoice")
	}
	return invoice, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*pagination.Page[models.CustomerInvoice], error) {
	opts, err := input.FindOptions(sortFields, docstore.Sort{Field: "invoice_date", Desc: true}, docstore.Sort{Field: "invoice_no", Desc: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	filter := docstore.Filter{Equals: map[string]any{}}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.Contains = map[string]string{"customer_name": search}
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *input.Status))
		}
		filter.Equals["status"] = string(*input.Status)
	}
	if input.BrokerID != nil {
		filter.Equals["broker_id"] = *input.BrokerID
	}

	invoices, err := s.invoices.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer invoices")
	}
	total, err := s.invoices.Count(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customer invoices")
	}
	if invoices == nil {
		invoices = []models.CustomerInvoice{}
	}
	return &pagination.Page[models.CustomerInvoice]{Items: invoices, Total: total, Skip: opts.Skip, Limit: opts.Limit}, nil
}

func (s *service) ListByBroker(ctx context.Context, brokerID uuid.UUID) ([]models.CustomerInvoice, error) {
	if brokerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broker id is required")
	}
	invoices, err := s.invoices.FindAll(ctx,
		docstore.Filter{Equals: map[string]any{"broker_id": brokerID}},
		docstore.FindOptions{Sort: []docstore.Sort{{Field: "invoice_date"}, {Field: "invoice_no"}}},
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list broker invoices")
	}
	return invoices, nil
}

func (s *service) RecordPayment(ctx context.Context, id uuid.UUID, input invoicing.PaymentInput) (_ *models.CustomerInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("customer_invoice_payment", started, err) }()

	if err := input.Validate(); err != nil {
		return nil, err
	}
	release, err := s.lockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := invoice.PaidAmount
	if err := invoicing.ApplyPayment(&invoice.PaymentState, input, s.now()); err != nil {
		return nil, pkgerrors.Annotate(err, "invoice "+invoice.InvoiceNo)
	}
	if err := s.save(ctx, invoice); err != nil {
		return nil, err
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventPaymentRecorded,
		Amount:     invoice.PaidAmount - previous,
		Metadata:   map[string]any{"paid_amount": invoice.PaidAmount, "status": string(invoice.Status)},
	})
	return invoice, nil
}

func (s *service) EditItems(ctx context.Context, id uuid.UUID, input EditItemsInput) (_ *models.CustomerInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("customer_invoice_edit_items", started, err) }()

	itemsTotal, err := invoicing.ValidateLines(pricedLines(input.Items), true)
	if err != nil {
		return nil, err
	}
	if input.Costs != nil {
		if err := input.Costs.Validate(); err != nil {
			return nil, err
		}
	}
	if p := input.CommissionPercent; p != nil && (*p < 0 || *p > 100) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission percent must be between 0 and 100")
	}

	release, err := s.lockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.OriginalItems != nil && !sameItems(invoice.Items, input.OriginalItems) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invoice %s items changed since they were read", invoice.InvoiceNo))
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityCustomerInvoice.String(), invoice.ID.String())

	oldLines, newLines := stockLines(invoice.Items), stockLines(input.Items)
	deltas := inventory.ReconcileItemListChange(oldLines, newLines)
	deltas = append(deltas, inventory.Consume(inventory.AddedItems(oldLines, newLines))...)
	if _, err := s.ledger.ApplyBatch(ctx, deltas, inventory.BatchOptions{}); err != nil {
		return nil, pkgerrors.Annotate(err, "invoice "+invoice.InvoiceNo)
	}

	costs := invoicing.Costs{TransportCost: invoice.TransportCost, LaborCost: invoice.LaborCost}
	if input.Costs != nil {
		costs = *input.Costs
	}
	now := s.now()
	invoice.Items = input.Items
	invoice.ItemsTotal = itemsTotal
	invoice.TransportCost = costs.TransportCost
	invoice.LaborCost = costs.LaborCost
	invoicing.Derive(&invoice.PaymentState, costs.Total(itemsTotal), now)

	if invoice.HasBroker() {
		if input.CommissionPercent != nil {
			percent := *input.CommissionPercent
			invoice.CommissionPercent = &percent
		}
		if invoice.CommissionPercent != nil {
			invoice.CommissionAmount = money.Percent(invoice.TotalAmount, *invoice.CommissionPercent)
		}
		deriveBroker(invoice, nil, now)
	}

	if err := s.save(ctx, invoice); err != nil {
		return nil, s.partialFailure(ctx, "update_invoice", []string{"apply_stock_deltas"}, invoice.ID, err)
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventItemsEdited,
		Amount:     invoice.TotalAmount,
		Metadata:   map[string]any{"delta_count": len(deltas), "items_total": invoice.ItemsTotal},
	})
	return invoice, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) (_ *DeleteResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("customer_invoice_delete", started, err) }()

	release, err := s.lockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityCustomerInvoice.String(), invoice.ID.String())

	// historical items may have been deleted independently
	reverted, err := s.ledger.ApplyBatch(ctx, inventory.RevertAll(stockLines(invoice.Items)), inventory.BatchOptions{SkipMissing: true})
	if err != nil {
		return nil, pkgerrors.Annotate(err, "invoice "+invoice.InvoiceNo)
	}
	completed := []string{"revert_stock"}

	if invoice.HasBroker() {
		if err := s.brokers.Unlink(ctx, *invoice.BrokerID, invoice.ID); err != nil {
			return nil, s.partialFailure(ctx, "unlink_broker", completed, invoice.ID, err)
		}
		completed = append(completed, "unlink_broker")
	}

	if _, err := s.invoices.Delete(ctx, invoice.ID); err != nil {
		return nil, s.partialFailure(ctx, "delete_invoice", completed, invoice.ID, err)
	}

	result := &DeleteResult{InvoiceID: invoice.ID, Reverted: reverted.Applied, Skipped: reverted.Skipped}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}
	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventInvoiceDeleted,
		Amount:     invoice.TotalAmount,
		Metadata:   map[string]any{"invoice_no": invoice.InvoiceNo, "skipped_items": result.Skipped},
	})
	s.logg.Info(ctx, "customer invoice deleted")
	return result, nil
}

func (s *service) ApplyBrokerPayment(ctx context.Context, id uuid.UUID, input BrokerPaymentInput) (_ *models.CustomerInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("broker_payment", started, err) }()

	switch {
	case input.PaidAmount == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broker paid amount is required")
	case *input.PaidAmount < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broker paid amount cannot be negative")
	}
	release, err := s.lockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !invoice.HasBroker() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invoice %s has no broker", invoice.InvoiceNo))
	}
	previous := invoice.BrokerPaidAmount
	invoice.BrokerPaidAmount = *input.PaidAmount
	deriveBroker(invoice, input.PaymentDate, s.now())

	if err := s.save(ctx, invoice); err != nil {
		return nil, err
	}
	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventBrokerPaymentRecorded,
		Amount:     invoice.BrokerPaidAmount - previous,
		Metadata:   map[string]any{"broker_id": invoice.BrokerID.String(), "status": string(invoice.BrokerPaymentStatus)},
	})
	return invoice, nil
}

func (s *service) lockInvoice(ctx context.Context, id uuid.UUID) (lock.Release, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	return s.locks.Acquire(ctx, lock.Key(enums.EntityCustomerInvoice, id.String()))
}

func (s *service) save(ctx context.Context, invoice *models.CustomerInvoice) error {
	ok, err := s.invoices.Replace(ctx, invoice)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer invoice "+invoice.InvoiceNo)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("customer invoice %s not found", invoice.ID))
	}
	return nil
}

func (s *service) invoiceNumber(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return invoicing.NextFromStore(ctx, s.invoices, s.prefix, func(inv models.CustomerInvoice) string { return inv.InvoiceNo })
	}
	count, err := s.invoices.Count(ctx, docstore.Filter{Equals: map[string]any{"invoice_no": requested}})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check invoice number")
	}
	if count > 0 {
		return "", pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("invoice number %s already exists", requested))
	}
	return requested, nil
}

func (s *service) partialFailure(ctx context.Context, step string, completed []string, id uuid.UUID, cause error) error {
	err := pkgerrors.PartialFailure(step, completed, id.String(), cause)
	s.logg.Error(ctx, "customer invoice partially applied", err)
	journal.NotePartialFailure(ctx, s.journal, s.logg, enums.EntityCustomerInvoice, id.String(), err)
	return err
}

func validateBrokerTerms(terms BrokerTerms) error {
	if terms.BrokerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "broker id is required")
	}
	if p := terms.CommissionPercent; p != nil && (*p < 0 || *p > 100) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission percent must be between 0 and 100")
	}
	if a := terms.CommissionAmount; a != nil && *a < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission amount cannot be negative")
	}
	if terms.PaidAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "broker paid amount cannot be negative")
	}
	return nil
}

func attachBroker(invoice *models.CustomerInvoice, broker *models.Broker, terms BrokerTerms, now time.Time) {
	brokerID := broker.ID
	invoice.BrokerID = &brokerID

	percent := terms.CommissionPercent
	if percent == nil && terms.CommissionAmount == nil {
		percent = broker.DefaultCommissionPercent
	}
	switch {
	case percent != nil:
		p := *percent
		invoice.CommissionPercent = &p
		invoice.CommissionAmount = money.Percent(invoice.TotalAmount, p)
	case terms.CommissionAmount != nil:
		invoice.CommissionAmount = *terms.CommissionAmount
	}
	invoice.BrokerPaidAmount = terms.PaidAmount
	deriveBroker(invoice, nil, now)
}

// deriveBroker recomputes the broker sub-ledger against CommissionAmount.
// The payment date becomes now when the commission turns paid; otherwise a
// caller-supplied date is kept.
func deriveBroker(invoice *models.CustomerInvoice, paymentDate *time.Time, now time.Time) {
	wasPaid := invoice.BrokerPaymentStatus == enums.PaymentStatusPaid
	settled := money.Settle(invoice.CommissionAmount, invoice.BrokerPaidAmount)
	invoice.BrokerRemainingAmount = settled.Remaining
	invoice.BrokerPaymentStatus = settled.Status

	switch {
	case settled.Status == enums.PaymentStatusPaid && (!wasPaid || invoice.BrokerPaymentDate == nil):
		paidOn := now
		invoice.BrokerPaymentDate = &paidOn
	case settled.Status != enums.PaymentStatusPaid && paymentDate != nil:
		date := *paymentDate
		invoice.BrokerPaymentDate = &date
	}
}
