// Package vendorinvoices reconciles purchases. Stock moves in the opposite
// direction to sales: creating a purchase receives stock and deleting it
// takes the stock back out.
package vendorinvoices

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
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/google/uuid"
)

// StockLedger applies inventory deltas for purchase lines.
type StockLedger interface {
	ApplyBatch(ctx context.Context, deltas []inventory.Delta, opts inventory.BatchOptions) (*inventory.BatchResult, error)
}

// ItemIDAllocator reserves ids for items first seen on a purchase.
type ItemIDAllocator interface {
	AllocateID(ctx context.Context) (string, error)
	ReleaseID(id string)
}

// Service reconciles vendor invoices.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.VendorInvoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.VendorInvoice, error)
	List(ctx context.Context, input ListInput) (*pagination.Page[models.VendorInvoice], error)
	RecordPayment(ctx context.Context, id uuid.UUID, input invoicing.PaymentInput) (*models.VendorInvoice, error)
	EditItems(ctx context.Context, id uuid.UUID, input EditItemsInput) (*models.VendorInvoice, error)
	Delete(ctx context.Context, id uuid.UUID) (*DeleteResult, error)
}

// ServiceParams wires the reconciler's collaborators.
type ServiceParams struct {
	Invoices docstore.Store[models.VendorInvoice]
	Ledger   StockLedger
	IDs      ItemIDAllocator
	Locks    lock.Locker
	Journal  journal.Recorder
	Logger   *logger.Logger
	Metrics  *metrics.ReconcileMetrics
	Prefix   string
	Now      func() time.Time
}

type service struct {
	invoices docstore.Store[models.VendorInvoice]
	ledger   StockLedger
	ids      ItemIDAllocator
	locks    lock.Locker
	journal  journal.Recorder
	logg     *logger.Logger
	metrics  *metrics.ReconcileMetrics
	prefix   string
	now      func() time.Time
}

// NewService builds the vendor invoice reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Invoices == nil {
		return nil, fmt.Errorf("vendor invoice store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.IDs == nil {
		return nil, fmt.Errorf("item id allocator required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Prefix == "" {
		params.Prefix = "PUR-"
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		invoices: params.Invoices,
		ledger:   params.Ledger,
		ids:      params.IDs,
		locks:    params.Locks,
		journal:  params.Journal,
		logg:     params.Logger,
		metrics:  params.Metrics,
		prefix:   params.Prefix,
		now:      params.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (_ *models.VendorInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("vendor_invoice_create", started, err) }()

	vendor := strings.TrimSpace(input.VendorName)
	if vendor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor name is required")
	}
	if err := validateNewLines(input.Items); err != nil {
		return nil, err
	}
	itemsTotal, err := invoicing.ValidateLines(pricedLines(input.Items), false)
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

	release, err := s.locks.Acquire(ctx, lock.Key(enums.EntityVendorInvoice, "numbering"))
	if err != nil {
		return nil, err
	}
	defer release()

	invoiceNo, err := s.invoiceNumber(ctx, input.InvoiceNo)
	if err != nil {
		return nil, err
	}

	items, allocated, err := s.assignItemIDs(ctx, input.Items)
	for _, id := range allocated {
		defer s.ids.ReleaseID(id)
	}
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
	invoice := &models.VendorInvoice{
		ID:            uuid.New(),
		InvoiceNo:     invoiceNo,
		VendorName:    vendor,
		InvoiceDate:   invoiceDate,
		Items:         items,
		ItemsTotal:    itemsTotal,
		TransportCost: input.TransportCost,
		LaborCost:     input.LaborCost,
		PaymentState:  state,
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityVendorInvoice.String(), invoice.ID.String())

	deltas := withSeeds(inventory.Receive(stockLines(items)), items)
	if _, err := s.ledger.ApplyBatch(ctx, deltas, inventory.BatchOptions{CreateMissing: true}); err != nil {
		return nil, pkgerrors.Annotate(err, "purchase "+invoiceNo)
	}

	if _, err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, s.partialFailure(ctx, "create_invoice", []string{"receive_stock"}, invoice.ID, err)
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityVendorInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventInvoiceCreated,
		Amount:     invoice.TotalAmount,
		Metadata:   map[string]any{"invoice_no": invoice.InvoiceNo, "paid_amount": invoice.PaidAmount, "allocated_items": allocated},
	})
	s.logg.Info(ctx, "vendor invoice created")
	return invoice, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.VendorInvoice, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("vendor invoice %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor invoice")
	}
	return invoice, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*pagination.Page[models.VendorInvoice], error) {
	opts, err := input.FindOptions(sortFields, docstore.Sort{Field: "invoice_date", Desc: true}, docstore.Sort{Field: "invoice_no", Desc: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	filter := docstore.Filter{Equals: map[string]any{}}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.Contains = map[string]string{"vendor_name": search}
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *input.Status))
		}
		filter.Equals["status"] = string(*input.Status)
	}

	invoices, err := s.invoices.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor invoices")
	}
	total, err := s.invoices.Count(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count vendor invoices")
	}
	if invoices == nil {
		invoices = []models.VendorInvoice{}
	}
	return &pagination.Page[models.VendorInvoice]{Items: invoices, Total: total, Skip: opts.Skip, Limit: opts.Limit}, nil
}

func (s *service) RecordPayment(ctx context.Context, id uuid.UUID, input invoicing.PaymentInput) (_ *models.VendorInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("vendor_invoice_payment", started, err) }()

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
		return nil, pkgerrors.Annotate(err, "purchase "+invoice.InvoiceNo)
	}
	if err := s.save(ctx, invoice); err != nil {
		return nil, err
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityVendorInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventPaymentRecorded,
		Amount:     invoice.PaidAmount - previous,
		Metadata:   map[string]any{"paid_amount": invoice.PaidAmount, "status": string(invoice.Status)},
	})
	return invoice, nil
}

func (s *service) EditItems(ctx context.Context, id uuid.UUID, input EditItemsInput) (_ *models.VendorInvoice, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("vendor_invoice_edit_items", started, err) }()

	if err := validateNewLines(input.Items); err != nil {
		return nil, err
	}
	itemsTotal, err := invoicing.ValidateLines(pricedLines(input.Items), false)
	if err != nil {
		return nil, err
	}
	if input.Costs != nil {
		if err := input.Costs.Validate(); err != nil {
			return nil, err
		}
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
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase %s items changed since they were read", invoice.InvoiceNo))
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityVendorInvoice.String(), invoice.ID.String())

	items, allocated, err := s.assignItemIDs(ctx, input.Items)
	for _, itemID := range allocated {
		defer s.ids.ReleaseID(itemID)
	}
	if err != nil {
		return nil, err
	}

	oldLines, newLines := stockLines(invoice.Items), stockLines(items)
	deltas := inventory.Invert(inventory.ReconcileItemListChange(oldLines, newLines))
	deltas = append(deltas, inventory.Receive(inventory.AddedItems(oldLines, newLines))...)
	deltas = withSeeds(deltas, items)
	if _, err := s.ledger.ApplyBatch(ctx, deltas, inventory.BatchOptions{CreateMissing: true}); err != nil {
		return nil, pkgerrors.Annotate(err, "purchase "+invoice.InvoiceNo)
	}

	costs := invoicing.Costs{TransportCost: invoice.TransportCost, LaborCost: invoice.LaborCost}
	if input.Costs != nil {
		costs = *input.Costs
	}
	invoice.Items = items
	invoice.ItemsTotal = itemsTotal
	invoice.TransportCost = costs.TransportCost
	invoice.LaborCost = costs.LaborCost
	invoicing.Derive(&invoice.PaymentState, costs.Total(itemsTotal), s.now())

	if err := s.save(ctx, invoice); err != nil {
		return nil, s.partialFailure(ctx, "update_invoice", []string{"apply_stock_deltas"}, invoice.ID, err)
	}
	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityVendorInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventItemsEdited,
		Amount:     invoice.TotalAmount,
		Metadata:   map[string]any{"delta_count": len(deltas), "items_total": invoice.ItemsTotal, "allocated_items": allocated},
	})
	return invoice, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) (_ *DeleteResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("vendor_invoice_delete", started, err) }()

	release, err := s.lockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityVendorInvoice.String(), invoice.ID.String())

	// the purchase already happened; stock sold since then floors at zero
	removed, err := s.ledger.ApplyBatch(ctx,
		inventory.Invert(inventory.RevertAll(stockLines(invoice.Items))),
		inventory.BatchOptions{ClampAtZero: true, SkipMissing: true},
	)
	if err != nil {
		return nil, pkgerrors.Annotate(err, "purchase "+invoice.InvoiceNo)
	}

	if _, err := s.invoices.Delete(ctx, invoice.ID); err != nil {
		return nil, s.partialFailure(ctx, "delete_invoice", []string{"remove_stock"}, invoice.ID, err)
	}

	result := &DeleteResult{InvoiceID: invoice.ID, Removed: removed.Applied, Skipped: removed.Skipped, Clamped: []string{}}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}
	for _, applied := range removed.Applied {
		if applied.Clamped {
			result.Clamped = append(result.Clamped, applied.ItemID)
		}
	}
	if len(result.Clamped) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "clamped_items", result.Clamped), "purchase delete clamped stock at zero")
	}
	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityVendorInvoice,
		EntityID:   invoice.ID.String(),
		Type:       enums.JournalEventInvoiceDeleted,
		Amount:     invoice.TotalAmount,
		Metadata: map[string]any{
			"invoice_no":    invoice.InvoiceNo,
			"skipped_items": result.Skipped,
			"clamped_items": result.Clamped,
		},
	})
	s.logg.Info(ctx, "vendor invoice deleted")
	return result, nil
}

// assignItemIDs copies items and gives every line without an item id a
// fresh one. Each such line becomes its own lot.
func (s *service) assignItemIDs(ctx context.Context, items []models.VendorLineItem) ([]models.VendorLineItem, []string, error) {
	out := make([]models.VendorLineItem, len(items))
	copy(out, items)
	var allocated []string
	for i := range out {
		out[i].ItemID = strings.TrimSpace(out[i].ItemID)
		if out[i].ItemID != "" {
			continue
		}
		id, err := s.ids.AllocateID(ctx)
		if err != nil {
			return nil, allocated, err
		}
		allocated = append(allocated, id)
		out[i].ItemID = id
	}
	return out, allocated, nil
}

func (s *service) lockInvoice(ctx context.Context, id uuid.UUID) (lock.Release, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	return s.locks.Acquire(ctx, lock.Key(enums.EntityVendorInvoice, id.String()))
}

func (s *service) save(ctx context.Context, invoice *models.VendorInvoice) error {
	ok, err := s.invoices.Replace(ctx, invoice)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor invoice "+invoice.InvoiceNo)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("vendor invoice %s not found", invoice.ID))
	}
	return nil
}

func (s *service) invoiceNumber(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return invoicing.NextFromStore(ctx, s.invoices, s.prefix, func(inv models.VendorInvoice) string { return inv.InvoiceNo })
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
	s.logg.Error(ctx, "vendor invoice partially applied", err)
	journal.NotePartialFailure(ctx, s.journal, s.logg, enums.EntityVendorInvoice, id.String(), err)
	return err
}

func validateNewLines(items []models.VendorLineItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.ItemID) == "" && strings.TrimSpace(item.Name) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: name is required for a new item", i+1)).
				WithDetails(map[string]any{"line": i + 1})
		}
		if id := strings.TrimSpace(item.ItemID); id != "" && !inventory.ValidItemID(id) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: item id must be 4 digits", i+1)).
				WithDetails(map[string]any{"line": i + 1})
		}
	}
	return nil
}
