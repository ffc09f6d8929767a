package customerinvoices_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tradeledger/internal/brokers"
	"github.com/angelmondragon/tradeledger/internal/customerinvoices"
	"github.com/angelmondragon/tradeledger/internal/inventory"
	"github.com/angelmondragon/tradeledger/internal/invoicing"
	"github.com/angelmondragon/tradeledger/internal/journal"
	"github.com/angelmondragon/tradeledger/pkg/db/dbtest"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      customerinvoices.Service
	items    *docstore.Collection[models.InventoryItem]
	invoices *docstore.Collection[models.CustomerInvoice]
	brokers  brokers.Registry
	journal  journal.Service
}

func newFixture(t *testing.T, linker customerinvoices.BrokerLinker) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "customer-invoices-test", Output: io.Discard})
	locks := lock.NewLocal()

	ledger, err := inventory.NewLedger(client, locks, logg, nil)
	require.NoError(t, err)
	registry, err := brokers.NewRegistry(docstore.New[models.Broker](client.DB()), locks, logg)
	require.NoError(t, err)
	journalSvc, err := journal.NewService(docstore.New[models.JournalEntry](client.DB()))
	require.NoError(t, err)
	if linker == nil {
		linker = registry
	}

	invoices := docstore.New[models.CustomerInvoice](client.DB())
	svc, err := customerinvoices.NewService(customerinvoices.ServiceParams{
		Invoices: invoices,
		Ledger:   ledger,
		Brokers:  linker,
		Locks:    locks,
		Journal:  journalSvc,
		Logger:   logg,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		items:    docstore.New[models.InventoryItem](client.DB()),
		invoices: invoices,
		brokers:  registry,
		journal:  journalSvc,
	}
}

func (f *fixture) seedItem(t *testing.T, id string, qty, net, gross float64) {
	t.Helper()
	_, err := f.items.Create(context.Background(), &models.InventoryItem{ID: id, Name: "lot " + id, Quantity: qty, NetWeight: net, GrossWeight: gross})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, id string) [3]float64 {
	t.Helper()
	item, err := f.items.FindByID(context.Background(), id)
	require.NoError(t, err)
	return [3]float64{item.Quantity, item.NetWeight, item.GrossWeight}
}

func saleLine(id string, qty, net, gross float64, price int64) models.CustomerLineItem {
	return models.CustomerLineItem{ItemID: id, Quantity: qty, NetWeight: net, GrossWeight: gross, SellingPrice: price}
}

func TestCreateAndRecordPayments(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 5, 50, 55)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "Sharma Traders",
		Items:        []models.CustomerLineItem{saleLine("1001", 1, 10, 11, 90)},
		Costs:        invoicing.Costs{TransportCost: 60, LaborCost: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", invoice.InvoiceNo)
	assert.Equal(t, int64(900), invoice.ItemsTotal)
	assert.Equal(t, int64(1000), invoice.TotalAmount)
	assert.Equal(t, int64(1000), invoice.RemainingAmount)
	assert.Equal(t, enums.PaymentStatusUnpaid, invoice.Status)
	assert.Equal(t, [3]float64{4, 40, 44}, f.stock(t, "1001"))

	invoice, err = f.svc.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{
		PaidAmount: paid(400),
		Entry:      &models.PaymentEntry{Amount: 400, Method: enums.PaymentMethodCash},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(600), invoice.RemainingAmount)
	assert.Equal(t, enums.PaymentStatusPartiallyPaid, invoice.Status)
	assert.Nil(t, invoice.PaidDate)

	invoice, err = f.svc.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{
		PaidAmount: paid(1000),
		Entry:      &models.PaymentEntry{Amount: 600, Method: enums.PaymentMethodBank},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), invoice.RemainingAmount)
	assert.Equal(t, enums.PaymentStatusPaid, invoice.Status)
	require.NotNil(t, invoice.PaidDate)

	stored, err := f.svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, stored.PaymentHistory, 2)
	assert.Equal(t, enums.PaymentMethodBank, stored.PaymentHistory[1].Method)
	assert.Equal(t, enums.PaymentStatusPaid, stored.Status)

	entries, err := f.journal.ListByEntity(ctx, enums.EntityCustomerInvoice, invoice.ID.String())
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	second, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "Gupta & Sons",
		Items:        []models.CustomerLineItem{saleLine("1001", 1, 10, 11, 90)},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-0002", second.InvoiceNo)
}

func TestRecordPaymentKeepsPaidAmountAndHistoryInStep(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 5, 50, 55)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "Sharma Traders",
		Items:        []models.CustomerLineItem{saleLine("1001", 1, 10, 11, 100)},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), invoice.TotalAmount)

	_, err = f.svc.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{
		PaidAmount: paid(400),
		Entry:      &models.PaymentEntry{Amount: 400},
	})
	require.NoError(t, err)

	// an entry on its own does not say what the invoice total paid is
	_, err = f.svc.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{Entry: &models.PaymentEntry{Amount: 200}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{
		PaidAmount: paid(700),
		Entry:      &models.PaymentEntry{Amount: 200},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	stored, err := f.svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), stored.PaidAmount)
	assert.Equal(t, int64(600), stored.RemainingAmount)
	assert.Equal(t, enums.PaymentStatusPartiallyPaid, stored.Status)
	require.Len(t, stored.PaymentHistory, 1)

	invoice, err = f.svc.RecordPayment(ctx, invoice.ID, invoicing.PaymentInput{
		PaidAmount: paid(700),
		Entry:      &models.PaymentEntry{Method: enums.PaymentMethodUPI},
	})
	require.NoError(t, err)
	require.Len(t, invoice.PaymentHistory, 2)
	assert.Equal(t, int64(300), invoice.PaymentHistory[1].Amount)

	var entered int64
	for _, entry := range invoice.PaymentHistory {
		entered += entry.Amount
	}
	assert.Equal(t, invoice.PaidAmount, entered)
}

func TestCreateInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 5, 50, 55)
	f.seedItem(t, "1002", 20, 200, 200)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "Sharma Traders",
		Items: []models.CustomerLineItem{
			saleLine("1002", 2, 20, 20, 10),
			saleLine("1001", 10, 10, 10, 10),
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Contains(t, err.Error(), "INV-0001")

	assert.Equal(t, [3]float64{5, 50, 55}, f.stock(t, "1001"))
	assert.Equal(t, [3]float64{20, 200, 200}, f.stock(t, "1002"))
	count, err := f.invoices.Count(ctx, docstore.Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []customerinvoices.CreateInput{
		{Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 1)}},
		{CustomerName: "x"},
		{CustomerName: "x", Items: []models.CustomerLineItem{saleLine("", 1, 1, 1, 1)}},
		{CustomerName: "x", Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 1)}, Costs: invoicing.Costs{LaborCost: -5}},
		{CustomerName: "x", Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 1)}, Payment: &invoicing.PaymentInput{PaidAmount: paid(-1)}},
	}
	for i, input := range cases {
		_, err := f.svc.Create(ctx, input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "case %d: %v", i, err)
	}

	_, err := f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "x", Items: []models.CustomerLineItem{saleLine("7777", 1, 1, 1, 1)}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateRejectsDuplicateInvoiceNumber(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 5, 5, 5)
	ctx := context.Background()

	input := customerinvoices.CreateInput{InvoiceNo: "INV-0100", CustomerName: "x", Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 1)}}
	_, err := f.svc.Create(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, float64(4), f.stock(t, "1001")[0])
}

func TestDeleteRestoresStock(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 8.5, 85.5, 90)
	f.seedItem(t, "1002", 3, 30, 31)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "Sharma Traders",
		Items:        []models.CustomerLineItem{saleLine("1001", 2.5, 20.25, 21, 40), saleLine("1002", 3, 30, 31, 10)},
	})
	require.NoError(t, err)

	res, err := f.svc.Delete(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, res.Reverted, 2)
	assert.Empty(t, res.Skipped)

	got := f.stock(t, "1001")
	assert.InDelta(t, 8.5, got[0], 1e-9)
	assert.InDelta(t, 85.5, got[1], 1e-9)
	assert.InDelta(t, 90, got[2], 1e-9)
	assert.Equal(t, [3]float64{3, 30, 31}, f.stock(t, "1002"))

	_, err = f.svc.Get(ctx, invoice.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteSkipsMissingItems(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 5, 5, 5)
	f.seedItem(t, "1002", 5, 5, 5)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "x",
		Items:        []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 1), saleLine("1002", 2, 2, 2, 1)},
	})
	require.NoError(t, err)
	_, err = f.items.Delete(ctx, "1002")
	require.NoError(t, err)

	res, err := f.svc.Delete(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"1002"}, res.Skipped)
	assert.Equal(t, [3]float64{5, 5, 5}, f.stock(t, "1001"))
}

func TestEditItemsReconcilesStock(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 10, 100, 100)
	f.seedItem(t, "1002", 10, 100, 100)
	f.seedItem(t, "1003", 10, 100, 100)
	ctx := context.Background()

	a := []models.CustomerLineItem{saleLine("1001", 2, 20, 20, 10), saleLine("1002", 3, 30, 30, 10)}
	b := []models.CustomerLineItem{saleLine("1001", 5, 50, 50, 10), saleLine("1003", 1, 10, 10, 10)}

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "x", Items: a, Payment: &invoicing.PaymentInput{PaidAmount: paid(500)}})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, invoice.Status)

	invoice, err = f.svc.EditItems(ctx, invoice.ID, customerinvoices.EditItemsInput{Items: b, OriginalItems: a})
	require.NoError(t, err)
	assert.Equal(t, [3]float64{5, 50, 50}, f.stock(t, "1001"))
	assert.Equal(t, [3]float64{10, 100, 100}, f.stock(t, "1002"))
	assert.Equal(t, [3]float64{9, 90, 90}, f.stock(t, "1003"))
	assert.Equal(t, int64(600), invoice.TotalAmount)
	assert.Equal(t, int64(500), invoice.PaidAmount)
	assert.Equal(t, int64(100), invoice.RemainingAmount)
	assert.Equal(t, enums.PaymentStatusPartiallyPaid, invoice.Status)
	assert.Nil(t, invoice.PaidDate)

	_, err = f.svc.EditItems(ctx, invoice.ID, customerinvoices.EditItemsInput{Items: a, OriginalItems: b})
	require.NoError(t, err)
	assert.Equal(t, [3]float64{8, 80, 80}, f.stock(t, "1001"))
	assert.Equal(t, [3]float64{7, 70, 70}, f.stock(t, "1002"))
	assert.Equal(t, [3]float64{10, 100, 100}, f.stock(t, "1003"))
}

func TestEditItemsRejectsStaleOriginal(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 10, 100, 100)
	ctx := context.Background()

	a := []models.CustomerLineItem{saleLine("1001", 2, 20, 20, 10)}
	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "x", Items: a})
	require.NoError(t, err)

	stale := []models.CustomerLineItem{saleLine("1001", 1, 10, 10, 10)}
	_, err = f.svc.EditItems(ctx, invoice.ID, customerinvoices.EditItemsInput{Items: stale, OriginalItems: stale})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, [3]float64{8, 80, 80}, f.stock(t, "1001"))
}

func TestEditItemsInsufficientStockLeavesInvoice(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 3, 30, 30)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "x", Items: []models.CustomerLineItem{saleLine("1001", 2, 20, 20, 10)}})
	require.NoError(t, err)

	_, err = f.svc.EditItems(ctx, invoice.ID, customerinvoices.EditItemsInput{Items: []models.CustomerLineItem{saleLine("1001", 6, 60, 60, 10)}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	stored, err := f.svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(2), stored.Items[0].Quantity)
	assert.Equal(t, [3]float64{1, 10, 10}, f.stock(t, "1001"))
}

func TestBrokerSubLedger(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 10, 100, 100)
	ctx := context.Background()

	percent := 2.5
	broker, err := f.brokers.Create(ctx, brokers.CreateBrokerInput{Name: "Ramesh", DefaultCommissionPercent: &percent})
	require.NoError(t, err)

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "x",
		Items:        []models.CustomerLineItem{saleLine("1001", 1, 10, 10, 100)},
		Broker:       &customerinvoices.BrokerTerms{BrokerID: broker.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), invoice.CommissionAmount)
	assert.Equal(t, int64(25), invoice.BrokerRemainingAmount)
	assert.Equal(t, enums.PaymentStatusUnpaid, invoice.BrokerPaymentStatus)

	linked, err := f.brokers.Get(ctx, broker.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{invoice.ID.String()}, linked.InvoiceIDs)

	supplied := fixedNow.Add(-48 * time.Hour)
	invoice, err = f.svc.ApplyBrokerPayment(ctx, invoice.ID, customerinvoices.BrokerPaymentInput{PaidAmount: paid(10), PaymentDate: &supplied})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyPaid, invoice.BrokerPaymentStatus)
	assert.Equal(t, int64(15), invoice.BrokerRemainingAmount)
	assert.Equal(t, supplied, *invoice.BrokerPaymentDate)

	invoice, err = f.svc.ApplyBrokerPayment(ctx, invoice.ID, customerinvoices.BrokerPaymentInput{PaidAmount: paid(25), PaymentDate: &supplied})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, invoice.BrokerPaymentStatus)
	assert.Equal(t, fixedNow, *invoice.BrokerPaymentDate)

	// a percent-based commission follows the edited total
	invoice, err = f.svc.EditItems(ctx, invoice.ID, customerinvoices.EditItemsInput{Items: []models.CustomerLineItem{saleLine("1001", 2, 20, 20, 100)}})
	require.NoError(t, err)
	assert.Equal(t, int64(50), invoice.CommissionAmount)
	assert.Equal(t, int64(25), invoice.BrokerRemainingAmount)
	assert.Equal(t, enums.PaymentStatusPartiallyPaid, invoice.BrokerPaymentStatus)

	_, err = f.svc.Delete(ctx, invoice.ID)
	require.NoError(t, err)
	linked, err = f.brokers.Get(ctx, broker.ID)
	require.NoError(t, err)
	assert.Empty(t, linked.InvoiceIDs)
}

func TestApplyBrokerPaymentWithoutBroker(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 10, 100, 100)
	ctx := context.Background()

	invoice, err := f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "x", Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 1)}})
	require.NoError(t, err)
	_, err = f.svc.ApplyBrokerPayment(ctx, invoice.ID, customerinvoices.BrokerPaymentInput{PaidAmount: paid(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.ApplyBrokerPayment(ctx, uuid.New(), customerinvoices.BrokerPaymentInput{PaidAmount: paid(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

type failingLinker struct {
	broker *models.Broker
}

func (l failingLinker) Get(context.Context, uuid.UUID) (*models.Broker, error) { return l.broker, nil }
func (failingLinker) Link(context.Context, uuid.UUID, uuid.UUID) error {
	return errors.New("broker store offline")
}
func (failingLinker) Unlink(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func TestCreateSurfacesPartialFailure(t *testing.T) {
	broker := &models.Broker{ID: uuid.New(), Name: "offline"}
	f := newFixture(t, failingLinker{broker: broker})
	f.seedItem(t, "1001", 10, 100, 100)
	ctx := context.Background()

	amount := int64(30)
	_, err := f.svc.Create(ctx, customerinvoices.CreateInput{
		CustomerName: "x",
		Items:        []models.CustomerLineItem{saleLine("1001", 1, 10, 10, 10)},
		Broker:       &customerinvoices.BrokerTerms{BrokerID: broker.ID, CommissionAmount: &amount},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePartialFailure, typed.Code())
	details := typed.Details().(pkgerrors.PartialFailureDetails)
	assert.Equal(t, "link_broker", details.Step)
	assert.Equal(t, []string{"consume_stock", "create_invoice"}, details.Completed)

	// completed steps stay applied for manual reconciliation
	assert.Equal(t, float64(9), f.stock(t, "1001")[0])
	page, err := f.svc.List(ctx, customerinvoices.ListInput{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(30), page.Items[0].CommissionAmount)

	entries, err := f.journal.ListByEntity(ctx, enums.EntityCustomerInvoice, details.EntityID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.JournalEventPartialFailure, entries[0].Type)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "1001", 10, 100, 100)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "Sharma Traders", Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 100)}, Payment: &invoicing.PaymentInput{PaidAmount: paid(100)}})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, customerinvoices.CreateInput{CustomerName: "Gupta", Items: []models.CustomerLineItem{saleLine("1001", 1, 1, 1, 100)}})
	require.NoError(t, err)

	paid := enums.PaymentStatusPaid
	page, err := f.svc.List(ctx, customerinvoices.ListInput{Status: &paid})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Sharma Traders", page.Items[0].CustomerName)

	page, err = f.svc.List(ctx, customerinvoices.ListInput{Search: "gup"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func paid(v int64) *int64 { return &v }
