// Package commissions reconciles commissioner trade sheets against the
// append-only commissioner payment ledger. A sheet's received amount is
// always the sum of the payments allocated to it.
package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/internal/invoicing"
	"github.com/angelmondragon/tradeledger/internal/journal"
	"github.com/angelmondragon/tradeledger/pkg/db"
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

type Service interface {
	CreateCommissioner(ctx context.Context, input CreateCommissionerInput) (*models.Commissioner, error)
	GetCommissioner(ctx context.Context, id uuid.UUID) (*models.Commissioner, error)
	ListCommissioners(ctx context.Context, input ListCommissionersInput) (*pagination.Page[models.Commissioner], error)

	CreateSheet(ctx context.Context, input SheetInput) (*models.CommissionSheet, error)
	GeneratePreview(ctx context.Context, input SheetInput) (*models.CommissionSheet, error)
	UpdateSheet(ctx context.Context, id uuid.UUID, input UpdateSheetInput) (*models.CommissionSheet, error)
	GetSheet(ctx context.Context, id uuid.UUID) (*models.CommissionSheet, error)
	ListSheets(ctx context.Context, input ListSheetsInput) (*pagination.Page[models.CommissionSheet], error)
	DeleteSheet(ctx context.Context, id uuid.UUID) (*DeleteSheetResult, error)

	RecordPayment(ctx context.Context, input RecordPaymentInput) (*PaymentResult, error)
	ListPayments(ctx context.Context, commissionerID uuid.UUID) ([]models.CommissionerPayment, error)
	Summary(ctx context.Context, commissionerID uuid.UUID) (*Summary, error)
}

type ServiceParams struct {
	Commissioners docstore.Store[models.Commissioner]
	Sheets        docstore.Store[models.CommissionSheet]
	Payments      docstore.Store[models.CommissionerPayment]
	Locks         lock.Locker
	Journal       journal.Recorder
	Logger        *logger.Logger
	Metrics       *metrics.ReconcileMetrics
	Prefix        string
	Now           func() time.Time
}

type service struct {
	commissioners docstore.Store[models.Commissioner]
	sheets        docstore.Store[models.CommissionSheet]
	payments      docstore.Store[models.CommissionerPayment]
	locks         lock.Locker
	journal       journal.Recorder
	logg          *logger.Logger
	metrics       *metrics.ReconcileMetrics
	prefix        string
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Commissioners == nil {
		return nil, fmt.Errorf("commissioner store required")
	}
	if params.Sheets == nil {
		return nil, fmt.Errorf("commission sheet store required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("commissioner payment store required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Prefix == "" {
		params.Prefix = "ATC-"
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		commissioners: params.Commissioners,
		sheets:        params.Sheets,
		payments:      params.Payments,
		locks:         params.Locks,
		journal:       params.Journal,
		logg:          params.Logger,
		metrics:       params.Metrics,
		prefix:        params.Prefix,
		now:           params.Now,
	}, nil
}

func (s *service) CreateCommissioner(ctx context.Context, input CreateCommissionerInput) (*models.Commissioner, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commissioner name is required")
	}
	commissioner := &models.Commissioner{
		ID:    uuid.New(),
		Name:  name,
		Phone: strings.TrimSpace(input.Phone),
	}
	if _, err := s.commissioners.Create(ctx, commissioner); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commissioner")
	}
	return commissioner, nil
}

func (s *service) GetCommissioner(ctx context.Context, id uuid.UUID) (*models.Commissioner, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commissioner id is required")
	}
	commissioner, err := s.commissioners.FindByID(ctx, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("commissioner %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commissioner")
	}
	return commissioner, nil
}

func (s *service) ListCommissioners(ctx context.Context, input ListCommissionersInput) (*pagination.Page[models.Commissioner], error) {
	opts, err := input.FindOptions(commissionerSortFields, docstore.Sort{Field: "name"})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	filter := docstore.Filter{}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.Contains = map[string]string{"name": search}
	}
	commissioners, err := s.commissioners.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissioners")
	}
	total, err := s.commissioners.Count(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count commissioners")
	}
	if commissioners == nil {
		commissioners = []models.Commissioner{}
	}
	return &pagination.Page[models.Commissioner]{Items: commissioners, Total: total, Skip: opts.Skip, Limit: opts.Limit}, nil
}

func (s *service) CreateSheet(ctx context.Context, input SheetInput) (_ *models.CommissionSheet, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("commission_sheet_create", started, err) }()

	if err := validateSheetInput(input); err != nil {
		return nil, err
	}
	if _, err := s.GetCommissioner(ctx, input.CommissionerID); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, lock.Key(enums.EntityCommissionSheet, "numbering"))
	if err != nil {
		return nil, err
	}
	defer release()

	invoiceNo, err := s.sheetNumber(ctx, input.InvoiceNo)
	if err != nil {
		return nil, err
	}
	sheet := s.draft(input, invoiceNo)
	sheet.ID = uuid.New()
	ctx = s.logg.WithEntity(ctx, enums.EntityCommissionSheet.String(), sheet.ID.String())

	if _, err := s.sheets.Create(ctx, sheet); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("sheet number %s already exists", invoiceNo))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission sheet "+invoiceNo)
	}

	if sheet.ReceivedAmount > 0 {
		payment := &models.CommissionerPayment{
			ID:             uuid.New(),
			CommissionerID: sheet.CommissionerID,
			SheetID:        &sheet.ID,
			Amount:         sheet.ReceivedAmount,
			Method:         methodOrCash(input.Method),
			Date:           sheet.SheetDate,
			Note:           "received with sheet " + sheet.InvoiceNo,
		}
		if _, err := s.payments.Create(ctx, payment); err != nil {
			return nil, s.partialFailure(ctx, "record_payment", []string{"create_sheet"}, sheet.ID, err)
		}
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCommissionSheet,
		EntityID:   sheet.ID.String(),
		Type:       enums.JournalEventSheetCreated,
		Amount:     sheet.CommissionPrice,
		Metadata:   map[string]any{"invoice_no": sheet.InvoiceNo, "received_amount": sheet.ReceivedAmount},
	})
	s.logg.Info(ctx, "commission sheet created")
	return sheet, nil
}

// GeneratePreview derives a sheet exactly as CreateSheet would, including
// the next number, without writing anything.
func (s *service) GeneratePreview(ctx context.Context, input SheetInput) (*models.CommissionSheet, error) {
	if err := validateSheetInput(input); err != nil {
		return nil, err
	}
	invoiceNo := strings.TrimSpace(input.InvoiceNo)
	if invoiceNo == "" {
		next, err := invoicing.NextFromStore(ctx, s.sheets, s.prefix, sheetNumberOf)
		if err != nil {
			return nil, err
		}
		invoiceNo = next
	}
	return s.draft(input, invoiceNo), nil
}

func (s *service) UpdateSheet(ctx context.Context, id uuid.UUID, input UpdateSheetInput) (_ *models.CommissionSheet, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("commission_sheet_update", started, err) }()

	if input.Items != nil {
		if err := validateItems(*input.Items); err != nil {
			return nil, err
		}
	}
	if input.TradersCommissionPercent != nil {
		if err := validatePercent(*input.TradersCommissionPercent); err != nil {
			return nil, err
		}
	}
	if input.CommissionPrice != nil && *input.CommissionPrice < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission price cannot be negative")
	}
	if input.ReceivedAmount != nil && *input.ReceivedAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "received amount cannot be negative")
	}

	release, err := s.lockSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sheet, err := s.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityCommissionSheet.String(), sheet.ID.String())

	if input.SheetDate != nil && !input.SheetDate.IsZero() {
		sheet.SheetDate = *input.SheetDate
	}
	if input.Notes != nil {
		sheet.Notes = strings.TrimSpace(*input.Notes)
	}
	if input.Items != nil || input.TradersCommissionPercent != nil {
		if input.Items != nil {
			sheet.Items = *input.Items
		}
		if input.TradersCommissionPercent != nil {
			sheet.TradersCommissionPercent = *input.TradersCommissionPercent
		}
		derive(sheet)
	}
	if input.CommissionPrice != nil {
		sheet.CommissionPrice = *input.CommissionPrice
	}

	var completed []string
	if input.ReceivedAmount != nil && *input.ReceivedAmount != sheet.ReceivedAmount {
		adjustment := &models.CommissionerPayment{
			ID:             uuid.New(),
			CommissionerID: sheet.CommissionerID,
			SheetID:        &sheet.ID,
			Amount:         *input.ReceivedAmount - sheet.ReceivedAmount,
			Method:         enums.PaymentMethodAdjustment,
			Date:           s.now(),
			Note:           "received amount corrected on " + sheet.InvoiceNo,
		}
		if _, err := s.payments.Create(ctx, adjustment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record received amount adjustment")
		}
		completed = append(completed, "record_adjustment")
	}

	received, err := s.receivedFor(ctx, sheet.ID)
	if err != nil {
		if len(completed) > 0 {
			return nil, s.partialFailure(ctx, "update_sheet", completed, sheet.ID, err)
		}
		return nil, err
	}
	sheet.ReceivedAmount = received
	settle(sheet)

	if err := s.save(ctx, sheet); err != nil {
		if len(completed) > 0 {
			return nil, s.partialFailure(ctx, "update_sheet", completed, sheet.ID, err)
		}
		return nil, err
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCommissionSheet,
		EntityID:   sheet.ID.String(),
		Type:       enums.JournalEventSheetUpdated,
		Amount:     sheet.CommissionPrice,
		Metadata:   map[string]any{"received_amount": sheet.ReceivedAmount, "status": string(sheet.Status)},
	})
	return sheet, nil
}

func (s *service) GetSheet(ctx context.Context, id uuid.UUID) (*models.CommissionSheet, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sheet id is required")
	}
	sheet, err := s.sheets.FindByID(ctx, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("commission sheet %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission sheet")
	}
	return sheet, nil
}

func (s *service) ListSheets(ctx context.Context, input ListSheetsInput) (*pagination.Page[models.CommissionSheet], error) {
	opts, err := input.FindOptions(sheetSortFields, docstore.Sort{Field: "sheet_date", Desc: true}, docstore.Sort{Field: "invoice_no", Desc: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	filter := docstore.Filter{Equals: map[string]any{}}
	if input.CommissionerID != nil {
		filter.Equals["commissioner_id"] = *input.CommissionerID
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid sheet status %q", *input.Status))
		}
		filter.Equals["status"] = string(*input.Status)
	}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.Contains = map[string]string{"invoice_no": search}
	}

	sheets, err := s.sheets.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission sheets")
	}
	total, err := s.sheets.Count(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count commission sheets")
	}
	if sheets == nil {
		sheets = []models.CommissionSheet{}
	}
	return &pagination.Page[models.CommissionSheet]{Items: sheets, Total: total, Skip: opts.Skip, Limit: opts.Limit}, nil
}

// DeleteSheet removes a sheet. Its payments stay in the ledger as
// unallocated receipts.
func (s *service) DeleteSheet(ctx context.Context, id uuid.UUID) (_ *DeleteSheetResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("commission_sheet_delete", started, err) }()

	release, err := s.lockSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sheet, err := s.GetSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityCommissionSheet.String(), sheet.ID.String())

	payments, err := s.sheetPayments(ctx, sheet.ID)
	if err != nil {
		return nil, err
	}
	for i, payment := range payments {
		if _, err := s.payments.Update(ctx, payment.ID, map[string]any{"sheet_id": nil}); err != nil {
			cause := pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("detach payment %s (%d of %d)", payment.ID, i+1, len(payments)))
			return nil, s.partialFailure(ctx, "detach_payments", nil, sheet.ID, cause)
		}
	}
	completed := []string{"detach_payments"}

	if _, err := s.sheets.Delete(ctx, sheet.ID); err != nil {
		return nil, s.partialFailure(ctx, "delete_sheet", completed, sheet.ID, err)
	}

	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCommissionSheet,
		EntityID:   sheet.ID.String(),
		Type:       enums.JournalEventSheetDeleted,
		Amount:     sheet.CommissionPrice,
		Metadata:   map[string]any{"invoice_no": sheet.InvoiceNo, "detached_payments": len(payments)},
	})
	s.logg.Info(ctx, "commission sheet deleted")
	return &DeleteSheetResult{SheetID: sheet.ID, DetachedPayments: len(payments)}, nil
}

// draft builds the unsaved sheet for input. It never touches the store.
func (s *service) draft(input SheetInput, invoiceNo string) *models.CommissionSheet {
	sheetDate := input.SheetDate
	if sheetDate.IsZero() {
		sheetDate = s.now()
	}
	sheet := &models.CommissionSheet{
		InvoiceNo:                invoiceNo,
		CommissionerID:           input.CommissionerID,
		SheetDate:                sheetDate,
		Items:                    input.Items,
		TradersCommissionPercent: input.TradersCommissionPercent,
		ReceivedAmount:           input.ReceivedAmount,
		Notes:                    strings.TrimSpace(input.Notes),
	}
	derive(sheet)
	return sheet
}

func (s *service) lockSheet(ctx context.Context, id uuid.UUID) (lock.Release, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sheet id is required")
	}
	return s.locks.Acquire(ctx, lock.Key(enums.EntityCommissionSheet, id.String()))
}

func (s *service) save(ctx context.Context, sheet *models.CommissionSheet) error {
	ok, err := s.sheets.Replace(ctx, sheet)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update commission sheet "+sheet.InvoiceNo)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("commission sheet %s not found", sheet.ID))
	}
	return nil
}

func (s *service) sheetNumber(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return invoicing.NextFromStore(ctx, s.sheets, s.prefix, sheetNumberOf)
	}
	count, err := s.sheets.Count(ctx, docstore.Filter{Equals: map[string]any{"invoice_no": requested}})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check sheet number")
	}
	if count > 0 {
		return "", pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("sheet number %s already exists", requested))
	}
	return requested, nil
}

func (s *service) partialFailure(ctx context.Context, step string, completed []string, id uuid.UUID, cause error) error {
	err := pkgerrors.PartialFailure(step, completed, id.String(), cause)
	s.logg.Error(ctx, "commission sheet partially applied", err)
	journal.NotePartialFailure(ctx, s.journal, s.logg, enums.EntityCommissionSheet, id.String(), err)
	return err
}

func sheetNumberOf(sheet models.CommissionSheet) string {
	return sheet.InvoiceNo
}

func validateSheetInput(input SheetInput) error {
	if input.CommissionerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "commissioner id is required")
	}
	if err := validateItems(input.Items); err != nil {
		return err
	}
	if err := validatePercent(input.TradersCommissionPercent); err != nil {
		return err
	}
	if input.ReceivedAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "received amount cannot be negative")
	}
	if input.Method != "" && !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	return nil
}

func methodOrCash(method enums.PaymentMethod) enums.PaymentMethod {
	if method == "" {
		return enums.PaymentMethodCash
	}
	return method
}
