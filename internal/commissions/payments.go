package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/internal/journal"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/google/uuid"
)

// RecordPayment appends a receipt to the ledger. A payment tied to a sheet
// re-projects that sheet's received amount, pending amount and status.
func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (_ *PaymentResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("commissioner_payment", started, err) }()

	if input.CommissionerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commissioner id is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if input.Method != "" && !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	if _, err := s.GetCommissioner(ctx, input.CommissionerID); err != nil {
		return nil, err
	}

	paidOn := s.now()
	if input.Date != nil && !input.Date.IsZero() {
		paidOn = *input.Date
	}
	payment := &models.CommissionerPayment{
		ID:             uuid.New(),
		CommissionerID: input.CommissionerID,
		Amount:         input.Amount,
		Method:         methodOrCash(input.Method),
		Date:           paidOn,
		Note:           strings.TrimSpace(input.Note),
	}
	ctx = s.logg.WithEntity(ctx, enums.EntityCommissioner.String(), input.CommissionerID.String())

	if input.SheetID == nil {
		if _, err := s.payments.Create(ctx, payment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record commissioner payment")
		}
		s.notePayment(ctx, payment, nil)
		return &PaymentResult{Payment: payment}, nil
	}

	release, err := s.lockSheet(ctx, *input.SheetID)
	if err != nil {
		return nil, err
	}
	defer release()

	sheet, err := s.GetSheet(ctx, *input.SheetID)
	if err != nil {
		return nil, err
	}
	if sheet.CommissionerID != input.CommissionerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("sheet %s belongs to another commissioner", sheet.InvoiceNo))
	}
	sheetID := sheet.ID
	payment.SheetID = &sheetID

	if _, err := s.payments.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record commissioner payment")
	}
	completed := []string{"record_payment"}

	received, err := s.receivedFor(ctx, sheet.ID)
	if err != nil {
		return nil, s.partialFailure(ctx, "update_sheet", completed, sheet.ID, err)
	}
	sheet.ReceivedAmount = received
	settle(sheet)
	if err := s.save(ctx, sheet); err != nil {
		return nil, s.partialFailure(ctx, "update_sheet", completed, sheet.ID, err)
	}

	s.notePayment(ctx, payment, sheet)
	return &PaymentResult{Payment: payment, Sheet: sheet}, nil
}

func (s *service) ListPayments(ctx context.Context, commissionerID uuid.UUID) ([]models.CommissionerPayment, error) {
	if commissionerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commissioner id is required")
	}
	if _, err := s.GetCommissioner(ctx, commissionerID); err != nil {
		return nil, err
	}
	payments, err := s.payments.FindAll(ctx,
		docstore.Filter{Equals: map[string]any{"commissioner_id": commissionerID}},
		docstore.FindOptions{Sort: []docstore.Sort{{Field: "paid_on"}, {Field: "created_at"}}},
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissioner payments")
	}
	if payments == nil {
		payments = []models.CommissionerPayment{}
	}
	return payments, nil
}

// Summary is recomputed from the stored sheets and the payment ledger on
// every call.
func (s *service) Summary(ctx context.Context, commissionerID uuid.UUID) (*Summary, error) {
	commissioner, err := s.GetCommissioner(ctx, commissionerID)
	if err != nil {
		return nil, err
	}
	sheets, err := s.sheets.FindAll(ctx,
		docstore.Filter{Equals: map[string]any{"commissioner_id": commissionerID}},
		docstore.FindOptions{},
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissioner sheets")
	}
	unallocated, err := s.payments.FindAll(ctx,
		docstore.Filter{Equals: map[string]any{"commissioner_id": commissionerID, "sheet_id": nil}},
		docstore.FindOptions{},
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unallocated payments")
	}

	summary := &Summary{
		CommissionerID:   commissioner.ID,
		CommissionerName: commissioner.Name,
		SheetCount:       len(sheets),
	}
	for _, sheet := range sheets {
		summary.TotalCommission += sheet.CommissionPrice
		summary.TotalReceived += sheet.ReceivedAmount
		summary.TotalPending += sheet.PendingAmount
		if sheet.Status == enums.SheetStatusPaid {
			summary.PaidSheets++
		}
	}
	for _, payment := range unallocated {
		summary.UnallocatedPayments += payment.Amount
	}
	return summary, nil
}

func (s *service) sheetPayments(ctx context.Context, sheetID uuid.UUID) ([]models.CommissionerPayment, error) {
	payments, err := s.payments.FindAll(ctx,
		docstore.Filter{Equals: map[string]any{"sheet_id": sheetID}},
		docstore.FindOptions{Sort: []docstore.Sort{{Field: "paid_on"}, {Field: "created_at"}}},
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sheet payments")
	}
	return payments, nil
}

// receivedFor sums the ledger entries allocated to a sheet. Adjustments may
// be negative; the total never is.
func (s *service) receivedFor(ctx context.Context, sheetID uuid.UUID) (int64, error) {
	payments, err := s.sheetPayments(ctx, sheetID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, payment := range payments {
		total += payment.Amount
	}
	return max(total, 0), nil
}

func (s *service) notePayment(ctx context.Context, payment *models.CommissionerPayment, sheet *models.CommissionSheet) {
	metadata := map[string]any{"method": string(payment.Method)}
	if sheet != nil {
		metadata["sheet_id"] = sheet.ID.String()
		metadata["received_amount"] = sheet.ReceivedAmount
		metadata["status"] = string(sheet.Status)
	}
	journal.Note(ctx, s.journal, s.logg, journal.RecordInput{
		EntityType: enums.EntityCommissionerPayment,
		EntityID:   payment.ID.String(),
		Type:       enums.JournalEventCommissionerPayment,
		Amount:     payment.Amount,
		Metadata:   metadata,
	})
}
