package commissions

import (
	"time"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/google/uuid"
)

type CreateCommissionerInput struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone,omitempty"`
}

type ListCommissionersInput struct {
	pagination.Params
	Search string
}

// SheetInput is a draft sheet. ReceivedAmount, when positive, is recorded
// as the sheet's first commissioner payment.
type SheetInput struct {
	InvoiceNo                string                      `json:"invoiceNo,omitempty"`
	CommissionerID           uuid.UUID                   `json:"commissionerId" validate:"required"`
	SheetDate                time.Time                   `json:"sheetDate"`
	Items                    []models.CommissionLineItem `json:"items" validate:"required,min=1,dive"`
	TradersCommissionPercent float64                     `json:"tradersCommissionPercent" validate:"gte=0,lte=100"`
	ReceivedAmount           int64                       `json:"receivedAmount" validate:"gte=0"`
	Method                   enums.PaymentMethod         `json:"method,omitempty"`
	Notes                    string                      `json:"notes,omitempty"`
}

// UpdateSheetInput changes a stored sheet. A CommissionPrice overrides the
// percent-derived commission; a ReceivedAmount is reached by appending an
// adjustment payment.
type UpdateSheetInput struct {
	SheetDate                *time.Time                   `json:"sheetDate,omitempty"`
	Items                    *[]models.CommissionLineItem `json:"items,omitempty"`
	TradersCommissionPercent *float64                     `json:"tradersCommissionPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	CommissionPrice          *int64                       `json:"commissionPrice,omitempty" validate:"omitempty,gte=0"`
	ReceivedAmount           *int64                       `json:"receivedAmount,omitempty" validate:"omitempty,gte=0"`
	Notes                    *string                      `json:"notes,omitempty"`
}

type ListSheetsInput struct {
	pagination.Params
	CommissionerID *uuid.UUID
	Status         *enums.SheetStatus
	Search         string
}

// RecordPaymentInput is one receipt from a commissioner. Without a SheetID
// the payment stays unallocated.
type RecordPaymentInput struct {
	CommissionerID uuid.UUID           `json:"commissionerId" validate:"required"`
	SheetID        *uuid.UUID          `json:"sheetId,omitempty"`
	Amount         int64               `json:"amount" validate:"gt=0"`
	Method         enums.PaymentMethod `json:"method,omitempty"`
	Date           *time.Time          `json:"date,omitempty"`
	Note           string              `json:"note,omitempty"`
}

type PaymentResult struct {
	Payment *models.CommissionerPayment `json:"payment"`
	Sheet   *models.CommissionSheet     `json:"sheet,omitempty"`
}

type DeleteSheetResult struct {
	SheetID          uuid.UUID `json:"sheetId"`
	DetachedPayments int       `json:"detachedPayments"`
}

// Summary totals a commissioner's sheets and payments. Unallocated
// payments are reported apart from the sheet totals.
type Summary struct {
	CommissionerID      uuid.UUID `json:"commissionerId"`
	CommissionerName    string    `json:"commissionerName"`
	SheetCount          int       `json:"sheetCount"`
	PaidSheets          int       `json:"paidSheets"`
	TotalCommission     int64     `json:"totalCommission"`
	TotalReceived       int64     `json:"totalReceived"`
	TotalPending        int64     `json:"totalPending"`
	UnallocatedPayments int64     `json:"unallocatedPayments"`
}

var sheetSortFields = map[string]string{
	"sheetDate":       "sheet_date",
	"invoiceNo":       "invoice_no",
	"commissionPrice": "commission_price",
	"pendingAmount":   "pending_amount",
	"createdAt":       "created_at",
}

var commissionerSortFields = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
}
