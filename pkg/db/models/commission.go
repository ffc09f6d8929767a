package models

import (
	"time"

	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/google/uuid"
)

type Commissioner struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Phone     string    `gorm:"column:phone" json:"phone,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Commissioner) TableName() string { return "commissioners" }

// CommissionLineItem is one traded lot on a commission sheet. Total is
// derived as price x net weight + packaging x quantity.
type CommissionLineItem struct {
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	NetWeight     float64 `json:"netWeight"`
	Price         int64   `json:"price"`
	PackagingCost int64   `json:"packagingCost"`
	Total         int64   `json:"total"`
}

// CommissionSheet is an agent trade commission sheet. ReceivedAmount is the
// sum of the commissioner payments allocated to the sheet.
type CommissionSheet struct {
	ID                       uuid.UUID            `gorm:"column:id;primaryKey" json:"id"`
	InvoiceNo                string               `gorm:"column:invoice_no;not null;uniqueIndex" json:"invoiceNo"`
	CommissionerID           uuid.UUID            `gorm:"column:commissioner_id;not null;index" json:"commissionerId"`
	SheetDate                time.Time            `gorm:"column:sheet_date;not null" json:"sheetDate"`
	Items                    []CommissionLineItem `gorm:"column:items;serializer:json" json:"items"`
	TotalPrice               int64                `gorm:"column:total_price;not null;default:0" json:"totalPrice"`
	TradersCommissionPercent float64              `gorm:"column:traders_commission_percent;not null;default:0" json:"tradersCommissionPercent"`
	CommissionPrice          int64                `gorm:"column:commission_price;not null;default:0" json:"commissionPrice"`
	ReceivedAmount           int64                `gorm:"column:received_amount;not null;default:0" json:"receivedAmount"`
	PendingAmount            int64                `gorm:"column:pending_amount;not null;default:0" json:"pendingAmount"`
	Status                   enums.SheetStatus    `gorm:"column:status;not null" json:"status"`
	Notes                    string               `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt                time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt                time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (CommissionSheet) TableName() string { return "commission_sheets" }

// CommissionerPayment is an append-only receipt from a commissioner. A nil
// SheetID marks an unallocated payment.
type CommissionerPayment struct {
	ID             uuid.UUID           `gorm:"column:id;primaryKey" json:"id"`
	CommissionerID uuid.UUID           `gorm:"column:commissioner_id;not null;index" json:"commissionerId"`
	SheetID        *uuid.UUID          `gorm:"column:sheet_id;index" json:"sheetId,omitempty"`
	Amount         int64               `gorm:"column:amount;not null" json:"amount"`
	Method         enums.PaymentMethod `gorm:"column:method;not null" json:"method"`
	Date           time.Time           `gorm:"column:paid_on;not null" json:"date"`
	Note           string              `gorm:"column:note" json:"note,omitempty"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (CommissionerPayment) TableName() string { return "commissioner_payments" }
