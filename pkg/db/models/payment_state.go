package models

import (
	"time"

	"github.com/angelmondragon/tradeledger/pkg/enums"
)

// PaymentEntry is one row of an invoice's append-only payment history.
type PaymentEntry struct {
	Amount int64               `json:"amount"`
	Method enums.PaymentMethod `json:"method"`
	Date   time.Time           `json:"date"`
	Note   string              `json:"note,omitempty"`
}

// PaymentState is embedded in both invoice documents. RemainingAmount and
// Status are derived from TotalAmount and PaidAmount on every write.
type PaymentState struct {
	TotalAmount     int64               `gorm:"column:total_amount;not null;default:0" json:"totalAmount"`
	PaidAmount      int64               `gorm:"column:paid_amount;not null;default:0" json:"paidAmount"`
	RemainingAmount int64               `gorm:"column:remaining_amount;not null;default:0" json:"remainingAmount"`
	Status          enums.PaymentStatus `gorm:"column:status;not null" json:"status"`
	PaymentHistory  []PaymentEntry      `gorm:"column:payment_history;serializer:json" json:"paymentHistory"`
	DueDate         *time.Time          `gorm:"column:due_date" json:"dueDate,omitempty"`
	PaidDate        *time.Time          `gorm:"column:paid_date" json:"paidDate,omitempty"`
}
