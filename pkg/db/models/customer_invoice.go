package models

import (
	"time"

	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/google/uuid"
)

// CustomerLineItem is a sale line. Price is per unit of net weight and
// packaging is charged per unit of quantity.
type CustomerLineItem struct {
	ItemID        string  `json:"itemId"`
	Name          string  `json:"name,omitempty"`
	Quantity      float64 `json:"quantity"`
	NetWeight     float64 `json:"netWeight"`
	GrossWeight   float64 `json:"grossWeight"`
	SellingPrice  int64   `json:"sellingPrice"`
	PackagingCost int64   `json:"packagingCost"`
}

// CustomerInvoice is a sale to a customer. The broker fields form the
// embedded broker sub-ledger and are written only by the invoice reconciler.
type CustomerInvoice struct {
	ID            uuid.UUID          `gorm:"column:id;primaryKey" json:"id"`
	InvoiceNo     string             `gorm:"column:invoice_no;not null;uniqueIndex" json:"invoiceNo"`
	CustomerName  string             `gorm:"column:customer_name;not null" json:"customerName"`
	InvoiceDate   time.Time          `gorm:"column:invoice_date;not null" json:"invoiceDate"`
	Items         []CustomerLineItem `gorm:"column:items;serializer:json" json:"items"`
	ItemsTotal    int64              `gorm:"column:items_total;not null;default:0" json:"itemsTotal"`
	TransportCost int64              `gorm:"column:transport_cost;not null;default:0" json:"transportCost"`
	LaborCost     int64              `gorm:"column:labor_cost;not null;default:0" json:"laborCost"`

	PaymentState `gorm:"embedded"`

	BrokerID              *uuid.UUID          `gorm:"column:broker_id;index" json:"brokerId,omitempty"`
	CommissionPercent     *float64            `gorm:"column:commission_percent" json:"commissionPercent,omitempty"`
	CommissionAmount      int64               `gorm:"column:commission_amount;not null;default:0" json:"commissionAmount"`
	BrokerPaidAmount      int64               `gorm:"column:broker_paid_amount;not null;default:0" json:"brokerPaidAmount"`
	BrokerRemainingAmount int64               `gorm:"column:broker_remaining_amount;not null;default:0" json:"brokerRemainingAmount"`
	BrokerPaymentStatus   enums.PaymentStatus `gorm:"column:broker_payment_status" json:"brokerPaymentStatus,omitempty"`
	BrokerPaymentDate     *time.Time          `gorm:"column:broker_payment_date" json:"brokerPaymentDate,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (CustomerInvoice) TableName() string { return "customer_invoices" }

// HasBroker reports whether the invoice carries a broker sub-ledger.
func (c CustomerInvoice) HasBroker() bool {
	return c.BrokerID != nil && *c.BrokerID != uuid.Nil
}
