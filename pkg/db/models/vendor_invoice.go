package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorLineItem is a purchase line. CostPrice drives the invoice total;
// SellingPrice seeds a newly created inventory item.
type VendorLineItem struct {
	ItemID        string  `json:"itemId"`
	Name          string  `json:"name,omitempty"`
	Quantity      float64 `json:"quantity"`
	NetWeight     float64 `json:"netWeight"`
	GrossWeight   float64 `json:"grossWeight"`
	CostPrice     int64   `json:"costPrice"`
	SellingPrice  int64   `json:"sellingPrice,omitempty"`
	PackagingCost int64   `json:"packagingCost"`
}

// VendorInvoice is a purchase from a vendor.
type VendorInvoice struct {
	ID            uuid.UUID        `gorm:"column:id;primaryKey" json:"id"`
	InvoiceNo     string           `gorm:"column:invoice_no;not null;uniqueIndex" json:"invoiceNo"`
	VendorName    string           `gorm:"column:vendor_name;not null" json:"vendorName"`
	InvoiceDate   time.Time        `gorm:"column:invoice_date;not null" json:"invoiceDate"`
	Items         []VendorLineItem `gorm:"column:items;serializer:json" json:"items"`
	ItemsTotal    int64            `gorm:"column:items_total;not null;default:0" json:"itemsTotal"`
	TransportCost int64            `gorm:"column:transport_cost;not null;default:0" json:"transportCost"`
	LaborCost     int64            `gorm:"column:labor_cost;not null;default:0" json:"laborCost"`

	PaymentState `gorm:"embedded"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (VendorInvoice) TableName() string { return "vendor_invoices" }
