package models

import (
	"time"

	"github.com/google/uuid"
)

// Broker earns commission on customer invoices. InvoiceIDs is the
// broker-side linkage maintained alongside the invoices.
type Broker struct {
	ID                       uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	Name                     string    `gorm:"column:name;not null" json:"name"`
	Phone                    string    `gorm:"column:phone" json:"phone,omitempty"`
	DefaultCommissionPercent *float64  `gorm:"column:default_commission_percent" json:"defaultCommissionPercent,omitempty"`
	InvoiceIDs               []string  `gorm:"column:invoice_ids;serializer:json" json:"invoiceIds"`
	CreatedAt                time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt                time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Broker) TableName() string { return "brokers" }
