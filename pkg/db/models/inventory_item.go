package models

import "time"

// ColdStorage records where a lot is held when it sits in a rented chamber.
type ColdStorage struct {
	Facility    string     `json:"facility,omitempty"`
	Chamber     string     `json:"chamber,omitempty"`
	Lot         string     `json:"lot,omitempty"`
	EntryDate   *time.Time `json:"entryDate,omitempty"`
	RentPerUnit int64      `json:"rentPerUnit,omitempty"`
}

// InventoryItem is the stock position of one commodity lot. Quantity and
// weights change only through the inventory ledger once the item exists.
type InventoryItem struct {
	ID           string       `gorm:"column:id;primaryKey" json:"id"`
	Name         string       `gorm:"column:name;not null" json:"name"`
	Quantity     float64      `gorm:"column:quantity;not null;default:0" json:"quantity"`
	NetWeight    float64      `gorm:"column:net_weight;not null;default:0" json:"netWeight"`
	GrossWeight  float64      `gorm:"column:gross_weight;not null;default:0" json:"grossWeight"`
	CostPrice    int64        `gorm:"column:cost_price;not null;default:0" json:"costPrice"`
	SellingPrice int64        `gorm:"column:selling_price;not null;default:0" json:"sellingPrice"`
	ColdStorage  *ColdStorage `gorm:"column:cold_storage;serializer:json" json:"coldStorage,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// InventoryFinancial is the pricing sidecar of an inventory item. It is
// created and deleted together with the item.
type InventoryFinancial struct {
	ItemID        string    `gorm:"column:id;primaryKey" json:"itemId"`
	CostPrice     int64     `gorm:"column:cost_price;not null;default:0" json:"costPrice"`
	SellingPrice  int64     `gorm:"column:selling_price;not null;default:0" json:"sellingPrice"`
	PackagingCost int64     `gorm:"column:packaging_cost;not null;default:0" json:"packagingCost"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (InventoryFinancial) TableName() string { return "inventory_financials" }
