package vendorinvoices

import (
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/internal/inventory"
	"github.com/angelmondragon/tradeledger/internal/invoicing"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/google/uuid"
)

// CreateInput describes a purchase. Lines without an item id receive a
// newly allocated inventory item.
type CreateInput struct {
	InvoiceNo   string                  `json:"invoiceNo,omitempty"`
	VendorName  string                  `json:"vendorName" validate:"required"`
	InvoiceDate time.Time               `json:"invoiceDate"`
	Items       []models.VendorLineItem `json:"items" validate:"required,min=1,dive"`
	invoicing.Costs
	Payment *invoicing.PaymentInput `json:"payment,omitempty"`
}

// EditItemsInput replaces a purchase's lines.
type EditItemsInput struct {
	Items         []models.VendorLineItem `json:"items" validate:"required,min=1,dive"`
	OriginalItems []models.VendorLineItem `json:"originalItems,omitempty"`
	Costs         *invoicing.Costs        `json:"pricing,omitempty"`
}

// DeleteResult reports the stock removed by a delete. Clamped lists items
// that held less stock than the purchase added.
type DeleteResult struct {
	InvoiceID uuid.UUID           `json:"invoiceId"`
	Removed   []inventory.Applied `json:"removed"`
	Skipped   []string            `json:"skipped"`
	Clamped   []string            `json:"clamped"`
}

// ListInput pages through purchases.
type ListInput struct {
	pagination.Params
	Search string
	Status *enums.PaymentStatus
}

var sortFields = map[string]string{
	"invoiceNo":   "invoice_no",
	"invoiceDate": "invoice_date",
	"total":       "total_amount",
	"remaining":   "remaining_amount",
	"createdAt":   "created_at",
}

func stockLines(items []models.VendorLineItem) []inventory.StockLine {
	lines := make([]inventory.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.StockLine{
			ItemID:      item.ItemID,
			Quantity:    item.Quantity,
			NetWeight:   item.NetWeight,
			GrossWeight: item.GrossWeight,
		})
	}
	return lines
}

func pricedLines(items []models.VendorLineItem) []invoicing.Line {
	lines := make([]invoicing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, invoicing.Line{
			ItemID:        item.ItemID,
			Quantity:      item.Quantity,
			NetWeight:     item.NetWeight,
			GrossWeight:   item.GrossWeight,
			Price:         item.CostPrice,
			PackagingCost: item.PackagingCost,
		})
	}
	return lines
}

// withSeeds attaches a creation seed built from the purchase line to every
// delta, so a receipt for an unknown item creates it.
func withSeeds(deltas []inventory.Delta, items []models.VendorLineItem) []inventory.Delta {
	seeds := make(map[string]*models.InventoryItem, len(items))
	for _, item := range items {
		if _, ok := seeds[item.ItemID]; ok {
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = "Item " + item.ItemID
		}
		seeds[item.ItemID] = &models.InventoryItem{
			Name:         name,
			CostPrice:    item.CostPrice,
			SellingPrice: item.SellingPrice,
		}
	}
	for i := range deltas {
		if deltas[i].Quantity < 0 || deltas[i].NetWeight < 0 || deltas[i].GrossWeight < 0 {
			continue
		}
		deltas[i].Seed = seeds[deltas[i].ItemID]
	}
	return deltas
}

func sameItems(a, b []models.VendorLineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ItemID != y.ItemID || x.Quantity != y.Quantity || x.NetWeight != y.NetWeight ||
			x.GrossWeight != y.GrossWeight || x.CostPrice != y.CostPrice || x.PackagingCost != y.PackagingCost {
			return false
		}
	}
	return true
}
