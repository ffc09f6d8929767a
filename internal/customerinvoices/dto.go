package customerinvoices

import (
	"time"

	"github.com/angelmondragon/tradeledger/internal/inventory"
	"github.com/angelmondragon/tradeledger/internal/invoicing"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/google/uuid"
)

// CreateInput describes a sale. InvoiceNo is generated when empty.
type CreateInput struct {
	InvoiceNo    string                    `json:"invoiceNo,omitempty"`
	CustomerName string                    `json:"customerName" validate:"required"`
	InvoiceDate  time.Time                 `json:"invoiceDate"`
	Items        []models.CustomerLineItem `json:"items" validate:"required,min=1,dive"`
	invoicing.Costs
	Payment *invoicing.PaymentInput `json:"payment,omitempty"`
	Broker  *BrokerTerms            `json:"broker,omitempty"`
}

// BrokerTerms attaches a broker to a sale. Commission is either a percent
// of the invoice total or a fixed amount; with neither, the broker's
// default percent applies.
type BrokerTerms struct {
	BrokerID          uuid.UUID `json:"brokerId" validate:"required"`
	CommissionPercent *float64  `json:"commissionPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	CommissionAmount  *int64    `json:"commissionAmount,omitempty" validate:"omitempty,gte=0"`
	PaidAmount        int64     `json:"brokerPaidAmount" validate:"gte=0"`
}

// EditItemsInput replaces an invoice's lines. OriginalItems, when given,
// must match the stored lines; Costs nil keeps the stored charges.
type EditItemsInput struct {
	Items             []models.CustomerLineItem `json:"items" validate:"required,min=1,dive"`
	OriginalItems     []models.CustomerLineItem `json:"originalItems,omitempty"`
	Costs             *invoicing.Costs          `json:"pricing,omitempty"`
	CommissionPercent *float64                  `json:"commissionPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// BrokerPaymentInput is a cumulative broker paid amount. PaymentDate is
// kept unless the commission becomes fully paid.
type BrokerPaymentInput struct {
	PaidAmount  *int64     `json:"brokerPaidAmount" validate:"required,gte=0"`
	PaymentDate *time.Time `json:"brokerPaymentDate,omitempty"`
}

// DeleteResult reports the stock returned by a delete and the items whose
// reversal was skipped because they no longer exist.
type DeleteResult struct {
	InvoiceID uuid.UUID           `json:"invoiceId"`
	Reverted  []inventory.Applied `json:"reverted"`
	Skipped   []string            `json:"skipped"`
}

// ListInput pages through invoices.
type ListInput struct {
	pagination.Params
	Search   string
	Status   *enums.PaymentStatus
	BrokerID *uuid.UUID
}

var sortFields = map[string]string{
	"invoiceNo":   "invoice_no",
	"invoiceDate": "invoice_date",
	"total":       "total_amount",
	"remaining":   "remaining_amount",
	"createdAt":   "created_at",
}

func stockLines(items []models.CustomerLineItem) []inventory.StockLine {
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

func pricedLines(items []models.CustomerLineItem) []invoicing.Line {
	lines := make([]invoicing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, invoicing.Line{
			ItemID:        item.ItemID,
			Quantity:      item.Quantity,
			NetWeight:     item.NetWeight,
			GrossWeight:   item.GrossWeight,
			Price:         item.SellingPrice,
			PackagingCost: item.PackagingCost,
		})
	}
	return lines
}

func sameItems(a, b []models.CustomerLineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ItemID != y.ItemID || x.Quantity != y.Quantity || x.NetWeight != y.NetWeight ||
			x.GrossWeight != y.GrossWeight || x.SellingPrice != y.SellingPrice || x.PackagingCost != y.PackagingCost {
			return false
		}
	}
	return true
}
