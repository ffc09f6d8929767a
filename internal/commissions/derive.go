package commissions

import (
	"fmt"
	"math"
	"strings"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/money"
)

// priceLines recomputes every line total and returns the sheet total.
func priceLines(items []models.CommissionLineItem) ([]models.CommissionLineItem, int64) {
	out := make([]models.CommissionLineItem, len(items))
	var total int64
	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		item.Total = money.LineTotal(item.Price, item.NetWeight, item.PackagingCost, item.Quantity)
		total += item.Total
		out[i] = item
	}
	return out, total
}

// settle re-derives pending and status from the commission and the amount
// received so far.
func settle(sheet *models.CommissionSheet) {
	sheet.PendingAmount = money.Remaining(sheet.CommissionPrice, sheet.ReceivedAmount)
	sheet.Status = money.Status2(sheet.CommissionPrice, sheet.ReceivedAmount)
}

// derive fills every computed field of sheet from its items, percent and
// received amount. Create and preview both go through here.
func derive(sheet *models.CommissionSheet) {
	sheet.Items, sheet.TotalPrice = priceLines(sheet.Items)
	sheet.CommissionPrice = money.Percent(sheet.TotalPrice, sheet.TradersCommissionPercent)
	settle(sheet)
}

func validateItems(items []models.CommissionLineItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return itemError(i, "name is required")
		}
		for _, v := range []float64{item.Quantity, item.NetWeight} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return itemError(i, "quantity and net weight must be non-negative numbers")
			}
		}
		if item.Price < 0 || item.PackagingCost < 0 {
			return itemError(i, "price and packaging cost cannot be negative")
		}
	}
	return nil
}

func validatePercent(p float64) error {
	if p < 0 || p > 100 || math.IsNaN(p) {
		return pkgerrors.New(pkgerrors.CodeValidation, "traders commission percent must be between 0 and 100")
	}
	return nil
}

func itemError(index int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: %s", index+1, msg)).
		WithDetails(map[string]any{"index": index})
}
