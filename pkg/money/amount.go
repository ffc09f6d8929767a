// Package money holds the pure arithmetic every reconciler uses to derive
// rounded amounts, remaining balances and payment statuses. Amounts are
// integer currency units.
package money

import (
	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/shopspring/decimal"
)

// RoundMoney rounds half away from zero to a whole currency unit.
func RoundMoney(x float64) int64 {
	return round(decimal.NewFromFloat(x))
}

// round is the single rounding rule behind every derived amount.
func round(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Remaining is the unpaid part of a bill, never negative.
func Remaining(billed, paid int64) int64 {
	if paid >= billed {
		return 0
	}
	return billed - paid
}

// Status3 derives the three-state payment status. A bill of zero (or less)
// owes nothing and is reported as paid.
func Status3(billed, paid, remaining int64) enums.PaymentStatus {
	switch {
	case billed <= 0:
		return enums.PaymentStatusPaid
	case remaining <= 0:
		return enums.PaymentStatusPaid
	case paid <= 0:
		return enums.PaymentStatusUnpaid
	default:
		return enums.PaymentStatusPartiallyPaid
	}
}

// Status2 derives the two-state commission sheet status.
func Status2(billed, paid int64) enums.SheetStatus {
	if paid >= billed {
		return enums.SheetStatusPaid
	}
	return enums.SheetStatusNotPaid
}

// Settlement is the derived view of a bill and the amount paid against it.
type Settlement struct {
	Remaining int64
	Status    enums.PaymentStatus
}

// Settle derives remaining and status together.
func Settle(billed, paid int64) Settlement {
	remaining := Remaining(billed, paid)
	return Settlement{Remaining: remaining, Status: Status3(billed, paid, remaining)}
}

// LineTotal is price per unit of net weight plus packaging per unit of
// quantity, rounded once.
func LineTotal(price int64, netWeight float64, packagingCost int64, quantity float64) int64 {
	goods := decimal.NewFromInt(price).Mul(decimal.NewFromFloat(netWeight))
	packaging := decimal.NewFromInt(packagingCost).Mul(decimal.NewFromFloat(quantity))
	return round(goods.Add(packaging))
}

// Percent returns round(amount x percent / 100).
func Percent(amount int64, percent float64) int64 {
	return round(decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)))
}
