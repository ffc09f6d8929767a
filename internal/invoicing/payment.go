// Package invoicing holds the payment-state and totals rules shared by the
// customer and vendor invoice reconcilers.
package invoicing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/money"
)

// PaymentInput is the new cumulative paid amount plus an optional history
// entry for the money that moved. An entry without an amount takes the
// increase in paid amount.
type PaymentInput struct {
	PaidAmount *int64               `json:"paidAmount" validate:"required,gte=0"`
	Entry      *models.PaymentEntry `json:"paymentEntry,omitempty"`
	DueDate    *time.Time           `json:"dueDate,omitempty"`
}

// Validate rejects a missing or negative paid amount and unknown methods.
func (p PaymentInput) Validate() error {
	if p.PaidAmount == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "paid amount is required")
	}
	if *p.PaidAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "paid amount cannot be negative")
	}
	if p.Entry == nil {
		return nil
	}
	if p.Entry.Amount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment entry amount cannot be negative")
	}
	if p.Entry.Method != "" && !p.Entry.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", p.Entry.Method))
	}
	return nil
}

// Derive sets the bill total and re-derives remaining and status with the
// paid amount held fixed. PaidDate follows transitions into and out of paid.
func Derive(state *models.PaymentState, total int64, now time.Time) {
	wasPaid := state.Status == enums.PaymentStatusPaid
	state.TotalAmount = total
	settled := money.Settle(state.TotalAmount, state.PaidAmount)
	state.RemainingAmount = settled.Remaining
	state.Status = settled.Status

	switch {
	case state.Status == enums.PaymentStatusPaid && (!wasPaid || state.PaidDate == nil):
		paidOn := now
		state.PaidDate = &paidOn
	case state.Status != enums.PaymentStatusPaid:
		state.PaidDate = nil
	}
}

// ApplyPayment records a new cumulative paid amount on state and appends
// the history entry. Earlier entries are never touched, and state is left
// as it was when the input is rejected.
func ApplyPayment(state *models.PaymentState, input PaymentInput, now time.Time) error {
	if err := input.Validate(); err != nil {
		return err
	}
	paid := *input.PaidAmount

	var entry *models.PaymentEntry
	if input.Entry != nil {
		e, err := historyEntry(*input.Entry, paid-state.PaidAmount, now)
		if err != nil {
			return err
		}
		entry = &e
	}

	state.PaidAmount = paid
	if input.DueDate != nil {
		due := *input.DueDate
		state.DueDate = &due
	}
	if entry != nil {
		history := make([]models.PaymentEntry, 0, len(state.PaymentHistory)+1)
		history = append(history, state.PaymentHistory...)
		state.PaymentHistory = append(history, *entry)
	}
	Derive(state, state.TotalAmount, now)
	return nil
}

// historyEntry checks entry against the increase in paid amount it explains
// and fills its defaults.
func historyEntry(entry models.PaymentEntry, increase int64, now time.Time) (models.PaymentEntry, error) {
	switch {
	case increase <= 0:
		return models.PaymentEntry{}, pkgerrors.New(pkgerrors.CodeValidation, "a payment entry requires the paid amount to increase").
			WithDetails(map[string]any{"increase": increase})
	case entry.Amount == 0:
		entry.Amount = increase
	case entry.Amount != increase:
		return models.PaymentEntry{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("payment entry amount %d does not match the paid amount increase %d", entry.Amount, increase)).
			WithDetails(map[string]any{"entryAmount": entry.Amount, "increase": increase})
	}
	if entry.Method == "" {
		entry.Method = enums.PaymentMethodCash
	}
	if entry.Date.IsZero() {
		entry.Date = now
	}
	entry.Note = strings.TrimSpace(entry.Note)
	return entry, nil
}

// NewState builds the payment state of a freshly created invoice. Without a
// payment the invoice starts unpaid.
func NewState(total int64, payment *PaymentInput, now time.Time) (models.PaymentState, error) {
	state := models.PaymentState{TotalAmount: total, PaymentHistory: []models.PaymentEntry{}}
	if payment == nil {
		Derive(&state, total, now)
		return state, nil
	}
	if err := ApplyPayment(&state, *payment, now); err != nil {
		return models.PaymentState{}, err
	}
	return state, nil
}

// Costs are the invoice-level charges added on top of the line totals.
type Costs struct {
	TransportCost int64 `json:"transportCost" validate:"gte=0"`
	LaborCost     int64 `json:"laborCost" validate:"gte=0"`
}

// Validate rejects negative charges.
func (c Costs) Validate() error {
	if c.TransportCost < 0 || c.LaborCost < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "transport and labor cost cannot be negative")
	}
	return nil
}

// Total is the billed amount of an invoice.
func (c Costs) Total(itemsTotal int64) int64 {
	return itemsTotal + c.TransportCost + c.LaborCost
}

// Line is the priced, stock-bearing part of an invoice line.
type Line struct {
	ItemID        string
	Quantity      float64
	NetWeight     float64
	GrossWeight   float64
	Price         int64
	PackagingCost int64
}

// ValidateLines checks every line and returns the rounded items total.
func ValidateLines(lines []Line, requireID bool) (int64, error) {
	if len(lines) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	var total int64
	for i, l := range lines {
		if requireID && strings.TrimSpace(l.ItemID) == "" {
			return 0, lineError(i, "item id is required")
		}
		for _, v := range []float64{l.Quantity, l.NetWeight, l.GrossWeight} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, lineError(i, "quantity and weights must be non-negative numbers")
			}
		}
		if l.Quantity == 0 && l.NetWeight == 0 {
			return 0, lineError(i, "quantity or net weight is required")
		}
		if l.Price < 0 || l.PackagingCost < 0 {
			return 0, lineError(i, "prices cannot be negative")
		}
		total += money.LineTotal(l.Price, l.NetWeight, l.PackagingCost, l.Quantity)
	}
	return total, nil
}

func lineError(index int, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: %s", index+1, msg)).
		WithDetails(map[string]any{"line": index + 1})
}
