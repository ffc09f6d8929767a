package inventory

import "github.com/angelmondragon/tradeledger/pkg/db/models"

// StockLine is the stock-bearing part of an invoice line.
type StockLine struct {
	ItemID      string
	Quantity    float64
	NetWeight   float64
	GrossWeight float64
}

// Levels is a quantity/net weight/gross weight triple.
type Levels struct {
	Quantity    float64 `json:"quantity"`
	NetWeight   float64 `json:"netWeight"`
	GrossWeight float64 `json:"grossWeight"`
}

func (l Levels) add(o Levels) Levels {
	return Levels{
		Quantity:    l.Quantity + o.Quantity,
		NetWeight:   l.NetWeight + o.NetWeight,
		GrossWeight: l.GrossWeight + o.GrossWeight,
	}
}

func (l Levels) negate() Levels {
	return Levels{Quantity: -l.Quantity, NetWeight: -l.NetWeight, GrossWeight: -l.GrossWeight}
}

func (l Levels) isZero() bool {
	return l.Quantity == 0 && l.NetWeight == 0 && l.GrossWeight == 0
}

// Delta is a signed change to one item's levels. Seed supplies name and
// prices when the item is created by a vendor receipt.
type Delta struct {
	ItemID string
	Levels
	Seed *models.InventoryItem
}

func lineLevels(l StockLine) Levels {
	return Levels{Quantity: l.Quantity, NetWeight: l.NetWeight, GrossWeight: l.GrossWeight}
}

// aggregate sums duplicate item ids, keeping first-seen order.
func aggregate(lines []StockLine) ([]string, map[string]Levels) {
	order := make([]string, 0, len(lines))
	sums := make(map[string]Levels, len(lines))
	for _, line := range lines {
		current, seen := sums[line.ItemID]
		if !seen {
			order = append(order, line.ItemID)
		}
		sums[line.ItemID] = current.add(lineLevels(line))
	}
	return order, sums
}

// ReconcileItemListChange computes the stock deltas of a customer invoice
// edit. Removed items return their old levels (+old); items present in both
// lists move by -(new-old). Items only in the new list are left to the
// caller, see AddedItems.
func ReconcileItemListChange(oldItems, newItems []StockLine) []Delta {
	oldOrder, oldSums := aggregate(oldItems)
	_, newSums := aggregate(newItems)

	deltas := make([]Delta, 0, len(oldOrder))
	for _, id := range oldOrder {
		before := oldSums[id]
		after, kept := newSums[id]
		if !kept {
			deltas = append(deltas, Delta{ItemID: id, Levels: before})
			continue
		}
		change := after.add(before.negate()).negate()
		if change.isZero() {
			continue
		}
		deltas = append(deltas, Delta{ItemID: id, Levels: change})
	}
	return deltas
}

// AddedItems returns the lines whose item id does not appear in oldItems.
func AddedItems(oldItems, newItems []StockLine) []StockLine {
	_, oldSums := aggregate(oldItems)
	var added []StockLine
	for _, line := range newItems {
		if _, ok := oldSums[line.ItemID]; !ok {
			added = append(added, line)
		}
	}
	return added
}

// Consume returns deltas that take every line out of stock.
func Consume(lines []StockLine) []Delta {
	return Invert(Receive(lines))
}

// Receive returns deltas that put every line into stock.
func Receive(lines []StockLine) []Delta {
	order, sums := aggregate(lines)
	deltas := make([]Delta, 0, len(order))
	for _, id := range order {
		deltas = append(deltas, Delta{ItemID: id, Levels: sums[id]})
	}
	return deltas
}

// RevertAll returns the deltas that undo a customer invoice's consumption.
func RevertAll(lines []StockLine) []Delta {
	return Receive(lines)
}

// Invert flips the sign of every delta; vendor invoices use the inverse of
// the customer convention.
func Invert(deltas []Delta) []Delta {
	out := make([]Delta, len(deltas))
	for i, d := range deltas {
		out[i] = Delta{ItemID: d.ItemID, Levels: d.Levels.negate(), Seed: d.Seed}
	}
	return out
}
