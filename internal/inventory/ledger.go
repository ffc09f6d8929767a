package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/metrics"
	"gorm.io/gorm"
)

// stockEpsilon absorbs float drift when a delta empties an item exactly.
const stockEpsilon = 1e-9

// Transactor runs fn inside a store transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BatchOptions selects how missing items and shortfalls are handled.
type BatchOptions struct {
	// SkipMissing drops deltas for items that no longer exist and reports them.
	SkipMissing bool
	// ClampAtZero floors resulting levels at zero instead of failing.
	ClampAtZero bool
	// CreateMissing creates absent items from the delta seed.
	CreateMissing bool
}

// Applied describes one item change written by a batch.
type Applied struct {
	ItemID  string `json:"itemId"`
	Delta   Levels `json:"delta"`
	Before  Levels `json:"before"`
	After   Levels `json:"after"`
	Created bool   `json:"created,omitempty"`
	Clamped bool   `json:"clamped,omitempty"`
}

// BatchResult lists what a batch changed and which items it skipped.
type BatchResult struct {
	Applied []Applied `json:"applied"`
	Skipped []string  `json:"skipped,omitempty"`
}

// Shortfall is one field of one item that a batch would drive negative.
type Shortfall struct {
	ItemID    string  `json:"itemId"`
	Field     string  `json:"field"`
	Available float64 `json:"available"`
	Requested float64 `json:"requested"`
}

// Ledger applies stock deltas to inventory items. A batch either writes
// every delta or none of them.
type Ledger struct {
	db      Transactor
	locks   lock.Locker
	logg    *logger.Logger
	metrics *metrics.ReconcileMetrics
}

// NewLedger wires the inventory ledger.
func NewLedger(db Transactor, locks lock.Locker, logg *logger.Logger, m *metrics.ReconcileMetrics) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("transactor required")
	}
	if locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Ledger{db: db, locks: locks, logg: logg, metrics: m}, nil
}

// ApplyDelta applies a single strict delta.
func (l *Ledger) ApplyDelta(ctx context.Context, delta Delta) (*Applied, error) {
	res, err := l.ApplyBatch(ctx, []Delta{delta}, BatchOptions{})
	if err != nil {
		return nil, err
	}
	if len(res.Applied) == 0 {
		return &Applied{ItemID: delta.ItemID}, nil
	}
	return &res.Applied[0], nil
}

type plannedChange struct {
	delta  Delta
	before Levels
	after  Levels
	create bool
	clamp  bool
}

// ApplyBatch merges deltas per item, locks every item, verifies the whole
// batch, then writes it in one transaction.
func (l *Ledger) ApplyBatch(ctx context.Context, deltas []Delta, opts BatchOptions) (_ *BatchResult, err error) {
	started := time.Now()
	defer func() { l.metrics.Observe("inventory_apply_batch", started, err) }()

	merged, err := mergeDeltas(deltas)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Applied: []Applied{}}
	if len(merged) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(merged))
	for _, d := range merged {
		keys = append(keys, lock.Key(enums.EntityInventoryItem, d.ItemID))
	}
	release, err := lock.AcquireAll(ctx, l.locks, keys)
	if err != nil {
		return nil, err
	}
	defer release()

	err = l.db.WithTx(ctx, func(tx *gorm.DB) error {
		items := docstore.New[models.InventoryItem](tx)
		financials := docstore.New[models.InventoryFinancial](tx)

		plan, skipped, err := l.plan(ctx, items, merged, opts)
		if err != nil {
			return err
		}
		result.Skipped = skipped

		for _, change := range plan {
			if err := write(ctx, items, financials, change); err != nil {
				return err
			}
			result.Applied = append(result.Applied, Applied{
				ItemID:  change.delta.ItemID,
				Delta:   change.delta.Levels,
				Before:  change.before,
				After:   change.after,
				Created: change.create,
				Clamped: change.clamp,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Skipped) > 0 {
		l.metrics.AddSkippedReversals(len(result.Skipped))
		l.logg.Warn(l.logg.WithField(ctx, "skipped_items", result.Skipped), "inventory items missing; stock change skipped")
	}
	return result, nil
}

func (l *Ledger) plan(ctx context.Context, items docstore.Store[models.InventoryItem], deltas []Delta, opts BatchOptions) ([]plannedChange, []string, error) {
	var (
		plan       []plannedChange
		skipped    []string
		shortfalls []Shortfall
	)
	for _, d := range deltas {
		item, err := items.FindByID(ctx, d.ItemID)
		change := plannedChange{delta: d}
		switch {
		case err == nil:
			change.before = Levels{Quantity: item.Quantity, NetWeight: item.NetWeight, GrossWeight: item.GrossWeight}
		case docstore.IsNotFound(err) && opts.CreateMissing && d.Seed != nil:
			change.create = true
		case docstore.IsNotFound(err) && opts.SkipMissing:
			skipped = append(skipped, d.ItemID)
			continue
		case docstore.IsNotFound(err):
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory item %s not found", d.ItemID)).
				WithDetails(map[string]any{"item_id": d.ItemID})
		default:
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load inventory item %s", d.ItemID))
		}

		after, clamped, short := settleLevels(d.ItemID, change.before, d.Levels, opts.ClampAtZero)
		change.after = after
		change.clamp = clamped
		shortfalls = append(shortfalls, short...)
		plan = append(plan, change)
	}

	if len(shortfalls) > 0 {
		return nil, nil, insufficientStock(shortfalls)
	}
	return plan, skipped, nil
}

func write(ctx context.Context, items docstore.Store[models.InventoryItem], financials docstore.Store[models.InventoryFinancial], change plannedChange) error {
	id := change.delta.ItemID
	if change.create {
		seed := *change.delta.Seed
		seed.ID = id
		seed.Quantity = change.after.Quantity
		seed.NetWeight = change.after.NetWeight
		seed.GrossWeight = change.after.GrossWeight
		if _, err := items.Create(ctx, &seed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("create inventory item %s", id))
		}
		sidecar := &models.InventoryFinancial{ItemID: id, CostPrice: seed.CostPrice, SellingPrice: seed.SellingPrice}
		if _, err := financials.Create(ctx, sidecar); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("create financial record %s", id))
		}
		return nil
	}

	ok, err := items.Update(ctx, id, map[string]any{
		"quantity":     change.after.Quantity,
		"net_weight":   change.after.NetWeight,
		"gross_weight": change.after.GrossWeight,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("update inventory item %s", id))
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory item %s not found", id))
	}
	return nil
}

// settleLevels adds delta to before and checks every field for negativity.
func settleLevels(itemID string, before, delta Levels, clampAtZero bool) (Levels, bool, []Shortfall) {
	after := before.add(delta)
	var (
		clamped bool
		short   []Shortfall
	)
	fields := []struct {
		name   string
		before float64
		delta  float64
		after  *float64
	}{
		{"quantity", before.Quantity, delta.Quantity, &after.Quantity},
		{"netWeight", before.NetWeight, delta.NetWeight, &after.NetWeight},
		{"grossWeight", before.GrossWeight, delta.GrossWeight, &after.GrossWeight},
	}
	for _, f := range fields {
		if *f.after >= 0 {
			continue
		}
		if *f.after > -stockEpsilon || clampAtZero {
			clamped = clamped || *f.after <= -stockEpsilon
			*f.after = 0
			continue
		}
		short = append(short, Shortfall{
			ItemID:    itemID,
			Field:     f.name,
			Available: f.before,
			Requested: math.Abs(f.delta),
		})
	}
	return after, clamped, short
}

func insufficientStock(shortfalls []Shortfall) error {
	parts := make([]string, 0, len(shortfalls))
	for _, s := range shortfalls {
		parts = append(parts, fmt.Sprintf("item %s %s: available %g, requested %g", s.ItemID, s.Field, s.Available, s.Requested))
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock: "+strings.Join(parts, "; ")).
		WithDetails(map[string]any{"shortfalls": shortfalls})
}

func mergeDeltas(deltas []Delta) ([]Delta, error) {
	index := make(map[string]int, len(deltas))
	var merged []Delta
	for _, d := range deltas {
		id := strings.TrimSpace(d.ItemID)
		if id == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item id is required")
		}
		if invalidFloat(d.Quantity) || invalidFloat(d.NetWeight) || invalidFloat(d.GrossWeight) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stock delta for item %s", id))
		}
		if i, ok := index[id]; ok {
			merged[i].Levels = merged[i].Levels.add(d.Levels)
			if merged[i].Seed == nil {
				merged[i].Seed = d.Seed
			}
			continue
		}
		index[id] = len(merged)
		merged = append(merged, Delta{ItemID: id, Levels: d.Levels, Seed: d.Seed})
	}

	out := merged[:0]
	for _, d := range merged {
		if d.Levels.isZero() && d.Seed == nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func invalidFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
