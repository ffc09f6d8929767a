package inventory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
)

const (
	minItemID        = 1000
	maxItemID        = 9999
	randomIDAttempts = 32
	idReservationTTL = time.Minute
)

// idAllocator hands out unused 4-digit item ids. An id stays reserved for a
// minute after allocation so two receipts in flight cannot pick the same one
// before either item is written.
type idAllocator struct {
	mu       sync.Mutex
	reserved map[string]time.Time
	intn     func(n int) int
	now      func() time.Time
}

func newIDAllocator() *idAllocator {
	return &idAllocator{
		reserved: make(map[string]time.Time),
		intn:     rand.IntN,
		now:      time.Now,
	}
}

func (a *idAllocator) allocate(ctx context.Context, items docstore.Store[models.InventoryItem]) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for id, expires := range a.reserved {
		if now.After(expires) {
			delete(a.reserved, id)
		}
	}

	for range randomIDAttempts {
		candidate := formatItemID(minItemID + a.intn(maxItemID-minItemID+1))
		if _, held := a.reserved[candidate]; held {
			continue
		}
		free, err := isFree(ctx, items, candidate)
		if err != nil {
			return "", err
		}
		if free {
			a.reserved[candidate] = now.Add(idReservationTTL)
			return candidate, nil
		}
	}

	// dense id space: fall back to the lowest free id
	existing, err := items.FindAll(ctx, docstore.Filter{}, docstore.FindOptions{})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan inventory ids")
	}
	taken := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		taken[item.ID] = struct{}{}
	}
	for n := minItemID; n <= maxItemID; n++ {
		candidate := formatItemID(n)
		if _, ok := taken[candidate]; ok {
			continue
		}
		if _, held := a.reserved[candidate]; held {
			continue
		}
		a.reserved[candidate] = now.Add(idReservationTTL)
		return candidate, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "no free inventory item ids")
}

func (a *idAllocator) release(id string) {
	a.mu.Lock()
	delete(a.reserved, id)
	a.mu.Unlock()
}

func isFree(ctx context.Context, items docstore.Store[models.InventoryItem], id string) (bool, error) {
	_, err := items.FindByID(ctx, id)
	switch {
	case err == nil:
		return false, nil
	case docstore.IsNotFound(err):
		return true, nil
	default:
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check inventory id")
	}
}

func formatItemID(n int) string {
	return fmt.Sprintf("%04d", n)
}

// ValidItemID reports whether id is a 4-digit numeric item id.
func ValidItemID(id string) bool {
	if len(id) != 4 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
