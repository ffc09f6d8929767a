// Package lock provides per-entity mutual exclusion for read-modify-write
// sequences. Keys are "<entity type>:<id>".
package lock

import (
	"context"
	"sort"

	"github.com/angelmondragon/tradeledger/pkg/enums"
)

// Release frees a held lock. Calling it more than once is a no-op.
type Release func()

// Locker hands out exclusive holds on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key builds the lock key for an entity.
func Key(kind enums.EntityType, id string) string {
	return kind.String() + ":" + id
}

// AcquireAll takes every key in sorted order so concurrent batches over
// overlapping entities cannot deadlock. Duplicate keys are held once.
func AcquireAll(ctx context.Context, locker Locker, keys []string) (Release, error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	held := make([]Release, 0, len(unique))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, key := range unique {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll, nil
}
