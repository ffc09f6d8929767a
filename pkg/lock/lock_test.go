package lock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
		maxSeen int
		inside  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)
			counter++

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.size(), "entries should be dropped after release")
}

func TestLocalRespectsContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	release()
	release()
	assert.Equal(t, 0, l.size())
}

func TestAcquireAllDedupesAndReleases(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := AcquireAll(ctx, l, []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, l.size())
	release()
	assert.Equal(t, 0, l.size())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "inventory_item:1234", Key(enums.EntityInventoryItem, "1234"))
}

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	fail    error
	deletes int
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeRedis) DelIfValue(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeRedis) LockKey(name string) string { return "tl:lock:" + name }

func TestRedisAcquireReleaseAndTimeout(t *testing.T) {
	store := &fakeRedis{data: map[string]string{}}
	r, err := NewRedis(store, RedisOptions{RetryInterval: time.Millisecond, WaitTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "customer_invoice:1")
	require.NoError(t, err)
	assert.Contains(t, store.data, "tl:lock:customer_invoice:1")

	_, err = r.Acquire(ctx, "customer_invoice:1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	release()
	assert.NotContains(t, store.data, "tl:lock:customer_invoice:1")

	again, err := r.Acquire(ctx, "customer_invoice:1")
	require.NoError(t, err)
	again()
}

func TestRedisReleaseKeepsForeignOwner(t *testing.T) {
	store := &fakeRedis{data: map[string]string{}}
	r, err := NewRedis(store, RedisOptions{})
	require.NoError(t, err)

	release, err := r.Acquire(context.Background(), "k")
	require.NoError(t, err)
	store.data["tl:lock:k"] = "someone-else"
	release()
	release()
	assert.Equal(t, "someone-else", store.data["tl:lock:k"])
	assert.Equal(t, 1, store.deletes, "release should issue a single conditional delete")
}

func TestRedisStoreFailure(t *testing.T) {
	store := &fakeRedis{data: map[string]string{}, fail: fmt.Errorf("down")}
	r, err := NewRedis(store, RedisOptions{})
	require.NoError(t, err)

	_, err = r.Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = NewRedis(nil, RedisOptions{})
	assert.Error(t, err)
}
