package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/google/uuid"
)

const (
	defaultLockTTL     = 30 * time.Second
	defaultRetryDelay  = 25 * time.Millisecond
	defaultWaitTimeout = 10 * time.Second
	releaseTimeout     = 2 * time.Second
)

// redisStore defines the operations used by Redis.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// RedisOptions tunes the Redis locker.
type RedisOptions struct {
	TTL           time.Duration
	RetryInterval time.Duration
	WaitTimeout   time.Duration
}

// Redis implements Locker with SETNX + TTL and an owner token, so a second
// process sharing the store observes the same exclusion.
type Redis struct {
	client redisStore
	opts   RedisOptions
}

// NewRedis constructs a Redis-backed locker.
func NewRedis(client redisStore, opts RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultLockTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryDelay
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	return &Redis{client: client, opts: opts}, nil
}

// Acquire polls SETNX until it owns the key or the wait timeout elapses.
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	redisKey := r.client.LockKey(key)
	owner := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.opts.WaitTimeout)
	defer cancel()

	for {
		ok, err := r.client.SetNX(waitCtx, redisKey, owner, r.opts.TTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("setnx %s", key))
		}
		if ok {
			return r.releaser(redisKey, owner), nil
		}

		timer := time.NewTimer(r.opts.RetryInterval)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, waitCtx.Err(), fmt.Sprintf("wait for lock %s", key))
		case <-timer.C:
		}
	}
}

// releaser frees the lock only if the owner value still matches. The check
// and the delete run as one script so an expired lock retaken by another
// owner is never removed.
func (r *Redis) releaser(redisKey, owner string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()

			_, _ = r.client.DelIfValue(ctx, redisKey, owner)
		})
	}
}
