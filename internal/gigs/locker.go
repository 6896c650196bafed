package gigs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
)

const (
	defaultLockWait = 2 * time.Second
	defaultLockTTL  = 30 * time.Second
	redisRetryMin   = 5 * time.Millisecond
	redisRetryMax   = 100 * time.Millisecond
	unlockTimeout   = 2 * time.Second
)

// Locker serializes mutating operations per gig id. The returned release
// func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, gigID uint64) (release func(), err error)
}

func lockTimeout(gigID uint64, wait time.Duration) error {
	return pkgerrors.New(pkgerrors.CodeConcurrencyConflict,
		fmt.Sprintf("gig %d is busy, gave up after %s", gigID, wait))
}

// MemoryLocker is an in-process Locker. Only valid when a single instance
// owns the gig store.
type MemoryLocker struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[uint64]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &MemoryLocker{wait: wait, slots: make(map[uint64]*lockSlot)}
}

func (l *MemoryLocker) Lock(ctx context.Context, gigID uint64) (func(), error) {
	slot := l.acquireSlot(gigID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(gigID)
		return nil, ctx.Err()
	case <-timer.C:
		l.releaseSlot(gigID)
		return nil, lockTimeout(gigID, l.wait)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.releaseSlot(gigID)
		})
	}, nil
}

func (l *MemoryLocker) acquireSlot(gigID uint64) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[gigID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[gigID] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryLocker) releaseSlot(gigID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[gigID]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, gigID)
	}
}

// redisLockStore is the subset of pkg/redis.Client used for gig locks.
type redisLockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	GigLockKey(gigID uint64) string
}

// RedisLocker shares gig locks across instances. Each holder writes a random
// token and only a matching token can release the key; the TTL frees locks
// of crashed holders.
type RedisLocker struct {
	store redisLockStore
	wait  time.Duration
	ttl   time.Duration
	onErr func(error)
}

func NewRedisLocker(store redisLockStore, wait, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for gig locker")
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, wait: wait, ttl: ttl}, nil
}

// OnReleaseError registers a hook for failed releases. The key still expires
// with its TTL.
func (l *RedisLocker) OnReleaseError(fn func(error)) {
	l.onErr = fn
}

func (l *RedisLocker) Lock(ctx context.Context, gigID uint64) (func(), error) {
	key := l.store.GigLockKey(gigID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	backoff := redisRetryMin

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire gig lock")
		}
		if ok {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, lockTimeout(gigID, l.wait)
		}
		sleep := min(backoff, remaining)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		backoff = min(backoff*2, redisRetryMax)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer cancel()
			if _, err := l.store.CompareAndDelete(releaseCtx, key, token); err != nil && l.onErr != nil {
				l.onErr(fmt.Errorf("release gig lock %s: %w", key, err))
			}
		})
	}, nil
}
