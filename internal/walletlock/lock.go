// Package walletlock serializes transaction building and submission per
// wallet so two submissions never spend the same snapshot of UTXOs.
package walletlock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("wallet lock not acquired")

// Locker hands out exclusive per-wallet locks.
type Locker interface {
	// Lock blocks until the wallet is free or ctx ends. The returned unlock
	// func must be called exactly once.
	Lock(ctx context.Context, wallet string) (unlock func(), err error)
}

// Local locks wallets within one process.
type Local struct {
	mu      sync.Mutex
	wallets map[string]*semaphore.Weighted
}

var _ Locker = (*Local)(nil)

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{wallets: make(map[string]*semaphore.Weighted)}
}

// Lock acquires the wallet's lock.
func (l *Local) Lock(ctx context.Context, wallet string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.wallets[wallet]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.wallets[wallet] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, wallet, err)
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
