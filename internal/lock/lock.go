// Package lock serializes read-modify-write cycles on the persisted document.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when ctx ends before the lock is obtained.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out an exclusive section. The returned unlock func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// Local is an in-process Locker. Only one goroutine of this process can hold it.
type Local struct {
	ch chan struct{}
}

func NewLocal() *Local {
	return &Local{ch: make(chan struct{}, 1)}
}

func (l *Local) Lock(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}
