// Package semaphore limits how many peers a listening host handles at once.
// Peers beyond the limit wait for a free slot until a timeout.
package semaphore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// PeerSlots hands out a fixed number of slots. A nil *PeerSlots is
// unlimited.
type PeerSlots struct {
	w       *semaphore.Weighted
	size    int
	inUse   atomic.Int64
	timeout time.Duration
}

// New creates n slots. Acquire waits at most timeout for one of them, a
// timeout of zero waits until the context is done.
func New(n int, timeout time.Duration) *PeerSlots {
	return &PeerSlots{
		w:       semaphore.NewWeighted(int64(n)),
		size:    n,
		timeout: timeout,
	}
}

// Acquire takes a slot. It fails if none frees up within the timeout or
// the context is cancelled first.
func (s *PeerSlots) Acquire(ctx context.Context) error {
	if s == nil {
		return nil
	}

	waitCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.w.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("all %d peer slots busy after %v", s.size, s.timeout)
	}
	s.inUse.Add(1)
	return nil
}

// TryAcquire takes a slot only if one is free right now.
func (s *PeerSlots) TryAcquire() bool {
	if s == nil {
		return true
	}
	if !s.w.TryAcquire(1) {
		return false
	}
	s.inUse.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (s *PeerSlots) Release() {
	if s == nil {
		return
	}
	s.inUse.Add(-1)
	s.w.Release(1)
}

// InUse reports how many slots are taken.
func (s *PeerSlots) InUse() int {
	if s == nil {
		return 0
	}
	return int(s.inUse.Load())
}

// Size reports the number of slots, zero when unlimited.
func (s *PeerSlots) Size() int {
	if s == nil {
		return 0
	}
	return s.size
}
