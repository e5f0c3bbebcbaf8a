package berthlib

import (
	"fmt"
	"sync/atomic"
)

// Semaphore is a lock-free counting semaphore. The counter holds the number
// of admissions still available, not the number currently held.
type Semaphore struct {
	cur uint32
	max uint32
}

func NewSemaphore(initial, max int) (*Semaphore, error) {
	if max < 1 {
		return nil, fmt.Errorf("max must be positive, got %d: %w", max, ErrInvalidArgument)
	}
	if initial < 0 || initial > max {
		return nil, fmt.Errorf("initial count %d must be within [0, %d]: %w", initial, max, ErrInvalidArgument)
	}
	return &Semaphore{cur: uint32(initial), max: uint32(max)}, nil
}

// TryAcquire claims one admission without blocking. It reports false if none
// remain, and retries only when another goroutine won the swap first.
func (s *Semaphore) TryAcquire() bool {
	for {
		cur := atomic.LoadUint32(&s.cur)
		if cur == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.cur, cur, cur-1) {
			return true
		}
	}
}

// Release returns one admission.
func (s *Semaphore) Release() error { return s.ReleaseN(1) }

// ReleaseN returns n admissions. Raising the count past the maximum means an
// admission was handed back twice; that fails with ErrCapacityExceeded and
// leaves the count untouched.
func (s *Semaphore) ReleaseN(n int) error {
	if n < 1 {
		return fmt.Errorf("release count %d must be positive: %w", n, ErrInvalidArgument)
	}
	for {
		cur := atomic.LoadUint32(&s.cur)
		next := cur + uint32(n)
		if next > s.max || next < cur {
			return fmt.Errorf("releasing %d admission(s) at count %d/%d: %w", n, cur, s.max, ErrCapacityExceeded)
		}
		if atomic.CompareAndSwapUint32(&s.cur, cur, next) {
			return nil
		}
	}
}

// Count is a snapshot that races with concurrent TryAcquire and Release calls.
func (s *Semaphore) Count() int { return int(atomic.LoadUint32(&s.cur)) }

func (s *Semaphore) Max() int { return int(s.max) }
