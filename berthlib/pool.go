package berthlib

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
)

// DefaultFlushTimeout bounds Flush when Pool.FlushTimeout is left zero.
var DefaultFlushTimeout = 30 * time.Second

// Factory supplies the pool with the resource lifecycle. New runs once per
// admission on the Take path; Recycle runs on every Release, strictly before
// the resource becomes visible to other takers.
type Factory interface {
	New() (interface{}, error)
	Recycle(v interface{})
}

// FactoryFunc adapts a bare constructor into a Factory with a no-op Recycle.
type FactoryFunc func() (interface{}, error)

func (fn FactoryFunc) New() (interface{}, error) { return fn() }
func (fn FactoryFunc) Recycle(v interface{})     {}

// Destroyer disposes a resource leaving the pool for good.
type Destroyer func(v interface{})

// DefaultDestroyer closes the resource if it knows how to close itself.
var DefaultDestroyer Destroyer = func(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// Pool hands out up to Cap leases over resources built by its factory and
// recycles returned ones through a free list instead of reconstructing.
type Pool struct {
	// FlushTimeout bounds how long Flush waits for borrowed leases to come
	// back. Zero means DefaultFlushTimeout. Set it before the first Flush.
	FlushTimeout time.Duration

	name    string
	sem     *Semaphore
	free    freeList
	factory Factory
	m       *PoolMetrics
}

// NewPool sets up a pool that constructs nothing up front; every admission
// up to max stays available.
func NewPool(name string, max int, factory Factory) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory must be provided: %w", ErrInvalidArgument)
	}
	sem, err := NewSemaphore(max, max)
	if err != nil {
		return nil, err
	}
	return &Pool{name: name, sem: sem, factory: factory, m: newPoolMetrics()}, nil
}

// NewPoolWithInitial additionally constructs initial resources eagerly and
// parks them in the free list. A constructor failure destroys whatever was
// already built and fails the whole initialization; the caller never sees a
// half-filled pool.
func NewPoolWithInitial(name string, initial, max int, factory Factory) (*Pool, error) {
	p, err := NewPool(name, max, factory)
	if err != nil {
		return nil, err
	}
	if initial < 0 || initial > max {
		return nil, fmt.Errorf("initial count %d must be within [0, %d]: %w", initial, max, ErrInvalidArgument)
	}
	for i := 0; i < initial; i++ {
		if !p.sem.TryAcquire() {
			// Nothing else can see the pool yet.
			panic("berthlib: admission refused while filling a fresh pool")
		}
		v, err := factory.New()
		if err != nil {
			_ = p.sem.Release()
			_ = p.Flush()
			return nil, fmt.Errorf("eager construction %d of %d: %w", i+1, initial, err)
		}
		atomic.AddUint32(&p.m.na, uint32(1))
		p.free.push(&Lease{value: v, pool: p, inPool: 1})
	}
	return p, nil
}

// Take borrows a lease. It pops a free one when it can, constructs a fresh
// resource while the pool is under capacity, and otherwise polls the free
// list until some other borrower releases. The poll loop has no timeout and
// no cancellation; a caller that needs bounded waiting must bound it outside.
func (p *Pool) Take() (*Lease, error) {
	if l := p.takeFree(); l != nil {
		return l, nil
	}

	if p.sem.TryAcquire() {
		v, err := p.factory.New()
		if err != nil {
			if rerr := p.sem.Release(); rerr != nil {
				return nil, rerr
			}
			return nil, fmt.Errorf("construct pooled resource: %w", err)
		}
		atomic.AddUint32(&p.m.na, uint32(1))
		return &Lease{value: v, pool: p}, nil
	}

	b := newPollSleeper()
	for {
		runtime.Gosched()
		if l := p.takeFree(); l != nil {
			return l, nil
		}
		time.Sleep(b.Duration())
	}
}

func (p *Pool) takeFree() *Lease {
	l := p.free.pop()
	if l == nil {
		return nil
	}
	// The lease is exclusively ours between the pop and the hand-out.
	atomic.StoreUint32(&l.inPool, 0)
	atomic.AddUint32(&p.m.nr, uint32(1))
	return l
}

// Release recycles the resource and parks the lease back in the free list.
// Only the borrower holding the lease may call it: a lease from another pool
// fails with ErrWrongPool and a lease that is already free fails with
// ErrNotBorrowed. Neither failure mutates any count.
func (p *Pool) Release(l *Lease) error {
	if l == nil {
		return fmt.Errorf("nil lease: %w", ErrInvalidArgument)
	}
	if l.pool != p {
		return ErrWrongPool
	}
	if !atomic.CompareAndSwapUint32(&l.inPool, 0, 1) {
		return ErrNotBorrowed
	}
	p.factory.Recycle(l.value)
	p.free.push(l)
	atomic.AddUint32(&p.m.np, uint32(1))
	return nil
}

// TryShrink destroys free leases and hands their admissions back until only
// target resources remain allocated. It never waits on borrowed leases: the
// first empty pop ends the pass with false, keeping whatever was already
// removed. Concurrent takes race with the pass, so re-check Allocated after.
func (p *Pool) TryShrink(target int) (bool, error) {
	total := p.Allocated()
	if target < 0 || target > total {
		return false, fmt.Errorf("shrink target %d must be within [0, %d]: %w", target, total, ErrInvalidArgument)
	}
	for removing := total - target; removing > 0; removing-- {
		l := p.free.pop()
		if l == nil {
			return false, nil
		}
		DefaultDestroyer(l.value)
		if err := p.sem.Release(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Flush drains the whole pool with the default destroyer.
func (p *Pool) Flush() error { return p.FlushFunc(nil) }

// FlushFunc drains every allocated resource, poll-waiting for borrowed leases
// to come back, destroying each one and returning its admission. A nil
// destroy means DefaultDestroyer. If FlushTimeout elapses first, it fails
// with ErrFlushTimeout: resources already drained stay destroyed, leases
// still outstanding stay live, and the counts stay consistent, so the flush
// may simply be retried.
func (p *Pool) FlushFunc(destroy Destroyer) error {
	if destroy == nil {
		destroy = DefaultDestroyer
	}
	timeout := p.FlushTimeout
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	deadline := time.Now().Add(timeout)

	b := newPollSleeper()
	for p.Allocated() > 0 {
		l := p.free.pop()
		if l == nil {
			if !time.Now().Before(deadline) {
				return fmt.Errorf("%d lease(s) still borrowed: %w", p.Allocated(), ErrFlushTimeout)
			}
			runtime.Gosched()
			time.Sleep(b.Duration())
			continue
		}
		b.Reset()
		destroy(l.value)
		if err := p.sem.Release(); err != nil {
			return err
		}
	}
	return nil
}

// WaitIdle polls until no lease is borrowed. It claims and destroys nothing,
// and a taker racing with it may immediately borrow again; it is meant for
// quiescence points such as shutdown sequencing.
func (p *Pool) WaitIdle() {
	b := newPollSleeper()
	for p.Idle() != p.Allocated() {
		runtime.Gosched()
		time.Sleep(b.Duration())
	}
}

// Allocated counts resources constructed and not yet destroyed, whether
// borrowed or free. Like every count below, it races with concurrent
// operations and holds no transactional relation to the other counts.
func (p *Pool) Allocated() int { return p.sem.Max() - p.sem.Count() }

// Idle counts leases sitting in the free list.
func (p *Pool) Idle() int { return p.free.len() }

// Cap is the configured maximum number of simultaneously live resources.
func (p *Pool) Cap() int { return p.sem.Max() }

func (p *Pool) Name() string { return p.name }

func (p *Pool) Metrics() *PoolMetrics { return p.m }

func (p *Pool) String() string {
	return fmt.Sprintf("%s: %d/%d/%d", p.name, p.Idle(), p.Allocated(), p.Cap())
}

// Takers and flushers park on a jittered backoff capped well under a second,
// so a waiter re-attempts with bounded latency but no fairness: a late
// arrival may steal a just-released lease before an earlier waiter wakes.
func newPollSleeper() *backoff.Backoff {
	return &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    1 * time.Millisecond,
		Max:    100 * time.Millisecond,
	}
}
