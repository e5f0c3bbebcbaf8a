package berthlib

import (
	"fmt"
	"sync/atomic"
	"time"
)

var DefaultTickerDuration = 1 * time.Second

// na + nr equal the total number of takes.
// na + nr - np equal the number of leases still borrowed.
type PoolMetrics struct {
	na uint32 // number of takes backed by a fresh construction
	nr uint32 // number of takes reusing a free lease
	np uint32 // number of leases put back to the pool

	naa uint64 // accumulative
	nra uint64 // accumulative
	npa uint64 // accumulative

	done chan struct{}
}

func newPoolMetrics() *PoolMetrics {
	pm := &PoolMetrics{}
	pm.done = make(chan struct{})

	return pm
}

func (p *PoolMetrics) setMetrics() {
	atomic.AddUint64(&p.naa, uint64(atomic.SwapUint32(&p.na, uint32(0))))
	atomic.AddUint64(&p.nra, uint64(atomic.SwapUint32(&p.nr, uint32(0))))
	atomic.AddUint64(&p.npa, uint64(atomic.SwapUint32(&p.np, uint32(0))))
}

// Start folds the window counters into the accumulative ones once per
// DefaultTickerDuration until Stop is called.
func (p *PoolMetrics) Start() {
	timer := time.NewTicker(DefaultTickerDuration)

	go func() {
		defer close(p.done)
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				p.setMetrics()
			case <-p.done:
				p.setMetrics()
				return
			}
		}
	}()
}

func (p *PoolMetrics) Stop() {
	p.done <- struct{}{}
}

func (p *PoolMetrics) String() string {
	return fmt.Sprintf("[ %v|%v|%v, %v|%v|%v ]",
		atomic.LoadUint32(&p.na), atomic.LoadUint32(&p.nr), atomic.LoadUint32(&p.np),
		atomic.LoadUint64(&p.naa), atomic.LoadUint64(&p.nra), atomic.LoadUint64(&p.npa),
	)
}
