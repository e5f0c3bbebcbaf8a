package berthlib

// A Lease is one pooled resource checked out of a Pool. Leases are only ever
// constructed by their pool; the pool reference is set once and used purely
// to validate that a lease comes back to the pool that issued it.
//
// While borrowed, exactly one goroutine owns the lease, so no two goroutines
// race on releasing it in well-formed usage. The inPool flag is still flipped
// with a compare-and-swap so that a double release fails deterministically
// with ErrNotBorrowed instead of corrupting the free list.
type Lease struct {
	value  interface{}
	pool   *Pool
	inPool uint32 // 0 while borrowed, 1 while sitting in the free list
}

// Value exposes the pooled resource for the duration of the borrow.
func (l *Lease) Value() interface{} { return l.value }

// Close hands the lease back to its pool. It exists so a borrower can tie the
// release to function exit:
//
//	lease, err := pool.Take()
//	if err != nil {
//		return err
//	}
//	defer lease.Close()
func (l *Lease) Close() error { return l.pool.Release(l) }
