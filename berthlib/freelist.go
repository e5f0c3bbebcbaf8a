package berthlib

import (
	"sync/atomic"
	"unsafe"
)

// freeList is a Treiber stack of leases not currently borrowed. Push and pop
// are individually atomic; the stack carries no ordering guarantee beyond
// LIFO-biased reuse.
type freeList struct {
	head unsafe.Pointer // *freeNode
	size uint32
}

// A fresh node is allocated per push. The garbage collector keeps a node's
// address live while any pop still refers to it, so the head swap cannot be
// fooled by the same lease re-entering the stack mid-CAS.
type freeNode struct {
	lease *Lease
	next  unsafe.Pointer // *freeNode
}

func (f *freeList) push(l *Lease) {
	node := &freeNode{lease: l}
	for {
		head := atomic.LoadPointer(&f.head)
		node.next = head
		if atomic.CompareAndSwapPointer(&f.head, head, unsafe.Pointer(node)) {
			atomic.AddUint32(&f.size, uint32(1))
			return
		}
	}
}

func (f *freeList) pop() *Lease {
	for {
		head := atomic.LoadPointer(&f.head)
		if head == nil {
			return nil
		}
		node := (*freeNode)(head)
		if atomic.CompareAndSwapPointer(&f.head, head, atomic.LoadPointer(&node.next)) {
			atomic.AddUint32(&f.size, ^uint32(0))
			return node.lease
		}
	}
}

func (f *freeList) len() int { return int(atomic.LoadUint32(&f.size)) }
