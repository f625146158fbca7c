package client

import (
	"sync"

	"github.com/sandia-minimega/mini9p/p9"
)

// tagPool assigns and recycles 16-bit request tags (spec.md §4.3).
// Domain is 0..0xFFFE; NOTAG (0xFFFF) is reserved for VERSION and
// never handed out. Allocation policy is lowest-free-id, matching the
// reference implementation's array-of-bits allocators.
type tagPool struct {
	mu   sync.Mutex
	next uint16
	free []uint16
	used map[uint16]bool
}

func newTagPool() *tagPool {
	return &tagPool{used: make(map[uint16]bool)}
}

func (p *tagPool) alloc() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		lo := 0
		for i := 1; i < n; i++ {
			if p.free[i] < p.free[lo] {
				lo = i
			}
		}
		tag := p.free[lo]
		p.free[lo] = p.free[n-1]
		p.free = p.free[:n-1]
		p.used[tag] = true
		return tag, nil
	}

	if p.next >= p9.NoTag {
		return 0, &p9.AllocError{Msg: "no free tags"}
	}
	tag := p.next
	p.next++
	p.used[tag] = true
	return tag, nil
}

func (p *tagPool) release(tag uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used[tag] {
		delete(p.used, tag)
		p.free = append(p.free, tag)
	}
}
