package client

import (
	"sync"

	"github.com/sandia-minimega/mini9p/p9"
)

// fidPool assigns and recycles 32-bit fids on the client (spec.md
// §4.4). Domain is 0..0xFFFFFFFE; NOFID means "no afid" in ATTACH.
// Policy is monotonically increasing with reuse of freed ids from a
// free list; the most recently freed id is handed out first.
type fidPool struct {
	mu   sync.Mutex
	next uint32
	free []uint32
}

func newFidPool() *fidPool {
	return &fidPool{}
}

func (p *fidPool) alloc() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		return id, nil
	}

	if p.next >= p9.NoFid {
		return 0, &p9.AllocError{Msg: "no free fids"}
	}
	id := p.next
	p.next++
	return id, nil
}

func (p *fidPool) release(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, id)
}

// Fid is a client-side handle to a server-side object: a file,
// directory, or auth context. The id is what appears on the wire;
// iounit is the server-reported max useful I/O per request; offset is
// a purely local cursor used by the Read/Write convenience helpers.
type Fid struct {
	id     uint32
	iounit uint32
	offset uint64
	qid    p9.Qid
	conn   *Connection

	mu     sync.Mutex
	closed bool
}

// ID returns the wire fid number.
func (f *Fid) ID() uint32 { return f.id }

// Qid returns the identity minted for this fid by the last ATTACH,
// WALK, or LOPEN/LCREATE that touched it.
func (f *Fid) Qid() p9.Qid { return f.qid }
