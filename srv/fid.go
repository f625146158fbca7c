package srv

import (
	"sync"
	"sync/atomic"

	"github.com/sandia-minimega/mini9p/p9"
)

// Fid is the server-side record for a single (connection, id) pair:
// exactly one live Fid exists per id on a connection at a time
// (spec.md §3). Aux is owned by the Backend; the engine never
// interprets it.
type Fid struct {
	ID   uint32
	Qid  p9.Qid
	Aux  interface{}
	Conn *Conn

	refcount int32
}

// incref adds a reference, held for the duration of an in-flight
// request that touches this fid.
func (f *Fid) incref() { atomic.AddInt32(&f.refcount, 1) }

// decref drops a reference; when it reaches zero the backend's
// FidDestroy runs exactly once.
func (f *Fid) decref(conn *Conn) {
	if atomic.AddInt32(&f.refcount, -1) == 0 {
		conn.srv.backend.FidDestroy(f)
		conn.removeFid(f.ID)
	}
}

// fidTable is the per-connection map of live fids.
type fidTable struct {
	mu   sync.Mutex
	fids map[uint32]*Fid
}

func newFidTable() *fidTable {
	return &fidTable{fids: make(map[uint32]*Fid)}
}

func (t *fidTable) get(id uint32) (*Fid, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.fids[id]
	return f, ok
}

func (t *fidTable) put(f *Fid) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.fids[f.ID]; exists {
		return false
	}
	t.fids[f.ID] = f
	return true
}

func (t *fidTable) remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fids, id)
}

func (t *fidTable) clear() []*Fid {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]*Fid, 0, len(t.fids))
	for _, f := range t.fids {
		all = append(all, f)
	}
	t.fids = make(map[uint32]*Fid)
	return all
}
