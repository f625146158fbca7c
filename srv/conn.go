package srv

import (
	"io"
	"sync"

	"github.com/rs/xid"
	"github.com/sandia-minimega/mini9p/ninelog"
	"github.com/sandia-minimega/mini9p/p9"
)

// Conn is one accepted connection's state: its fid table, its
// in-flight request (tag) table, and the negotiated msize (spec.md
// §4.6). It is created fresh for every accepted connection and torn
// down when the connection closes.
type Conn struct {
	rwc   io.ReadWriteCloser
	id    string
	srv   *Server
	log   ninelog.Logger

	msize uint32
	dotl  bool

	fids *fidTable
	tags *tagTable

	writeMu sync.Mutex
}

func newConn(rwc io.ReadWriteCloser, s *Server) *Conn {
	return &Conn{
		rwc:   rwc,
		id:    xid.New().String(),
		srv:   s,
		log:   s.log,
		msize: s.msizeMax,
		fids:  newFidTable(),
		tags:  newTagTable(),
	}
}

func (c *Conn) removeFid(id uint32) {
	c.fids.remove(id)
}

// serve reads frames until the transport closes or a fatal protocol
// error occurs, dispatching each to its own goroutine so that slow
// backend calls on one fid/tag do not block replies to others (spec.md
// §5: "Server... Parallel. Each connection has at least a reader;
// request handlers MAY run on a worker pool.").
func (c *Conn) serve() {
	defer c.rwc.Close()
	defer c.teardown()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		frame, err := p9.ReadFrame(c.rwc, c.boundedMsize())
		if err != nil {
			return
		}
		fc, err := p9.Decode(frame)
		if err != nil {
			c.log.Warnf("%s: decode error: %v", c.id, err)
			return
		}
		c.log.Debugf("%s <- %s", c.id, p9.Dump(fc))

		req := newRequest(fc, c)
		if !c.tags.put(fc.Tag, req) {
			c.replyError(fc.Tag, p9.EINVAL)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.handle(req)
		}()
	}
}

// boundedMsize returns the frame-size bound for this connection: the
// server's maximum msize until a VERSION has negotiated one, and the
// negotiated msize afterward. A msize of 0 means unbounded.
func (c *Conn) boundedMsize() uint32 {
	if c.msize == 0 {
		return 0
	}
	return c.msize
}

func (c *Conn) handle(req *Request) {
	req.setRunning()
	resp := dispatch(c, req)
	req.finish()

	if req.isFlushed() {
		// The original reply is dropped; RFLUSH (sent by the flusher
		// once awaitDone returns) is the only reply this tag gets.
		c.tags.remove(req.In.Tag)
		return
	}

	c.tags.remove(req.In.Tag)
	c.writeFrame(resp)
}

func (c *Conn) writeFrame(fc *p9.Fcall) {
	frame, err := p9.Encode(fc, c.boundedMsize())
	if err != nil {
		// Encoding our own reply should never fail; fall back to a
		// generic error reply rather than silently dropping the tag.
		frame, _ = p9.Encode(&p9.Fcall{Type: p9.Rlerror, Tag: fc.Tag, Errno: p9.EIO}, 0)
	}
	c.log.Debugf("%s -> %s", c.id, p9.Dump(fc))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := p9.WriteFrame(c.rwc, frame); err != nil {
		c.log.Warnf("%s: write error: %v", c.id, err)
	}
}

func (c *Conn) replyError(tag uint16, errno uint32) {
	c.writeFrame(&p9.Fcall{Type: p9.Rlerror, Tag: tag, Errno: errno})
}

// teardown runs once when the connection's serve loop exits: every
// live fid is destroyed through the backend, exactly as a burst of
// CLUNKs would, and the tag table is cleared.
func (c *Conn) teardown() {
	for _, f := range c.fids.clear() {
		c.srv.backend.FidDestroy(f)
	}
	c.tags.clear()
}
