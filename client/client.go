// Package client implements the 9P2000.L client RPC engine: connection
// setup (VERSION negotiation), tag and fid allocation, the Single-RPC
// and Multi-RPC submission modes, and the higher-level file operations
// built on top of them (spec.md §4.5).
package client

import (
	"io"
	"sync"

	"github.com/rs/xid"
	"github.com/sandia-minimega/mini9p/ninelog"
	"github.com/sandia-minimega/mini9p/p9"
)

// Mode selects the client's concurrency model.
type Mode int

const (
	// Single serializes every RPC: one lock covers write+read, at
	// most one request in flight.
	Single Mode = iota
	// Multi spawns a reader goroutine and guards the writer with a
	// mutex, multiplexing many in-flight requests by tag.
	Multi
)

// waiter is parked in Connection.pending while a Multi-RPC request is
// in flight; the reader goroutine signals it on receipt of the
// matching reply, or on flush/shutdown.
type waiter struct {
	reply chan *p9.Fcall
	err   chan error
}

// Connection is a negotiated client connection to a 9P2000.L server.
type Connection struct {
	transport io.ReadWriteCloser
	msize     uint32
	mode      Mode
	id        string
	log       ninelog.Logger

	tags *tagPool
	fids *fidPool

	// Single mode: one lock covers the whole send+recv cycle.
	singleMu sync.Mutex

	// Multi mode: writes are serialized by writeMu; the reader
	// goroutine owns reads exclusively and routes replies by tag.
	writeMu sync.Mutex
	pendMu  sync.Mutex
	pending map[uint16]*waiter

	deadMu sync.Mutex
	dead   error // set once the connection is torn down

	rootFid *Fid
}

// ClientOpt configures a Connection at Start time.
type ClientOpt func(*Connection)

// WithMode selects Single or Multi RPC mode. Default is Single.
func WithMode(m Mode) ClientOpt {
	return func(c *Connection) { c.mode = m }
}

// WithLogger attaches a logger used for Debug-level diagnostics of
// every fcall sent and received (grounded on the teacher's
// debug.Server Tracer-decorator pattern). Default is a no-op logger.
func WithLogger(l ninelog.Logger) ClientOpt {
	return func(c *Connection) { c.log = l }
}

// Start negotiates a new connection over transport: it sends TVERSION
// with NOTAG and msizeMax, and accepts the server's chosen msize
// (which must not exceed msizeMax) and version string (which must be
// exactly "9P2000.L").
func Start(transport io.ReadWriteCloser, msizeMax uint32, opts ...ClientOpt) (*Connection, error) {
	c := &Connection{
		transport: transport,
		msize:     msizeMax,
		mode:      Single,
		id:        xid.New().String(),
		log:       ninelog.Discard,
		tags:      newTagPool(),
		fids:      newFidPool(),
		pending:   make(map[uint16]*waiter),
	}
	for _, o := range opts {
		o(c)
	}

	req := &p9.Fcall{Type: p9.Tversion, Tag: p9.NoTag, Msize: msizeMax, Version: p9.Version}
	frame, err := p9.Encode(req, 0)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("%s -> %s", c.id, p9.Dump(req))
	if err := p9.WriteFrame(c.transport, frame); err != nil {
		return nil, err
	}

	respFrame, err := p9.ReadFrame(c.transport, 0)
	if err != nil {
		return nil, err
	}
	resp, err := p9.Decode(respFrame)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("%s <- %s", c.id, p9.Dump(resp))

	if resp.Type != p9.Rversion {
		return nil, &p9.ProtocolError{Msg: "expected Rversion"}
	}
	if resp.Version != p9.Version {
		return nil, &p9.ProtocolError{Msg: "server rejected 9P2000.L: " + resp.Version}
	}
	if resp.Msize > msizeMax {
		return nil, &p9.ProtocolError{Msg: "server chose msize larger than offered"}
	}
	c.msize = resp.Msize

	if c.mode == Multi {
		go c.readLoop()
	}

	return c, nil
}

// Finish tears down the connection: closes the transport and wakes
// every pending Multi-RPC waiter with Canceled. Best-effort; always
// succeeds.
func (c *Connection) Finish() error {
	c.setDead(&p9.CanceledError{Msg: "connection finished"})
	return c.transport.Close()
}

func (c *Connection) setDead(err error) {
	c.deadMu.Lock()
	already := c.dead != nil
	if !already {
		c.dead = err
	}
	c.deadMu.Unlock()
	if already {
		return
	}

	c.pendMu.Lock()
	waiters := c.pending
	c.pending = make(map[uint16]*waiter)
	c.pendMu.Unlock()

	for _, w := range waiters {
		w.err <- &p9.CanceledError{Msg: "connection torn down"}
	}
}

func (c *Connection) isDead() error {
	c.deadMu.Lock()
	defer c.deadMu.Unlock()
	return c.dead
}

// Msize returns the negotiated maximum frame size.
func (c *Connection) Msize() uint32 { return c.msize }
