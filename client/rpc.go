package client

import "github.com/sandia-minimega/mini9p/p9"

// rpc drives one request/response cycle to completion, in whichever
// mode the connection was started with (spec.md §4.5). The returned
// Fcall is the matching reply; an error is either a transport/protocol
// failure or a decoded ServerError.
func (c *Connection) rpc(req *p9.Fcall) (*p9.Fcall, error) {
	if err := c.isDead(); err != nil {
		return nil, err
	}

	tag, err := c.tags.alloc()
	if err != nil {
		return nil, err
	}
	req.Tag = tag

	var resp *p9.Fcall
	switch c.mode {
	case Single:
		resp, err = c.rpcSingle(req)
	default:
		resp, err = c.rpcMulti(req)
	}
	c.tags.release(tag)

	if err != nil {
		return nil, err
	}
	if resp.Type == p9.Rlerror {
		return nil, &p9.ServerError{Errno: resp.Errno}
	}
	if resp.Type == p9.Rerror {
		return nil, &p9.ServerError{Errno: resp.Errno, Ename: resp.Ename}
	}
	return resp, nil
}

// rpcSingle serializes send+recv under a single lock: at most one
// request is ever in flight, so no tag routing is required beyond what
// the server echoes back.
func (c *Connection) rpcSingle(req *p9.Fcall) (*p9.Fcall, error) {
	c.singleMu.Lock()
	defer c.singleMu.Unlock()

	c.log.Debugf("%s -> %s", c.id, p9.Dump(req))
	frame, err := p9.Encode(req, c.msize)
	if err != nil {
		return nil, err
	}
	if err := p9.WriteFrame(c.transport, frame); err != nil {
		c.setDead(err)
		return nil, err
	}

	respFrame, err := p9.ReadFrame(c.transport, c.msize)
	if err != nil {
		c.setDead(err)
		return nil, err
	}
	resp, err := p9.Decode(respFrame)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("%s <- %s", c.id, p9.Dump(resp))
	return resp, nil
}

// rpcMulti registers a waiter keyed by tag, enqueues the frame under
// the write lock, and blocks until the reader goroutine signals
// completion (by reply, by flush, or by connection teardown).
func (c *Connection) rpcMulti(req *p9.Fcall) (*p9.Fcall, error) {
	w := &waiter{reply: make(chan *p9.Fcall, 1), err: make(chan error, 1)}

	c.pendMu.Lock()
	c.pending[req.Tag] = w
	c.pendMu.Unlock()

	frame, err := p9.Encode(req, c.msize)
	if err != nil {
		c.pendMu.Lock()
		delete(c.pending, req.Tag)
		c.pendMu.Unlock()
		return nil, err
	}

	c.writeMu.Lock()
	c.log.Debugf("%s -> %s", c.id, p9.Dump(req))
	writeErr := p9.WriteFrame(c.transport, frame)
	c.writeMu.Unlock()

	if writeErr != nil {
		c.setDead(writeErr)
		select {
		case resp := <-w.reply:
			return resp, nil
		case e := <-w.err:
			return nil, e
		default:
			return nil, writeErr
		}
	}

	select {
	case resp := <-w.reply:
		return resp, nil
	case err := <-w.err:
		return nil, err
	}
}

// readLoop is the Multi-RPC reader task: it owns reads exclusively,
// and for each frame routes the decoded reply to its tag's waiter.
func (c *Connection) readLoop() {
	for {
		frame, err := p9.ReadFrame(c.transport, c.msize)
		if err != nil {
			c.setDead(err)
			return
		}
		resp, err := p9.Decode(frame)
		if err != nil {
			c.setDead(err)
			return
		}
		c.log.Debugf("%s <- %s", c.id, p9.Dump(resp))

		c.pendMu.Lock()
		w, ok := c.pending[resp.Tag]
		if ok {
			delete(c.pending, resp.Tag)
		}
		c.pendMu.Unlock()

		if !ok {
			c.log.Infof("%s: reply for unknown tag %d", c.id, resp.Tag)
			continue
		}
		w.reply <- resp
	}
}

// Flush cancels an in-flight Multi-RPC request identified by oldtag.
// The TFLUSH itself is sent and awaited first; only once RFLUSH comes
// back is oldtag's waiter (if it is still pending) resolved with
// Canceled (spec.md §4.5, §8 scenario 4). If the original reply arrives
// before RFLUSH does, readLoop has already delivered it and removed the
// waiter, so this is a no-op for that tag: the caller sees its real
// reply, never a spurious cancellation.
func (c *Connection) Flush(oldtag uint16) error {
	if c.mode != Multi {
		return &p9.InvalidArgumentError{Msg: "flush is only meaningful in Multi mode"}
	}

	req := &p9.Fcall{Type: p9.Tflush, Oldtag: oldtag}
	_, err := c.rpc(req)
	if err != nil {
		return err
	}

	c.pendMu.Lock()
	if w, ok := c.pending[oldtag]; ok {
		delete(c.pending, oldtag)
		w.err <- &p9.CanceledError{Msg: "flushed"}
	}
	c.pendMu.Unlock()

	return nil
}
