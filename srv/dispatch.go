package srv

import "github.com/sandia-minimega/mini9p/p9"

// dispatch executes one decoded fcall against c's backend and returns
// the reply to send (spec.md §4.6). It never returns nil: an
// unrecognized or failing operation still produces an Rlerror.
func dispatch(c *Conn, req *Request) *p9.Fcall {
	fc := req.In
	tag := fc.Tag

	switch fc.Type {
	case p9.Tversion:
		return dispatchVersion(c, fc, tag)
	case p9.Tflush:
		return dispatchFlush(c, fc, tag)
	case p9.Tattach:
		return dispatchAttach(c, fc, tag)
	case p9.Twalk:
		return dispatchWalk(c, fc, tag)
	case p9.Tclunk:
		return dispatchClunk(c, fc, tag)
	case p9.Tremove:
		return dispatchRemove(c, fc, tag)
	case p9.Tlopen:
		return dispatchLopen(c, fc, tag)
	case p9.Tlcreate:
		return dispatchLcreate(c, fc, tag)
	case p9.Tmkdir:
		return dispatchMkdir(c, fc, tag)
	case p9.Tread:
		return dispatchRead(c, fc, tag)
	case p9.Twrite:
		return dispatchWrite(c, fc, tag)
	case p9.Treaddir:
		return dispatchReaddir(c, fc, tag)
	case p9.Tgetattr:
		return dispatchGetattr(c, fc, tag)
	case p9.Tsetattr:
		return dispatchSetattr(c, fc, tag)
	default:
		return errReply(tag, p9.EOPNOTSUPP)
	}
}

func errReply(tag uint16, errno uint32) *p9.Fcall {
	return &p9.Fcall{Type: p9.Rlerror, Tag: tag, Errno: errno}
}

func serverErrReply(tag uint16, err error) *p9.Fcall {
	if se, ok := err.(*p9.ServerError); ok {
		return errReply(tag, se.Errno)
	}
	return errReply(tag, p9.EIO)
}

// dispatchVersion resets the connection: clears fid and tag tables,
// picks msize = min(client, server max), and negotiates the version
// string (spec.md §4.6). Replies are always sent on NOTAG by
// convention of the caller (the client always tags TVERSION NOTAG);
// the server merely echoes whatever tag arrived.
func dispatchVersion(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	for _, f := range c.fids.clear() {
		c.srv.backend.FidDestroy(f)
	}
	c.tags.clear()

	msize := fc.Msize
	if msize > c.srv.msizeMax {
		msize = c.srv.msizeMax
	}
	if msize < p9.MinMsize {
		return errReply(tag, p9.EINVAL)
	}
	c.msize = msize

	version := p9.Version
	if fc.Version != p9.Version {
		return errReply(tag, p9.EINVAL)
	}
	c.dotl = true

	return &p9.Fcall{Type: p9.Rversion, Tag: tag, Msize: msize, Version: version}
}

// dispatchFlush implements spec.md §4.6's FLUSH coordination: if the
// target is Running, wait for it to finish (its reply is dropped) then
// reply RFLUSH; if unknown, reply RFLUSH immediately; a request may be
// flushed more than once, each flusher waits independently.
func dispatchFlush(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	target, ok := c.tags.get(fc.Oldtag)
	if !ok {
		return &p9.Fcall{Type: p9.Rflush, Tag: tag}
	}

	target.markFlushed()
	if target.isRunning() {
		target.awaitDone()
	}

	return &p9.Fcall{Type: p9.Rflush, Tag: tag}
}

func dispatchAttach(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	var afid *Fid
	if fc.Afid != p9.NoFid {
		var ok bool
		afid, ok = c.fids.get(fc.Afid)
		if !ok {
			return errReply(tag, p9.EBADF)
		}
		afid.incref()
		defer afid.decref(c)
	}

	newFid := &Fid{ID: fc.Fid, Conn: c, refcount: 1}
	qid, err := c.srv.backend.Attach(newFid, afid, fc.Uname, fc.Aname, fc.Uid)
	if err != nil {
		return serverErrReply(tag, err)
	}
	newFid.Qid = qid

	if !c.fids.put(newFid) {
		return errReply(tag, p9.EINVAL)
	}

	return &p9.Fcall{Type: p9.Rattach, Tag: tag, Qid: qid}
}

// dispatchWalk implements the server half of spec.md §4.1/§4.6's
// chunked WALK: zero names is a clone; N>0 names iterates the
// backend's Walk callback, returning as many qids as it resolved.
// Partial success (0<K<N) still reports those K qids; the newfid is
// only committed to the fid table on full success, matching the
// client's expectation that it must clunk on partial failure.
func dispatchWalk(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)

	if len(fc.Wname) == 0 {
		if fc.Newfid != fc.Fid {
			if _, exists := c.fids.get(fc.Newfid); exists {
				return errReply(tag, p9.EINVAL)
			}
		}
		newFid := &Fid{ID: fc.Newfid, Qid: fid.Qid, Conn: c, refcount: 1}
		if err := c.srv.backend.Clone(fid, newFid); err != nil {
			return serverErrReply(tag, err)
		}
		if fc.Newfid != fc.Fid {
			c.fids.put(newFid)
		}
		return &p9.Fcall{Type: p9.Rwalk, Tag: tag, Wqid: nil}
	}

	cursor := &Fid{ID: fc.Newfid, Qid: fid.Qid, Conn: c, refcount: 1}
	if err := c.srv.backend.Clone(fid, cursor); err != nil {
		return serverErrReply(tag, err)
	}

	var qids []p9.Qid
	var walkErr error
	src := fid
	for _, name := range fc.Wname {
		var q p9.Qid
		q, walkErr = c.srv.backend.Walk(src, cursor, name)
		if walkErr != nil {
			break
		}
		cursor.Qid = q
		qids = append(qids, q)
		src = cursor
	}

	if len(qids) == len(fc.Wname) {
		if fc.Newfid == fc.Fid {
			// fid walks onto itself: it takes the cursor's position and
			// its previous backend state is released.
			c.srv.backend.FidDestroy(&Fid{ID: fid.ID, Qid: fid.Qid, Aux: fid.Aux, Conn: c})
			fid.Qid, fid.Aux = cursor.Qid, cursor.Aux
		} else {
			c.fids.put(cursor)
		}
	} else if len(qids) == 0 {
		return serverErrReply(tag, walkErr)
	}

	return &p9.Fcall{Type: p9.Rwalk, Tag: tag, Wqid: qids}
}

func dispatchClunk(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.decref(c)
	return &p9.Fcall{Type: p9.Rclunk, Tag: tag}
}

func dispatchRemove(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	// REMOVE always invalidates fid, like CLUNK (spec.md §4.6); incref
	// holds it live for the duration of the backend call, then one
	// decref releases that hold and a second drops the table's own
	// reference, exactly as dispatchClunk does.
	fid.incref()
	err := c.srv.backend.Remove(fid)
	fid.decref(c)
	fid.decref(c)
	if err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rremove, Tag: tag}
}

func dispatchLopen(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	qid, iounit, err := c.srv.backend.Lopen(fid, fc.Mode)
	if err != nil {
		return serverErrReply(tag, err)
	}
	fid.Qid = qid
	return &p9.Fcall{Type: p9.Rlopen, Tag: tag, Qid: qid, Iounit: iounit}
}

func dispatchLcreate(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	qid, iounit, err := c.srv.backend.Lcreate(fid, fc.Name, fc.Mode, fc.Perm, fc.Gid)
	if err != nil {
		return serverErrReply(tag, err)
	}
	fid.Qid = qid
	return &p9.Fcall{Type: p9.Rlcreate, Tag: tag, Qid: qid, Iounit: iounit}
}

func dispatchMkdir(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Dfid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	qid, err := c.srv.backend.Mkdir(fid, fc.Name, fc.Perm, fc.Gid)
	if err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rmkdir, Tag: tag, Qid: qid}
}

func dispatchRead(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	count := fc.Count
	if max := c.msize - p9.IOHDRSZ; c.msize > p9.IOHDRSZ && count > max {
		count = max
	}
	data, err := c.srv.backend.Read(fid, fc.Offset, count)
	if err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rread, Tag: tag, Data: data}
}

func dispatchWrite(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	n, err := c.srv.backend.Write(fid, fc.Offset, fc.Data)
	if err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rwrite, Tag: tag, Count: n}
}

func dispatchReaddir(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	entries, err := c.srv.backend.Readdir(fid, fc.Offset, fc.Count)
	if err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rreaddir, Tag: tag, Entries: entries}
}

func dispatchGetattr(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	stat, err := c.srv.backend.Getattr(fid, fc.ReqMask)
	if err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rgetattr, Tag: tag, ReqMask: fc.ReqMask, Stat: stat}
}

func dispatchSetattr(c *Conn, fc *p9.Fcall, tag uint16) *p9.Fcall {
	fid, ok := c.fids.get(fc.Fid)
	if !ok {
		return errReply(tag, p9.EBADF)
	}
	fid.incref()
	defer fid.decref(c)
	if err := c.srv.backend.Setattr(fid, fc.ValidMask, fc.Stat); err != nil {
		return serverErrReply(tag, err)
	}
	return &p9.Fcall{Type: p9.Rsetattr, Tag: tag}
}
