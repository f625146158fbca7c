package client

import (
	"io"

	"github.com/sandia-minimega/mini9p/p9"
)

// Auth requests an auth fid for aname/uid. A nil Fid with a nil error
// means the server does not require auth (it answered TAUTH with an
// error); a nil Fid with a non-nil error is a real failure (spec.md
// §4.5, §8 scenario 6).
func (c *Connection) Auth(aname string, uname string, uid uint32) (*Fid, error) {
	id, err := c.fids.alloc()
	if err != nil {
		return nil, err
	}

	req := &p9.Fcall{Type: p9.Tauth, Afid: id, Uname: uname, Aname: aname, Uid: uid}
	resp, err := c.rpc(req)
	if err != nil {
		c.fids.release(id)
		if _, ok := err.(*p9.ServerError); ok {
			return nil, nil
		}
		return nil, err
	}

	return &Fid{id: id, qid: resp.Qid, conn: c}, nil
}

// Attach establishes the root fid for aname. afid may be nil if no
// auth is required.
func (c *Connection) Attach(afid *Fid, aname, uname string, uid uint32) (*Fid, error) {
	id, err := c.fids.alloc()
	if err != nil {
		return nil, err
	}

	afidNum := p9.NoFid
	if afid != nil {
		afidNum = afid.id
	}

	req := &p9.Fcall{Type: p9.Tattach, Fid: id, Afid: afidNum, Uname: uname, Aname: aname, Uid: uid}
	resp, err := c.rpc(req)
	if err != nil {
		c.fids.release(id)
		if afid != nil {
			clunkFid(c, afid.id)
		}
		return nil, err
	}

	root := &Fid{id: id, qid: resp.Qid, conn: c}
	c.rootFid = root
	return root, nil
}

// Clunk releases fid, both on the server and locally. The fid id is
// always freed locally, whether or not the server reports an error
// (spec.md §4.5).
func (fid *Fid) Clunk() error {
	fid.mu.Lock()
	if fid.closed {
		fid.mu.Unlock()
		return nil
	}
	fid.closed = true
	fid.mu.Unlock()

	req := &p9.Fcall{Type: p9.Tclunk, Fid: fid.id}
	_, err := fid.conn.rpc(req)
	fid.conn.fids.release(fid.id)
	return err
}

// Remove clunks fid and requests the backend delete the underlying
// object.
func (fid *Fid) Remove() error {
	req := &p9.Fcall{Type: p9.Tremove, Fid: fid.id}
	_, err := fid.conn.rpc(req)
	fid.conn.fids.release(fid.id)
	return err
}

// Lopen opens fid with Linux O_* mode flags, updating fid.iounit from
// RLOPEN.
func (fid *Fid) Lopen(mode uint32) error {
	req := &p9.Fcall{Type: p9.Tlopen, Fid: fid.id, Mode: mode}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return err
	}
	fid.qid = resp.Qid
	fid.iounit = resp.Iounit
	return nil
}

// Open is the legacy (non-.L) open, kept for interop with peers that
// only understand the classic variant.
func (fid *Fid) Open(mode uint32) error {
	req := &p9.Fcall{Type: p9.Topen, Fid: fid.id, Mode: mode}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return err
	}
	fid.qid = resp.Qid
	fid.iounit = resp.Iounit
	return nil
}

// Create opens a new file named name in the directory fid, turning fid
// into a handle on the new file (legacy form).
func (fid *Fid) Create(name string, perm uint32, mode uint32) error {
	req := &p9.Fcall{Type: p9.Tcreate, Fid: fid.id, Name: name, Perm: perm, Mode: mode}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return err
	}
	fid.qid = resp.Qid
	fid.iounit = resp.Iounit
	return nil
}

// Lcreate is the .L create: fid must be a directory; on success fid
// refers to the new file opened with mode.
func (fid *Fid) Lcreate(name string, mode, perm, gid uint32) error {
	req := &p9.Fcall{Type: p9.Tlcreate, Fid: fid.id, Name: name, Mode: mode, Perm: perm, Gid: gid}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return err
	}
	fid.qid = resp.Qid
	fid.iounit = resp.Iounit
	return nil
}

// Mkdir creates a directory named name under fid.
func (fid *Fid) Mkdir(name string, perm, gid uint32) (p9.Qid, error) {
	req := &p9.Fcall{Type: p9.Tmkdir, Dfid: fid.id, Name: name, Perm: perm, Gid: gid}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return p9.Qid{}, err
	}
	return resp.Qid, nil
}

// Getattr fills a Stat for fid according to mask (spec.md §6's
// Getattr* bits).
func (fid *Fid) Getattr(mask uint64) (p9.Stat, error) {
	req := &p9.Fcall{Type: p9.Tgetattr, Fid: fid.id, ReqMask: mask}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return p9.Stat{}, err
	}
	return resp.Stat, nil
}

// readMax is the largest count the caller may request for a single
// Pread/Pwrite given the connection's negotiated msize (spec.md §4.5,
// GLOSSARY IOHDRSZ).
func (fid *Fid) readMax() uint32 {
	m := fid.conn.msize
	if m <= p9.IOHDRSZ {
		return 0
	}
	return m - p9.IOHDRSZ
}

// Pread reads up to count bytes at offset into buf. count is clamped
// to msize-IOHDRSZ; a short return is not an error, the caller is
// expected to loop (spec.md §8 scenario 5).
func (fid *Fid) Pread(buf []byte, count uint32, offset uint64) (int, error) {
	if max := fid.readMax(); count > max {
		count = max
	}
	req := &p9.Fcall{Type: p9.Tread, Fid: fid.id, Offset: offset, Count: count}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return 0, err
	}
	n := copy(buf, resp.Data)
	return n, nil
}

// Pwrite writes data at offset. At most msize-IOHDRSZ bytes are sent;
// the returned count may be short and is not an error.
func (fid *Fid) Pwrite(data []byte, offset uint64) (int, error) {
	if max := fid.readMax(); uint32(len(data)) > max {
		data = data[:max]
	}
	req := &p9.Fcall{Type: p9.Twrite, Fid: fid.id, Offset: offset, Data: data}
	resp, err := fid.conn.rpc(req)
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

// Read reads into buf starting at fid's local cursor, looping over
// Pread until buf is full or the server returns a zero-length read,
// advancing the cursor as it goes (grounded on libnpclient's
// npc_read convenience wrapper over npc_pread).
func (fid *Fid) Read(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := fid.Pread(buf[total:], uint32(len(buf)-total), fid.offset)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		fid.offset += uint64(n)
		total += n
	}
	if total == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Write writes all of data starting at fid's local cursor, looping
// over Pwrite.
func (fid *Fid) Write(data []byte) (int, error) {
	total := 0
	for total < len(data) {
		n, err := fid.Pwrite(data[total:], fid.offset)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		fid.offset += uint64(n)
		total += n
	}
	return total, nil
}

// Seek repositions fid's local read/write cursor. Only SeekStart and
// SeekCurrent are supported: the reference implementation's lseek does
// not support SEEK_END either (it is a pure local cursor, not backed by
// a live size), and this client preserves that restriction rather than
// silently faking it via GETATTR (spec.md §9 open question).
func (fid *Fid) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return 0, &p9.InvalidArgumentError{Msg: "negative offset"}
		}
		fid.offset = uint64(offset)
	case io.SeekCurrent:
		next := int64(fid.offset) + offset
		if next < 0 {
			return 0, &p9.InvalidArgumentError{Msg: "negative offset"}
		}
		fid.offset = uint64(next)
	case io.SeekEnd:
		return 0, &p9.InvalidArgumentError{Msg: "SEEK_END is not supported"}
	default:
		return 0, &p9.InvalidArgumentError{Msg: "unknown whence"}
	}
	return int64(fid.offset), nil
}

// OpenPath walks from fid along path and opens the result with Lopen,
// combining Walk+Lopen in one call (grounded on libnpclient's
// npc_open_bypath).
func (fid *Fid) OpenPath(path string, mode uint32) (*Fid, error) {
	target, err := fid.Walk(path)
	if err != nil {
		return nil, err
	}
	if err := target.Lopen(mode); err != nil {
		target.Clunk() //nolint:errcheck
		return nil, err
	}
	return target, nil
}

// CreatePath walks from fid to the directory dir and creates name in
// it, returning the new file's fid, combining Walk+Lcreate
// (grounded on libnpclient's npc_create_bypath).
func (fid *Fid) CreatePath(dir, name string, mode, perm, gid uint32) (*Fid, error) {
	parent, err := fid.Walk(dir)
	if err != nil {
		return nil, err
	}
	if err := parent.Lcreate(name, mode, perm, gid); err != nil {
		parent.Clunk() //nolint:errcheck
		return nil, err
	}
	return parent, nil
}
