package p9

import (
	"encoding/binary"
)

// enc accumulates a payload by appending fixed-width little-endian
// fields and length-prefixed strings/data.
type enc struct {
	buf []byte
}

func (e *enc) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *enc) u16(v uint16) { e.buf = append(e.buf, byte(v), byte(v>>8)) }
func (e *enc) u32(v uint32) {
	e.buf = append(e.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func (e *enc) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *enc) str(s string) error {
	if len(s) > 0xFFFF {
		return &InvalidArgumentError{Msg: "string exceeds 65535 bytes"}
	}
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

func (e *enc) data(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *enc) qid(q Qid) {
	e.u8(q.Type)
	e.u32(q.Version)
	e.u64(q.Path)
}

// dec reads sequentially from a payload, tracking position, and fails
// closed: any read past the end or any declared length exceeding the
// remainder is a ProtocolError.
type dec struct {
	buf []byte
	pos int
}

func (d *dec) need(n int) error {
	if d.pos+n > len(d.buf) {
		return &ProtocolError{Msg: "message truncated"}
	}
	return nil
}

func (d *dec) u8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *dec) u16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *dec) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *dec) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *dec) str() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// bytes returns a slice of the declared data, borrowed from the input
// buffer (no copy), per spec.md §4.1.
func (d *dec) bytes() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *dec) qid() (Qid, error) {
	var q Qid
	t, err := d.u8()
	if err != nil {
		return q, err
	}
	v, err := d.u32()
	if err != nil {
		return q, err
	}
	p, err := d.u64()
	if err != nil {
		return q, err
	}
	q.Type, q.Version, q.Path = t, v, p
	return q, nil
}

func (d *dec) stat() (Stat, error) {
	var s Stat
	var err error
	if s.Qid, err = d.qid(); err != nil {
		return s, err
	}
	fields := []*uint64{}
	u32s := []*uint32{&s.Mode, &s.Uid, &s.Gid}
	for _, p := range u32s {
		v, err := d.u32()
		if err != nil {
			return s, err
		}
		*p = v
	}
	u64s := []*uint64{&s.Nlink, &s.Rdev, &s.Size, &s.Blksize, &s.Blocks,
		&s.Atime, &s.AtimeNsec, &s.Mtime, &s.MtimeNsec, &s.Ctime, &s.CtimeNsec}
	fields = append(fields, u64s...)
	for _, p := range fields {
		v, err := d.u64()
		if err != nil {
			return s, err
		}
		*p = v
	}
	return s, nil
}

func (e *enc) stat(s Stat) {
	e.qid(s.Qid)
	e.u32(s.Mode)
	e.u32(s.Uid)
	e.u32(s.Gid)
	e.u64(s.Nlink)
	e.u64(s.Rdev)
	e.u64(s.Size)
	e.u64(s.Blksize)
	e.u64(s.Blocks)
	e.u64(s.Atime)
	e.u64(s.AtimeNsec)
	e.u64(s.Mtime)
	e.u64(s.MtimeNsec)
	e.u64(s.Ctime)
	e.u64(s.CtimeNsec)
}

// Encode encodes fc into a complete length-prefixed frame. msize bounds
// the total frame size (0 disables the check, as for the very first
// TVERSION before a size is negotiated). Encoding fails closed:
// no partial frame is ever returned.
func Encode(fc *Fcall, msize uint32) ([]byte, error) {
	e := &enc{}
	var err error

	switch fc.Type {
	case Tversion, Rversion:
		e.u32(fc.Msize)
		err = e.str(fc.Version)
	case Tauth:
		e.u32(fc.Afid)
		if err = e.str(fc.Uname); err == nil {
			err = e.str(fc.Aname)
		}
		e.u32(fc.Uid)
	case Rauth:
		e.qid(fc.Qid)
	case Tattach:
		e.u32(fc.Fid)
		e.u32(fc.Afid)
		if err = e.str(fc.Uname); err == nil {
			err = e.str(fc.Aname)
		}
		e.u32(fc.Uid)
	case Rattach:
		e.qid(fc.Qid)
	case Rlerror, Terror:
		e.u32(fc.Errno)
	case Rerror:
		if err = e.str(fc.Ename); err == nil {
			e.u32(fc.Errno)
		}
	case Tflush:
		e.u16(fc.Oldtag)
	case Rflush:
		// empty
	case Twalk:
		if len(fc.Wname) > MaxWElem {
			err = &InvalidArgumentError{Msg: "walk exceeds MAXWELEM"}
			break
		}
		e.u32(fc.Fid)
		e.u32(fc.Newfid)
		e.u16(uint16(len(fc.Wname)))
		for _, n := range fc.Wname {
			if err = e.str(n); err != nil {
				break
			}
		}
	case Rwalk:
		e.u16(uint16(len(fc.Wqid)))
		for _, q := range fc.Wqid {
			e.qid(q)
		}
	case Topen:
		e.u32(fc.Fid)
		e.u8(uint8(fc.Mode))
	case Ropen:
		e.qid(fc.Qid)
		e.u32(fc.Iounit)
	case Tlopen:
		e.u32(fc.Fid)
		e.u32(fc.Mode)
	case Rlopen:
		e.qid(fc.Qid)
		e.u32(fc.Iounit)
	case Tcreate:
		e.u32(fc.Fid)
		if err = e.str(fc.Name); err == nil {
			e.u32(fc.Perm)
			e.u8(uint8(fc.Mode))
		}
	case Rcreate:
		e.qid(fc.Qid)
		e.u32(fc.Iounit)
	case Tlcreate:
		e.u32(fc.Fid)
		if err = e.str(fc.Name); err == nil {
			e.u32(fc.Mode)
			e.u32(fc.Perm)
			e.u32(fc.Gid)
		}
	case Rlcreate:
		e.qid(fc.Qid)
		e.u32(fc.Iounit)
	case Tread:
		e.u32(fc.Fid)
		e.u64(fc.Offset)
		e.u32(fc.Count)
	case Rread:
		if msize != 0 && uint32(len(fc.Data)) > msize-IOHDRSZ+4 {
			err = &InvalidArgumentError{Msg: "read data exceeds msize"}
			break
		}
		e.data(fc.Data)
	case Twrite:
		e.u32(fc.Fid)
		e.u64(fc.Offset)
		if msize != 0 && uint32(len(fc.Data)) > msize-IOHDRSZ {
			err = &InvalidArgumentError{Msg: "write data exceeds msize"}
			break
		}
		e.data(fc.Data)
	case Rwrite:
		e.u32(fc.Count)
	case Tclunk, Tremove, Tfsync:
		e.u32(fc.Fid)
	case Rclunk, Rremove, Rfsync:
		// empty
	case Tstat:
		e.u32(fc.Fid)
	case Rstat:
		e.stat(fc.Stat)
	case Twstat:
		e.u32(fc.Fid)
		e.stat(fc.Stat)
	case Rwstat:
		// empty
	case Tgetattr:
		e.u32(fc.Fid)
		e.u64(fc.ReqMask)
	case Rgetattr:
		e.u64(fc.ReqMask)
		e.stat(fc.Stat)
	case Tsetattr:
		e.u32(fc.Fid)
		e.u32(fc.ValidMask)
		e.stat(fc.Stat)
	case Rsetattr:
		// empty
	case Treaddir:
		e.u32(fc.Fid)
		e.u64(fc.Offset)
		e.u32(fc.Count)
	case Rreaddir:
		body := &enc{}
		for _, ent := range fc.Entries {
			body.qid(ent.Qid)
			body.u64(ent.Offset)
			body.u8(ent.Type)
			if err = body.str(ent.Name); err != nil {
				break
			}
		}
		if err == nil {
			e.data(body.buf)
		}
	case Tmkdir:
		e.u32(fc.Dfid)
		if err = e.str(fc.Name); err == nil {
			e.u32(fc.Perm)
			e.u32(fc.Gid)
		}
	case Rmkdir:
		e.qid(fc.Qid)
	case Tmknod:
		e.u32(fc.Dfid)
		if err = e.str(fc.Name); err == nil {
			e.u32(fc.Mode)
			e.u32(fc.Major)
			e.u32(fc.Minor)
			e.u32(fc.Gid)
		}
	case Rmknod:
		e.qid(fc.Qid)
	case Tsymlink:
		e.u32(fc.Dfid)
		if err = e.str(fc.Name); err == nil {
			if err = e.str(fc.Symtgt); err == nil {
				e.u32(fc.Gid)
			}
		}
	case Rsymlink:
		e.qid(fc.Qid)
	case Treadlink:
		e.u32(fc.Fid)
	case Rreadlink:
		err = e.str(fc.Symtgt)
	case Trename:
		e.u32(fc.Fid)
		e.u32(fc.Dfid)
		err = e.str(fc.NewName)
	case Rrename:
		// empty
	case Trenameat:
		e.u32(fc.Fid)
		if err = e.str(fc.OldName); err == nil {
			e.u32(fc.Dfid)
			err = e.str(fc.NewName)
		}
	case Rrenameat:
		// empty
	case Tunlinkat:
		e.u32(fc.Dfid)
		if err = e.str(fc.Name); err == nil {
			e.u32(fc.Flags)
		}
	case Runlinkat:
		// empty
	case Tlink:
		e.u32(fc.Dfid)
		e.u32(fc.Fid)
		err = e.str(fc.Name)
	case Rlink:
		// empty
	case Tstatfs:
		e.u32(fc.Fid)
	case Rstatfs:
		e.u32(fc.FSType)
		e.u32(fc.Bsize)
		e.u64(fc.Blocks)
		e.u64(fc.Bfree)
		e.u64(fc.Bavail)
		e.u64(fc.Files)
		e.u64(fc.Ffree)
		e.u64(fc.Fsid)
		e.u32(fc.Namelen)
	case Txattrwalk:
		e.u32(fc.Fid)
		e.u32(fc.Newfid)
		err = e.str(fc.AttrName)
	case Rxattrwalk:
		e.u64(fc.AttrSize)
	case Txattrcreate:
		e.u32(fc.Fid)
		if err = e.str(fc.AttrName); err == nil {
			e.u64(fc.AttrSize)
			e.u32(fc.Flags)
		}
	case Rxattrcreate:
		// empty
	case Tlock:
		e.u32(fc.Fid)
		e.u8(fc.LockType)
		e.u32(fc.LockFlags)
		e.u64(fc.LockStart)
		e.u64(fc.LockLength)
		e.u32(fc.LockProcID)
		err = e.str(fc.LockClient)
	case Rlock:
		e.u8(fc.LockType)
	case Tgetlock:
		e.u32(fc.Fid)
		e.u8(fc.LockType)
		e.u64(fc.LockStart)
		e.u64(fc.LockLength)
		e.u32(fc.LockProcID)
		err = e.str(fc.LockClient)
	case Rgetlock:
		e.u8(fc.LockType)
		e.u64(fc.LockStart)
		e.u64(fc.LockLength)
		e.u32(fc.LockProcID)
		err = e.str(fc.LockClient)
	default:
		err = &ProtocolError{Msg: "encode: unknown message type"}
	}

	if err != nil {
		return nil, err
	}

	frameLen := 4 + 1 + 2 + len(e.buf)
	if msize != 0 && uint32(frameLen) > msize {
		return nil, &InvalidArgumentError{Msg: "frame exceeds negotiated msize"}
	}

	out := make([]byte, frameLen)
	binary.LittleEndian.PutUint32(out[0:4], uint32(frameLen))
	out[4] = fc.Type
	binary.LittleEndian.PutUint16(out[5:7], fc.Tag)
	copy(out[7:], e.buf)
	return out, nil
}

// Decode parses a complete frame (as returned by ReadFrame) into an
// Fcall. It rejects unknown type codes and any declared length
// exceeding the frame remainder.
func Decode(frame []byte) (*Fcall, error) {
	if len(frame) < 7 {
		return nil, &ProtocolError{Msg: "frame shorter than header"}
	}
	size := binary.LittleEndian.Uint32(frame[0:4])
	if int(size) != len(frame) {
		return nil, &ProtocolError{Msg: "frame size mismatch"}
	}

	fc := &Fcall{
		Type: frame[4],
		Tag:  binary.LittleEndian.Uint16(frame[5:7]),
	}
	d := &dec{buf: frame[7:]}
	var err error

	switch fc.Type {
	case Tversion, Rversion:
		if fc.Msize, err = d.u32(); err == nil {
			fc.Version, err = d.str()
		}
	case Tauth:
		if fc.Afid, err = d.u32(); err == nil {
			if fc.Uname, err = d.str(); err == nil {
				if fc.Aname, err = d.str(); err == nil {
					fc.Uid, err = d.u32()
				}
			}
		}
	case Rauth:
		fc.Qid, err = d.qid()
	case Tattach:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Afid, err = d.u32(); err == nil {
				if fc.Uname, err = d.str(); err == nil {
					if fc.Aname, err = d.str(); err == nil {
						fc.Uid, err = d.u32()
					}
				}
			}
		}
	case Rattach:
		fc.Qid, err = d.qid()
	case Rlerror, Terror:
		fc.Errno, err = d.u32()
	case Rerror:
		if fc.Ename, err = d.str(); err == nil {
			fc.Errno, err = d.u32()
		}
	case Tflush:
		fc.Oldtag, err = d.u16()
	case Rflush:
	case Twalk:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Newfid, err = d.u32(); err == nil {
				var n uint16
				if n, err = d.u16(); err == nil {
					if n > MaxWElem {
						err = &ProtocolError{Msg: "walk exceeds MAXWELEM"}
						break
					}
					fc.Wname = make([]string, n)
					for i := range fc.Wname {
						if fc.Wname[i], err = d.str(); err != nil {
							break
						}
					}
				}
			}
		}
	case Rwalk:
		var n uint16
		if n, err = d.u16(); err == nil {
			fc.Wqid = make([]Qid, n)
			for i := range fc.Wqid {
				if fc.Wqid[i], err = d.qid(); err != nil {
					break
				}
			}
		}
	case Topen:
		if fc.Fid, err = d.u32(); err == nil {
			var m uint8
			m, err = d.u8()
			fc.Mode = uint32(m)
		}
	case Ropen:
		if fc.Qid, err = d.qid(); err == nil {
			fc.Iounit, err = d.u32()
		}
	case Tlopen:
		if fc.Fid, err = d.u32(); err == nil {
			fc.Mode, err = d.u32()
		}
	case Rlopen:
		if fc.Qid, err = d.qid(); err == nil {
			fc.Iounit, err = d.u32()
		}
	case Tcreate:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Name, err = d.str(); err == nil {
				if fc.Perm, err = d.u32(); err == nil {
					var m uint8
					m, err = d.u8()
					fc.Mode = uint32(m)
				}
			}
		}
	case Rcreate:
		if fc.Qid, err = d.qid(); err == nil {
			fc.Iounit, err = d.u32()
		}
	case Tlcreate:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Name, err = d.str(); err == nil {
				if fc.Mode, err = d.u32(); err == nil {
					if fc.Perm, err = d.u32(); err == nil {
						fc.Gid, err = d.u32()
					}
				}
			}
		}
	case Rlcreate:
		if fc.Qid, err = d.qid(); err == nil {
			fc.Iounit, err = d.u32()
		}
	case Tread:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Offset, err = d.u64(); err == nil {
				fc.Count, err = d.u32()
			}
		}
	case Rread:
		fc.Data, err = d.bytes()
	case Twrite:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Offset, err = d.u64(); err == nil {
				fc.Data, err = d.bytes()
				fc.Count = uint32(len(fc.Data))
			}
		}
	case Rwrite:
		fc.Count, err = d.u32()
	case Tclunk, Tremove, Tfsync, Tstat:
		fc.Fid, err = d.u32()
	case Rclunk, Rremove, Rfsync, Rwstat, Rsetattr, Rrename, Rrenameat,
		Runlinkat, Rlink, Rxattrcreate:
	case Rstat:
		fc.Stat, err = d.stat()
	case Twstat:
		if fc.Fid, err = d.u32(); err == nil {
			fc.Stat, err = d.stat()
		}
	case Tgetattr:
		if fc.Fid, err = d.u32(); err == nil {
			fc.ReqMask, err = d.u64()
		}
	case Rgetattr:
		if fc.ReqMask, err = d.u64(); err == nil {
			fc.Stat, err = d.stat()
		}
	case Tsetattr:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.ValidMask, err = d.u32(); err == nil {
				fc.Stat, err = d.stat()
			}
		}
	case Treaddir:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Offset, err = d.u64(); err == nil {
				fc.Count, err = d.u32()
			}
		}
	case Rreaddir:
		var body []byte
		if body, err = d.bytes(); err == nil {
			bd := &dec{buf: body}
			for bd.pos < len(bd.buf) {
				var ent DirEntry
				if ent.Qid, err = bd.qid(); err != nil {
					break
				}
				if ent.Offset, err = bd.u64(); err != nil {
					break
				}
				if ent.Type, err = bd.u8(); err != nil {
					break
				}
				if ent.Name, err = bd.str(); err != nil {
					break
				}
				fc.Entries = append(fc.Entries, ent)
			}
		}
	case Tmkdir:
		if fc.Dfid, err = d.u32(); err == nil {
			if fc.Name, err = d.str(); err == nil {
				if fc.Perm, err = d.u32(); err == nil {
					fc.Gid, err = d.u32()
				}
			}
		}
	case Rmkdir, Rmknod, Rsymlink:
		fc.Qid, err = d.qid()
	case Tmknod:
		if fc.Dfid, err = d.u32(); err == nil {
			if fc.Name, err = d.str(); err == nil {
				if fc.Mode, err = d.u32(); err == nil {
					if fc.Major, err = d.u32(); err == nil {
						if fc.Minor, err = d.u32(); err == nil {
							fc.Gid, err = d.u32()
						}
					}
				}
			}
		}
	case Tsymlink:
		if fc.Dfid, err = d.u32(); err == nil {
			if fc.Name, err = d.str(); err == nil {
				if fc.Symtgt, err = d.str(); err == nil {
					fc.Gid, err = d.u32()
				}
			}
		}
	case Treadlink:
		fc.Fid, err = d.u32()
	case Rreadlink:
		fc.Symtgt, err = d.str()
	case Trename:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Dfid, err = d.u32(); err == nil {
				fc.NewName, err = d.str()
			}
		}
	case Trenameat:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.OldName, err = d.str(); err == nil {
				if fc.Dfid, err = d.u32(); err == nil {
					fc.NewName, err = d.str()
				}
			}
		}
	case Tunlinkat:
		if fc.Dfid, err = d.u32(); err == nil {
			if fc.Name, err = d.str(); err == nil {
				fc.Flags, err = d.u32()
			}
		}
	case Tlink:
		if fc.Dfid, err = d.u32(); err == nil {
			if fc.Fid, err = d.u32(); err == nil {
				fc.Name, err = d.str()
			}
		}
	case Tstatfs:
		fc.Fid, err = d.u32()
	case Rstatfs:
		if fc.FSType, err = d.u32(); err == nil {
			if fc.Bsize, err = d.u32(); err == nil {
				if fc.Blocks, err = d.u64(); err == nil {
					if fc.Bfree, err = d.u64(); err == nil {
						if fc.Bavail, err = d.u64(); err == nil {
							if fc.Files, err = d.u64(); err == nil {
								if fc.Ffree, err = d.u64(); err == nil {
									if fc.Fsid, err = d.u64(); err == nil {
										fc.Namelen, err = d.u32()
									}
								}
							}
						}
					}
				}
			}
		}
	case Txattrwalk:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.Newfid, err = d.u32(); err == nil {
				fc.AttrName, err = d.str()
			}
		}
	case Rxattrwalk:
		fc.AttrSize, err = d.u64()
	case Txattrcreate:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.AttrName, err = d.str(); err == nil {
				if fc.AttrSize, err = d.u64(); err == nil {
					fc.Flags, err = d.u32()
				}
			}
		}
	case Tlock:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.LockType, err = d.u8(); err == nil {
				if fc.LockFlags, err = d.u32(); err == nil {
					if fc.LockStart, err = d.u64(); err == nil {
						if fc.LockLength, err = d.u64(); err == nil {
							if fc.LockProcID, err = d.u32(); err == nil {
								fc.LockClient, err = d.str()
							}
						}
					}
				}
			}
		}
	case Rlock:
		fc.LockType, err = d.u8()
	case Tgetlock:
		if fc.Fid, err = d.u32(); err == nil {
			if fc.LockType, err = d.u8(); err == nil {
				if fc.LockStart, err = d.u64(); err == nil {
					if fc.LockLength, err = d.u64(); err == nil {
						if fc.LockProcID, err = d.u32(); err == nil {
							fc.LockClient, err = d.str()
						}
					}
				}
			}
		}
	case Rgetlock:
		if fc.LockType, err = d.u8(); err == nil {
			if fc.LockStart, err = d.u64(); err == nil {
				if fc.LockLength, err = d.u64(); err == nil {
					if fc.LockProcID, err = d.u32(); err == nil {
						fc.LockClient, err = d.str()
					}
				}
			}
		}
	default:
		err = &ProtocolError{Msg: "decode: unknown message type"}
	}

	if err != nil {
		return nil, err
	}
	return fc, nil
}
