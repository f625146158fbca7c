package p9

import "fmt"

// Qid is the server-minted identity of a file: stable across the
// file's lifetime, 13 bytes on the wire.
type Qid struct {
	Type    uint8
	Version uint32
	Path    uint64
}

func (q Qid) String() string {
	return fmt.Sprintf("(%.16x %x %s)", q.Path, q.Version, qidTypeString(q.Type))
}

func qidTypeString(t uint8) string {
	var s []byte
	if t&QTDIR != 0 {
		s = append(s, 'd')
	}
	if t&QTAPPEND != 0 {
		s = append(s, 'a')
	}
	if t&QTEXCL != 0 {
		s = append(s, 'A')
	}
	if t&QTMOUNT != 0 {
		s = append(s, 'l')
	}
	if t&QTAUTH != 0 {
		s = append(s, 't')
	}
	if t&QTTMP != 0 {
		s = append(s, 'T')
	}
	if t&QTSYMLINK != 0 {
		s = append(s, 'L')
	}
	if len(s) == 0 {
		s = append(s, '-')
	}
	return string(s)
}

// Stat is the getattr/readdir-style attribute record. Not every field
// is meaningful for every request_mask; this is the superset the wire
// form carries.
type Stat struct {
	Qid         Qid
	Mode        uint32
	Uid         uint32
	Gid         uint32
	Nlink       uint64
	Rdev        uint64
	Size        uint64
	Blksize     uint64
	Blocks      uint64
	Atime       uint64
	AtimeNsec   uint64
	Mtime       uint64
	MtimeNsec   uint64
	Ctime       uint64
	CtimeNsec   uint64
}

// GetattrMask bits, selecting which Stat fields the caller wants back.
const (
	GetattrMode  = 0x00000001
	GetattrNlink = 0x00000002
	GetattrUid   = 0x00000004
	GetattrGid   = 0x00000008
	GetattrRdev  = 0x00000010
	GetattrAtime = 0x00000020
	GetattrMtime = 0x00000040
	GetattrCtime = 0x00000080
	GetattrIno   = 0x00000100
	GetattrSize  = 0x00000200
	GetattrBlocks = 0x00000400
	GetattrBasic = 0x000007ff
	GetattrAll   = 0x00003fff
)

// DirEntry is a single directory entry as serialized by READDIR
// (spec.md §6): qid[13] offset[8] type[1] name_len[2] name[name_len].
type DirEntry struct {
	Qid    Qid
	Offset uint64
	Type   uint8
	Name   string
}

// Fcall is a tagged union of every 9P2000.L request/response. Variant
// fields not used by Type are left zero. This flattened shape trades
// a little memory for a much smaller codec surface than one struct per
// message (30+ message types sharing a handful of field shapes).
type Fcall struct {
	Type uint8
	Tag  uint16

	// VERSION
	Msize   uint32
	Version string

	// AUTH / ATTACH
	Afid  uint32
	Fid   uint32
	Uname string
	Aname string
	Uid   uint32
	Qid   Qid

	// ERROR
	Ename string
	Errno uint32

	// FLUSH
	Oldtag uint16

	// WALK
	Newfid uint32
	Wname  []string
	Wqid   []Qid

	// OPEN / CREATE / LOPEN / LCREATE / MKDIR / MKNOD / SYMLINK
	Mode    uint32
	Iounit  uint32
	Perm    uint32
	Name    string
	Gid     uint32
	Major   uint32
	Minor   uint32
	Symtgt  string

	// READ / WRITE
	Offset uint64
	Count  uint32
	Data   []byte

	// STAT / WSTAT / GETATTR / SETATTR
	Stat      Stat
	ReqMask   uint64
	ValidMask uint32

	// READDIR
	Entries []DirEntry

	// RENAME / LINK / RENAMEAT / UNLINKAT
	Dfid    uint32
	OldName string
	NewName string
	Flags   uint32

	// STATFS
	FSType  uint32
	Bsize   uint32
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Fsid    uint64
	Namelen uint32

	// XATTRWALK / XATTRCREATE
	AttrName string
	AttrSize uint64

	// LOCK / GETLOCK
	LockType   uint8
	LockFlags  uint32
	LockStart  uint64
	LockLength uint64
	LockProcID uint32
	LockClient string
}

// IsResponse reports whether the message type is a response (odd) per
// 9P convention. VERSION/AUTH/etc. all follow T=even, R=T+1.
func IsResponse(t uint8) bool {
	return t%2 == 1
}
