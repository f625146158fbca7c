package p9

import (
	"fmt"
	"strings"
)

// MsgName returns the short name of a message type, e.g. "Tversion".
func MsgName(t uint8) string {
	if n, ok := msgNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Tunknown(%d)", t)
}

var msgNames = map[uint8]string{
	Tlerror: "Tlerror", Rlerror: "Rlerror",
	Tstatfs: "Tstatfs", Rstatfs: "Rstatfs",
	Tlopen: "Tlopen", Rlopen: "Rlopen",
	Tlcreate: "Tlcreate", Rlcreate: "Rlcreate",
	Tsymlink: "Tsymlink", Rsymlink: "Rsymlink",
	Tmknod: "Tmknod", Rmknod: "Rmknod",
	Trename: "Trename", Rrename: "Rrename",
	Treadlink: "Treadlink", Rreadlink: "Rreadlink",
	Tgetattr: "Tgetattr", Rgetattr: "Rgetattr",
	Tsetattr: "Tsetattr", Rsetattr: "Rsetattr",
	Txattrwalk: "Txattrwalk", Rxattrwalk: "Rxattrwalk",
	Txattrcreate: "Txattrcreate", Rxattrcreate: "Rxattrcreate",
	Treaddir: "Treaddir", Rreaddir: "Rreaddir",
	Tfsync: "Tfsync", Rfsync: "Rfsync",
	Tlock: "Tlock", Rlock: "Rlock",
	Tgetlock: "Tgetlock", Rgetlock: "Rgetlock",
	Tlink: "Tlink", Rlink: "Rlink",
	Tmkdir: "Tmkdir", Rmkdir: "Rmkdir",
	Trenameat: "Trenameat", Rrenameat: "Rrenameat",
	Tunlinkat: "Tunlinkat", Runlinkat: "Runlinkat",
	Tversion: "Tversion", Rversion: "Rversion",
	Tauth: "Tauth", Rauth: "Rauth",
	Tattach: "Tattach", Rattach: "Rattach",
	Terror: "Terror", Rerror: "Rerror",
	Tflush: "Tflush", Rflush: "Rflush",
	Twalk: "Twalk", Rwalk: "Rwalk",
	Topen: "Topen", Ropen: "Ropen",
	Tcreate: "Tcreate", Rcreate: "Rcreate",
	Tread: "Tread", Rread: "Rread",
	Twrite: "Twrite", Rwrite: "Rwrite",
	Tclunk: "Tclunk", Rclunk: "Rclunk",
	Tremove: "Tremove", Rremove: "Rremove",
	Tstat: "Tstat", Rstat: "Rstat",
	Twstat: "Twstat", Rwstat: "Rwstat",
}

// permString formats a permission value as the original implementation's
// np_printperm does: a letter set (directory/append/excl/... bits) then
// the POSIX octal bits, e.g. "d775".
func permString(mode uint32) string {
	var s []byte
	bits := []struct {
		flag uint32
		c    byte
	}{
		{DMDIR, 'd'}, {DMAPPEND, 'a'}, {DMEXCL, 'A'}, {DMAUTH, 't'},
		{DMTMP, 'T'}, {DMSYMLINK, 'L'}, {DMDEVICE, 'D'}, {DMSOCKET, 'S'},
		{DMNAMEDPIPE, 'P'},
	}
	for _, b := range bits {
		if mode&b.flag != 0 {
			s = append(s, b.c)
		}
	}
	return fmt.Sprintf("%s%03o", string(s), mode&0777)
}

// Dump renders a single-line human-readable form of fc, in the style of
// the reference implementation's np_snprintfcall: total over every
// variant, never failing on a structurally valid Fcall.
func Dump(fc *Fcall) string {
	if fc == nil {
		return "<nil>"
	}
	name := MsgName(fc.Type)
	head := fmt.Sprintf("%s tag=%d", name, fc.Tag)

	switch fc.Type {
	case Tversion, Rversion:
		return fmt.Sprintf("%s msize=%d version=%q", head, fc.Msize, fc.Version)
	case Tauth:
		return fmt.Sprintf("%s afid=%d uname=%q aname=%q uid=%d", head, fc.Afid, fc.Uname, fc.Aname, fc.Uid)
	case Rauth:
		return fmt.Sprintf("%s aqid=%s", head, fc.Qid)
	case Tattach:
		return fmt.Sprintf("%s fid=%d afid=%d uname=%q aname=%q uid=%d", head, fc.Fid, fc.Afid, fc.Uname, fc.Aname, fc.Uid)
	case Rattach:
		return fmt.Sprintf("%s qid=%s", head, fc.Qid)
	case Rlerror:
		return fmt.Sprintf("%s ecode=%d", head, fc.Errno)
	case Rerror:
		return fmt.Sprintf("%s ename=%q", head, fc.Ename)
	case Tflush:
		return fmt.Sprintf("%s oldtag=%d", head, fc.Oldtag)
	case Rflush:
		return head
	case Twalk:
		return fmt.Sprintf("%s fid=%d newfid=%d wname=%s", head, fc.Fid, fc.Newfid, strings.Join(fc.Wname, "/"))
	case Rwalk:
		parts := make([]string, len(fc.Wqid))
		for i, q := range fc.Wqid {
			parts[i] = q.String()
		}
		return fmt.Sprintf("%s nwqid=%d %s", head, len(fc.Wqid), strings.Join(parts, " "))
	case Topen, Tlopen:
		return fmt.Sprintf("%s fid=%d mode=%#o", head, fc.Fid, fc.Mode)
	case Ropen, Rlopen, Rcreate, Rlcreate:
		return fmt.Sprintf("%s qid=%s iounit=%d", head, fc.Qid, fc.Iounit)
	case Tcreate:
		return fmt.Sprintf("%s fid=%d name=%q perm=%s mode=%#o", head, fc.Fid, fc.Name, permString(fc.Perm), fc.Mode)
	case Tlcreate:
		return fmt.Sprintf("%s fid=%d name=%q mode=%#o perm=%s gid=%d", head, fc.Fid, fc.Name, fc.Mode, permString(fc.Perm), fc.Gid)
	case Tread, Treaddir:
		return fmt.Sprintf("%s fid=%d offset=%d count=%d", head, fc.Fid, fc.Offset, fc.Count)
	case Rread:
		return fmt.Sprintf("%s count=%d", head, len(fc.Data))
	case Rreaddir:
		return fmt.Sprintf("%s nentries=%d", head, len(fc.Entries))
	case Twrite:
		return fmt.Sprintf("%s fid=%d offset=%d count=%d", head, fc.Fid, fc.Offset, len(fc.Data))
	case Rwrite:
		return fmt.Sprintf("%s count=%d", head, fc.Count)
	case Tclunk, Tremove, Tstat, Tfsync, Tstatfs, Treadlink:
		return fmt.Sprintf("%s fid=%d", head, fc.Fid)
	case Rclunk, Rremove, Rwstat, Rfsync, Rsetattr, Rrename, Rrenameat, Runlinkat, Rlink, Rxattrcreate:
		return head
	case Rstat:
		return fmt.Sprintf("%s %s", head, statString(fc.Stat))
	case Twstat:
		return fmt.Sprintf("%s fid=%d %s", head, fc.Fid, statString(fc.Stat))
	case Tgetattr:
		return fmt.Sprintf("%s fid=%d mask=%#x", head, fc.Fid, fc.ReqMask)
	case Rgetattr:
		return fmt.Sprintf("%s %s", head, statString(fc.Stat))
	case Tsetattr:
		return fmt.Sprintf("%s fid=%d valid=%#x %s", head, fc.Fid, fc.ValidMask, statString(fc.Stat))
	case Tmkdir:
		return fmt.Sprintf("%s dfid=%d name=%q perm=%s gid=%d", head, fc.Dfid, fc.Name, permString(fc.Perm), fc.Gid)
	case Rmkdir, Rmknod, Rsymlink:
		return fmt.Sprintf("%s qid=%s", head, fc.Qid)
	case Rreadlink:
		return fmt.Sprintf("%s target=%q", head, fc.Symtgt)
	case Trename:
		return fmt.Sprintf("%s fid=%d dfid=%d newname=%q", head, fc.Fid, fc.Dfid, fc.NewName)
	case Trenameat:
		return fmt.Sprintf("%s fid=%d oldname=%q dfid=%d newname=%q", head, fc.Fid, fc.OldName, fc.Dfid, fc.NewName)
	case Tunlinkat:
		return fmt.Sprintf("%s dfid=%d name=%q flags=%#x", head, fc.Dfid, fc.Name, fc.Flags)
	case Tlink:
		return fmt.Sprintf("%s dfid=%d fid=%d name=%q", head, fc.Dfid, fc.Fid, fc.Name)
	case Rstatfs:
		return fmt.Sprintf("%s type=%d bsize=%d blocks=%d bfree=%d", head, fc.FSType, fc.Bsize, fc.Blocks, fc.Bfree)
	case Txattrwalk:
		return fmt.Sprintf("%s fid=%d newfid=%d name=%q", head, fc.Fid, fc.Newfid, fc.AttrName)
	case Rxattrwalk:
		return fmt.Sprintf("%s size=%d", head, fc.AttrSize)
	case Txattrcreate:
		return fmt.Sprintf("%s fid=%d name=%q size=%d flags=%#x", head, fc.Fid, fc.AttrName, fc.AttrSize, fc.Flags)
	case Tlock, Tgetlock, Rgetlock:
		return fmt.Sprintf("%s fid=%d type=%d start=%d length=%d proc=%d", head, fc.Fid, fc.LockType, fc.LockStart, fc.LockLength, fc.LockProcID)
	case Rlock:
		return fmt.Sprintf("%s status=%d", head, fc.LockType)
	default:
		return head
	}
}

func statString(s Stat) string {
	return fmt.Sprintf("qid=%s mode=%s uid=%d gid=%d size=%d", s.Qid, permString(s.Mode), s.Uid, s.Gid, s.Size)
}
