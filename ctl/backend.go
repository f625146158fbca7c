package ctl

import (
	"strings"

	"github.com/sandia-minimega/mini9p/p9"
	"github.com/sandia-minimega/mini9p/srv"
)

// Backend adapts a Tree to srv.Backend, hard-wired to intercept ATTACH
// when aname == "ctl" (spec.md §4.7). Grounded on
// original_source/libnpfs/ctl.c's np_ctl_* callback set.
type Backend struct {
	srv.UnimplementedBackend
	tree    *Tree
	metrics *Metrics
}

// NewBackend wraps tree as an srv.Backend. metrics may be nil, in which
// case no counters are kept.
func NewBackend(tree *Tree, metrics *Metrics) *Backend {
	return &Backend{tree: tree, metrics: metrics}
}

// fidState is what Backend stores in srv.Fid.Aux: the node the fid is
// currently positioned at, plus a per-fid cache of that node's content
// (spec.md §4.7: "content is generated at most once per fid, cached
// until clunk").
type fidState struct {
	node    *Node
	cached  []byte
	hasData bool
}

func state(fid *srv.Fid) *fidState {
	fs, _ := fid.Aux.(*fidState)
	return fs
}

func (b *Backend) Attach(fid, afid *srv.Fid, uname, aname string, uid uint32) (p9.Qid, error) {
	if aname != "ctl" && aname != "" {
		return p9.Qid{}, &p9.ServerError{Errno: p9.ENOENT}
	}
	fid.Aux = &fidState{node: b.tree.Root}
	if b.metrics != nil {
		b.metrics.IncRequest("attach")
		b.metrics.FidOpened()
	}
	return b.tree.Root.Qid, nil
}

func (b *Backend) Clone(fid, newfid *srv.Fid) error {
	src := state(fid)
	if src == nil {
		return &p9.ServerError{Errno: p9.EBADF}
	}
	newfid.Aux = &fidState{node: src.node}
	if b.metrics != nil {
		b.metrics.FidOpened()
	}
	return nil
}

func (b *Backend) Walk(fid, newfid *srv.Fid, name string) (p9.Qid, error) {
	src := state(fid)
	if src == nil {
		return p9.Qid{}, &p9.ServerError{Errno: p9.EBADF}
	}
	if name == ".." {
		return p9.Qid{}, &p9.ServerError{Errno: p9.ENOSYS}
	}
	if strings.Contains(name, "/") {
		return p9.Qid{}, &p9.InvalidArgumentError{Msg: "ctl: walk name contains '/'"}
	}
	child, ok := lookup(src.node, name)
	if !ok {
		return p9.Qid{}, &p9.ServerError{Errno: p9.ENOENT}
	}
	dst := state(newfid)
	if dst == nil {
		dst = &fidState{}
		newfid.Aux = dst
	}
	dst.node = child
	dst.hasData = false
	dst.cached = nil
	if b.metrics != nil {
		b.metrics.IncRequest("walk")
	}
	return child.Qid, nil
}

func (b *Backend) FidDestroy(fid *srv.Fid) {
	if b.metrics != nil {
		b.metrics.FidClosed()
	}
}

// Lopen permits only read access (spec.md §4.7: "the tree is read-only
// to clients"). mode carries raw Linux open flags; any write intent in
// O_ACCMODE is rejected.
func (b *Backend) Lopen(fid *srv.Fid, mode uint32) (p9.Qid, uint32, error) {
	if mode&0x3 != 0 {
		return p9.Qid{}, 0, &p9.ServerError{Errno: p9.EACCES}
	}
	fs := state(fid)
	if fs == nil {
		return p9.Qid{}, 0, &p9.ServerError{Errno: p9.EBADF}
	}
	if fs.node.getf == nil && !fs.node.isDir() {
		return p9.Qid{}, 0, &p9.ServerError{Errno: p9.EIO}
	}
	if b.metrics != nil {
		b.metrics.IncRequest("lopen")
	}
	return fs.node.Qid, 8192, nil
}

func (b *Backend) Read(fid *srv.Fid, offset uint64, count uint32) ([]byte, error) {
	fs := state(fid)
	if fs == nil {
		return nil, &p9.ServerError{Errno: p9.EBADF}
	}
	if fs.node.isDir() {
		return nil, &p9.ServerError{Errno: p9.EISDIR}
	}
	if !fs.hasData {
		content := ""
		if fs.node.getf != nil {
			content = fs.node.getf(fs.node.getfArg)
		}
		fs.cached = []byte(content)
		fs.hasData = true
	}
	if offset >= uint64(len(fs.cached)) {
		return nil, nil
	}
	end := offset + uint64(count)
	if end > uint64(len(fs.cached)) {
		end = uint64(len(fs.cached))
	}
	if b.metrics != nil {
		b.metrics.IncRequest("read")
	}
	return fs.cached[offset:end], nil
}

// Readdir serializes child entries starting after the given offset,
// treating offset as the 1-based index of the last entry the caller
// already consumed (grounded on np_ctl_readdir's resumable listing,
// simplified to index-based rather than byte-based resumption).
func (b *Backend) Readdir(fid *srv.Fid, offset uint64, count uint32) ([]p9.DirEntry, error) {
	fs := state(fid)
	if fs == nil {
		return nil, &p9.ServerError{Errno: p9.EBADF}
	}
	if !fs.node.isDir() {
		return nil, &p9.ServerError{Errno: p9.ENOTDIR}
	}

	var entries []p9.DirEntry
	var used uint32
	for i, child := range fs.node.Children {
		idx := uint64(i + 1)
		if idx <= offset {
			continue
		}
		size := dirEntrySize(child.Name)
		if used+size > count && len(entries) > 0 {
			break
		}
		typ := uint8(0)
		if child.isDir() {
			typ = p9.QTDIR
		}
		entries = append(entries, p9.DirEntry{
			Qid:    child.Qid,
			Offset: idx,
			Type:   typ,
			Name:   child.Name,
		})
		used += size
	}
	return entries, nil
}

// dirEntrySize mirrors the wire size of one serialized READDIR entry:
// qid[13] offset[8] type[1] name_len[2] name[name_len].
func dirEntrySize(name string) uint32 {
	return 13 + 8 + 1 + 2 + uint32(len(name))
}

func (b *Backend) Getattr(fid *srv.Fid, mask uint64) (p9.Stat, error) {
	fs := state(fid)
	if fs == nil {
		return p9.Stat{}, &p9.ServerError{Errno: p9.EBADF}
	}
	n := fs.node
	mode := n.Mode
	if n.isDir() {
		mode |= p9.DMDIR
	}
	return p9.Stat{
		Qid:        n.Qid,
		Mode:       mode,
		Uid:        n.Uid,
		Gid:        n.Gid,
		Nlink:      1,
		Size:       uint64(len(n.Name)),
		Atime:      uint64(n.Atime.Unix()),
		Mtime:      uint64(n.Mtime.Unix()),
		Ctime:      uint64(n.Ctime.Unix()),
	}, nil
}

// Setattr is unsupported: the tree is read-only.
func (b *Backend) Setattr(fid *srv.Fid, mask uint32, stat p9.Stat) error {
	return &p9.ServerError{Errno: p9.EACCES}
}

// Remove, Lcreate, Mkdir, Write stay at UnimplementedBackend's ENOSYS:
// the tree never supports mutation (spec.md §4.7 Non-goals).
