// Package ctl implements the synthetic control-file tree (spec.md
// §4.7): an in-memory, read-only pseudo-filesystem mounted at
// aname "ctl", whose file contents are produced on demand by a
// callback. Grounded on original_source/libnpfs/ctl.c.
package ctl

import (
	"sync"
	"time"

	"github.com/sandia-minimega/mini9p/p9"
)

// GetFunc produces the content of a synthetic file on demand. It is
// called at most once per fid (the result is cached on that fid until
// clunk), never concurrently for the same fid.
type GetFunc func(arg interface{}) string

// Node is one entry in the synthetic tree: a directory (a container,
// never carrying content) or a file (read-only, content from GetFunc).
// A file never has children; only directories carry Children (spec.md
// §3's "a file never has children" invariant).
type Node struct {
	Name     string
	Qid      p9.Qid
	Mode     uint32
	Uid, Gid uint32
	Atime    time.Time
	Mtime    time.Time
	Ctime    time.Time

	Children []*Node

	getf    GetFunc
	getfArg interface{}
}

func (n *Node) isDir() bool { return n.Qid.Type&p9.QTDIR != 0 }

// Tree is an in-memory synthetic control-file tree. The qid path
// counter is process-wide per spec.md §4.7, but modeled as state owned
// by this Tree (spec.md §9 design note), not a hidden package-level
// singleton: each *Tree has its own counter.
type Tree struct {
	Root *Node

	mu      sync.Mutex
	nextInum uint64
}

// NewTree creates an empty tree with a bare root directory.
func NewTree() *Tree {
	t := &Tree{}
	t.Root = &Node{
		Name: "",
		Qid:  p9.Qid{Type: p9.QTDIR | p9.QTTMP, Path: t.nextPath()},
		Mode: p9.DMDIR | 0555,
	}
	now := time.Now()
	t.Root.Atime, t.Root.Mtime, t.Root.Ctime = now, now, now
	return t
}

// nextPath mints the next unique qid path, serialized by mu (spec.md
// §4.7: "a process-wide monotonic counter, serialized by a mutex").
func (t *Tree) nextPath() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextInum++
	return t.nextInum
}

// AddDir adds a subdirectory named name under parent, which must
// itself be a directory (grounded on np_ctl_adddir's requirement that
// the parent carry the DIR qid bit).
func (t *Tree) AddDir(parent *Node, name string, mode uint32) (*Node, error) {
	if !parent.isDir() {
		return nil, &p9.InvalidArgumentError{Msg: "ctl: parent is not a directory"}
	}
	now := time.Now()
	n := &Node{
		Name:  name,
		Qid:   p9.Qid{Type: p9.QTDIR | p9.QTTMP, Path: t.nextPath()},
		Mode:  p9.DMDIR | mode,
		Atime: now, Mtime: now, Ctime: now,
	}
	parent.Children = append(parent.Children, n)
	return n, nil
}

// AddFile adds a read-only file named name under parent, whose content
// is produced by getf(arg) on first read of any given fid (grounded on
// np_ctl_addfile).
func (t *Tree) AddFile(parent *Node, name string, mode uint32, getf GetFunc, arg interface{}) (*Node, error) {
	if !parent.isDir() {
		return nil, &p9.InvalidArgumentError{Msg: "ctl: parent is not a directory"}
	}
	now := time.Now()
	n := &Node{
		Name:    name,
		Qid:     p9.Qid{Type: p9.QTTMP, Path: t.nextPath()},
		Mode:    mode,
		Atime:   now, Mtime: now, Ctime: now,
		getf:    getf,
		getfArg: arg,
	}
	parent.Children = append(parent.Children, n)
	return n, nil
}

// lookup does a linear scan of parent's children by name (spec.md
// §4.7: "walk (linear scan of children by name)").
func lookup(parent *Node, name string) (*Node, bool) {
	for _, c := range parent.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
