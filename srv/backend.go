package srv

import "github.com/sandia-minimega/mini9p/p9"

// Backend is the pluggable file-system callback set a Server dispatches
// onto (spec.md §4.6). The backend behind these callbacks — the thing
// that actually reads and writes user data — is deliberately out of
// scope for this library; Backend only specifies the contract between
// the request engine and that backend.
type Backend interface {
	// Attach creates the root fid for aname. afid, if non-nil, was
	// previously produced by a successful Auth exchange.
	Attach(fid *Fid, afid *Fid, uname, aname string, uid uint32) (p9.Qid, error)

	// Clone sets up newfid as an alias of fid: same object, independent
	// lifetime. It serves the zero-name WALK case and sets up the
	// cursor of every other WALK.
	Clone(fid, newfid *Fid) error

	// Walk advances newfid, currently positioned at the same object as
	// fid, one path element to name's child, returning its qid.
	Walk(fid, newfid *Fid, name string) (p9.Qid, error)

	// FidDestroy runs when fid's refcount reaches zero.
	FidDestroy(fid *Fid)

	Lopen(fid *Fid, mode uint32) (p9.Qid, uint32, error)
	Lcreate(fid *Fid, name string, mode, perm, gid uint32) (p9.Qid, uint32, error)
	Mkdir(fid *Fid, name string, perm, gid uint32) (p9.Qid, error)
	Remove(fid *Fid) error

	Read(fid *Fid, offset uint64, count uint32) ([]byte, error)
	Write(fid *Fid, offset uint64, data []byte) (uint32, error)
	Readdir(fid *Fid, offset uint64, count uint32) ([]p9.DirEntry, error)

	Getattr(fid *Fid, mask uint64) (p9.Stat, error)
	Setattr(fid *Fid, mask uint32, stat p9.Stat) error
}

// UnimplementedBackend answers ENOSYS to every callback except Clone
// (succeeds without touching either fid), Walk (answers ENOENT) and
// FidDestroy (does nothing). Embed it in a concrete backend and
// override only the operations that backend supports (spec.md §4.6:
// "the server MAY supply a default implementation for any callback
// that returns ENOSYS").
type UnimplementedBackend struct{}

func enosys() error { return &p9.ServerError{Errno: p9.ENOSYS} }

func (UnimplementedBackend) Attach(*Fid, *Fid, string, string, uint32) (p9.Qid, error) {
	return p9.Qid{}, enosys()
}
func (UnimplementedBackend) Clone(*Fid, *Fid) error { return nil }
func (UnimplementedBackend) Walk(*Fid, *Fid, string) (p9.Qid, error) {
	return p9.Qid{}, &p9.ServerError{Errno: p9.ENOENT}
}
func (UnimplementedBackend) FidDestroy(*Fid) {}
func (UnimplementedBackend) Lopen(*Fid, uint32) (p9.Qid, uint32, error) {
	return p9.Qid{}, 0, enosys()
}
func (UnimplementedBackend) Lcreate(*Fid, string, uint32, uint32, uint32) (p9.Qid, uint32, error) {
	return p9.Qid{}, 0, enosys()
}
func (UnimplementedBackend) Mkdir(*Fid, string, uint32, uint32) (p9.Qid, error) {
	return p9.Qid{}, enosys()
}
func (UnimplementedBackend) Remove(*Fid) error { return enosys() }
func (UnimplementedBackend) Read(*Fid, uint64, uint32) ([]byte, error) {
	return nil, enosys()
}
func (UnimplementedBackend) Write(*Fid, uint64, []byte) (uint32, error) {
	return 0, enosys()
}
func (UnimplementedBackend) Readdir(*Fid, uint64, uint32) ([]p9.DirEntry, error) {
	return nil, enosys()
}
func (UnimplementedBackend) Getattr(*Fid, uint64) (p9.Stat, error) {
	return p9.Stat{}, enosys()
}
func (UnimplementedBackend) Setattr(*Fid, uint32, p9.Stat) error { return enosys() }
