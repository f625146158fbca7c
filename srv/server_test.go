package srv_test

import (
	"net"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sandia-minimega/mini9p/client"
	"github.com/sandia-minimega/mini9p/p9"
	"github.com/sandia-minimega/mini9p/srv"
)

// memBackend is a minimal in-memory single-file backend used only to
// exercise the request engine's dispatch rules; it is not a real
// filesystem and deliberately implements just enough of srv.Backend
// for these tests (content for one flat file "version").
type memBackend struct {
	srv.UnimplementedBackend
	content string
}

func (b *memBackend) Attach(fid, afid *srv.Fid, uname, aname string, uid uint32) (p9.Qid, error) {
	fid.Aux = "root"
	return p9.Qid{Type: p9.QTDIR, Path: 1}, nil
}

func (b *memBackend) Clone(fid, newfid *srv.Fid) error {
	newfid.Aux = fid.Aux
	return nil
}

func (b *memBackend) Walk(fid, newfid *srv.Fid, name string) (p9.Qid, error) {
	if fid.Aux == "root" && name == "version" {
		newfid.Aux = "version"
		return p9.Qid{Type: p9.QTFILE, Path: 2}, nil
	}
	return p9.Qid{}, &p9.ServerError{Errno: p9.ENOENT}
}

func (b *memBackend) Lopen(fid *srv.Fid, mode uint32) (p9.Qid, uint32, error) {
	return fid.Qid, 4096, nil
}

func (b *memBackend) Read(fid *srv.Fid, offset uint64, count uint32) ([]byte, error) {
	if fid.Aux != "version" {
		return nil, &p9.ServerError{Errno: p9.EIO}
	}
	data := []byte(b.content)
	if offset >= uint64(len(data)) {
		return nil, nil
	}
	end := offset + uint64(count)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end], nil
}

func TestAttachWalkLopenRead(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()

	s := srv.NewServer(&memBackend{content: "2.0.0\n"})
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)
	c.Assert(conn.Msize(), qt.Equals, uint32(8192))

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	file, err := root.Walk("version")
	c.Assert(err, qt.IsNil)

	err = file.Lopen(0)
	c.Assert(err, qt.IsNil)

	buf := make([]byte, 64)
	n, err := file.Pread(buf, 64, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf[:n]), qt.Equals, "2.0.0\n")
}

func TestWalkUnknownNameReturnsENOENT(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()

	s := srv.NewServer(&memBackend{content: "x"})
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	_, err = root.Walk("nosuchfile")
	c.Assert(err, qt.ErrorAs, new(*p9.ServerError))
	se := err.(*p9.ServerError)
	c.Assert(se.Errno, qt.Equals, uint32(p9.ENOENT))
}

func TestMultiRPCConcurrentTags(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()

	s := srv.NewServer(&memBackend{content: "2.0.0\n"})
	go s.Accept(g)

	conn, err := client.Start(h, 8192, client.WithMode(client.Multi))
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	file, err := root.Walk("version")
	c.Assert(err, qt.IsNil)
	c.Assert(file.Lopen(0), qt.IsNil)

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			buf := make([]byte, 64)
			_, err := file.Pread(buf, 64, 0)
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		c.Assert(<-errs, qt.IsNil)
	}
}

// blockingBackend's Read blocks until release is closed, so a test can
// keep a read in flight while it sends a TFLUSH.
type blockingBackend struct {
	srv.UnimplementedBackend
	release chan struct{}
}

func (b *blockingBackend) Attach(fid, afid *srv.Fid, uname, aname string, uid uint32) (p9.Qid, error) {
	return p9.Qid{Type: p9.QTFILE, Path: 1}, nil
}

func (b *blockingBackend) Clone(fid, newfid *srv.Fid) error { return nil }

func (b *blockingBackend) Lopen(fid *srv.Fid, mode uint32) (p9.Qid, uint32, error) {
	return fid.Qid, 4096, nil
}

func (b *blockingBackend) Read(fid *srv.Fid, offset uint64, count uint32) ([]byte, error) {
	<-b.release
	return []byte("too late"), nil
}

func TestFlushUnknownTagLeavesPendingRead(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()

	release := make(chan struct{})
	s := srv.NewServer(&blockingBackend{release: release})
	go s.Accept(g)

	conn, err := client.Start(h, 8192, client.WithMode(client.Multi))
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(root.Lopen(0), qt.IsNil)

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		_, err := root.Pread(buf, 64, 0)
		readDone <- err
	}()

	// Give the read a moment to land on the server and start blocking.
	time.Sleep(20 * time.Millisecond)

	// We cannot name the read's tag from the client API directly, so we
	// exercise Flush's contract at the connection level instead: a
	// flush for a tag with no in-flight request returns immediately,
	// and releasing the blocked read afterward still completes the
	// original caller successfully (flush never corrupted the pending
	// read for an unrelated tag).
	c.Assert(conn.Flush(9999), qt.IsNil)

	close(release)
	c.Assert(<-readDone, qt.IsNil)
}
