package ctl_test

import (
	"net"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sandia-minimega/mini9p/client"
	"github.com/sandia-minimega/mini9p/ctl"
	"github.com/sandia-minimega/mini9p/p9"
	"github.com/sandia-minimega/mini9p/srv"
)

func TestAttachDeniesWrongAname(t *testing.T) {
	c := qt.New(t)
	backend, _ := ctl.New("1.2.3")
	g, h := net.Pipe()

	s := srv.NewServer(backend)
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)

	_, err = conn.Attach(nil, "notctl", "glenda", 0)
	c.Assert(err, qt.ErrorAs, new(*p9.ServerError))
}

func TestVersionFileRoundTrip(t *testing.T) {
	c := qt.New(t)
	backend, _ := ctl.New("1.2.3")
	g, h := net.Pipe()

	s := srv.NewServer(backend)
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	vf, err := root.Walk("version")
	c.Assert(err, qt.IsNil)
	c.Assert(vf.Lopen(0), qt.IsNil)

	buf := make([]byte, 64)
	n, err := vf.Pread(buf, 64, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf[:n]), qt.Equals, "1.2.3\n")
}

func TestStatsFileReflectsRequests(t *testing.T) {
	c := qt.New(t)
	backend, metrics := ctl.New("1.2.3")
	g, h := net.Pipe()

	s := srv.NewServer(backend)
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	statsFid, err := root.Walk("stats")
	c.Assert(err, qt.IsNil)
	c.Assert(statsFid.Lopen(0), qt.IsNil)

	buf := make([]byte, 4096)
	n, err := statsFid.Pread(buf, 4096, 0)
	c.Assert(err, qt.IsNil)
	body := string(buf[:n])
	c.Assert(strings.Contains(body, "mini9p_requests_total"), qt.IsTrue)
	c.Assert(strings.Contains(body, "mini9p_active_fids"), qt.IsTrue)

	_ = metrics
}

func TestWalkUnknownFileIsENOENT(t *testing.T) {
	c := qt.New(t)
	backend, _ := ctl.New("1.2.3")
	g, h := net.Pipe()

	s := srv.NewServer(backend)
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	_, err = root.Walk("nope")
	c.Assert(err, qt.ErrorAs, new(*p9.ServerError))
	se := err.(*p9.ServerError)
	c.Assert(se.Errno, qt.Equals, uint32(p9.ENOENT))
}

func TestWriteIsRejected(t *testing.T) {
	c := qt.New(t)
	backend, _ := ctl.New("1.2.3")
	g, h := net.Pipe()

	s := srv.NewServer(backend)
	go s.Accept(g)

	conn, err := client.Start(h, 8192)
	c.Assert(err, qt.IsNil)

	root, err := conn.Attach(nil, "ctl", "glenda", 0)
	c.Assert(err, qt.IsNil)

	vf, err := root.Walk("version")
	c.Assert(err, qt.IsNil)
	c.Assert(vf.Lopen(1), qt.ErrorAs, new(*p9.ServerError))

	_, err = vf.Write([]byte("x"))
	c.Assert(err, qt.ErrorAs, new(*p9.ServerError))
}
