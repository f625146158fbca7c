package tunnel_test

import (
	"net"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sandia-minimega/mini9p/internal/tunnel"
)

func serve(t *testing.T, g net.Conn) {
	t.Helper()
	go func() {
		if err := tunnel.ListenAndServe(g, nil); err != nil && err.Error() != "io: read/write on closed pipe" {
			t.Logf("ListenAndServe: %v", err)
		}
	}()
}

func TestHandshake(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()
	serve(t, g)

	_, err := tunnel.Dial(h, nil)
	c.Assert(err, qt.IsNil)
}

func TestForward(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()
	serve(t, g)

	tun, err := tunnel.Dial(h, nil)
	c.Assert(err, qt.IsNil)

	backend, err := net.Listen("tcp", ":18445")
	c.Assert(err, qt.IsNil)
	defer backend.Close()

	echoed := make(chan string, 1)
	go func() {
		conn, err := backend.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := conn.Read(buf)
		echoed <- string(buf[:n])
		conn.Write([]byte("world"))
	}()

	c.Assert(tun.Forward(18444, "localhost", 18445), qt.IsNil)

	client, err := net.Dial("tcp", ":18444")
	c.Assert(err, qt.IsNil)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	c.Assert(err, qt.IsNil)
	c.Assert(<-echoed, qt.Equals, "hello")

	buf := make([]byte, 16)
	n, err := client.Read(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf[:n]), qt.Equals, "world")
}

func TestReverse(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()
	serve(t, g)

	tun, err := tunnel.Dial(h, nil)
	c.Assert(err, qt.IsNil)

	backend, err := net.Listen("tcp", ":18447")
	c.Assert(err, qt.IsNil)
	defer backend.Close()

	go func() {
		conn, err := backend.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	}()

	c.Assert(tun.Reverse(18446, "localhost", 18447), qt.IsNil)

	client, err := net.Dial("tcp", ":18446")
	c.Assert(err, qt.IsNil)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	c.Assert(err, qt.IsNil)

	buf := make([]byte, 16)
	n, err := client.Read(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf[:n]), qt.Equals, "ping")
}

func TestForwardInvalidPort(t *testing.T) {
	c := qt.New(t)
	g, h := net.Pipe()
	serve(t, g)

	tun, err := tunnel.Dial(h, nil)
	c.Assert(err, qt.IsNil)

	c.Assert(tun.Forward(-1, "localhost", 450), qt.IsNotNil)
}
