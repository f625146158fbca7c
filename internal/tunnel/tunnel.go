// Copyright (2015) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Package tunnel multiplexes arbitrary TCP connections over a single
// transport, gob-framed, so a 9P server can be reached through a
// broker it never dials directly (cmd/ninetun's "export"/"broker"
// modes). Adapted from the teacher's minitunnel package: Tunnel's
// message pump, TID-keyed routing, and Forward/Reverse port-forwarding
// are unchanged in spirit, but logging goes through ninelog.Logger
// (package-level minilog does not fit a library meant to be embedded)
// and BUFFER_SIZE/HANDSHAKE-style exported constants are lowercased to
// match the rest of this module's naming.
package tunnel

import (
	"encoding/gob"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/sandia-minimega/mini9p/ninelog"
)

const bufferSize = 32768

const (
	msgHandshake = iota
	msgConnect
	msgClosed
	msgData
	msgForward
)

const errClosing = "use of closed network connection"

// Tunnel trunks any number of logical TCP connections over one
// underlying transport.
type Tunnel struct {
	transport io.ReadWriteCloser
	enc       *gob.Encoder
	dec       *gob.Decoder
	out       chan *message
	quit      chan struct{}
	tids      map[int32]chan *message
	rnum      *rand.Rand
	log       ninelog.Logger
}

type message struct {
	Type   int
	Ack    bool
	TID    int32
	Source int
	Host   string
	Port   int
	Error  string
	Data   []byte
}

func init() {
	gob.Register(message{})
}

// ListenAndServe waits for the incoming handshake on transport and then
// pumps messages until the transport closes or a fatal error occurs.
// Run it in a goroutine; exactly one Tunnel is permitted per transport.
func ListenAndServe(transport io.ReadWriteCloser, log ninelog.Logger) error {
	if log == nil {
		log = ninelog.Discard
	}
	enc := gob.NewEncoder(transport)
	dec := gob.NewDecoder(transport)

	var handshake message
	if err := dec.Decode(&handshake); err != nil {
		return err
	}
	if handshake.Type != msgHandshake {
		return fmt.Errorf("tunnel: did not receive handshake: %v", handshake)
	}

	if err := enc.Encode(&message{Type: msgHandshake, Ack: true}); err != nil {
		return err
	}

	t := &Tunnel{
		transport: transport,
		enc:       enc,
		dec:       dec,
		out:       make(chan *message, 1024),
		quit:      make(chan struct{}),
		tids:      make(map[int32]chan *message, 1024),
		rnum:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log,
	}
	return t.mux()
}

// Dial the listening end of a tunnel over transport, handshaking and
// starting the message pump in the background.
func Dial(transport io.ReadWriteCloser, log ninelog.Logger) (*Tunnel, error) {
	if log == nil {
		log = ninelog.Discard
	}
	t := &Tunnel{
		transport: transport,
		enc:       gob.NewEncoder(transport),
		dec:       gob.NewDecoder(transport),
		out:       make(chan *message, 1024),
		quit:      make(chan struct{}),
		tids:      make(map[int32]chan *message, 1024),
		rnum:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log,
	}

	if err := t.enc.Encode(&message{Type: msgHandshake}); err != nil {
		return nil, err
	}
	var ack message
	if err := t.dec.Decode(&ack); err != nil {
		return nil, err
	}
	if !ack.Ack {
		return nil, fmt.Errorf("tunnel: did not receive handshake ack: %v", ack)
	}

	go func() {
		if err := t.mux(); err != nil && err != io.ErrClosedPipe {
			t.log.Errorf("tunnel: mux: %v", err)
		}
	}()

	return t, nil
}

func (t *Tunnel) mux() error {
	go func() {
		for {
			select {
			case <-t.quit:
				return
			case m := <-t.out:
				if m == nil {
					return
				}
				if err := t.enc.Encode(m); err != nil {
					t.log.Errorf("tunnel: encode: %v", err)
				}
			}
		}
	}()

	for {
		var m message
		if err := t.dec.Decode(&m); err != nil {
			close(t.quit)
			t.transport.Close()
			return err
		}

		switch {
		case m.Type == msgConnect:
			go t.handleRemote(&m)
		case m.Type == msgForward:
			go t.handleReverse(&m)
		default:
			if c, ok := t.tids[m.TID]; ok {
				c <- &m
			} else {
				t.log.Warnf("tunnel: invalid tid: %v", m.TID)
			}
		}
	}
}

func (t *Tunnel) handleReverse(m *message) {
	resp := &message{Type: msgData, TID: m.TID, Ack: true}
	if err := t.Forward(m.Source, m.Host, m.Port); err != nil {
		resp.Error = err.Error()
	}
	t.out <- resp
}

// Forward listens on source (this side) and opens a new tunneled
// connection to host:dest (the other side) for every accepted client.
func (t *Tunnel) Forward(source int, host string, dest int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", source))
	if err != nil {
		return err
	}
	go t.forward(ln, host, dest)
	return nil
}

// Reverse asks the other side to Forward its source port back to
// host:dest on this side.
func (t *Tunnel) Reverse(source int, host string, dest int) error {
	tid := t.rnum.Int31()
	in := t.registerTID(tid)
	defer t.unregisterTID(tid)

	t.out <- &message{Type: msgForward, TID: tid, Source: source, Host: host, Port: dest}

	m := <-in
	if m.Error != "" {
		return fmt.Errorf("%s", m.Error)
	}
	return nil
}

func (t *Tunnel) forward(ln net.Listener, host string, dest int) {
	go func() {
		<-t.quit
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), errClosing) {
				t.log.Errorf("tunnel: accept: %v", err)
			}
			return
		}
		go t.handleTunnel(conn, host, dest)
	}
}

func (t *Tunnel) registerTID(tid int32) chan *message {
	c := make(chan *message, 1024)
	t.tids[tid] = c
	return c
}

func (t *Tunnel) unregisterTID(tid int32) {
	delete(t.tids, tid)
}

func (t *Tunnel) handleRemote(m *message) {
	tid := m.TID
	in := t.registerTID(tid)

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", m.Host, m.Port))
	if err != nil {
		t.log.Errorf("tunnel: dial %s:%d: %v", m.Host, m.Port, err)
		t.out <- &message{Type: msgClosed, TID: tid, Error: err.Error()}
		t.unregisterTID(tid)
		return
	}
	t.handle(in, conn, tid)
}

func (t *Tunnel) handleTunnel(conn net.Conn, host string, dest int) {
	tid := t.rnum.Int31()
	in := t.registerTID(tid)
	t.out <- &message{Type: msgConnect, Host: host, Port: dest, TID: tid}
	t.handle(in, conn, tid)
}

func (t *Tunnel) handle(in chan *message, conn net.Conn, tid int32) {
	go func() {
		for {
			select {
			case <-t.quit:
				conn.Close()
				return
			case m := <-in:
				if m.Type == msgClosed {
					if m.Error != "" {
						t.log.Errorf("tunnel: remote close: %v", m.Error)
					}
					conn.Close()
					return
				}
				if _, err := conn.Write(m.Data); err != nil {
					t.log.Errorf("tunnel: write: %v", err)
					conn.Close()
					t.out <- &message{Type: msgClosed, TID: tid, Error: err.Error()}
					return
				}
			}
		}
	}()

	buf := make([]byte, bufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			conn.Close()
			closeMsg := &message{Type: msgClosed, TID: tid}
			if err != io.EOF && !strings.Contains(err.Error(), errClosing) {
				closeMsg.Error = err.Error()
			}
			t.out <- closeMsg
			t.unregisterTID(tid)
			return
		}
		t.out <- &message{Type: msgData, TID: tid, Data: buf[:n]}
	}
}
