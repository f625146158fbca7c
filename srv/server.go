// Package srv implements the 9P2000.L server request-dispatch engine:
// connection acceptance, per-connection fid/tag tables, dispatch to a
// pluggable Backend, and FLUSH coordination (spec.md §4.6).
package srv

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sandia-minimega/mini9p/ninelog"
)

// Server accepts connections and dispatches fcalls on them to backend.
// Grounded on the teacher's net.Listener-based
// Harvey-OS/ninep/protocol/server.go, which itself mirrors
// net/http.Server's Serve/Shutdown/trackListener shape.
type Server struct {
	backend  Backend
	msizeMax uint32
	log      ninelog.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*Conn]struct{}
	closed    bool

	onConnOpen  func()
	onConnClose func()
}

// ServerOpt configures a Server at construction time.
type ServerOpt func(*Server)

// WithLogger attaches a logger for Debug-level diagnostics of every
// fcall received and replied to. Default is a no-op logger.
func WithLogger(l ninelog.Logger) ServerOpt {
	return func(s *Server) { s.log = l }
}

// WithMsize sets the largest msize the server will ever negotiate.
// Default 64 * 1024.
func WithMsize(n uint32) ServerOpt {
	return func(s *Server) { s.msizeMax = n }
}

// WithConnHooks registers callbacks run when a connection is accepted
// and when its serve loop exits, letting an embedder (e.g. package
// ctl's Metrics) track connection counts without the engine importing
// anything metrics-specific.
func WithConnHooks(onOpen, onClose func()) ServerOpt {
	return func(s *Server) { s.onConnOpen, s.onConnClose = onOpen, onClose }
}

// NewServer constructs a Server dispatching onto backend.
func NewServer(backend Backend, opts ...ServerOpt) *Server {
	s := &Server{
		backend:   backend,
		msizeMax:  64 * 1024,
		log:       ninelog.Discard,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListenAndServe listens on network/addr and serves connections until
// an error occurs or Shutdown is called.
func (s *Server) ListenAndServe(network, addr string) error {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until it returns an error (from
// Accept, or because Shutdown closed it). Transient Accept errors are
// retried with exponential backoff, exactly as net/http.Server.Serve
// does (and as the teacher's vendored Harvey-OS/ninep/protocol/server.go
// adapted from it).
func (s *Server) Serve(ln net.Listener) error {
	s.trackListener(ln, true)
	defer s.trackListener(ln, false)

	var tempDelay time.Duration
	for {
		rwc, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := time.Second; tempDelay > max {
					tempDelay = max
				}
				s.log.Warnf("srv: accept error: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0
		s.Accept(rwc)
	}
}

// Accept spawns a goroutine serving one already-accepted connection.
func (s *Server) Accept(rwc io.ReadWriteCloser) {
	c := newConn(rwc, s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		rwc.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	if s.onConnOpen != nil {
		s.onConnOpen()
	}

	go func() {
		c.serve()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		if s.onConnClose != nil {
			s.onConnClose()
		}
	}()
}

func (s *Server) trackListener(ln net.Listener, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
}

// Shutdown closes every tracked listener and connection. Best-effort;
// in-flight requests are abandoned, not drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for ln := range s.listeners {
		ln.Close()
	}
	for c := range s.conns {
		c.rwc.Close()
	}
	s.mu.Unlock()
	return nil
}
