// Copyright (2016) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// ninetun demonstrates the full stack wired together: a synthetic
// control-file server (package ctl) reachable either directly over TCP
// or indirectly through a tunneled broker (package
// internal/tunnel), with a small client for exercising either.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/sandia-minimega/mini9p/client"
	"github.com/sandia-minimega/mini9p/ctl"
	"github.com/sandia-minimega/mini9p/internal/tunnel"
	"github.com/sandia-minimega/mini9p/ninelog"
	"github.com/sandia-minimega/mini9p/srv"
)

var (
	f_addr    = flag.String("addr", ":5640", "address to listen on or dial")
	f_version = flag.String("version", "0.1.0", "version string served at ctl/version")
	f_debug   = flag.Bool("debug", false, "log every fcall to stderr")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: ninetun [flags] <command>

commands:
  serve    listen on -addr and serve the ctl tree directly over 9P2000.L
  broker   listen on -addr, accepting tunneled exporter connections
           and relaying 9P traffic forwarded back through them
  export   dial -addr (a running broker), run the ctl tree locally, and
           reverse-forward it back through the tunnel on -fwdport
  mount    dial -addr as a plain 9P2000.L client and print ctl/version

flags:
`)
	flag.PrintDefaults()
}

func logger() ninelog.Logger {
	if !*f_debug {
		return ninelog.Discard
	}
	ninelog.AddLogger("stderr", os.Stderr, ninelog.DEBUG)
	return ninelog.Default
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch flag.Arg(0) {
	case "serve":
		err = cmdServe()
	case "broker":
		err = cmdBroker()
	case "export":
		err = cmdExport()
	case "mount":
		err = cmdMount()
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninetun: %v\n", err)
		os.Exit(1)
	}
}

// cmdServe runs the ctl tree directly behind a 9P2000.L listener.
func cmdServe() error {
	backend, metrics := ctl.New(*f_version)
	log := logger()

	s := srv.NewServer(backend,
		srv.WithLogger(log),
		srv.WithConnHooks(metrics.ConnOpened, metrics.ConnClosed),
	)
	return s.ListenAndServe("tcp", *f_addr)
}

// cmdBroker accepts exporter connections, forever, and runs the tunnel's
// multiplexing side for each one, so that exported services reach clients
// who only know the broker's address.
func cmdBroker() error {
	ln, err := net.Listen("tcp", *f_addr)
	if err != nil {
		return err
	}
	log := logger()
	fmt.Fprintf(os.Stderr, "ninetun: broker listening on %s\n", *f_addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := tunnel.ListenAndServe(conn, log); err != nil {
				log.Warnf("ninetun: broker connection closed: %v", err)
			}
		}()
	}
}

// cmdExport runs the ctl tree on an ephemeral local port and asks the
// broker at -addr to reverse-forward -fwdport back to it, so a client
// that can only reach the broker still sees a live 9P2000.L service.
func cmdExport() error {
	local, err := net.Listen("tcp", ":0")
	if err != nil {
		return err
	}
	_, localPort, err := net.SplitHostPort(local.Addr().String())
	if err != nil {
		return err
	}

	backend, metrics := ctl.New(*f_version)
	log := logger()
	s := srv.NewServer(backend,
		srv.WithLogger(log),
		srv.WithConnHooks(metrics.ConnOpened, metrics.ConnClosed),
	)
	go s.Serve(local) //nolint:errcheck

	brokerConn, err := net.Dial("tcp", *f_addr)
	if err != nil {
		return err
	}
	tun, err := tunnel.Dial(brokerConn, log)
	if err != nil {
		return err
	}

	localPortNum := 0
	fmt.Sscanf(localPort, "%d", &localPortNum)

	fwd := *f_fwdport
	fmt.Fprintf(os.Stderr, "ninetun: exporting ctl tree through broker %s on forwarded port %d\n", *f_addr, fwd)
	if err := tun.Reverse(fwd, "127.0.0.1", localPortNum); err != nil {
		return err
	}

	select {}
}

var f_fwdport = flag.Int("fwdport", 5641, "port the broker forwards back to this export (used by export/broker)")

// cmdMount connects to -addr as a plain 9P2000.L client (either a
// direct "serve" instance or a broker's forwarded port) and prints the
// ctl tree's version file.
func cmdMount() error {
	conn, err := net.Dial("tcp", *f_addr)
	if err != nil {
		return err
	}

	c, err := client.Start(conn, 64*1024, client.WithLogger(logger()))
	if err != nil {
		return err
	}
	defer c.Finish()

	root, err := c.Attach(nil, "ctl", os.Getenv("USER"), 0)
	if err != nil {
		return err
	}

	vf, err := root.Walk("version")
	if err != nil {
		return err
	}
	if err := vf.Lopen(0); err != nil {
		return err
	}

	buf := make([]byte, 256)
	n, err := vf.Pread(buf, uint32(len(buf)), 0)
	if err != nil {
		return err
	}
	fmt.Print(string(buf[:n]))
	return nil
}
