// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakescope provides an in-process fake oscilloscope, served over
// TCP, for tests.
package fakescope // import "github.com/go-lpc/scope/internal/fakescope"

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

const IDN = "TEKTRONIX,MDO4104C,C000001,CF:91.1CT FV:v1.0"

// Block encodes samples as a definite-length binary block.
func Block(samples []uint16) []byte {
	var (
		size = strconv.Itoa(2 * len(samples))
		blk  = make([]byte, 0, 2+len(size)+2*len(samples))
	)
	blk = append(blk, '#', byte('0'+len(size)))
	blk = append(blk, size...)
	for _, s := range samples {
		blk = binary.BigEndian.AppendUint16(blk, s)
	}
	return blk
}

// Ramp returns n samples starting at 0x8000+frame.
func Ramp(frame, n int) []uint16 {
	o := make([]uint16, n)
	for i := range o {
		o[i] = uint16(0x8000 + frame + i)
	}
	return o
}

// Scope is a fake instrument answering ":CURV?" requests with ramps.
type Scope struct {
	l net.Listener
	n int

	mu     sync.Mutex
	cmds   []string
	frames int
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// New starts a fake instrument on a local port, sending frames of
// n samples.
func New(n int) (*Scope, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("fakescope: could not listen: %w", err)
	}
	srv := &Scope{l: l, n: n, conns: make(map[net.Conn]struct{})}
	srv.wg.Add(1)
	go srv.serve()
	return srv, nil
}

// Addr returns the connection string of the instrument.
func (srv *Scope) Addr() string {
	addr := srv.l.Addr().(*net.TCPAddr)
	return fmt.Sprintf("tcp-raw/%s/%d", addr.IP, addr.Port)
}

// Commands returns the commands received so far.
func (srv *Scope) Commands() []string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return append([]string(nil), srv.cmds...)
}

// Frames returns the number of frames sent so far.
func (srv *Scope) Frames() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.frames
}

func (srv *Scope) Close() error {
	err := srv.l.Close()
	srv.mu.Lock()
	for conn := range srv.conns {
		_ = conn.Close()
	}
	srv.mu.Unlock()
	srv.wg.Wait()
	return err
}

func (srv *Scope) serve() {
	defer srv.wg.Done()
	for {
		conn, err := srv.l.Accept()
		if err != nil {
			return
		}
		srv.mu.Lock()
		srv.conns[conn] = struct{}{}
		srv.mu.Unlock()
		srv.wg.Add(1)
		go srv.handle(conn)
	}
}

func (srv *Scope) handle(conn net.Conn) {
	defer srv.wg.Done()
	defer func() {
		srv.mu.Lock()
		delete(srv.conns, conn)
		srv.mu.Unlock()
		conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		cmd := strings.TrimSpace(sc.Text())
		srv.mu.Lock()
		srv.cmds = append(srv.cmds, cmd)
		srv.mu.Unlock()

		var err error
		switch strings.ToUpper(cmd) {
		case "*IDN?":
			_, err = io.WriteString(conn, IDN+"\n")
		case ":CURV?", ":CURVE?":
			srv.mu.Lock()
			frame := srv.frames
			srv.frames++
			srv.mu.Unlock()
			_, err = conn.Write(append(Block(Ramp(frame, srv.n)), '\n'))
		}
		if err != nil {
			return
		}
	}
}
