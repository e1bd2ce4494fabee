// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scpi provides the transports and the polling event loop used to
// talk to SCPI instruments.
//
// Connection strings are of the form:
//
//	tcp-raw/<host>/<port>
//	serial/<device>[/<baud>]
//
// e.g. "tcp-raw/192.168.2.21/4000" or "serial//dev/ttyUSB0/115200".
package scpi // import "github.com/go-lpc/scope/scpi"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-lpc/scope/tek"
	"github.com/tarm/serial"
)

const (
	defaultBaud = 9600

	// pollTimeout bounds the time a single Read may wait for data.
	pollTimeout = 1 * time.Millisecond

	dialTimeout = 5 * time.Second
)

// Addr is a parsed connection string.
type Addr struct {
	Kind string // "tcp-raw" or "serial"
	Host string // host:port for tcp-raw, device path for serial
	Baud int
}

func (addr Addr) String() string {
	switch addr.Kind {
	case "tcp-raw":
		host, port, _ := net.SplitHostPort(addr.Host)
		return "tcp-raw/" + host + "/" + port
	case "serial":
		return "serial/" + addr.Host + "/" + strconv.Itoa(addr.Baud)
	}
	return addr.Kind + "/" + addr.Host
}

// ParseAddr parses a connection string.
func ParseAddr(s string) (Addr, error) {
	kind, rest, ok := strings.Cut(s, "/")
	if !ok || rest == "" {
		return Addr{}, fmt.Errorf("scpi: invalid connection string %q", s)
	}

	switch kind {
	case "tcp-raw":
		toks := strings.Split(rest, "/")
		if len(toks) != 2 || toks[0] == "" {
			return Addr{}, fmt.Errorf("scpi: invalid tcp-raw connection string %q", s)
		}
		port, err := strconv.Atoi(toks[1])
		if err != nil || port <= 0 || port > 65535 {
			return Addr{}, fmt.Errorf("scpi: invalid port in connection string %q", s)
		}
		return Addr{Kind: kind, Host: net.JoinHostPort(toks[0], toks[1])}, nil

	case "serial":
		addr := Addr{Kind: kind, Host: rest, Baud: defaultBaud}
		if i := strings.LastIndex(rest, "/"); i > 0 {
			baud, err := strconv.Atoi(rest[i+1:])
			if err == nil {
				if baud <= 0 {
					return Addr{}, fmt.Errorf("scpi: invalid baud rate in connection string %q", s)
				}
				addr.Host = rest[:i]
				addr.Baud = baud
			}
		}
		return addr, nil
	}

	return Addr{}, fmt.Errorf("scpi: unknown connection kind %q", kind)
}

// Conn is a connection to a SCPI instrument.
// Conn implements tek.Transport.
type Conn struct {
	addr Addr
	rwc  io.ReadWriteCloser
	read func(p []byte) (int, error)
}

// Open opens a connection to the instrument at the given connection string.
func Open(s string) (*Conn, error) {
	addr, err := ParseAddr(s)
	if err != nil {
		return nil, err
	}

	switch addr.Kind {
	case "tcp-raw":
		conn, err := net.DialTimeout("tcp", addr.Host, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("scpi: could not dial %q: %w", s, err)
		}
		return newTCPConn(addr, conn), nil

	case "serial":
		port, err := serial.OpenPort(&serial.Config{
			Name:        addr.Host,
			Baud:        addr.Baud,
			ReadTimeout: pollTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("scpi: could not open serial port %q: %w", addr.Host, err)
		}
		return newSerialConn(addr, port), nil
	}

	panic("impossible")
}

func newTCPConn(addr Addr, conn net.Conn) *Conn {
	c := &Conn{addr: addr, rwc: conn}
	c.read = func(p []byte) (int, error) {
		err := conn.SetReadDeadline(time.Now().Add(pollTimeout))
		if err != nil {
			return 0, c.wrap(err)
		}
		n, err := conn.Read(p)
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			err = nil
		}
		return n, c.wrap(err)
	}
	return c
}

func newSerialConn(addr Addr, port io.ReadWriteCloser) *Conn {
	c := &Conn{addr: addr, rwc: port}
	c.read = func(p []byte) (int, error) {
		n, err := port.Read(p)
		if errors.Is(err, io.EOF) {
			// read timeout: no data available.
			err = nil
		}
		return n, c.wrap(err)
	}
	return c
}

// wrap flags errors denoting a lost link with tek.ErrSessionGone.
func (c *Conn) wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrClosed),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("scpi: connection to %v lost: %v: %w", c.addr, err, tek.ErrSessionGone)
	}
	return fmt.Errorf("scpi: %v: %w", c.addr, err)
}

func (c *Conn) Addr() Addr { return c.addr }

// Send sends a command to the instrument.
func (c *Conn) Send(cmd string) error {
	_, err := io.WriteString(c.rwc, cmd+"\n")
	return c.wrap(err)
}

// Read reads the bytes currently available from the instrument.
// Read returns 0 and a nil error when no data is available.
func (c *Conn) Read(p []byte) (int, error) {
	return c.read(p)
}

// Query sends a command and returns the newline terminated reply.
func (c *Conn) Query(ctx context.Context, cmd string) (string, error) {
	err := c.Send(cmd)
	if err != nil {
		return "", fmt.Errorf("scpi: could not send %q: %w", cmd, err)
	}

	var (
		reply = new(bytes.Buffer)
		buf   = make([]byte, 256)
	)
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("scpi: could not read reply to %q: %w", cmd, ctx.Err())
		default:
		}

		n, err := c.Read(buf)
		reply.Write(buf[:n])
		if err != nil {
			return "", fmt.Errorf("scpi: could not read reply to %q: %w", cmd, err)
		}
		if i := bytes.IndexByte(reply.Bytes(), '\n'); i >= 0 {
			return strings.TrimRight(string(reply.Bytes()[:i]), "\r"), nil
		}
	}
}

func (c *Conn) Close() error {
	return c.rwc.Close()
}

var (
	_ tek.Transport = (*Conn)(nil)
)
