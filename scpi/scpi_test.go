// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-lpc/scope/internal/fakescope"
	"github.com/go-lpc/scope/tek"
)

func TestParseAddr(t *testing.T) {
	for _, tc := range []struct {
		addr string
		want Addr
		err  error
	}{
		{
			addr: "tcp-raw/192.168.2.21/4000",
			want: Addr{Kind: "tcp-raw", Host: "192.168.2.21:4000"},
		},
		{
			addr: "tcp-raw/::1/4000",
			want: Addr{Kind: "tcp-raw", Host: "[::1]:4000"},
		},
		{
			addr: "serial//dev/ttyUSB0",
			want: Addr{Kind: "serial", Host: "/dev/ttyUSB0", Baud: 9600},
		},
		{
			addr: "serial//dev/ttyUSB0/115200",
			want: Addr{Kind: "serial", Host: "/dev/ttyUSB0", Baud: 115200},
		},
		{
			addr: "serial/COM3",
			want: Addr{Kind: "serial", Host: "COM3", Baud: 9600},
		},
		{
			addr: "tcp-raw",
			err:  fmt.Errorf(`scpi: invalid connection string "tcp-raw"`),
		},
		{
			addr: "tcp-raw/localhost",
			err:  fmt.Errorf(`scpi: invalid tcp-raw connection string "tcp-raw/localhost"`),
		},
		{
			addr: "tcp-raw/localhost/http",
			err:  fmt.Errorf(`scpi: invalid port in connection string "tcp-raw/localhost/http"`),
		},
		{
			addr: "serial//dev/ttyUSB0/0",
			err:  fmt.Errorf(`scpi: invalid baud rate in connection string "serial//dev/ttyUSB0/0"`),
		},
		{
			addr: "usbtmc/1",
			err:  fmt.Errorf(`scpi: unknown connection kind "usbtmc"`),
		},
	} {
		t.Run(tc.addr, func(t *testing.T) {
			got, err := ParseAddr(tc.addr)
			switch {
			case err == nil && tc.err == nil:
				if got != tc.want {
					t.Fatalf("invalid address:\ngot= %+v\nwant=%+v", got, tc.want)
				}
			case err == nil && tc.err != nil:
				t.Fatalf("expected an error: %+v", tc.err)
			case err != nil && tc.err == nil:
				t.Fatalf("could not parse address: %+v", err)
			case err.Error() != tc.err.Error():
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", err, tc.err)
			}
		})
	}
}

func TestAddrString(t *testing.T) {
	for _, addr := range []string{
		"tcp-raw/192.168.2.21/4000",
		"serial//dev/ttyUSB0/115200",
	} {
		v, err := ParseAddr(addr)
		if err != nil {
			t.Fatalf("could not parse %q: %+v", addr, err)
		}
		if got, want := v.String(), addr; got != want {
			t.Fatalf("invalid round-trip: got=%q, want=%q", got, want)
		}
	}
}

func TestQuery(t *testing.T) {
	srv, err := fakescope.New(4)
	if err != nil {
		t.Fatalf("could not start fake scope: %+v", err)
	}
	defer srv.Close()

	conn, err := Open(srv.Addr())
	if err != nil {
		t.Fatalf("could not open connection: %+v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idn, err := conn.Query(ctx, "*IDN?")
	if err != nil {
		t.Fatalf("could not query IDN: %+v", err)
	}
	if got, want := idn, fakescope.IDN; got != want {
		t.Fatalf("invalid IDN: got=%q, want=%q", got, want)
	}
}

func TestReadNoData(t *testing.T) {
	srv, err := fakescope.New(4)
	if err != nil {
		t.Fatalf("could not start fake scope: %+v", err)
	}
	defer srv.Close()

	conn, err := Open(srv.Addr())
	if err != nil {
		t.Fatalf("could not open connection: %+v", err)
	}
	defer conn.Close()

	n, err := conn.Read(make([]byte, 16))
	if err != nil {
		t.Fatalf("idle read should not fail: %+v", err)
	}
	if n != 0 {
		t.Fatalf("invalid read: got=%d, want=0", n)
	}
}

func TestSessionGone(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen: %+v", err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	addr := l.Addr().(*net.TCPAddr)
	conn, err := Open(fmt.Sprintf("tcp-raw/127.0.0.1/%d", addr.Port))
	if err != nil {
		t.Fatalf("could not open connection: %+v", err)
	}
	defer conn.Close()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-timeout:
			t.Fatalf("remote close not detected")
		default:
		}
		_, err = conn.Read(make([]byte, 16))
		if err != nil {
			break
		}
	}
	if !errors.Is(err, tek.ErrSessionGone) {
		t.Fatalf("got=%+v, want=%+v", err, tek.ErrSessionGone)
	}
}

type serialPort struct {
	r   io.Reader
	err error
}

func (p *serialPort) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.r.Read(b)
	return n, err
}
func (p *serialPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *serialPort) Close() error                { return nil }

func TestSerialRead(t *testing.T) {
	port := &serialPort{r: new(emptyReader)}
	conn := newSerialConn(Addr{Kind: "serial", Host: "/dev/null", Baud: 9600}, port)

	n, err := conn.Read(make([]byte, 8))
	if err != nil || n != 0 {
		t.Fatalf("serial read timeout should yield no data: n=%d, err=%+v", n, err)
	}

	port.err = io.ErrUnexpectedEOF
	_, err = conn.Read(make([]byte, 8))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if errors.Is(err, tek.ErrSessionGone) {
		t.Fatalf("transient error flagged as lost session: %+v", err)
	}

	port.err = net.ErrClosed
	_, err = conn.Read(make([]byte, 8))
	if !errors.Is(err, tek.ErrSessionGone) {
		t.Fatalf("got=%+v, want=%+v", err, tek.ErrSessionGone)
	}
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

type recorder struct {
	frames  int
	samples int
	events  []tek.EventKind
}

func (r *recorder) Boundary(evt tek.Event) {
	r.events = append(r.events, evt.Kind)
	if evt.Kind == tek.FrameEnd {
		r.frames++
	}
}

func (r *recorder) Samples(b tek.Batch) { r.samples += len(b.Samples) }

func TestAcquisition(t *testing.T) {
	const (
		nframes  = 5
		nsamples = 1000
	)

	srv, err := fakescope.New(nsamples)
	if err != nil {
		t.Fatalf("could not start fake scope: %+v", err)
	}
	defer srv.Close()

	conn, err := Open(srv.Addr())
	if err != nil {
		t.Fatalf("could not open connection: %+v", err)
	}
	defer conn.Close()

	var (
		sink = new(recorder)
		loop = NewLoop(time.Millisecond)
	)

	acq, err := tek.New("scope", conn, sink, tek.WithFrameLimit(nframes))
	if err != nil {
		t.Fatalf("could not create acquisition: %+v", err)
	}

	err = acq.Start(loop)
	if err != nil {
		t.Fatalf("could not start acquisition: %+v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err = loop.Run(ctx)
	if err != nil {
		t.Fatalf("could not run loop: %+v", err)
	}

	if err := acq.Err(); err != nil {
		t.Fatalf("acquisition failed: %+v", err)
	}
	if got, want := sink.frames, nframes; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	if got, want := sink.samples, nframes*nsamples; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if got, want := sink.events[len(sink.events)-1], tek.RunEnd; got != want {
		t.Fatalf("invalid last event: got=%v, want=%v", got, want)
	}

	cmds := srv.Commands()
	if len(cmds) == 0 || cmds[0] != ":WFMO:BYT_NR 2;ENCDG BIN;BN_FMT RP;BYT_OR MSB" {
		t.Fatalf("waveform format not configured: %q", cmds)
	}
}
