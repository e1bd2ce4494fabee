// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-lpc/scope/internal/fakescope"
	"github.com/go-lpc/scope/sink"
	"go-hep.org/x/hep/lcio"
)

func init() {
	msg.SetOutput(io.Discard)
}

func TestAcquire(t *testing.T) {
	const (
		nframes  = 4
		nsamples = 500
	)

	srv, err := fakescope.New(nsamples)
	if err != nil {
		t.Fatalf("could not start fake scope: %+v", err)
	}
	defer srv.Close()

	tmp := t.TempDir()
	oname := filepath.Join(tmp, "out.slcio")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err = xmain(ctx, []string{
		"-conn", srv.Addr(), "-name", "scope-1",
		"-n", fmt.Sprint(nframes), "-run", "42",
		"-o", oname,
	})
	if err != nil {
		t.Fatalf("could not run acquisition: %+v", err)
	}

	counts, run := readFile(t, oname)
	if got, want := run, int32(42); got != want {
		t.Fatalf("invalid run number: got=%d, want=%d", got, want)
	}
	if got, want := counts["scope-1:CH1"], nframes; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
}

func TestAcquireConfig(t *testing.T) {
	const nsamples = 200

	var srvs []*fakescope.Scope
	for i := 0; i < 2; i++ {
		srv, err := fakescope.New(nsamples)
		if err != nil {
			t.Fatalf("could not start fake scope: %+v", err)
		}
		defer srv.Close()
		srvs = append(srvs, srv)
	}

	tmp := t.TempDir()
	oname := filepath.Join(tmp, "run.slcio")
	cfg := filepath.Join(tmp, "run.yaml")
	err := os.WriteFile(cfg, []byte(fmt.Sprintf(`
run: 7
output: %q
devices:
  - name: scope-1
    conn: %s
    frames: 3
    poll: 1ms
  - name: scope-2
    conn: %s
    frames: 2
    channel: CH2
    poll: 1ms
    calib: {offset: 32768, scale: 1}
`, oname, srvs[0].Addr(), srvs[1].Addr())), 0644)
	if err != nil {
		t.Fatalf("could not create run description: %+v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err = xmain(ctx, []string{"-cfg", cfg})
	if err != nil {
		t.Fatalf("could not run acquisition: %+v", err)
	}

	counts, run := readFile(t, oname)
	if got, want := run, int32(7); got != want {
		t.Fatalf("invalid run number: got=%d, want=%d", got, want)
	}
	for _, tc := range []struct {
		name string
		want int
	}{
		{"scope-1:CH1", 3},
		{"scope-2:CH2", 2},
	} {
		if got := counts[tc.name]; got != tc.want {
			t.Fatalf("invalid number of frames for %q: got=%d, want=%d", tc.name, got, tc.want)
		}
	}
}

func TestAcquireLost(t *testing.T) {
	srv, err := fakescope.New(100)
	if err != nil {
		t.Fatalf("could not start fake scope: %+v", err)
	}
	addr := srv.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- xmain(ctx, []string{
			"-conn", addr, "-n", "0",
			"-o", filepath.Join(t.TempDir(), "out.slcio"),
		})
	}()

	for srv.Frames() < 2 {
		time.Sleep(time.Millisecond)
	}
	_ = srv.Close()

	err = <-errc
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestUsage(t *testing.T) {
	err := xmain(context.Background(), []string{"-o", "out.slcio"})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func readFile(t *testing.T, fname string) (map[string]int, int32) {
	t.Helper()

	r, err := lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer r.Close()

	var (
		run    = int32(-1)
		counts = make(map[string]int)
	)
	for r.Next() {
		run = r.RunHeader().RunNumber
		evt := r.Event()
		for _, wf := range sink.Waveforms(&evt) {
			counts[wf.Name]++
		}
	}
	if err := r.Err(); err != nil && err != io.EOF {
		t.Fatalf("could not read LCIO file: %+v", err)
	}
	return counts, run
}
