// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-daq starts a TDAQ server acquiring waveforms from the
// oscilloscopes listed in a YAML run description.
//
// Usage: scope-daq [TDAQ-OPTIONS] run.yaml
//
// The acquired frame boundaries and samples are published on the
// "/samples" output end-point.
package main // import "github.com/go-lpc/scope/cmd/scope-daq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/scope/internal/config"
	"github.com/go-lpc/scope/scpi"
	"github.com/go-lpc/scope/sink"
	"github.com/go-lpc/scope/tek"
)

func main() {
	cmd := flags.New()
	if len(cmd.Args) == 0 {
		log.Fatalf("missing path to run description")
	}

	dev := newServer(cmd.Args[0])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/samples", dev.samples)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type server struct {
	cfg string // path to the run description

	desc  *config.Run
	conns map[string]*scpi.Conn
	acqs  []*tek.Acquisition
	loop  *scpi.Loop
	out   *sink.Chan
}

func newServer(cfg string) *server {
	return &server{
		cfg:   cfg,
		conns: make(map[string]*scpi.Conn),
		out:   sink.NewChan(1 << 16),
	}
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	desc, err := config.Load(srv.cfg)
	if err != nil {
		ctx.Msg.Errorf("could not load run description: %+v", err)
		return fmt.Errorf("could not load run description: %w", err)
	}
	srv.desc = desc
	for _, dev := range desc.Devices {
		ctx.Msg.Infof("device %q: conn=%q, frames=%d, channel=%s", dev.Name, dev.Conn, dev.Frames, dev.Channel)
	}
	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.desc == nil {
		return fmt.Errorf("could not initialize: missing /config")
	}

	srv.close(ctx)
	for _, dev := range srv.desc.Devices {
		conn, err := scpi.Open(dev.Conn)
		if err != nil {
			ctx.Msg.Errorf("could not open connection to %q: %+v", dev.Name, err)
			srv.close(ctx)
			return fmt.Errorf("could not open connection to %q: %w", dev.Name, err)
		}
		srv.conns[dev.Name] = conn
	}
	return nil
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.close(ctx)
	srv.acqs = nil
	srv.loop = nil
	srv.out = sink.NewChan(1 << 16)
	return nil
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if len(srv.conns) == 0 {
		return fmt.Errorf("could not start run: missing /init")
	}

	var (
		tick = scpi.DefaultTick
		acqs = make([]*tek.Acquisition, 0, len(srv.desc.Devices))
	)
	for _, dev := range srv.desc.Devices {
		if dev.Poll < tick {
			tick = dev.Poll
		}
		opts := append(dev.Options(), tek.WithLogger(ctx.Msg))
		acq, err := tek.New(dev.Name, srv.conns[dev.Name], srv.out, opts...)
		if err != nil {
			ctx.Msg.Errorf("could not create acquisition for %q: %+v", dev.Name, err)
			return fmt.Errorf("could not create acquisition for %q: %w", dev.Name, err)
		}
		acqs = append(acqs, acq)
	}

	loop := scpi.NewLoop(tick)
	for i, acq := range acqs {
		err := acq.Start(loop)
		if err != nil {
			ctx.Msg.Errorf("could not start acquisition of %q: %+v", acq.Device(), err)
			stopAll(acqs[:i])
			return fmt.Errorf("could not start acquisition of %q: %w", acq.Device(), err)
		}
	}

	srv.acqs = acqs
	srv.loop = loop
	return nil
}

// stopAll stops the running acquisitions.
func stopAll(acqs []*tek.Acquisition) {
	for _, acq := range acqs {
		if acq.Running() {
			_ = acq.Stop()
		}
	}
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	for _, acq := range srv.acqs {
		st := acq.Stats()
		ctx.Msg.Infof("device %q: frames=%d, payload=%d, malformed=%d, garbage=%d, read-errors=%d",
			acq.Device(), st.Frames, st.Payload, st.Malformed, st.Garbage, st.ReadErrors,
		)
	}
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	srv.close(ctx)
	return nil
}

func (srv *server) close(ctx tdaq.Context) {
	names := make([]string, 0, len(srv.conns))
	for name := range srv.conns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := srv.conns[name].Close()
		if err != nil {
			ctx.Msg.Warnf("could not close connection to %q: %+v", name, err)
		}
		delete(srv.conns, name)
	}
}

func (srv *server) samples(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case rec := <-srv.out.C:
		raw, err := sink.Marshal(rec)
		if err != nil {
			return fmt.Errorf("could not marshal record: %w", err)
		}
		dst.Body = raw
	}
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	if srv.loop == nil {
		return fmt.Errorf("could not run: missing /start")
	}

	err := srv.loop.Run(ctx.Ctx)

	stopAll(srv.acqs)
	for _, acq := range srv.acqs {
		if err := acq.Err(); err != nil {
			ctx.Msg.Errorf("acquisition of %q failed: %+v", acq.Device(), err)
		}
	}

	if n := srv.out.Dropped(); n > 0 {
		ctx.Msg.Warnf("dropped %d records", n)
	}

	select {
	case <-ctx.Ctx.Done():
		return nil
	default:
	}
	if err != nil {
		return fmt.Errorf("could not run acquisition loop: %w", err)
	}

	// all devices reached their frame limit.
	<-ctx.Ctx.Done()
	return nil
}
