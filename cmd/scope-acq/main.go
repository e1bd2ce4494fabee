// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scope-acq acquires waveforms from one or more oscilloscopes and
// stores them into an LCIO file.
package main // import "github.com/go-lpc/scope/cmd/scope-acq"

import (
	"compress/flate"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-lpc/scope"
	"github.com/go-lpc/scope/conddb"
	"github.com/go-lpc/scope/internal/alert"
	"github.com/go-lpc/scope/internal/config"
	"github.com/go-lpc/scope/internal/metrics"
	"github.com/go-lpc/scope/scpi"
	"github.com/go-lpc/scope/sink"
	"github.com/go-lpc/scope/tek"
	"github.com/sbinet/pmon"
	"go-hep.org/x/hep/lcio"
	"golang.org/x/sync/errgroup"
)

const usage = `scope-acq acquires waveforms from oscilloscopes into an LCIO file.

Usage: scope-acq [OPTIONS]

Example:

 $> scope-acq -conn tcp-raw/192.168.2.21/4000 -n 100 -o run.slcio
 $> scope-acq -cfg ./run.yaml

options:
`

var msg = log.New(os.Stdout, "scope-acq: ", 0)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := xmain(ctx, os.Args[1:])
	if err != nil {
		msg.Fatalf("%+v", err)
	}
}

type options struct {
	verbose bool
	alert   bool
	pmon    bool
	freq    time.Duration
	lvl     int
}

func xmain(ctx context.Context, args []string) error {
	var (
		fset = flag.NewFlagSet("scope-acq", flag.ContinueOnError)

		cfg   = fset.String("cfg", "", "path to a YAML run description")
		conn  = fset.String("conn", "", "connection string of the instrument (e.g. tcp-raw/192.168.2.21/4000)")
		name  = fset.String("name", "scope", "name of the instrument")
		nevts = fset.Uint64("n", 10, "number of frames to acquire (0: until interrupted)")
		oname = fset.String("o", "out.slcio", "path to output LCIO file")
		run   = fset.Int("run", 0, "run number (0: next run from the conditions DB)")
		db    = fset.String("db", "", "name of the conditions database")
		model = fset.String("model", "", "instrument model, for the conditions DB calibration")
		addr  = fset.String("metrics", "", "[ip]:port to serve metrics on")
		lvl   = fset.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")

		opts options
	)
	fset.BoolVar(&opts.verbose, "v", false, "enable verbose mode")
	fset.BoolVar(&opts.alert, "alert", false, "send mail alerts on acquisition failures")
	fset.BoolVar(&opts.pmon, "pmon", false, "enable pmon monitoring")
	fset.DurationVar(&opts.freq, "freq", 1*time.Second, "pmon frequency")

	fset.Usage = func() {
		fmt.Fprint(fset.Output(), usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return err
	}
	opts.lvl = *lvl

	var desc *config.Run
	switch {
	case *cfg != "":
		desc, err = config.Load(*cfg)
		if err != nil {
			return fmt.Errorf("could not load run description: %w", err)
		}
	case *conn != "":
		dev := config.Device{
			Name:   *name,
			Conn:   *conn,
			Frames: *nevts,
			Model:  *model,
		}
		desc = &config.Run{Devices: []config.Device{dev}}
		err = desc.Validate()
		if err != nil {
			return fmt.Errorf("invalid command line: %w", err)
		}
	default:
		fset.Usage()
		return fmt.Errorf("missing instrument connection string or run description")
	}

	if *run != 0 {
		desc.Run = int32(*run)
	}
	if *db != "" {
		desc.DB = *db
	}
	if *addr != "" {
		desc.Metrics = *addr
	}
	fset.Visit(func(f *flag.Flag) {
		if f.Name == "o" {
			desc.Output = *oname
		}
	})
	if desc.Output == "" {
		desc.Output = *oname
	}

	return process(ctx, desc, opts)
}

func process(ctx context.Context, desc *config.Run, opts options) error {
	if desc.DB != "" {
		err := fromDB(ctx, desc)
		if err != nil {
			return err
		}
	}

	if opts.pmon {
		stop, err := monitor(filepath.Dir(desc.Output), opts.freq)
		if err != nil {
			return err
		}
		defer stop()
	}

	w, err := lcio.Create(desc.Output)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()
	w.SetCompressionLevel(opts.lvl)

	var (
		out  = sink.NewLCIO(w, desc.Run)
		ch   = sink.NewChan(1 << 16)
		done = make(chan struct{})
		col  = metrics.New()
		mail *alert.Mailer
	)
	go func() {
		defer close(done)
		sink.Feed(out, ch.C)
	}()

	if opts.alert {
		mail = alert.FromEnv("scope-acq")
	}

	if desc.Metrics != "" {
		h, err := metrics.Handler(col)
		if err != nil {
			return fmt.Errorf("could not create metrics handler: %w", err)
		}
		srv := &http.Server{Addr: desc.Metrics, Handler: h}
		go func() {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				msg.Printf("could not serve metrics: %+v", err)
			}
		}()
		defer srv.Close()
	}

	if v, _ := scope.Version(); v != "" {
		msg.Printf("version: %s", v)
	}
	msg.Printf("run %d: acquiring %d device(s) into %q...", desc.Run, len(desc.Devices), desc.Output)

	grp, gctx := errgroup.WithContext(ctx)
	for i := range desc.Devices {
		dev := desc.Devices[i]
		grp.Go(func() error {
			err := acquire(gctx, dev, ch, col, opts.verbose)
			if err != nil && mail != nil {
				if err := mail.Alert(dev.Name, err); err != nil {
					msg.Printf("%+v", err)
				}
			}
			return err
		})
	}
	err = grp.Wait()

	close(ch.C)
	<-done

	if err != nil {
		return fmt.Errorf("could not acquire waveforms: %w", err)
	}

	if n := ch.Dropped(); n > 0 {
		msg.Printf("dropped %d records", n)
	}
	if n := out.Skipped(); n > 0 {
		msg.Printf("skipped %d incomplete frames", n)
	}

	if err := out.Err(); err != nil {
		return fmt.Errorf("could not write LCIO events: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	msg.Printf("run %d: wrote %d frames", desc.Run, out.Events())
	return nil
}

func acquire(ctx context.Context, dev config.Device, out tek.Consumer, col *metrics.Collector, verbose bool) error {
	conn, err := scpi.Open(dev.Conn)
	if err != nil {
		return fmt.Errorf("could not open connection to %q: %w", dev.Name, err)
	}
	defer conn.Close()

	opts := append(dev.Options(), tek.WithLogger(
		tek.NewStdLogger(log.New(os.Stdout, "scope-acq: ["+dev.Name+"] ", 0), verbose),
	))
	acq, err := tek.New(dev.Name, conn, out, opts...)
	if err != nil {
		return fmt.Errorf("could not create acquisition for %q: %w", dev.Name, err)
	}

	col.Add(acq)

	loop := scpi.NewLoop(dev.Poll)
	err = acq.Start(loop)
	if err != nil {
		return fmt.Errorf("could not start acquisition of %q: %w", dev.Name, err)
	}

	err = loop.Run(ctx)
	if acq.Running() {
		_ = acq.Stop()
	}

	st := acq.Stats()
	msg.Printf("device %q: frames=%d, payload=%d bytes, malformed=%d, garbage=%d bytes",
		dev.Name, st.Frames, st.Payload, st.Malformed, st.Garbage,
	)

	if err := acq.Err(); err != nil {
		return fmt.Errorf("acquisition of %q failed: %w", dev.Name, err)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		// interrupted.
		return nil
	default:
		return fmt.Errorf("could not run event loop of %q: %w", dev.Name, err)
	}
}

func fromDB(ctx context.Context, desc *config.Run) error {
	db, err := conddb.Open(desc.DB)
	if err != nil {
		return fmt.Errorf("could not open conditions DB: %w", err)
	}
	defer db.Close()

	if desc.Run == 0 {
		run, err := db.LastRunNumber(ctx)
		if err != nil {
			return fmt.Errorf("could not retrieve last run number: %w", err)
		}
		desc.Run = run + 1
	}

	for i := range desc.Devices {
		dev := &desc.Devices[i]
		if dev.Calib != nil || dev.Model == "" {
			continue
		}
		cal, err := db.Calibration(ctx, dev.Model)
		if err != nil {
			return fmt.Errorf("could not retrieve calibration of %q: %w", dev.Name, err)
		}
		dev.Calib = &cal
	}

	return nil
}

func monitor(dir string, freq time.Duration) (func(), error) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "scope-acq-pmon.log"))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			msg.Printf("could not run monitoring: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			msg.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}
