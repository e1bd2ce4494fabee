// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

import (
	"io"
	"log"
	"time"
)

type config struct {
	limit   uint64
	calib   Calib
	bufsz   int
	channel string

	msg Logger
	now func() time.Time
}

func newConfig() config {
	return config{
		calib:   DefaultCalib,
		bufsz:   DefaultBufferSize,
		channel: "CH1",
		msg:     NewStdLogger(log.New(io.Discard, "", 0), false),
		now:     time.Now,
	}
}

// Option configures an Acquisition.
type Option func(cfg *config)

// WithFrameLimit sets the number of frames after which a run stops.
// A zero limit runs until the acquisition is stopped.
func WithFrameLimit(n uint64) Option {
	return func(cfg *config) {
		cfg.limit = n
	}
}

func WithCalib(cal Calib) Option {
	return func(cfg *config) {
		cfg.calib = cal
	}
}

// WithBufferSize sets the capacity of the receive buffer, in bytes.
func WithBufferSize(n int) Option {
	return func(cfg *config) {
		cfg.bufsz = n
	}
}

func WithChannel(name string) Option {
	return func(cfg *config) {
		cfg.channel = name
	}
}

func WithLogger(msg Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithClock sets the function used to timestamp events and batches.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}

type stdLogger struct {
	msg     *log.Logger
	verbose bool
}

// NewStdLogger adapts a standard logger to the Logger interface.
// Debug messages are only printed in verbose mode.
func NewStdLogger(msg *log.Logger, verbose bool) Logger {
	return &stdLogger{msg: msg, verbose: verbose}
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.msg.Printf(format, args...)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.msg.Printf(format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.msg.Printf("error: "+format, args...)
}
