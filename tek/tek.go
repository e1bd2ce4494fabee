// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tek implements the streaming waveform acquisition of
// Tektronix 4000-series oscilloscopes.
//
// Waveforms are requested with ":CURV?" and sent back by the instrument
// as IEEE-488.2 definite-length binary blocks:
//
//	'#' D <D decimal digits: N> <N bytes of big-endian uint16 samples>
//
// An Acquisition is driven by repeated calls to its Handle method, one per
// "data available" notification from an event loop. Handle never blocks:
// it drains whatever the transport has to offer, parses block headers,
// converts whole samples and forwards them to a Consumer.
package tek // import "github.com/go-lpc/scope/tek"

import (
	"fmt"
	"time"
)

const (
	// DefaultBufferSize is the default capacity of the receive buffer.
	DefaultBufferSize = 1075

	// SampleRate is the sample rate reported for the acquired waveforms.
	SampleRate = 20000000 // Hz

	cmdWaveformFormat = ":WFMO:BYT_NR 2;ENCDG BIN;BN_FMT RP;BYT_OR MSB"
	cmdCurve          = ":CURV?"
)

// State is the state of an acquisition.
type State uint8

const (
	Idle State = iota
	AwaitingHeader
	ReceivingData
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingHeader:
		return "awaiting-header"
	case ReceivingData:
		return "receiving-data"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// EventKind describes a boundary in the stream of samples.
type EventKind uint8

const (
	RunBegin EventKind = iota + 1
	FrameBegin
	FrameEnd
	RunEnd
)

func (k EventKind) String() string {
	switch k {
	case RunBegin:
		return "run-begin"
	case FrameBegin:
		return "frame-begin"
	case FrameEnd:
		return "frame-end"
	case RunEnd:
		return "run-end"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is a frame or run boundary.
type Event struct {
	Kind   EventKind
	Device string
	Frame  uint64 // index of the frame within the run
	Time   time.Time
}

// Batch is a chunk of calibrated samples.
// A frame may be delivered as several batches.
type Batch struct {
	Device   string
	Channel  string
	Quantity string
	Unit     string
	Frame    uint64
	Time     time.Time
	Samples  []float32
}

// Consumer receives the boundary events and sample batches of an
// acquisition. Implementations must not block.
type Consumer interface {
	Boundary(evt Event)
	Samples(b Batch)
}

// Transport is the byte-oriented link to an instrument.
// Read returns the bytes currently available, possibly none.
type Transport interface {
	Send(cmd string) error
	Read(p []byte) (int, error)
}

// Registrar is the event loop an acquisition is registered with.
// A registered handler is invoked on every data-ready notification until
// it returns false or the device is deregistered.
type Registrar interface {
	Register(dev string, handler func() bool) error
	Deregister(dev string)
}

// Logger is the message stream used by acquisitions.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
