// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const minBufferSize = 16

// Acquisition is the per-device acquisition context.
//
// An Acquisition is not safe for concurrent use: Handle, Start and Stop
// must all be called from the goroutine driving the event loop the
// acquisition is registered with.
type Acquisition struct {
	dev  string
	conn Transport
	sink Consumer
	cfg  config

	reg     Registrar
	running bool
	err     error

	state State
	buf   *rxbuf
	cnt   counters
	seen  int // raw bytes received for the current frame, header included

	stats struct {
		frames    atomic.Uint64
		payload   atomic.Uint64
		received  atomic.Uint64
		malformed atomic.Uint64
		garbage   atomic.Uint64
		rerrs     atomic.Uint64
	}
}

// Stats is a snapshot of the counters of an acquisition.
type Stats struct {
	Frames     uint64 // completed frames
	Payload    uint64 // payload bytes converted to samples
	Received   uint64 // raw bytes read from the transport
	Malformed  uint64 // malformed block headers
	Garbage    uint64 // bytes purged while looking for a block header
	ReadErrors uint64 // non-fatal transport read errors
}

// New creates an acquisition for device dev, reading from conn and
// forwarding samples and boundary events to sink.
func New(dev string, conn Transport, sink Consumer, opts ...Option) (*Acquisition, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case conn == nil:
		return nil, fmt.Errorf("tek: nil transport for device %q", dev)
	case sink == nil:
		return nil, fmt.Errorf("tek: nil consumer for device %q", dev)
	case cfg.bufsz < minBufferSize:
		return nil, fmt.Errorf("tek: receive buffer too small (got=%d, min=%d)", cfg.bufsz, minBufferSize)
	case !cfg.calib.valid():
		return nil, fmt.Errorf("tek: invalid calibration %+v", cfg.calib)
	}

	return &Acquisition{
		dev:  dev,
		conn: conn,
		sink: sink,
		cfg:  cfg,
		buf:  newRxbuf(cfg.bufsz),
	}, nil
}

func (acq *Acquisition) Device() string { return acq.dev }
func (acq *Acquisition) State() State   { return acq.state }
func (acq *Acquisition) Running() bool  { return acq.running }

// Err returns the error that ended the last run, if any.
func (acq *Acquisition) Err() error { return acq.err }

// Stats returns the acquisition counters.
// Stats may be called from any goroutine.
func (acq *Acquisition) Stats() Stats {
	return Stats{
		Frames:     acq.stats.frames.Load(),
		Payload:    acq.stats.payload.Load(),
		Received:   acq.stats.received.Load(),
		Malformed:  acq.stats.malformed.Load(),
		Garbage:    acq.stats.garbage.Load(),
		ReadErrors: acq.stats.rerrs.Load(),
	}
}

// Start configures the waveform transfer format, starts a new run and
// registers the acquisition with reg.
func (acq *Acquisition) Start(reg Registrar) error {
	if acq.running {
		return fmt.Errorf("tek: acquisition of %q already running", acq.dev)
	}

	err := acq.conn.Send(cmdWaveformFormat)
	if err != nil {
		return fmt.Errorf("tek: could not configure waveform format of %q: %w",
			acq.dev, &TransportError{Op: "send", Err: err},
		)
	}

	acq.cnt.startRun(acq.cfg.limit)
	acq.buf.reset()
	acq.seen = 0
	acq.state = Idle
	acq.err = nil
	acq.reg = reg
	acq.running = true

	err = reg.Register(acq.dev, acq.Handle)
	if err != nil {
		acq.running = false
		return fmt.Errorf("tek: could not register %q: %w", acq.dev, err)
	}

	acq.emit(RunBegin)
	return nil
}

// Stop ends the current run. Bytes of a partially received frame are
// discarded.
func (acq *Acquisition) Stop() error {
	if !acq.running {
		return fmt.Errorf("tek: acquisition of %q not running", acq.dev)
	}
	acq.stop(nil)
	return nil
}

// Handle processes one data-ready notification.
// It returns false when the handler should not be invoked anymore.
func (acq *Acquisition) Handle() bool {
	if !acq.running {
		return false
	}

	switch acq.state {
	case Idle:
		acq.state = acq.onIdle()
		return acq.running
	case AwaitingHeader, ReceivingData:
		// ok.
	default:
		acq.corrupted()
		return false
	}

	fresh := acq.receive()
	if !acq.running {
		return false
	}

	for {
		switch acq.state {
		case AwaitingHeader:
			next := acq.onHeader()
			if next == AwaitingHeader {
				return true
			}
			acq.state = next
			fresh = true

		case ReceivingData:
			acq.state = acq.onData(fresh)
			if acq.state == Idle && acq.cnt.runComplete() {
				acq.cfg.msg.Infof("device %q: acquired %d frames, stopping", acq.dev, acq.cnt.frames)
				acq.stop(nil)
				return false
			}
			return true

		default:
			acq.corrupted()
			return false
		}
	}
}

// onIdle requests a new frame.
func (acq *Acquisition) onIdle() State {
	err := acq.conn.Send(cmdCurve)
	if err != nil {
		err = &TransportError{Op: "send", Err: err}
		if errors.Is(err, ErrSessionGone) {
			acq.fail(err)
			return Idle
		}
		acq.cfg.msg.Errorf("device %q: could not request frame: %+v", acq.dev, err)
		return Idle
	}

	acq.buf.reset()
	acq.cnt.request()
	acq.seen = 0
	return AwaitingHeader
}

// receive reads the available bytes into the receive buffer.
// It reports whether new bytes were received.
func (acq *Acquisition) receive() bool {
	if acq.buf.unused() == 0 {
		acq.cfg.msg.Debugf("device %q: receive buffer full", acq.dev)
		return false
	}

	n, err := acq.conn.Read(acq.buf.tail())
	if n > 0 {
		acq.buf.commit(n)
		acq.seen += n
		acq.stats.received.Add(uint64(n))
	}

	if err != nil {
		err = &TransportError{Op: "read", Err: err}
		if errors.Is(err, ErrSessionGone) {
			acq.fail(err)
			return false
		}
		acq.stats.rerrs.Add(1)
		acq.cfg.msg.Errorf("device %q: %+v", acq.dev, err)
	}

	return n > 0
}

func (acq *Acquisition) onHeader() State {
	hdr := parseHeader(acq.buf)
	if hdr.garbage > 0 {
		acq.stats.garbage.Add(uint64(hdr.garbage))
		acq.cfg.msg.Debugf("device %q: purged %d bytes before block header", acq.dev, hdr.garbage)
	}

	switch hdr.status {
	case hdrIncomplete:
		return AwaitingHeader

	case hdrMalformed:
		acq.stats.malformed.Add(1)
		acq.cfg.msg.Errorf("device %q: %v: invalid length specifier", acq.dev, ErrMalformedHeader)
		return AwaitingHeader

	case hdrParsed:
		if hdr.badlen {
			acq.stats.malformed.Add(1)
			acq.cfg.msg.Errorf("device %q: %v: invalid length string", acq.dev, ErrMalformedHeader)
		}
		acq.cnt.begin(hdr.size)
		acq.cfg.msg.Debugf("device %q: expecting a %d bytes frame", acq.dev, hdr.size)
		acq.emit(FrameBegin)
		return ReceivingData
	}

	panic(fmt.Errorf("tek: invalid header status %v", hdr.status))
}

// onData converts and forwards the buffered payload bytes of the current
// frame. Samples are only converted when new bytes are available.
func (acq *Acquisition) onData(fresh bool) State {
	if fresh && !acq.buf.empty() {
		var (
			raw = acq.buf.bytes()
			rem = acq.cnt.remaining()
		)
		if len(raw) > rem {
			raw = raw[:rem]
		}

		samples, n := acq.cfg.calib.convert(make([]float32, 0, len(raw)/2), raw)
		if len(samples) > 0 {
			acq.sink.Samples(Batch{
				Device:   acq.dev,
				Channel:  acq.cfg.channel,
				Quantity: "voltage",
				Unit:     "V",
				Frame:    acq.cnt.frames,
				Time:     acq.cfg.now(),
				Samples:  samples,
			})
		}
		acq.buf.consume(n)
		acq.cnt.add(n)
		acq.stats.payload.Add(uint64(n))
	}

	if acq.cnt.remaining() == 1 && !acq.buf.empty() {
		// odd payload length: the last byte has no partner.
		acq.buf.consume(1)
		acq.cnt.add(1)
		acq.stats.payload.Add(1)
	}

	if !acq.cnt.frameComplete() {
		return ReceivingData
	}

	acq.emit(FrameEnd)
	acq.cfg.msg.Debugf("device %q: frame %d done (%d bytes)", acq.dev, acq.cnt.frames, acq.seen)
	acq.cnt.end()
	acq.stats.frames.Add(1)
	return Idle
}

func (acq *Acquisition) corrupted() {
	err := fmt.Errorf("%w (state=%v)", ErrStateCorruption, acq.state)
	acq.fail(err)
}

func (acq *Acquisition) fail(err error) {
	acq.cfg.msg.Errorf("device %q: stopping acquisition: %+v", acq.dev, err)
	acq.stop(err)
}

func (acq *Acquisition) stop(err error) {
	acq.err = err
	acq.running = false
	acq.emit(RunEnd)
	acq.buf.reset()
	acq.state = Idle
	if acq.reg != nil {
		acq.reg.Deregister(acq.dev)
	}
}

func (acq *Acquisition) emit(kind EventKind) {
	acq.sink.Boundary(Event{
		Kind:   kind,
		Device: acq.dev,
		Frame:  acq.cnt.frames,
		Time:   acq.cfg.now(),
	})
}
