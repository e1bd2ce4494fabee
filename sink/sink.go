// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sink holds consumers of acquired waveforms.
package sink // import "github.com/go-lpc/scope/sink"

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/scope/tek"
)

// Kind describes the content of a Record.
type Kind uint8

const (
	KindEvent Kind = iota + 1
	KindBatch
)

// Record is a boundary event or a batch of samples.
type Record struct {
	Kind  Kind
	Event tek.Event
	Batch tek.Batch
}

// Multi forwards events and batches to all consumers, in order.
func Multi(cs ...tek.Consumer) tek.Consumer {
	return multi(cs)
}

type multi []tek.Consumer

func (m multi) Boundary(evt tek.Event) {
	for _, c := range m {
		c.Boundary(evt)
	}
}

func (m multi) Samples(b tek.Batch) {
	for _, c := range m {
		c.Samples(b)
	}
}

// Chan forwards records to a channel, dropping them when the channel is
// full.
type Chan struct {
	C chan Record

	dropped atomic.Uint64
}

func NewChan(n int) *Chan {
	return &Chan{C: make(chan Record, n)}
}

func (ch *Chan) Boundary(evt tek.Event) {
	ch.send(Record{Kind: KindEvent, Event: evt})
}

func (ch *Chan) Samples(b tek.Batch) {
	ch.send(Record{Kind: KindBatch, Batch: b})
}

func (ch *Chan) send(rec Record) {
	select {
	case ch.C <- rec:
	default:
		ch.dropped.Add(1)
	}
}

// Dropped returns the number of records dropped so far.
func (ch *Chan) Dropped() uint64 { return ch.dropped.Load() }

// Feed sends records read from ch to c, until ch is closed.
func Feed(c tek.Consumer, ch <-chan Record) {
	for rec := range ch {
		switch rec.Kind {
		case KindEvent:
			c.Boundary(rec.Event)
		case KindBatch:
			c.Samples(rec.Batch)
		}
	}
}

// Encode encodes a record with the tdaq binary codec.
func Encode(w io.Writer, rec Record) error {
	enc := tdaq.NewEncoder(w)
	enc.WriteU8(uint8(rec.Kind))
	switch rec.Kind {
	case KindEvent:
		evt := rec.Event
		enc.WriteU8(uint8(evt.Kind))
		enc.WriteStr(evt.Device)
		enc.WriteU64(evt.Frame)
		enc.WriteI64(evt.Time.UnixNano())
	case KindBatch:
		b := rec.Batch
		enc.WriteStr(b.Device)
		enc.WriteStr(b.Channel)
		enc.WriteStr(b.Quantity)
		enc.WriteStr(b.Unit)
		enc.WriteU64(b.Frame)
		enc.WriteI64(b.Time.UnixNano())
		enc.WriteU32(uint32(len(b.Samples)))
		for _, v := range b.Samples {
			enc.WriteF32(v)
		}
	default:
		return fmt.Errorf("sink: invalid record kind %d", rec.Kind)
	}
	if err := enc.Err(); err != nil {
		return fmt.Errorf("sink: could not encode record: %w", err)
	}
	return nil
}

// Decode decodes a record encoded with Encode.
func Decode(r io.Reader) (Record, error) {
	var (
		rec Record
		dec = tdaq.NewDecoder(r)
	)
	rec.Kind = Kind(dec.ReadU8())
	if err := dec.Err(); err != nil {
		return rec, fmt.Errorf("sink: could not decode record kind: %w", err)
	}

	switch rec.Kind {
	case KindEvent:
		rec.Event.Kind = tek.EventKind(dec.ReadU8())
		rec.Event.Device = dec.ReadStr()
		rec.Event.Frame = dec.ReadU64()
		rec.Event.Time = unixNano(dec.ReadI64())
	case KindBatch:
		rec.Batch.Device = dec.ReadStr()
		rec.Batch.Channel = dec.ReadStr()
		rec.Batch.Quantity = dec.ReadStr()
		rec.Batch.Unit = dec.ReadStr()
		rec.Batch.Frame = dec.ReadU64()
		rec.Batch.Time = unixNano(dec.ReadI64())
		n := int(dec.ReadU32())
		if dec.Err() == nil {
			rec.Batch.Samples = make([]float32, n)
			for i := range rec.Batch.Samples {
				rec.Batch.Samples[i] = dec.ReadF32()
			}
		}
	default:
		return rec, fmt.Errorf("sink: invalid record kind %d", rec.Kind)
	}

	if err := dec.Err(); err != nil {
		return rec, fmt.Errorf("sink: could not decode record: %w", err)
	}
	return rec, nil
}

// Marshal returns the tdaq encoding of a record.
func Marshal(rec Record) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := Encode(buf, rec)
	return buf.Bytes(), err
}

func unixNano(v int64) time.Time {
	return time.Unix(0, v).UTC()
}
