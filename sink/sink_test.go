// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/scope/tek"
)

type recorder struct {
	recs []Record
}

func (r *recorder) Boundary(evt tek.Event) {
	r.recs = append(r.recs, Record{Kind: KindEvent, Event: evt})
}

func (r *recorder) Samples(b tek.Batch) {
	r.recs = append(r.recs, Record{Kind: KindBatch, Batch: b})
}

var (
	t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	testRecords = []Record{
		{Kind: KindEvent, Event: tek.Event{Kind: tek.RunBegin, Device: "scope", Time: t0}},
		{Kind: KindEvent, Event: tek.Event{Kind: tek.FrameBegin, Device: "scope", Time: t0}},
		{
			Kind: KindBatch,
			Batch: tek.Batch{
				Device: "scope", Channel: "CH1", Quantity: "voltage", Unit: "V",
				Time:    t0.Add(time.Millisecond),
				Samples: []float32{-1, 0, 1.5},
			},
		},
		{
			Kind: KindBatch,
			Batch: tek.Batch{
				Device: "scope", Channel: "CH1", Quantity: "voltage", Unit: "V",
				Time:    t0.Add(2 * time.Millisecond),
				Samples: []float32{2.5},
			},
		},
		{Kind: KindEvent, Event: tek.Event{Kind: tek.FrameEnd, Device: "scope", Time: t0.Add(3 * time.Millisecond)}},
		{Kind: KindEvent, Event: tek.Event{Kind: tek.FrameBegin, Device: "scope", Frame: 1, Time: t0.Add(4 * time.Millisecond)}},
		{
			Kind: KindBatch,
			Batch: tek.Batch{
				Device: "scope", Channel: "CH1", Quantity: "voltage", Unit: "V",
				Frame:   1,
				Time:    t0.Add(5 * time.Millisecond),
				Samples: []float32{42},
			},
		},
		{Kind: KindEvent, Event: tek.Event{Kind: tek.RunEnd, Device: "scope", Frame: 1, Time: t0.Add(6 * time.Millisecond)}},
	}
)

func replay(c tek.Consumer, recs []Record) {
	ch := make(chan Record, len(recs))
	for _, rec := range recs {
		ch <- rec
	}
	close(ch)
	Feed(c, ch)
}

func TestMulti(t *testing.T) {
	var (
		r1 = new(recorder)
		r2 = new(recorder)
	)
	replay(Multi(r1, r2), testRecords)

	if !reflect.DeepEqual(r1.recs, testRecords) {
		t.Fatalf("invalid records:\ngot= %+v\nwant=%+v", r1.recs, testRecords)
	}
	if !reflect.DeepEqual(r2.recs, testRecords) {
		t.Fatalf("invalid records:\ngot= %+v\nwant=%+v", r2.recs, testRecords)
	}
}

func TestChan(t *testing.T) {
	ch := NewChan(2)
	ch.Boundary(tek.Event{Kind: tek.FrameBegin})
	ch.Samples(tek.Batch{Samples: []float32{1}})
	ch.Boundary(tek.Event{Kind: tek.FrameEnd})

	if got, want := ch.Dropped(), uint64(1); got != want {
		t.Fatalf("invalid number of dropped records: got=%d, want=%d", got, want)
	}

	close(ch.C)
	r := new(recorder)
	Feed(r, ch.C)

	want := []Record{
		{Kind: KindEvent, Event: tek.Event{Kind: tek.FrameBegin}},
		{Kind: KindBatch, Batch: tek.Batch{Samples: []float32{1}}},
	}
	if !reflect.DeepEqual(r.recs, want) {
		t.Fatalf("invalid records:\ngot= %+v\nwant=%+v", r.recs, want)
	}
}

func TestCodec(t *testing.T) {
	buf := new(bytes.Buffer)
	for i, rec := range testRecords {
		err := Encode(buf, rec)
		if err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}

	for i, want := range testRecords {
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("could not decode record %d: %+v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid record %d:\ngot= %+v\nwant=%+v", i, got, want)
		}
	}

	_, err := Decode(buf)
	if err == nil {
		t.Fatalf("expected an error decoding an empty stream")
	}
}

func TestCodecErrors(t *testing.T) {
	err := Encode(new(bytes.Buffer), Record{Kind: 42})
	if got, want := err, fmt.Errorf("sink: invalid record kind 42"); got == nil || got.Error() != want.Error() {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}

	_, err = Decode(bytes.NewReader([]byte{42}))
	if got, want := err, fmt.Errorf("sink: invalid record kind 42"); got == nil || got.Error() != want.Error() {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}

	raw, err := Marshal(testRecords[2])
	if err != nil {
		t.Fatalf("could not marshal record: %+v", err)
	}
	_, err = Decode(bytes.NewReader(raw[:len(raw)-2]))
	if err == nil {
		t.Fatalf("expected an error decoding a truncated record")
	}
}
