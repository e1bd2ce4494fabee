// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-lpc/scope/tek"
	"go-hep.org/x/hep/lcio"
)

// Detector is the detector name recorded in LCIO files.
const Detector = "scope"

// LCIO writes one LCIO event per acquired frame.
//
// Each frame is stored as a GenericObject collection named after the device
// and channel, holding the samples as F32s and the frame index and number
// of samples as I32s.
type LCIO struct {
	mu  sync.Mutex
	w   *lcio.Writer
	run int32
	err error

	hdr     bool
	ievt    int32
	skipped int // frame-end events without a frame-begin
	frames  map[string]*frame
}

type frame struct {
	channel string
	index   uint64
	samples []float32
}

// NewLCIO creates a new LCIO consumer writing events for the given run.
func NewLCIO(w *lcio.Writer, run int32) *LCIO {
	return &LCIO{
		w:      w,
		run:    run,
		frames: make(map[string]*frame),
	}
}

// Err returns the first error encountered while writing.
func (o *LCIO) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Skipped returns the number of frames that could not be written because
// their frame-begin event was lost.
func (o *LCIO) Skipped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped
}

// Events returns the number of LCIO events written.
func (o *LCIO) Events() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int(o.ievt)
}

func (o *LCIO) Boundary(evt tek.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return
	}

	switch evt.Kind {
	case tek.RunBegin:
		o.err = o.writeRunHeader()
	case tek.FrameBegin:
		o.frames[evt.Device] = &frame{index: evt.Frame}
	case tek.FrameEnd:
		f, ok := o.frames[evt.Device]
		if !ok {
			o.skipped++
			return
		}
		delete(o.frames, evt.Device)
		o.err = o.writeFrame(evt, f)
	case tek.RunEnd:
		// partial frames are discarded.
		delete(o.frames, evt.Device)
	}
}

func (o *LCIO) Samples(b tek.Batch) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.frames[b.Device]
	if !ok {
		return
	}
	f.channel = b.Channel
	f.samples = append(f.samples, b.Samples...)
}

func (o *LCIO) writeRunHeader() error {
	if o.hdr {
		return nil
	}
	o.hdr = true

	err := o.w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: o.run,
		Detector:  Detector,
		Descr:     "waveforms",
		Params: lcio.Params{
			Ints: map[string][]int32{
				"SampleRate": {tek.SampleRate},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sink: could not write run header: %w", err)
	}
	return nil
}

func (o *LCIO) writeFrame(evt tek.Event, f *frame) error {
	out := lcio.Event{
		RunNumber:   o.run,
		EventNumber: o.ievt,
		TimeStamp:   evt.Time.UnixNano(),
		Detector:    Detector,
	}
	out.Add(CollectionName(evt.Device, f.channel), &lcio.GenericObject{
		Data: []lcio.GenericObjectData{
			{
				I32s: []int32{int32(f.index), int32(len(f.samples))},
				F32s: f.samples,
			},
		},
	})

	err := o.w.WriteEvent(&out)
	if err != nil {
		return fmt.Errorf("sink: could not write frame %d of device %q: %w", f.index, evt.Device, err)
	}
	o.ievt++
	return nil
}

// CollectionName returns the name of the LCIO collection holding the
// waveforms of a device channel.
func CollectionName(dev, channel string) string {
	if channel == "" {
		return dev
	}
	return dev + ":" + channel
}

// Waveform is a frame read back from an LCIO event.
type Waveform struct {
	Name    string
	Frame   int32
	Samples []float32
}

// Waveforms extracts the waveforms stored in an LCIO event, sorted by
// collection name.
func Waveforms(evt *lcio.Event) []Waveform {
	var wfs []Waveform
	for _, name := range evt.Names() {
		obj, ok := evt.Get(name).(*lcio.GenericObject)
		if !ok || len(obj.Data) != 1 {
			continue
		}
		data := obj.Data[0]
		if len(data.I32s) != 2 || int(data.I32s[1]) != len(data.F32s) {
			continue
		}
		wfs = append(wfs, Waveform{
			Name:    name,
			Frame:   data.I32s[0],
			Samples: data.F32s,
		})
	}
	sort.Slice(wfs, func(i, j int) bool {
		return wfs[i].Name < wfs[j].Name
	})
	return wfs
}
