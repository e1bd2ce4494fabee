// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the YAML description of an acquisition run.
//
// Example:
//
//	run: 42
//	output: run-42.slcio
//	metrics: ":9100"
//	devices:
//	  - name: scope-1
//	    conn: tcp-raw/192.168.2.21/4000
//	    frames: 100
//	    channel: CH1
//	    poll: 10ms
//	    calib: {offset: 32768, scale: 0.078125}
//	  - name: scope-2
//	    conn: serial//dev/ttyUSB0/115200
//	    model: DPO4034
package config // import "github.com/go-lpc/scope/internal/config"

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-lpc/scope/scpi"
	"github.com/go-lpc/scope/tek"
	"gopkg.in/yaml.v3"
)

// Run describes an acquisition run.
type Run struct {
	Run     int32    `yaml:"run"`
	Output  string   `yaml:"output"`
	DB      string   `yaml:"db"`      // conditions database name
	Metrics string   `yaml:"metrics"` // address of the metrics endpoint
	Devices []Device `yaml:"devices"`
}

// Device describes the acquisition of one instrument.
type Device struct {
	Name    string        `yaml:"name"`
	Conn    string        `yaml:"conn"`
	Frames  uint64        `yaml:"frames"`
	Channel string        `yaml:"channel"`
	Buffer  int           `yaml:"buffer"`
	Poll    time.Duration `yaml:"poll"`
	Model   string        `yaml:"model"` // instrument model, for the conditions database
	Calib   *tek.Calib    `yaml:"calib"`
}

// Options returns the acquisition options for this device.
func (dev Device) Options() []tek.Option {
	opts := []tek.Option{
		tek.WithFrameLimit(dev.Frames),
		tek.WithChannel(dev.Channel),
		tek.WithBufferSize(dev.Buffer),
	}
	if dev.Calib != nil {
		opts = append(opts, tek.WithCalib(*dev.Calib))
	}
	return opts
}

// Load loads a run description from a YAML file.
func Load(fname string) (*Run, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("config: could not read %q: %w", fname, err)
	}

	run, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: could not load %q: %w", fname, err)
	}
	return run, nil
}

// Parse parses a YAML run description.
func Parse(raw []byte) (*Run, error) {
	var run Run
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err := dec.Decode(&run)
	if err != nil {
		return nil, fmt.Errorf("config: could not decode run description: %w", err)
	}

	err = run.Validate()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Validate checks the run description and fills in the device defaults.
func (run *Run) Validate() error {
	if len(run.Devices) == 0 {
		return fmt.Errorf("config: no device")
	}

	seen := make(map[string]int, len(run.Devices))
	for i := range run.Devices {
		dev := &run.Devices[i]
		if dev.Name == "" {
			return fmt.Errorf("config: device #%d has no name", i)
		}
		if j, dup := seen[dev.Name]; dup {
			return fmt.Errorf("config: device %q declared twice (#%d and #%d)", dev.Name, j, i)
		}
		seen[dev.Name] = i

		_, err := scpi.ParseAddr(dev.Conn)
		if err != nil {
			return fmt.Errorf("config: device %q: %w", dev.Name, err)
		}

		if dev.Channel == "" {
			dev.Channel = "CH1"
		}
		if dev.Buffer == 0 {
			dev.Buffer = tek.DefaultBufferSize
		}
		if dev.Poll <= 0 {
			dev.Poll = scpi.DefaultTick
		}
		if dev.Calib != nil && dev.Calib.Scale == 0 {
			return fmt.Errorf("config: device %q: invalid calibration scale", dev.Name)
		}
	}
	return nil
}
