// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scpi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-lpc/scope/tek"
)

// DefaultTick is the default polling interval of a Loop.
const DefaultTick = 10 * time.Millisecond

// Loop invokes the handlers registered with it on every tick, from a
// single goroutine.
// A handler returning false is deregistered.
type Loop struct {
	tick time.Duration

	mu   sync.Mutex
	devs map[string]func() bool
}

// NewLoop creates a new polling loop.
// A non-positive tick selects DefaultTick.
func NewLoop(tick time.Duration) *Loop {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Loop{
		tick: tick,
		devs: make(map[string]func() bool),
	}
}

// Register registers the handler of device dev.
func (loop *Loop) Register(dev string, handler func() bool) error {
	if handler == nil {
		return fmt.Errorf("scpi: nil handler for device %q", dev)
	}

	loop.mu.Lock()
	defer loop.mu.Unlock()

	if _, dup := loop.devs[dev]; dup {
		return fmt.Errorf("scpi: device %q already registered", dev)
	}
	loop.devs[dev] = handler
	return nil
}

// Deregister removes device dev from the loop.
// Deregister may be called from within a handler.
func (loop *Loop) Deregister(dev string) {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	delete(loop.devs, dev)
}

// Len returns the number of registered devices.
func (loop *Loop) Len() int {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	return len(loop.devs)
}

// Run runs the loop until no device is registered anymore or until ctx
// is done.
func (loop *Loop) Run(ctx context.Context) error {
	tick := time.NewTicker(loop.tick)
	defer tick.Stop()

	for {
		devs := loop.snapshot()
		if len(devs) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			loop.poll(devs)
		}
	}
}

type handler struct {
	dev string
	fct func() bool
}

func (loop *Loop) snapshot() []handler {
	loop.mu.Lock()
	defer loop.mu.Unlock()

	devs := make([]handler, 0, len(loop.devs))
	for dev, fct := range loop.devs {
		devs = append(devs, handler{dev, fct})
	}
	sort.Slice(devs, func(i, j int) bool {
		return devs[i].dev < devs[j].dev
	})
	return devs
}

func (loop *Loop) poll(devs []handler) {
	for _, h := range devs {
		if !loop.registered(h.dev) {
			continue
		}
		if !h.fct() {
			loop.Deregister(h.dev)
		}
	}
}

func (loop *Loop) registered(dev string) bool {
	loop.mu.Lock()
	defer loop.mu.Unlock()
	_, ok := loop.devs[dev]
	return ok
}

var (
	_ tek.Registrar = (*Loop)(nil)
)
