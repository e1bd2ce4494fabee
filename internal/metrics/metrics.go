// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes acquisition statistics as prometheus metrics.
package metrics // import "github.com/go-lpc/scope/internal/metrics"

import (
	"net/http"
	"sort"
	"sync"

	"github.com/go-lpc/scope/tek"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scope"

// Source is an acquisition whose statistics are exported.
type Source interface {
	Device() string
	Stats() tek.Stats
}

// Collector collects the statistics of a set of acquisitions.
type Collector struct {
	mu   sync.RWMutex
	srcs map[string]Source

	frames    *prometheus.Desc
	payload   *prometheus.Desc
	received  *prometheus.Desc
	malformed *prometheus.Desc
	garbage   *prometheus.Desc
	rerrs     *prometheus.Desc
}

func New() *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name),
			help, []string{"device"}, nil,
		)
	}
	return &Collector{
		srcs:      make(map[string]Source),
		frames:    desc("frames_total", "Number of acquired frames."),
		payload:   desc("payload_bytes_total", "Number of waveform payload bytes converted to samples."),
		received:  desc("received_bytes_total", "Number of bytes read from the instrument."),
		malformed: desc("malformed_headers_total", "Number of malformed block headers."),
		garbage:   desc("garbage_bytes_total", "Number of bytes purged while looking for a block header."),
		rerrs:     desc("read_errors_total", "Number of transient transport read errors."),
	}
}

// Add adds an acquisition to the collector, replacing any previous
// acquisition of the same device.
func (c *Collector) Add(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.srcs[src.Device()] = src
}

func (c *Collector) Remove(dev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.srcs, dev)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frames
	ch <- c.payload
	ch <- c.received
	ch <- c.malformed
	ch <- c.garbage
	ch <- c.rerrs
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devs := make([]string, 0, len(c.srcs))
	for dev := range c.srcs {
		devs = append(devs, dev)
	}
	sort.Strings(devs)

	for _, dev := range devs {
		st := c.srcs[dev].Stats()
		for _, v := range []struct {
			desc *prometheus.Desc
			val  uint64
		}{
			{c.frames, st.Frames},
			{c.payload, st.Payload},
			{c.received, st.Received},
			{c.malformed, st.Malformed},
			{c.garbage, st.Garbage},
			{c.rerrs, st.ReadErrors},
		} {
			ch <- prometheus.MustNewConstMetric(v.desc, prometheus.CounterValue, float64(v.val), dev)
		}
	}
}

// Handler returns an HTTP handler serving the metrics of the collector
// along with the Go runtime and process metrics.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		err := reg.Register(col)
		if err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

var (
	_ prometheus.Collector = (*Collector)(nil)
	_ Source               = (*tek.Acquisition)(nil)
)
