// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

// counters holds the frame and run accounting of an acquisition.
type counters struct {
	expected int // payload bytes declared by the current frame header
	consumed int // payload bytes of the current frame consumed so far

	frames uint64 // completed frames in the current run
	limit  uint64 // number of frames per run, 0 for no limit
}

func (cnt *counters) startRun(limit uint64) {
	*cnt = counters{limit: limit}
}

// request resets the per-frame counters before a new frame is requested.
func (cnt *counters) request() {
	cnt.expected = 0
	cnt.consumed = 0
}

func (cnt *counters) begin(n int) {
	cnt.expected = n
	cnt.consumed = 0
}

func (cnt *counters) add(n int) { cnt.consumed += n }

// remaining returns the number of payload bytes still expected.
func (cnt *counters) remaining() int {
	if cnt.consumed >= cnt.expected {
		return 0
	}
	return cnt.expected - cnt.consumed
}

func (cnt *counters) end() {
	cnt.frames++
	cnt.expected = 0
	cnt.consumed = 0
}

func (cnt *counters) frameComplete() bool {
	return cnt.consumed >= cnt.expected
}

func (cnt *counters) runComplete() bool {
	return cnt.limit > 0 && cnt.frames >= cnt.limit
}
