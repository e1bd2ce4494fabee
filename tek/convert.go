// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

import (
	"encoding/binary"
)

// Calib holds the vertical calibration of a channel.
// A raw sample s is converted to (s - Offset) * Scale.
type Calib struct {
	Offset float64 `yaml:"offset"`
	Scale  float64 `yaml:"scale"`
}

// DefaultCalib is the calibration of a 50 ohm input, 1.5625 mV/LSB.
var DefaultCalib = Calib{
	Offset: 32768,
	Scale:  1.5625e-3 * 50,
}

func (cal Calib) valid() bool { return cal.Scale != 0 }

// convert converts the whole big-endian uint16 samples of raw, appending
// them to dst. It returns the extended slice and the number of bytes
// consumed, always even.
func (cal Calib) convert(dst []float32, raw []byte) ([]float32, int) {
	n := len(raw) &^ 1
	for i := 0; i < n; i += 2 {
		s := binary.BigEndian.Uint16(raw[i : i+2])
		dst = append(dst, float32((float64(s)-cal.Offset)*cal.Scale))
	}
	return dst, n
}
