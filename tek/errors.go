// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

import (
	"errors"
	"fmt"
)

var (
	ErrBufferFull      = errors.New("tek: receive buffer full")
	ErrMalformedHeader = errors.New("tek: malformed block header")
	ErrStateCorruption = errors.New("tek: invalid acquisition state")

	// ErrSessionGone is reported by transports when the link to the
	// instrument is lost for good.
	ErrSessionGone = errors.New("tek: session gone")
)

// TransportError describes a failed read or write on a Transport.
type TransportError struct {
	Op  string // "read" or "send"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tek: could not %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
