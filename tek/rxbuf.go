// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

// rxbuf is a fixed-capacity receive buffer.
// Unread bytes always start at offset 0.
type rxbuf struct {
	p []byte
	n int
}

func newRxbuf(size int) *rxbuf {
	return &rxbuf{p: make([]byte, size)}
}

func (buf *rxbuf) len() int      { return buf.n }
func (buf *rxbuf) empty() bool   { return buf.n == 0 }
func (buf *rxbuf) cap() int      { return len(buf.p) }
func (buf *rxbuf) unused() int   { return len(buf.p) - buf.n }
func (buf *rxbuf) bytes() []byte { return buf.p[:buf.n] }
func (buf *rxbuf) reset()        { buf.n = 0 }

// tail returns the writable span after the unread bytes.
func (buf *rxbuf) tail() []byte { return buf.p[buf.n:] }

// commit marks n bytes written into tail as unread.
func (buf *rxbuf) commit(n int) { buf.n += n }

func (buf *rxbuf) append(p []byte) error {
	if len(p) > buf.unused() {
		return ErrBufferFull
	}
	buf.n += copy(buf.p[buf.n:], p)
	return nil
}

// consume drops the first n bytes.
func (buf *rxbuf) consume(n int) {
	if n <= 0 {
		return
	}
	if n > buf.n {
		n = buf.n
	}
	buf.n = copy(buf.p, buf.p[n:buf.n])
}
