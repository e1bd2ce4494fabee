// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tek

import (
	"bytes"
	"strconv"
)

const blkMarker = '#' // binary block header marker

type hdrStatus uint8

const (
	hdrIncomplete hdrStatus = iota // need more bytes
	hdrMalformed                   // invalid digit count, 2 bytes purged
	hdrParsed                      // header consumed from the buffer
)

func (st hdrStatus) String() string {
	switch st {
	case hdrIncomplete:
		return "incomplete"
	case hdrMalformed:
		return "malformed"
	case hdrParsed:
		return "parsed"
	}
	return "hdrStatus(" + strconv.Itoa(int(st)) + ")"
}

// header is the outcome of parsing a binary block header.
type header struct {
	status  hdrStatus
	size    int // declared payload length, in bytes
	garbage int // number of bytes purged before the marker
	badlen  bool
}

// parseHeader decodes a '#D<digits>' block header at the head of buf.
// Bytes preceding the marker are purged.
func parseHeader(buf *rxbuf) header {
	var hdr header

	i := bytes.IndexByte(buf.bytes(), blkMarker)
	if i < 0 {
		i = buf.len()
	}
	buf.consume(i)
	hdr.garbage = i

	if buf.len() < 2 {
		return hdr
	}

	ndigits := int(buf.bytes()[1]) - '0'
	if ndigits < 1 || ndigits > 9 {
		buf.consume(2)
		hdr.status = hdrMalformed
		return hdr
	}

	if buf.len() < 2+ndigits {
		return hdr
	}

	str := string(buf.bytes()[2 : 2+ndigits])
	v, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		v = 0
		hdr.badlen = true
	}
	buf.consume(2 + ndigits)

	hdr.status = hdrParsed
	hdr.size = int(v)
	return hdr
}
