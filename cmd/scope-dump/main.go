// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// scope-dump displays waveforms stored in LCIO files.
//
// Usage: scope-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> scope-dump -n 4 ./run-42.slcio
//	=== run 42 (detector="scope") ===
//	sample-rate: 20000000 Hz
//	=== event 0 ===
//	scope-1:CH1 frame=0 samples=1000 min=+0.000 max=+78.047 mean=+39.023
//	  [+0.000 +0.078 +0.156 +0.234 ...]
//	[...]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/scope/sink"
	"go-hep.org/x/hep/lcio"
)

const usage = `scope-dump displays waveforms stored in LCIO files.

Usage: scope-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> scope-dump -n 4 ./run-42.slcio
 === run 42 (detector="scope") ===
 sample-rate: 20000000 Hz
 === event 0 ===
 scope-1:CH1 frame=0 samples=1000 min=+0.000 max=+78.047 mean=+39.023
   [+0.000 +0.078 +0.156 +0.234 ...]
 [...]

options:
`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("scope-dump: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("scope-dump", flag.ExitOnError)

		nsamples = fset.Int("n", 8, "number of samples to display per waveform")
	)

	fset.Usage = func() {
		fmt.Print(usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input LCIO file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *nsamples)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, nsamples int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	run := int32(-1)
	for r.Next() {
		if hdr := r.RunHeader(); hdr.RunNumber != run {
			run = hdr.RunNumber
			fmt.Fprintf(wbuf, "=== run %d (detector=%q) ===\n", hdr.RunNumber, hdr.Detector)
			if v := hdr.Params.Ints["SampleRate"]; len(v) == 1 {
				fmt.Fprintf(wbuf, "sample-rate: %d Hz\n", v[0])
			}
		}

		evt := r.Event()
		fmt.Fprintf(wbuf, "=== event %d ===\n", evt.EventNumber)
		for _, wf := range sink.Waveforms(&evt) {
			dump(wbuf, wf, nsamples)
		}
	}

	err = r.Err()
	if err != nil && err != io.EOF {
		return fmt.Errorf("could not read LCIO file: %w", err)
	}

	err = wbuf.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output: %w", err)
	}

	return nil
}

func dump(w io.Writer, wf sink.Waveform, n int) {
	fmt.Fprintf(w, "%s frame=%d samples=%d", wf.Name, wf.Frame, len(wf.Samples))
	if len(wf.Samples) == 0 {
		fmt.Fprintf(w, "\n")
		return
	}

	var (
		min  = wf.Samples[0]
		max  = wf.Samples[0]
		mean float64
	)
	for _, v := range wf.Samples {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		mean += float64(v)
	}
	mean /= float64(len(wf.Samples))
	fmt.Fprintf(w, " min=%+.3f max=%+.3f mean=%+.3f\n", min, max, mean)

	if n <= 0 {
		return
	}
	fmt.Fprintf(w, "  [")
	for i, v := range wf.Samples {
		if i == n {
			fmt.Fprintf(w, " ...")
			break
		}
		if i > 0 {
			fmt.Fprintf(w, " ")
		}
		fmt.Fprintf(w, "%+.3f", v)
	}
	fmt.Fprintf(w, "]\n")
}
