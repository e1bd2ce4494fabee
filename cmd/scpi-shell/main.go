// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scpi-shell is an interactive console sending SCPI commands to an
// instrument.
//
// Commands containing a '?' are queries: their reply is displayed.
//
// Usage: scpi-shell [OPTIONS] CONN
//
// Example:
//
//	$> scpi-shell tcp-raw/192.168.2.21/4000
//	scpi> *IDN?
//	TEKTRONIX,MDO4104C,C000001,CF:91.1CT FV:v1.0
//	scpi> :DATA:SOURCE CH2
//	scpi> quit
package main // import "github.com/go-lpc/scope/cmd/scpi-shell"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-lpc/scope/scpi"
	"github.com/peterh/liner"
)

const usage = `scpi-shell is an interactive console sending SCPI commands to an instrument.

Usage: scpi-shell [OPTIONS] CONN

Example:

 $> scpi-shell tcp-raw/192.168.2.21/4000
 $> scpi-shell serial//dev/ttyUSB0/9600

options:
`

func main() {
	log.SetPrefix("scpi-shell: ")
	log.SetFlags(0)

	var (
		timeout = flag.Duration("timeout", 5*time.Second, "timeout for query replies")
		hist    = flag.String("history", historyFile(), "path to history file")
	)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing instrument connection string")
	}

	conn, err := scpi.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("could not open connection: %+v", err)
	}
	defer conn.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(*hist); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	err = shell(conn, line, os.Stdout, *timeout)

	if f, err := os.Create(*hist); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}

	if err != nil {
		line.Close()
		log.Fatalf("%+v", err)
	}
}

type device interface {
	Send(cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
}

type prompter interface {
	Prompt(p string) (string, error)
	AppendHistory(item string)
}

func shell(dev device, term prompter, w io.Writer, timeout time.Duration) error {
	for {
		cmd, err := term.Prompt("scpi> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}

		cmd = strings.TrimSpace(cmd)
		switch strings.ToLower(cmd) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		term.AppendHistory(cmd)

		if !strings.Contains(cmd, "?") {
			err = dev.Send(cmd)
			if err != nil {
				return fmt.Errorf("could not send %q: %w", cmd, err)
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		reply, err := dev.Query(ctx, cmd)
		cancel()
		switch {
		case err == nil:
			fmt.Fprintf(w, "%s\n", reply)
		case errors.Is(err, context.DeadlineExceeded):
			fmt.Fprintf(w, "no reply to %q\n", cmd)
		default:
			return err
		}
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".scpi-shell.history"
	}
	return filepath.Join(dir, "scpi-shell.history")
}
