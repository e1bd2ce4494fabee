// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends mail alerts when an acquisition fails.
package alert // import "github.com/go-lpc/scope/internal/alert"

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	mail "gopkg.in/gomail.v2"
)

// MaxAlerts is the maximum number of alerts sent per device.
const MaxAlerts = 5

// Mailer sends alert mails through a SMTP server.
type Mailer struct {
	Name string // name of the sending program

	usr  string
	pwd  string
	srv  string
	port int
	tgts []string

	mu     sync.Mutex
	alerts map[string]int // number of alerts per device
	send   func(msg *mail.Message) error
}

// FromEnv creates a Mailer configured from the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment
// variables.
func FromEnv(name string) *Mailer {
	return New(
		name,
		os.Getenv("MAIL_USERNAME"),
		os.Getenv("MAIL_PASSWORD"),
		os.Getenv("MAIL_SERVER"),
		atoi(os.Getenv("MAIL_PORT")),
		splitTargets(os.Getenv("MAIL_TGTS")),
	)
}

func New(name, usr, pwd, srv string, port int, tgts []string) *Mailer {
	m := &Mailer{
		Name:   name,
		usr:    usr,
		pwd:    pwd,
		srv:    srv,
		port:   port,
		tgts:   tgts,
		alerts: make(map[string]int),
	}
	m.send = m.dialAndSend
	return m
}

// Enabled reports whether the mailer has credentials and recipients.
func (m *Mailer) Enabled() bool {
	return m.usr != "" && m.pwd != "" &&
		m.srv != "" && m.port != 0 &&
		len(m.tgts) != 0
}

// Alert sends an alert about the failed acquisition of device dev.
// At most MaxAlerts alerts are sent per device.
func (m *Mailer) Alert(dev string, cause error) error {
	if !m.Enabled() {
		return fmt.Errorf("alert: could not send mail alert: missing credentials")
	}

	m.mu.Lock()
	m.alerts[dev]++
	n := m.alerts[dev]
	m.mu.Unlock()

	if n > MaxAlerts {
		return nil
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] acquisition alert: %q", m.Name, dev))
	msg.SetBody("text/plain", fmt.Sprintf("device: %q\nerror: %v\nalert: %d/%d\n",
		dev, cause, n, MaxAlerts,
	))

	err := m.send(msg)
	if err != nil {
		return fmt.Errorf("alert: could not send mail alert: %w", err)
	}
	return nil
}

func (m *Mailer) dialAndSend(msg *mail.Message) error {
	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}

func splitTargets(s string) []string {
	var tgts []string
	for _, tgt := range strings.Split(s, ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" {
			continue
		}
		tgts = append(tgts, tgt)
	}
	return tgts
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
