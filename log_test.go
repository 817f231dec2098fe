// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf)
	LogSink(l)("object 0x1234 leaked")
	if got := buf.String(); !strings.Contains(got, "object 0x1234 leaked") || !strings.Contains(got, "WARN") {
		t.Errorf("got %q, want a warning carrying the message", got)
	}
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ZapSink(zap.New(core))("object 0x1234 leaked")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["detail"]; got != "object 0x1234 leaked" {
		t.Errorf("detail got %v, want %q", got, "object 0x1234 leaked")
	}
}

func TestApplyLogLevel(t *testing.T) {
	saved := Logger()
	defer SetLogger(saved)

	l := log.New(&bytes.Buffer{})
	SetLogger(l)
	Config{LogLevel: "debug"}.ApplyLogLevel()
	if got := l.GetLevel(); got != log.DebugLevel {
		t.Errorf("got %v, want %v", got, log.DebugLevel)
	}
}
