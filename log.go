// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package dxinterop

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/zap"
)

var (
	loggerMu sync.Mutex
	logger   *log.Logger
)

// Logger returns the package logger, creating it on first use.
func Logger() *log.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "dxinterop",
			Level:           log.InfoLevel,
		})
	}
	return logger
}

// SetLogger replaces the package logger.
func SetLogger(l *log.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// ApplyLogLevel sets the package logger's level from c.LogLevel.
func (c Config) ApplyLogLevel() {
	if c.LogLevel == "" {
		return
	}
	if lvl, err := log.ParseLevel(c.LogLevel); err == nil {
		Logger().SetLevel(lvl)
	}
}

// LogSink returns a leak-warning sink that writes to l at warning level.
// A nil l uses the package logger.
func LogSink(l *log.Logger) func(string) {
	return func(msg string) {
		if l == nil {
			Logger().Warn(msg)
			return
		}
		l.Warn(msg)
	}
}

// ZapSink returns a leak-warning sink that writes to a zap logger.
func ZapSink(l *zap.Logger) func(string) {
	return func(msg string) {
		l.Warn("native object leak", zap.String("detail", msg))
	}
}
