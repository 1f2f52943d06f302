// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"github.com/bureau-foundation/spraypaint/lib/config"
)

// newLogger creates the process logger on output. In auto mode a
// terminal gets slog.TextHandler for human-readable output; anything
// else (a file, a pipe, a log collector) gets slog.JSONHandler.
func newLogger(format config.LogFormat, output *os.File) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	switch format {
	case config.LogFormatText:
		handler = slog.NewTextHandler(output, options)
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(output, options)
	case config.LogFormatAuto, "":
		if term.IsTerminal(int(output.Fd())) {
			handler = slog.NewTextHandler(output, options)
		} else {
			handler = slog.NewJSONHandler(output, options)
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nil
}

// parseDuration accepts a Go duration ("90s", "2h") or a bare number
// of seconds.
func parseDuration(value string) (time.Duration, error) {
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return duration, nil
}
