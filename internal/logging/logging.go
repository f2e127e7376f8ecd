// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the daemon's single log/slog.Logger. Output
// always goes to stderr, per Unix convention for a daemon whose stdout
// is reserved for nothing in particular but whose stderr is what an
// operator's supervisor (systemd, launchd, a shell backgrounding it with
// `&`) captures. Grounded on the layered stderr-first design of the
// teacher's pkg/logging package, trimmed to this daemon's single
// destination and generalized level source (spec §6's log-level
// environment variable plus --verbose).
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvVar is the environment variable spec §6 names for controlling log
// verbosity without a flag.
const EnvVar = "DISCOVERYD_LOG_LEVEL"

// New builds the process-wide logger. verbose forces debug level
// regardless of the environment variable, matching --verbose's documented
// precedence.
func New(verbose bool) *slog.Logger {
	level := levelFromEnv()
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvVar)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
