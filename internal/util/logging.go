// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the duet application.
package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Debug logging goes to an on-disk file, never the terminal: the TUI owns
// the screen. Disabled by default; enabled via config or DUET_DEBUG=1.
// SECURITY: Credentials are never written to the debug log.

var debugLogger = log.New(io.Discard, "", log.LstdFlags|log.Lmicroseconds)

// EnableDebugLog opens (or creates) the debug log file under dir and routes
// Debugf output to it. The returned closer flushes and releases the file.
func EnableDebugLog(dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, "debug.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}

	debugLogger.SetOutput(f)
	return f, nil
}

// Debugf writes a line to the debug log. A no-op unless EnableDebugLog ran.
func Debugf(format string, args ...any) {
	debugLogger.Printf(format, args...)
}
