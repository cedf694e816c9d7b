// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the plain-terminal REPL mode.
//
// The REPL runs when stdout is not a TTY or when plain mode is forced
// (DUET_PLAIN or the ui.plain config key). It shares the provider
// adapters, the store, and the conversation model with the TUI but
// reads input line by line with liner and prints responses directly,
// rendering markdown only when stdout is a terminal.
package cli
