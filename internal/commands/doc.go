// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the chat UI.
//
// Commands are lines starting with "/" (e.g. /provider, /key, /model).
// The Parser recognizes them, the Registry resolves names and aliases,
// and handlers emit Bubble Tea messages that the UI layer interprets.
// Input that does not start with "/" is never treated as a command.
package commands
