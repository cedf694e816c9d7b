// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable UI components for the duet TUI:
// the status bar, welcome screen, loading spinner, and the Markdown and
// code block renderers used for assistant messages.
package components
