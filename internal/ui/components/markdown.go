// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Markdown renders finalized assistant messages with glamour. Streaming
// fragments are shown raw; rendering only happens once a message is
// complete, so partial Markdown never flickers through half-parsed states.
type Markdown struct {
	renderer *glamour.TermRenderer
	width    int
}

// NewMarkdown creates a renderer for the given wrap width. Returns an error
// when the terminal profile cannot be set up; callers should fall back to
// plain text.
func NewMarkdown(width int) (*Markdown, error) {
	if width < 20 {
		width = 20
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}

	return &Markdown{renderer: r, width: width}, nil
}

// Width returns the wrap width the renderer was built for.
func (m *Markdown) Width() int {
	return m.width
}

// Render renders Markdown to styled terminal output. On failure the raw
// text is returned so content is never lost.
func (m *Markdown) Render(text string) string {
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}
