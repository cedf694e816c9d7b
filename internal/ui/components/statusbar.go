// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/ui/styles"
	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the conversation loop state shown in the status bar.
type Status int

const (
	// StatusIdle means the loop is waiting for user input.
	StatusIdle Status = iota
	// StatusSending means a request is being prepared and sent.
	StatusSending
	// StatusStreaming means response fragments are arriving.
	StatusStreaming
	// StatusError means the last exchange ended with an error.
	StatusError
)

// String returns the human-readable status label.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Ready"
	case StatusSending:
		return "Sending"
	case StatusStreaming:
		return "Streaming"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns the ASCII indicator for the status.
func (s Status) Icon() string {
	switch s {
	case StatusIdle:
		return styles.StatusIndicators.Success
	case StatusSending, StatusStreaming:
		return styles.StatusIndicators.Pending
	case StatusError:
		return styles.StatusIndicators.Error
	default:
		return styles.StatusIndicators.Info
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar renders the bottom bar: loop state, provider, model,
// credential state and keyboard shortcuts.
type StatusBar struct {
	theme *styles.Theme
	width int

	status        Status
	provider      model.ProviderID
	modelName     string
	hasCredential bool
	messageCount  int
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		theme:    theme,
		status:   StatusIdle,
		provider: model.ProviderOpenAI,
	}
}

// SetWidth sets the render width.
func (s *StatusBar) SetWidth(width int) {
	s.width = width
}

// SetStatus sets the conversation loop state.
func (s *StatusBar) SetStatus(status Status) {
	s.status = status
}

// Status returns the current loop state.
func (s *StatusBar) Status() Status {
	return s.status
}

// SetProvider sets the active provider.
func (s *StatusBar) SetProvider(p model.ProviderID) {
	s.provider = p
}

// SetModel sets the displayed model name.
func (s *StatusBar) SetModel(name string) {
	s.modelName = name
}

// SetHasCredential records whether a key is stored for the active provider.
func (s *StatusBar) SetHasCredential(has bool) {
	s.hasCredential = has
}

// SetMessageCount sets the conversation message count.
func (s *StatusBar) SetMessageCount(n int) {
	s.messageCount = n
}

// View renders the status bar for the current width.
func (s *StatusBar) View() string {
	if s.width < 60 {
		return s.viewNarrow()
	}
	return s.viewWide()
}

// viewNarrow renders only the essentials: state and provider.
func (s *StatusBar) viewNarrow() string {
	line := s.renderStatus() + " " + s.theme.ProviderBadge.Render(s.provider.DisplayName())
	if !s.hasCredential {
		line += " " + s.theme.CredentialWarn.Render("no key")
	}
	return s.theme.StatusBar.Width(s.width).Render(util.TruncateWidth(line, s.width))
}

// viewWide renders the full bar with model name and shortcuts.
func (s *StatusBar) viewWide() string {
	var left []string
	left = append(left, s.renderStatus())
	left = append(left, s.theme.ProviderBadge.Render(s.provider.DisplayName()))
	left = append(left, s.theme.ModelBadge.Render(s.modelName))
	if !s.hasCredential {
		left = append(left, s.theme.CredentialWarn.Render(styles.StatusIndicators.Warning+" no API key (/key)"))
	}

	leftStr := strings.Join(left, " | ")
	rightStr := s.renderShortcuts()

	gap := s.width - lipgloss.Width(leftStr) - lipgloss.Width(rightStr) - 2
	if gap < 1 {
		return s.theme.StatusBar.Width(s.width).Render(util.TruncateWidth(leftStr, s.width-2))
	}

	return s.theme.StatusBar.Width(s.width).Render(leftStr + strings.Repeat(" ", gap) + rightStr)
}

func (s *StatusBar) renderStatus() string {
	label := s.status.Icon() + " " + s.status.String()
	switch s.status {
	case StatusIdle:
		return s.theme.StatusIdle.Render(label)
	case StatusError:
		return s.theme.StatusError.Render(label)
	default:
		return s.theme.StatusBusy.Render(label)
	}
}

func (s *StatusBar) renderShortcuts() string {
	shortcuts := []struct{ key, desc string }{
		{"/help", "commands"},
		{"ctrl+c", "quit"},
	}

	var parts []string
	for _, sc := range shortcuts {
		parts = append(parts, s.theme.ShortcutKey.Render(sc.key)+" "+s.theme.ShortcutDesc.Render(sc.desc))
	}
	return strings.Join(parts, "  ")
}
