// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/ui/styles"
)

// =============================================================================
// WELCOME SCREEN
// =============================================================================

const logo = `     _            _
  __| |_   _  ___| |_
 / _' | | | |/ _ \ __|
| (_| | |_| |  __/ |_
 \__,_|\__,_|\___|\__|`

// Welcome is the screen shown before the first message of a session.
type Welcome struct {
	version       string
	provider      model.ProviderID
	modelName     string
	hasCredential bool

	width  int
	height int

	theme *styles.Theme
}

// NewWelcome creates a new welcome screen.
func NewWelcome(theme *styles.Theme) Welcome {
	return Welcome{
		version:  "dev",
		provider: model.ProviderOpenAI,
		theme:    theme,
	}
}

// SetVersion sets the version string.
func (w *Welcome) SetVersion(version string) {
	w.version = version
}

// SetProvider sets the active provider shown on the screen.
func (w *Welcome) SetProvider(p model.ProviderID) {
	w.provider = p
}

// SetModelName sets the model name.
func (w *Welcome) SetModelName(name string) {
	w.modelName = name
}

// SetHasCredential records whether a key is stored for the provider.
func (w *Welcome) SetHasCredential(has bool) {
	w.hasCredential = has
}

// SetSize updates the dimensions.
func (w *Welcome) SetSize(width, height int) {
	w.width = width
	w.height = height
}

// View renders the welcome screen centered in the available space.
func (w Welcome) View() string {
	var lines []string
	lines = append(lines, w.theme.WelcomeLogo.Render(logo))
	lines = append(lines, w.theme.WelcomeVersion.Render("v"+w.version))
	lines = append(lines, "")
	lines = append(lines, w.theme.WelcomeInfo.Render(
		"Provider: "+w.provider.DisplayName()+"  Model: "+w.modelName))

	if w.hasCredential {
		lines = append(lines, w.theme.WelcomeInfo.Render("Type a message to start chatting."))
	} else {
		lines = append(lines, styles.RenderWarning("No API key stored for "+w.provider.DisplayName()))
		lines = append(lines, w.theme.WelcomeInfo.Render(
			"Set one with "+w.theme.WelcomeKey.Render("/key <api-key>")))
	}

	lines = append(lines, "")
	lines = append(lines, w.theme.WelcomePressKey.Render("/help for commands  -  /quit to exit"))

	box := w.theme.WelcomeBox.Render(strings.Join(lines, "\n"))

	if w.width > 0 && w.height > 0 {
		return lipgloss.Place(w.width, w.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
