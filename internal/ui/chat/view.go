// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/duetlabs/duet/internal/commands"
	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/ui/components"
)

// chromeHeight is the vertical space reserved outside the viewport:
// spinner/status line, input, and the status bar.
const chromeHeight = 5

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting duet..."
	}

	var b strings.Builder

	if m.conversation.IsEmpty() && !m.helpVisible {
		b.WriteString(m.welcome.View())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	// Spinner or ephemeral feedback line
	switch {
	case m.spinner.IsActive():
		b.WriteString(" " + m.spinner.View())
	case m.statusMsg != "" && m.statusIsError:
		b.WriteString(" " + m.theme.CredentialWarn.Render(m.statusMsg))
	case m.statusMsg != "":
		b.WriteString(" " + m.theme.SystemBubble.Render(m.statusMsg))
	}
	b.WriteString("\n")

	b.WriteString(m.theme.InputContainer.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())

	return m.theme.App.Render(b.String())
}

// updateViewport re-renders the transcript into the viewport.
func (m *Model) updateViewport() {
	if !m.ready {
		return
	}

	if m.helpVisible {
		m.viewport.SetContent(commands.HelpText(m.registry))
		return
	}

	m.viewport.SetContent(m.renderMessages())
}

func (m *Model) renderMessages() string {
	msgs := m.conversation.Messages
	if len(msgs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderMessage(msg *model.Message) string {
	width := m.viewport.Width - 4
	if width < 10 {
		width = 10
	}

	timestamp := m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))

	switch {
	case msg.Role == model.RoleUser:
		label := m.theme.UserLabel.Render("You")
		body := m.theme.UserBubble.MaxWidth(width).Render(msg.Content)
		return lipgloss.JoinVertical(lipgloss.Left, label+" "+timestamp, body)

	case msg.IsError:
		label := m.theme.SystemLabel.Render(m.providerID.DisplayName())
		body := m.theme.ErrorBubble.MaxWidth(width).Render(msg.Content)
		return lipgloss.JoinVertical(lipgloss.Left, label+" "+timestamp, body)

	default:
		label := m.theme.AssistantLabel.Render(m.providerID.DisplayName())
		content := msg.GetDisplayContent()
		// Markdown rendering waits for the finalized message; partial
		// fences during streaming would thrash the renderer. With
		// markdown off, fenced code still gets syntax highlighting.
		if !msg.IsStreaming {
			if m.markdown != nil && m.cfg.UI.Markdown {
				content = m.markdown.Render(content)
			} else {
				content = components.ParseCodeBlocks(content, width)
			}
		}
		body := m.theme.AssistantText.MaxWidth(width).Render(content)
		return lipgloss.JoinVertical(lipgloss.Left, label+" "+timestamp, body)
	}
}
