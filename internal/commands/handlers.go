// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/duetlabs/duet/internal/model"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HandlerContext provides read-only application state to command handlers.
// The UI layer populates it before dispatching a command.
type HandlerContext struct {
	// Provider is the currently active provider
	Provider model.ProviderID

	// Model is the currently selected model for the active provider
	Model string

	// HasCredential reports whether a key is stored for the active provider
	HasCredential bool

	// MessageCount is the number of messages in the current conversation
	MessageCount int
}

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// These messages are emitted by command handlers; the UI layer applies the
// state changes and persists them.

// ShowHelpMsg triggers the help display.
type ShowHelpMsg struct{}

// SwitchProviderMsg requests switching the active provider.
type SwitchProviderMsg struct {
	Provider model.ProviderID
}

// SetCredentialMsg requests storing an API key for a provider.
type SetCredentialMsg struct {
	Provider   model.ProviderID
	Credential string
}

// ClearCredentialMsg requests removing the stored key for a provider.
type ClearCredentialMsg struct {
	Provider model.ProviderID
}

// SwitchModelMsg requests switching the model for a provider.
type SwitchModelMsg struct {
	Provider model.ProviderID
	Model    string
}

// ClearConversationMsg requests clearing the conversation history.
type ClearConversationMsg struct{}

// ExportConversationMsg requests exporting the conversation.
type ExportConversationMsg struct {
	Format string // "markdown" or "json"
	Path   string // empty = default path
}

// StatusInfoMsg carries informational text to show in the chat transcript.
type StatusInfoMsg struct {
	Text string
}

// CommandErrorMsg carries a command usage error to show to the user.
type CommandErrorMsg struct {
	Text string
}

func info(format string, args ...interface{}) tea.Cmd {
	text := fmt.Sprintf(format, args...)
	return func() tea.Msg { return StatusInfoMsg{Text: text} }
}

func usageError(format string, args ...interface{}) tea.Cmd {
	text := fmt.Sprintf(format, args...)
	return func() tea.Msg { return CommandErrorMsg{Text: text} }
}

// =============================================================================
// HANDLERS
// =============================================================================

func handleHelp(ctx *HandlerContext, result ParseResult) tea.Cmd {
	return func() tea.Msg { return ShowHelpMsg{} }
}

func handleQuit(ctx *HandlerContext, result ParseResult) tea.Cmd {
	return tea.Quit
}

func handleProvider(ctx *HandlerContext, result ParseResult) tea.Cmd {
	if len(result.Args) == 0 {
		return info("Active provider: %s (model: %s). Use /provider <openai|gemini> to switch.",
			ctx.Provider.DisplayName(), ctx.Model)
	}

	id, err := model.ParseProviderID(result.Args[0])
	if err != nil {
		return usageError("Unknown provider %q. Valid providers: openai, gemini.", result.Args[0])
	}
	if id == ctx.Provider {
		return info("%s is already the active provider.", id.DisplayName())
	}

	return func() tea.Msg { return SwitchProviderMsg{Provider: id} }
}

func handleKey(ctx *HandlerContext, result ParseResult) tea.Cmd {
	if result.RawArgs == "" {
		state := "no key stored"
		if ctx.HasCredential {
			state = "key stored"
		}
		return usageError("Usage: /key <api-key> or /key clear (%s: %s)",
			ctx.Provider.DisplayName(), state)
	}

	if strings.EqualFold(result.RawArgs, "clear") {
		p := ctx.Provider
		return func() tea.Msg { return ClearCredentialMsg{Provider: p} }
	}

	// The raw argument string is the key, so keys containing quote
	// characters are stored exactly as typed.
	p, credential := ctx.Provider, result.RawArgs
	return func() tea.Msg { return SetCredentialMsg{Provider: p, Credential: credential} }
}

func handleModel(ctx *HandlerContext, result ParseResult) tea.Cmd {
	if len(result.Args) == 0 {
		var names []string
		for _, m := range model.ModelsFor(ctx.Provider) {
			names = append(names, m.ID)
		}
		return info("Current model: %s. Available for %s: %s.",
			ctx.Model, ctx.Provider.DisplayName(), strings.Join(names, ", "))
	}

	// Unknown names pass through untouched; providers accept model IDs the
	// registry has never heard of.
	name := result.Args[0]
	if m, ok := model.LookupModel(name); ok {
		name = m.ID
	}

	p := ctx.Provider
	return func() tea.Msg { return SwitchModelMsg{Provider: p, Model: name} }
}

func handleClear(ctx *HandlerContext, result ParseResult) tea.Cmd {
	return func() tea.Msg { return ClearConversationMsg{} }
}

func handleStatus(ctx *HandlerContext, result ParseResult) tea.Cmd {
	key := "not set (use /key)"
	if ctx.HasCredential {
		key = "set"
	}
	return info("Provider: %s | Model: %s | API key: %s | Messages: %d",
		ctx.Provider.DisplayName(), ctx.Model, key, ctx.MessageCount)
}

func handleExport(ctx *HandlerContext, result ParseResult) tea.Cmd {
	if ctx.MessageCount == 0 {
		return usageError("Nothing to export: the conversation is empty.")
	}

	format := "markdown"
	path := ""
	if len(result.Args) > 0 {
		switch strings.ToLower(result.Args[0]) {
		case "markdown", "md":
			format = "markdown"
		case "json":
			format = "json"
		default:
			return usageError("Unknown export format %q. Valid formats: markdown, json.", result.Args[0])
		}
	}
	if len(result.Args) > 1 {
		path = result.Args[1]
	}

	f, p := format, path
	return func() tea.Msg { return ExportConversationMsg{Format: f, Path: p} }
}

// =============================================================================
// HELP TEXT
// =============================================================================

// HelpText renders the command reference shown by /help.
func HelpText(r *Registry) string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, cmd := range r.All() {
		sb.WriteString(fmt.Sprintf("  %-32s %s", cmd.Usage, cmd.Description))
		if len(cmd.Aliases) > 0 {
			sb.WriteString(fmt.Sprintf(" (aliases: %s)", strings.Join(cmd.Aliases, ", ")))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nAnything else you type is sent to the model.")
	return sb.String()
}
