// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/model <name>")
	Usage string

	// Handler is the function that executes the command
	Handler func(ctx *HandlerContext, result ParseResult) tea.Cmd
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Complete returns command names matching the given prefix, for input
// completion. The prefix must include the leading slash.
func (r *Registry) Complete(prefix string) []string {
	var matches []string
	for name := range r.commands {
		if len(prefix) <= len(name) && name[:len(prefix)] == prefix {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Usage:       "/help",
		Handler:     handleHelp,
	})

	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit duet",
		Usage:       "/quit",
		Handler:     handleQuit,
	})

	r.Register(&Command{
		Name:        "/provider",
		Aliases:     []string{"/p"},
		Description: "Show or switch the active provider",
		Usage:       "/provider [openai|gemini]",
		Handler:     handleProvider,
	})

	r.Register(&Command{
		Name:        "/key",
		Aliases:     []string{"/k"},
		Description: "Set or clear the API key for the active provider",
		Usage:       "/key <api-key> | /key clear",
		Handler:     handleKey,
	})

	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Show or switch the model for the active provider",
		Usage:       "/model [name]",
		Handler:     handleModel,
	})

	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/c"},
		Description: "Clear the conversation history",
		Usage:       "/clear",
		Handler:     handleClear,
	})

	r.Register(&Command{
		Name:        "/status",
		Aliases:     []string{"/s"},
		Description: "Show provider, model and credential status",
		Usage:       "/status",
		Handler:     handleStatus,
	})

	r.Register(&Command{
		Name:        "/export",
		Aliases:     []string{"/e"},
		Description: "Export the conversation to a file",
		Usage:       "/export [markdown|json] [path]",
		Handler:     handleExport,
	})
}
