// duet - a two-provider streaming chat client for the terminal.
//
// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/duetlabs/duet/internal/cli"
	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/secret"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/ui/chat"
	"github.com/duetlabs/duet/internal/ui/styles"
	"github.com/duetlabs/duet/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference for async streaming
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func main() {
	plainFlag := flag.Bool("plain", false, "run the line-mode REPL instead of the TUI")
	debugFlag := flag.Bool("debug", false, "write a debug log under the config directory")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("duet %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *plainFlag {
		cfg.UI.Plain = true
	}
	if *debugFlag {
		cfg.UI.Debug = true
	}

	if cfg.UI.Debug {
		if dir, derr := config.Dir(); derr == nil {
			if closer, lerr := util.EnableDebugLog(dir); lerr == nil {
				defer closer.Close()
			}
		}
	}

	store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// Plain REPL for pipes, dumb terminals, or when forced.
	if cfg.UI.Plain || !cli.IsTTY() || !cli.IsStdoutTTY() {
		if err := cli.Run(store, cfg, Version); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runTUI(store, cfg)
}

// openStore opens the sealed state database under the config directory.
func openStore() (*storage.Store, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDir(); err != nil {
		return nil, err
	}

	sealer, err := secret.Open(filepath.Join(dir, "secret"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sealing material: %w", err)
	}

	return storage.Open(filepath.Join(dir, "state.db"), sealer)
}

// runTUI starts the Bubble Tea interface.
func runTUI(store *storage.Store, cfg *config.Config) {
	theme := styles.NewTheme()

	chatModel, err := chat.New(store, cfg, theme, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	m := &Model{
		theme:     theme,
		chatModel: chatModel,
		config:    cfg,
	}

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	// Config hot-reload feeds the running program.
	if path, perr := config.Path(); perr == nil {
		watcher, werr := config.NewWatcher(path, func(updated *config.Config) {
			programMu.Lock()
			prog := programRef
			programMu.Unlock()
			if prog != nil {
				prog.Send(chat.ConfigReloadedMsg{Config: updated})
			}
		})
		if werr == nil {
			if werr = watcher.Watch(); werr == nil {
				defer watcher.Close()
			}
		}
		if werr != nil {
			util.Debugf("config watcher unavailable: %v", werr)
		}
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running duet: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// APPLICATION MODEL
// =============================================================================

// Model is the root Bubble Tea model. It wraps the chat model and owns
// the side of streaming that needs a *tea.Program: StreamRequestMsg is
// intercepted here and handed to a StreamRunner goroutine, which feeds
// fragments back in via Program.Send.
type Model struct {
	theme     *styles.Theme
	chatModel chat.Model
	config    *config.Config

	width  int
	height int
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return m.chatModel.Init()
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case chat.StreamRequestMsg:
		return m.startStreaming(msg)

	case chat.ConfigReloadedMsg:
		m.config = msg.Config
	}

	var cmd tea.Cmd
	m.chatModel, cmd = m.chatModel.Update(msg)
	return m, cmd
}

// View renders the chat screen.
func (m *Model) View() string {
	return m.chatModel.View()
}

// startStreaming hands the request to a runner goroutine. The chat model
// stays message-driven; fragments come back through Program.Send.
func (m *Model) startStreaming(msg chat.StreamRequestMsg) (tea.Model, tea.Cmd) {
	prov := m.chatModel.Provider()
	credential := m.chatModel.Credential()

	programMu.Lock()
	prog := programRef
	programMu.Unlock()
	if prog == nil {
		return m, nil
	}

	runner := chat.NewStreamRunner(prog)
	go runner.Run(context.Background(), prov, msg.Turns, credential, msg.MessageID)
	return m, nil
}
