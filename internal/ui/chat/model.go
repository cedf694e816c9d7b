// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/duetlabs/duet/internal/commands"
	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/provider"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/ui/components"
	"github.com/duetlabs/duet/internal/ui/styles"
	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// CONVERSATION LOOP STATE
// =============================================================================

// State represents the conversation loop state.
type State int

const (
	// StateIdle accepts user input.
	StateIdle State = iota
	// StateSending means a request has been submitted but no fragment
	// has arrived yet.
	StateSending
	// StateStreaming means fragments are arriving.
	StateStreaming
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state State

	theme  *styles.Theme
	width  int
	height int
	ready  bool

	// Persistence and configuration
	store *storage.Store
	cfg   *config.Config

	// Conversation state
	conversation *model.Conversation

	// Active provider
	providerID model.ProviderID
	prov       provider.Provider
	credential string

	// Streaming state
	streamingMsgID  string
	streamingBuffer *StreamingBuffer

	// UI components
	viewport  viewport.Model
	input     textinput.Model
	spinner   components.Spinner
	statusBar *components.StatusBar
	welcome   components.Welcome
	markdown  *components.Markdown

	// Slash commands
	registry *commands.Registry
	parser   *commands.Parser
	keyMap   KeyMap

	// Tab completion cycle for slash commands
	completionMatches []string
	completionIndex   int

	// Ephemeral feedback line shown above the input
	statusMsg     string
	statusIsError bool
	helpVisible   bool

	version string
}

// New creates the chat model, rehydrating provider selection, credential,
// model and conversation from the store.
func New(store *storage.Store, cfg *config.Config, theme *styles.Theme, version string) (Model, error) {
	providerID, err := store.Provider()
	if err != nil {
		return Model{}, fmt.Errorf("failed to load provider selection: %w", err)
	}

	modelName, err := store.Model(providerID)
	if err != nil {
		return Model{}, fmt.Errorf("failed to load model selection: %w", err)
	}

	credential, err := store.Credential(providerID)
	if err != nil {
		return Model{}, fmt.Errorf("failed to load credential: %w", err)
	}

	conversation, err := store.Conversation()
	if err != nil {
		return Model{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	prov := provider.NewWithBaseURL(providerID, cfg.ProviderSection(providerID).BaseURL)
	prov.SetModel(modelName)

	input := textinput.New()
	input.Placeholder = "Type a message or /help"
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	registry := commands.NewRegistry()

	statusBar := components.NewStatusBar(theme)
	statusBar.SetProvider(providerID)
	statusBar.SetModel(modelName)
	statusBar.SetHasCredential(credential != "")
	statusBar.SetMessageCount(conversation.MessageCount())

	welcome := components.NewWelcome(theme)
	welcome.SetVersion(version)
	welcome.SetProvider(providerID)
	welcome.SetModelName(modelName)
	welcome.SetHasCredential(credential != "")

	m := Model{
		state:           StateIdle,
		theme:           theme,
		store:           store,
		cfg:             cfg,
		conversation:    conversation,
		providerID:      providerID,
		prov:            prov,
		credential:      credential,
		streamingBuffer: NewStreamingBuffer(),
		input:           input,
		spinner:         components.NewSpinner(theme),
		statusBar:       statusBar,
		welcome:         welcome,
		registry:        registry,
		parser:          commands.NewParser(registry),
		keyMap:          DefaultKeyMap(),
		version:         version,
	}
	return m, nil
}

// State returns the loop state, for the root model and tests.
func (m Model) State() State {
	return m.state
}

// Conversation exposes the conversation, for the root model and tests.
func (m Model) Conversation() *model.Conversation {
	return m.conversation
}

// Provider returns the active provider adapter.
func (m Model) Provider() provider.Provider {
	return m.prov
}

// Credential returns the stored key for the active provider.
func (m Model) Credential() string {
	return m.credential
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and advances the conversation loop.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamStartMsg:
		return m.handleStreamStart(msg)

	case StreamTokenMsg:
		return m.handleStreamToken(msg)

	case StreamTickMsg:
		return m.handleStreamTick()

	case StreamCompleteMsg:
		return m.handleStreamComplete(msg)

	case StreamErrorMsg:
		return m.handleStreamError(msg)

	case commands.ShowHelpMsg:
		m.helpVisible = !m.helpVisible
		m.updateViewport()
		return m, nil

	case commands.SwitchProviderMsg:
		return m.handleSwitchProvider(msg)

	case commands.SetCredentialMsg:
		return m.handleSetCredential(msg)

	case commands.ClearCredentialMsg:
		return m.handleClearCredential(msg)

	case commands.SwitchModelMsg:
		return m.handleSwitchModel(msg)

	case commands.ClearConversationMsg:
		return m.handleClearConversation()

	case commands.ExportConversationMsg:
		return m.handleExport(msg)

	case commands.StatusInfoMsg:
		m.setStatus(msg.Text, false)
		return m, nil

	case commands.CommandErrorMsg:
		m.setStatus(msg.Text, true)
		return m, nil

	case PersistErrorMsg:
		m.setStatus("Failed to save state: "+msg.Err.Error(), true)
		return m, nil

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)
	}

	// Spinner frames and cursor blink flow through here.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.statusBar.SetWidth(msg.Width)
	m.welcome.SetSize(msg.Width, msg.Height-chromeHeight)
	m.input.Width = msg.Width - 6

	viewportHeight := msg.Height - chromeHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(msg.Width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	if md, err := components.NewMarkdown(msg.Width - 4); err == nil {
		m.markdown = md
	}

	m.updateViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keyMap.Complete):
		return m.handleTabCompletion()

	case key.Matches(msg, m.keyMap.Up), key.Matches(msg, m.keyMap.Down),
		key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	// Any other keystroke interrupts a completion cycle.
	m.completionMatches = nil
	m.completionIndex = 0

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleTabCompletion completes a slash command prefix. Repeated Tab
// presses cycle through the matching command names.
func (m Model) handleTabCompletion() (Model, tea.Cmd) {
	value := m.input.Value()
	if !strings.HasPrefix(value, "/") || strings.ContainsAny(value, " \t") {
		return m, nil
	}

	if len(m.completionMatches) > 0 {
		m.completionIndex = (m.completionIndex + 1) % len(m.completionMatches)
		m.input.SetValue(m.completionMatches[m.completionIndex])
		m.input.CursorEnd()
		return m, nil
	}

	matches := m.registry.Complete(value)
	if len(matches) == 0 {
		return m, nil
	}
	m.completionMatches = matches
	m.completionIndex = 0
	m.input.SetValue(matches[0])
	m.input.CursorEnd()
	return m, nil
}

// handleSubmit runs the Idle-state submit gate: blank input is ignored,
// commands are dispatched, and a chat message goes out only when a
// credential is stored and nothing is in flight.
func (m Model) handleSubmit() (Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	result := m.parser.Parse(text)
	if result.IsCommand {
		m.input.SetValue("")
		if result.Command == nil {
			m.setStatus(fmt.Sprintf("Unknown command %s. Try /help.", result.CommandName), true)
			return m, nil
		}
		return m, result.Command.Handler(m.handlerContext(), result)
	}

	if m.state != StateIdle {
		m.setStatus("A response is still in flight. Wait for it to finish.", true)
		return m, nil
	}

	if m.credential == "" {
		m.setStatus("No API key stored for "+m.providerID.DisplayName()+". Save one with /key first.", true)
		return m, nil
	}

	// Snapshot before the placeholder so the request carries only
	// finalized turns.
	m.conversation.AddUserMessage(text)
	turns := m.conversation.Snapshot()
	pending := m.conversation.AddAssistantMessage()

	m.input.SetValue("")
	m.state = StateSending
	m.streamingMsgID = pending.ID
	m.streamingBuffer.Reset()
	m.helpVisible = false
	m.clearStatus()
	m.statusBar.SetStatus(components.StatusSending)
	m.statusBar.SetMessageCount(m.conversation.MessageCount())
	m.updateViewport()
	m.viewport.GotoBottom()

	persistCmd := m.persistConversation()
	msgID := pending.ID
	requestCmd := func() tea.Msg {
		return StreamRequestMsg{MessageID: msgID, Turns: turns}
	}

	return m, tea.Batch(requestCmd, persistCmd, m.spinner.Start())
}

// =============================================================================
// STREAM HANDLING
// =============================================================================

func (m Model) handleStreamStart(msg StreamStartMsg) (Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	m.state = StateStreaming
	m.statusBar.SetStatus(components.StatusStreaming)
	m.streamingBuffer.Reset()

	return m, tea.Batch(m.spinner.Start(), streamTickCmd())
}

func (m Model) handleStreamToken(msg StreamTokenMsg) (Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	if msg.IsFirst {
		m.spinner.Stop()
	}
	m.streamingBuffer.Write(msg.Token)
	return m, nil
}

// handleStreamTick drains buffered fragments at the capped frame rate.
func (m Model) handleStreamTick() (Model, tea.Cmd) {
	if m.state != StateStreaming && m.state != StateSending {
		return m, nil
	}

	if content, ok := m.streamingBuffer.Flush(); ok {
		m.conversation.AppendToLast(content)
		m.updateViewport()
		m.viewport.GotoBottom()
	}

	return m, streamTickCmd()
}

func (m Model) handleStreamComplete(msg StreamCompleteMsg) (Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	if content, ok := m.streamingBuffer.ForceFlush(); ok {
		m.conversation.AppendToLast(content)
	}
	m.conversation.FinalizeLast()

	m.state = StateIdle
	m.streamingMsgID = ""
	m.spinner.Stop()
	m.statusBar.SetStatus(components.StatusIdle)
	m.statusBar.SetMessageCount(m.conversation.MessageCount())
	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()

	return m, tea.Batch(m.persistConversation(), textinput.Blink)
}

// handleStreamError backs out the streaming placeholder and appends
// exactly one synthetic assistant message describing the failure.
func (m Model) handleStreamError(msg StreamErrorMsg) (Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	m.streamingBuffer.Reset()
	m.conversation.DropLast()
	m.conversation.AddErrorMessage(provider.Describe(m.providerID.DisplayName(), msg.Err))
	util.Debugf("stream error on %s: %v", m.providerID, msg.Err)

	m.state = StateIdle
	m.streamingMsgID = ""
	m.spinner.Stop()
	m.statusBar.SetStatus(components.StatusError)
	m.statusBar.SetMessageCount(m.conversation.MessageCount())
	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()

	return m, tea.Batch(m.persistConversation(), textinput.Blink)
}

// =============================================================================
// COMMAND HANDLING
// =============================================================================

func (m Model) handleSwitchProvider(msg commands.SwitchProviderMsg) (Model, tea.Cmd) {
	if err := m.store.SetProvider(msg.Provider); err != nil {
		m.setStatus("Failed to switch provider: "+err.Error(), true)
		return m, nil
	}

	m.providerID = msg.Provider

	modelName, err := m.store.Model(msg.Provider)
	if err != nil {
		modelName = model.DefaultModel(msg.Provider).ID
	}
	m.prov = provider.NewWithBaseURL(msg.Provider, m.cfg.ProviderSection(msg.Provider).BaseURL)
	m.prov.SetModel(modelName)

	m.credential, err = m.store.Credential(msg.Provider)
	if err != nil {
		m.credential = ""
	}

	m.statusBar.SetProvider(msg.Provider)
	m.statusBar.SetModel(modelName)
	m.statusBar.SetHasCredential(m.credential != "")
	m.welcome.SetProvider(msg.Provider)
	m.welcome.SetModelName(modelName)
	m.welcome.SetHasCredential(m.credential != "")

	note := "Switched to " + msg.Provider.DisplayName() + " (" + modelName + ")."
	if m.credential == "" {
		note += " No API key stored; set one with /key."
	}
	m.setStatus(note, false)
	return m, nil
}

// handleSetCredential runs the advisory format check before storing. The
// check blocks saving as user feedback only; values already in the store
// are always used as-is.
func (m Model) handleSetCredential(msg commands.SetCredentialMsg) (Model, tea.Cmd) {
	if err := m.prov.ValidateCredential(msg.Credential); err != nil {
		m.setStatus("Key not saved: "+err.Error(), true)
		return m, nil
	}

	if err := m.store.SetCredential(msg.Provider, msg.Credential); err != nil {
		m.setStatus("Failed to save key: "+err.Error(), true)
		return m, nil
	}

	if msg.Provider == m.providerID {
		m.credential = msg.Credential
		m.statusBar.SetHasCredential(true)
		m.welcome.SetHasCredential(true)
	}
	m.setStatus("API key saved for "+msg.Provider.DisplayName()+".", false)
	return m, nil
}

func (m Model) handleClearCredential(msg commands.ClearCredentialMsg) (Model, tea.Cmd) {
	if err := m.store.ClearCredential(msg.Provider); err != nil {
		m.setStatus("Failed to clear key: "+err.Error(), true)
		return m, nil
	}

	if msg.Provider == m.providerID {
		m.credential = ""
		m.statusBar.SetHasCredential(false)
		m.welcome.SetHasCredential(false)
	}
	m.setStatus("API key cleared for "+msg.Provider.DisplayName()+".", false)
	return m, nil
}

func (m Model) handleSwitchModel(msg commands.SwitchModelMsg) (Model, tea.Cmd) {
	if err := m.store.SetModel(msg.Provider, msg.Model); err != nil {
		m.setStatus("Failed to switch model: "+err.Error(), true)
		return m, nil
	}

	if msg.Provider == m.providerID {
		m.prov.SetModel(msg.Model)
		m.statusBar.SetModel(msg.Model)
		m.welcome.SetModelName(msg.Model)
	}
	m.setStatus("Model set to "+msg.Model+".", false)
	return m, nil
}

// handleConfigReloaded applies a hot-reloaded configuration. The base
// URL takes effect on the next request; the stored model selection wins
// over the config one.
func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (Model, tea.Cmd) {
	m.cfg = msg.Config

	modelName := m.prov.Model()
	m.prov = provider.NewWithBaseURL(m.providerID, m.cfg.ProviderSection(m.providerID).BaseURL)
	m.prov.SetModel(modelName)

	m.updateViewport()
	m.setStatus("Configuration reloaded.", false)
	return m, nil
}

func (m Model) handleClearConversation() (Model, tea.Cmd) {
	m.conversation.ClearHistory()
	m.statusBar.SetMessageCount(0)
	m.updateViewport()
	m.setStatus("Conversation cleared.", false)
	return m, m.persistConversation()
}

func (m Model) handleExport(msg commands.ExportConversationMsg) (Model, tea.Cmd) {
	stored := storage.FromConversation(m.conversation)

	var data []byte
	var ext string
	switch msg.Format {
	case "json":
		out, err := stored.ExportJSON()
		if err != nil {
			m.setStatus("Export failed: "+err.Error(), true)
			return m, nil
		}
		data, ext = out, "json"
	default:
		data, ext = []byte(stored.ExportMarkdown()), "md"
	}

	path := msg.Path
	if path == "" {
		path = filepath.Join(".", "duet-"+time.Now().Format("20060102-150405")+"."+ext)
	}

	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		m.setStatus("Export failed: "+err.Error(), true)
		return m, nil
	}

	m.setStatus("Conversation exported to "+path+".", false)
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) handlerContext() *commands.HandlerContext {
	return &commands.HandlerContext{
		Provider:      m.providerID,
		Model:         m.prov.Model(),
		HasCredential: m.credential != "",
		MessageCount:  m.conversation.MessageCount(),
	}
}

// persistConversation writes the conversation through to the store.
func (m *Model) persistConversation() tea.Cmd {
	if err := m.store.SaveConversation(m.conversation); err != nil {
		return func() tea.Msg { return PersistErrorMsg{Err: err} }
	}
	return nil
}

func (m *Model) setStatus(text string, isError bool) {
	m.statusMsg = text
	m.statusIsError = isError
}

func (m *Model) clearStatus() {
	m.statusMsg = ""
	m.statusIsError = false
}
