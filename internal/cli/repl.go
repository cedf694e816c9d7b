// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/provider"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/ui/components"
	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineReader provides input history and line editing for the REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type LineReader struct {
	line        *liner.State
	historyFile string
}

// NewLineReader creates a reader with history persisted in the config
// directory.
func NewLineReader() *LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}

	r := &LineReader{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	r.loadHistory()
	return r
}

func (r *LineReader) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt and records it in history.
func (r *LineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists history with owner-only permissions.
// SECURITY: History may contain pasted keys; 0600 like the config file.
func (r *LineReader) SaveHistory() {
	if err := config.EnsureDir(); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Close saves history and releases the terminal.
func (r *LineReader) Close() {
	r.SaveHistory()
	r.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// Session holds the state of a plain-mode chat session.
type Session struct {
	Store        *storage.Store
	Config       *config.Config
	Conversation *model.Conversation

	ProviderID model.ProviderID
	Prov       provider.Provider
	Credential string

	Quiet     bool
	StartTime time.Time
	Queries   int

	markdown *components.Markdown
	input    *LineReader
}

// NewSession rehydrates provider selection, credential, model and
// conversation from the store.
func NewSession(store *storage.Store, cfg *config.Config) (*Session, error) {
	providerID, err := store.Provider()
	if err != nil {
		return nil, fmt.Errorf("failed to load provider selection: %w", err)
	}
	modelName, err := store.Model(providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model selection: %w", err)
	}
	credential, err := store.Credential(providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	conversation, err := store.Conversation()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	prov := provider.NewWithBaseURL(providerID, cfg.ProviderSection(providerID).BaseURL)
	prov.SetModel(modelName)

	s := &Session{
		Store:        store,
		Config:       cfg,
		Conversation: conversation,
		ProviderID:   providerID,
		Prov:         prov,
		Credential:   credential,
		StartTime:    time.Now(),
	}

	// Markdown rendering only on a real terminal, and only when enabled.
	if IsStdoutTTY() && cfg.UI.Markdown {
		if md, err := components.NewMarkdown(GetTerminalWidth() - 4); err == nil {
			s.markdown = md
		}
	}
	return s, nil
}

// =============================================================================
// REPL LOOP
// =============================================================================

// Run starts the interactive line-mode loop and blocks until exit.
func Run(store *storage.Store, cfg *config.Config, version string) error {
	session, err := NewSession(store, cfg)
	if err != nil {
		return err
	}
	session.input = NewLineReader()
	defer session.input.Close()

	if !session.Quiet {
		printWelcome(session, version)
	}

	for {
		input, err := session.input.ReadInput(promptStyle.Render("duet> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF (Ctrl+D) ends the session.
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !shouldContinue {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		if err := processMessage(session, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one user message and streams the response. The
// error result covers local failures only; provider failures become a
// synthetic assistant message like in the TUI.
func processMessage(session *Session, input string) error {
	if session.Credential == "" {
		fmt.Fprintf(os.Stderr, "%s No API key stored for %s. Save one with /key first.\n",
			warningStyle.Render("[No key]"),
			session.ProviderID.DisplayName())
		return nil
	}

	session.Conversation.AddUserMessage(input)
	turns := session.Conversation.Snapshot()
	if err := session.Store.SaveConversation(session.Conversation); err != nil {
		util.Debugf("persist after user message failed: %v", err)
	}

	ctx := context.Background()
	startTime := time.Now()
	useMarkdown := session.markdown != nil
	// With markdown off on a color terminal, fenced code still gets a
	// highlighting pass once the response is complete.
	highlight := !useMarkdown && ColorsEnabled()

	fmt.Println()

	fragments, err := session.Prov.ChatStream(ctx, turns, session.Credential)
	if err != nil {
		return session.recordFailure(err)
	}

	var acc provider.Accumulator
	acc.Consume(fragments, func(text string) {
		// Stream raw text live; rendered passes re-print the full
		// response once complete.
		if !useMarkdown && !highlight {
			fmt.Print(text)
		}
	})
	if acc.Err() != nil {
		return session.recordFailure(acc.Err())
	}

	content := acc.Content()
	switch {
	case useMarkdown:
		fmt.Println(session.markdown.Render(content))
	case highlight:
		fmt.Println(components.ParseCodeBlocks(content, GetTerminalWidth()))
	default:
		fmt.Println()
	}
	fmt.Println()

	session.Conversation.AddAssistantMessage()
	session.Conversation.AppendToLast(content)
	session.Conversation.FinalizeLast()
	session.Queries++
	if err := session.Store.SaveConversation(session.Conversation); err != nil {
		util.Debugf("persist after response failed: %v", err)
	}

	if !session.Quiet {
		fmt.Fprintf(os.Stderr, "%s %s | %s\n",
			infoStyle.Render("[Done]"),
			session.Prov.Model(),
			time.Since(startTime).Round(time.Millisecond))
	}
	return nil
}

// recordFailure appends the single synthetic assistant message for a
// provider failure, prints it, and returns to the prompt.
func (s *Session) recordFailure(err error) error {
	description := provider.Describe(s.ProviderID.DisplayName(), err)
	s.Conversation.AddErrorMessage(description)
	if perr := s.Store.SaveConversation(s.Conversation); perr != nil {
		util.Debugf("persist after failure failed: %v", perr)
	}

	fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("[Failed]"), description)
	fmt.Println()
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a slash command.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, session *Session) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printHelp()
		return true, nil

	case "/provider", "/p":
		return handleProviderCommand(session, args)

	case "/key", "/k":
		// RawArgs keeps keys with spaces intact when quoted at the shell;
		// inside the REPL a key never contains whitespace, so Fields is fine.
		return handleKeyCommand(session, args)

	case "/model", "/m":
		return handleModelCommand(session, args)

	case "/clear", "/c":
		session.Conversation.ClearHistory()
		if err := session.Store.SaveConversation(session.Conversation); err != nil {
			return true, fmt.Errorf("failed to persist cleared conversation: %w", err)
		}
		fmt.Println(commandStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/status", "/s":
		printStatus(session)
		return true, nil

	case "/export", "/e":
		return handleExportCommand(session, args)

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// handleProviderCommand shows or switches the active provider.
func handleProviderCommand(session *Session, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("%s %s (%s)\n",
			infoStyle.Render("[Provider]"),
			commandStyle.Render(session.ProviderID.DisplayName()),
			session.Prov.Model())
		return true, nil
	}

	id, err := model.ParseProviderID(args[0])
	if err != nil {
		return true, err
	}

	if err := session.Store.SetProvider(id); err != nil {
		return true, fmt.Errorf("failed to switch provider: %w", err)
	}

	modelName, err := session.Store.Model(id)
	if err != nil {
		modelName = model.DefaultModel(id).ID
	}

	session.ProviderID = id
	session.Prov = provider.NewWithBaseURL(id, session.Config.ProviderSection(id).BaseURL)
	session.Prov.SetModel(modelName)
	session.Credential, _ = session.Store.Credential(id)

	fmt.Printf("%s Switched to %s (%s)\n",
		commandStyle.Render("[OK]"),
		id.DisplayName(),
		modelName)
	if session.Credential == "" {
		fmt.Println(warningStyle.Render("[!] No API key stored for this provider. Set one with /key."))
	}
	return true, nil
}

// handleKeyCommand stores or clears the credential for the active provider.
func handleKeyCommand(session *Session, args []string) (bool, error) {
	if len(args) == 0 {
		if session.Credential != "" {
			fmt.Printf("%s API key stored for %s. Use /key clear to remove it.\n",
				infoStyle.Render("[Key]"),
				session.ProviderID.DisplayName())
		} else {
			fmt.Printf("%s No API key stored for %s. Use /key <value> to set one.\n",
				infoStyle.Render("[Key]"),
				session.ProviderID.DisplayName())
		}
		return true, nil
	}

	if strings.EqualFold(args[0], "clear") {
		if err := session.Store.ClearCredential(session.ProviderID); err != nil {
			return true, fmt.Errorf("failed to clear key: %w", err)
		}
		session.Credential = ""
		fmt.Println(commandStyle.Render("[API key cleared]"))
		return true, nil
	}

	credential := args[0]
	if err := session.Prov.ValidateCredential(credential); err != nil {
		return true, fmt.Errorf("key not saved: %w", err)
	}
	if err := session.Store.SetCredential(session.ProviderID, credential); err != nil {
		return true, fmt.Errorf("failed to save key: %w", err)
	}
	session.Credential = credential
	fmt.Printf("%s API key saved for %s\n",
		commandStyle.Render("[OK]"),
		session.ProviderID.DisplayName())
	return true, nil
}

// handleModelCommand shows or switches the model for the active provider.
func handleModelCommand(session *Session, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Printf("%s Current model: %s\n",
			infoStyle.Render("[Model]"),
			commandStyle.Render(session.Prov.Model()))
		printKnownModels(session.ProviderID)
		return true, nil
	}

	name := args[0]
	if info, ok := model.LookupModel(name); ok {
		name = info.ID
	} else {
		// Unknown names pass through; the provider reports if it is bogus.
		fmt.Fprintf(os.Stderr, "%s Model %q is not in the registry, using it anyway\n",
			warningStyle.Render("[Warning]"),
			name)
	}

	if err := session.Store.SetModel(session.ProviderID, name); err != nil {
		return true, fmt.Errorf("failed to switch model: %w", err)
	}
	session.Prov.SetModel(name)
	fmt.Printf("%s Switched to model: %s\n", commandStyle.Render("[OK]"), name)
	return true, nil
}

// handleExportCommand writes the conversation to a file.
func handleExportCommand(session *Session, args []string) (bool, error) {
	if session.Conversation.IsEmpty() {
		return true, fmt.Errorf("nothing to export yet")
	}

	format := "markdown"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}

	stored := storage.FromConversation(session.Conversation)
	var data []byte
	var ext string
	switch format {
	case "markdown", "md":
		data, ext = []byte(stored.ExportMarkdown()), "md"
	case "json":
		out, err := stored.ExportJSON()
		if err != nil {
			return true, fmt.Errorf("export failed: %w", err)
		}
		data, ext = out, "json"
	default:
		return true, fmt.Errorf("unknown format %q (markdown or json)", format)
	}

	path := "duet-" + time.Now().Format("20060102-150405") + "." + ext
	if len(args) > 1 {
		path = args[1]
	}

	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return true, fmt.Errorf("export failed: %w", err)
	}
	fmt.Printf("%s Exported to %s\n", commandStyle.Render("[OK]"), path)
	return true, nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func printWelcome(session *Session, version string) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("duet " + version))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Provider:"),
		commandStyle.Render(session.ProviderID.DisplayName()))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(session.Prov.Model()))
	if session.Credential == "" {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Key:"),
			warningStyle.Render("Not set (/key <value>)"))
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Key:"),
			commandStyle.Render("Stored"))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func printHelp() {
	fmt.Println()
	fmt.Println(headerStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/provider [name]", "Show or switch provider (openai, gemini)"},
		{"/key <value>", "Store the API key for the active provider"},
		{"/key clear", "Remove the stored API key"},
		{"/model [name]", "Show or switch model"},
		{"/clear, /c", "Clear conversation history"},
		{"/status, /s", "Show session status"},
		{"/export [format]", "Export conversation (markdown or json)"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-18s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+D exits"))
	fmt.Println()
}

func printKnownModels(p model.ProviderID) {
	infos := model.ModelsFor(p)
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	fmt.Println(infoStyle.Render("Known models:"))
	for _, info := range infos {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-22s", info.ID)),
			infoStyle.Render(info.Name))
	}
}

func printStatus(session *Session) {
	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(headerStyle.Render("Session Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Provider:"),
		commandStyle.Render(session.ProviderID.DisplayName()))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(session.Prov.Model()))
	if session.Credential == "" {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Key:"),
			warningStyle.Render("Not set"))
	} else {
		fmt.Printf("  %s %s\n",
			infoStyle.Render("Key:"),
			commandStyle.Render("Stored"))
	}
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())
	fmt.Printf("  %s %d messages\n",
		infoStyle.Render("History:"),
		session.Conversation.MessageCount())
	fmt.Printf("  %s %d\n",
		infoStyle.Render("Queries:"),
		session.Queries)
	fmt.Println()
}

func printExitSummary(session *Session) {
	if session.Queries == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(headerStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))
	fmt.Printf("  %s %d\n", infoStyle.Render("Queries:"), session.Queries)
	fmt.Printf("  %s %d\n", infoStyle.Render("Messages:"), session.Conversation.MessageCount())
	fmt.Printf("  %s %s\n", infoStyle.Render("Duration:"), elapsed.String())
	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
