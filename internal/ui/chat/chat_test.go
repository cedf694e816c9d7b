// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/duetlabs/duet/internal/commands"
	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/provider"
	"github.com/duetlabs/duet/internal/secret"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/ui/styles"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dir := t.TempDir()

	sealer, err := secret.Open(filepath.Join(dir, "keys"))
	if err != nil {
		t.Fatalf("secret.Open failed: %v", err)
	}
	store, err := storage.Open(filepath.Join(dir, "state.db"), sealer)
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestModel(t *testing.T) (Model, *storage.Store) {
	t.Helper()
	store := newTestStore(t)

	m, err := New(store, config.Default(), styles.NewTheme(), "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Size the model so the viewport exists.
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, store
}

func withCredential(t *testing.T, m Model, store *storage.Store) Model {
	t.Helper()
	m, _ = m.Update(commands.SetCredentialMsg{
		Provider:   model.ProviderOpenAI,
		Credential: "sk-abcdefghijklmnopqrstuvwxyz0123456789",
	})
	if m.Credential() == "" {
		t.Fatal("credential was not accepted")
	}
	return m
}

func typeAndSubmit(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	return m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

// drainCmd executes a command tree and collects the produced messages,
// skipping nil and tick/blink commands that would block.
func drainCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	switch batch := msg.(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drainCmd(c)...)
		}
		return out
	case nil:
		return nil
	default:
		return []tea.Msg{msg}
	}
}

func findStreamRequest(msgs []tea.Msg) (StreamRequestMsg, bool) {
	for _, msg := range msgs {
		if req, ok := msg.(StreamRequestMsg); ok {
			return req, true
		}
	}
	return StreamRequestMsg{}, false
}

// runStream drives the full fragment path through Update the way the
// runner would, ending with completion.
func runStream(m Model, req StreamRequestMsg, fragments []string) Model {
	m, _ = m.Update(StreamStartMsg{MessageID: req.MessageID, StartTime: time.Now()})
	for i, f := range fragments {
		m, _ = m.Update(StreamTokenMsg{MessageID: req.MessageID, Token: f, IsFirst: i == 0})
	}
	m, _ = m.Update(StreamTickMsg{Time: time.Now()})
	m, _ = m.Update(StreamCompleteMsg{MessageID: req.MessageID})
	return m
}

// =============================================================================
// SUBMIT GATE TESTS
// =============================================================================

func TestSubmit_BlankInputIsNoOp(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "   ")
	if cmd != nil {
		t.Error("blank submit should produce no command")
	}
	if m.Conversation().MessageCount() != 0 {
		t.Errorf("blank submit appended messages: count = %d", m.Conversation().MessageCount())
	}
	if m.State() != StateIdle {
		t.Errorf("state = %v, want StateIdle", m.State())
	}
}

func TestSubmit_WithoutCredentialDoesNotSend(t *testing.T) {
	m, _ := newTestModel(t)

	m, cmd := typeAndSubmit(m, "hello")
	if m.Conversation().MessageCount() != 0 {
		t.Errorf("message appended without credential: count = %d", m.Conversation().MessageCount())
	}
	if _, found := findStreamRequest(drainCmd(cmd)); found {
		t.Error("stream request issued without credential")
	}
	if m.State() != StateIdle {
		t.Errorf("state = %v, want StateIdle", m.State())
	}
	if m.statusMsg == "" {
		t.Error("expected a warning about the missing key")
	}
}

func TestSubmit_AppendsUserMessageAndPlaceholder(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")

	if m.State() != StateSending {
		t.Fatalf("state = %v, want StateSending", m.State())
	}
	if m.Conversation().MessageCount() != 2 {
		t.Fatalf("message count = %d, want 2 (user + placeholder)", m.Conversation().MessageCount())
	}
	if m.input.Value() != "" {
		t.Error("input not cleared after submit")
	}

	req, found := findStreamRequest(drainCmd(cmd))
	if !found {
		t.Fatal("no stream request issued")
	}
	if len(req.Turns) != 1 || req.Turns[0].Content != "hello" {
		t.Errorf("request turns = %+v, want single user turn %q", req.Turns, "hello")
	}
}

func TestSubmit_RejectedWhileInFlight(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, _ = typeAndSubmit(m, "first")
	countBefore := m.Conversation().MessageCount()

	m, cmd := typeAndSubmit(m, "second")
	if m.Conversation().MessageCount() != countBefore {
		t.Error("in-flight submit appended messages")
	}
	if _, found := findStreamRequest(drainCmd(cmd)); found {
		t.Error("in-flight submit issued a second stream request")
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestStream_FragmentsConcatenate(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")
	req, found := findStreamRequest(drainCmd(cmd))
	if !found {
		t.Fatal("no stream request issued")
	}

	m = runStream(m, req, []string{"Hi", " there", "!"})

	if m.State() != StateIdle {
		t.Errorf("state = %v, want StateIdle after completion", m.State())
	}
	msgs := m.Conversation().Messages
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message = %v %q", msgs[0].Role, msgs[0].Content)
	}
	last := msgs[1]
	if last.Role != model.RoleAssistant {
		t.Errorf("last role = %v, want assistant", last.Role)
	}
	if last.Content != "Hi there!" {
		t.Errorf("assistant content = %q, want %q", last.Content, "Hi there!")
	}
	if last.IsStreaming {
		t.Error("assistant message not finalized")
	}
	if last.IsError {
		t.Error("successful stream marked as error")
	}
}

func TestStream_CompletionPersists(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")
	req, _ := findStreamRequest(drainCmd(cmd))
	m = runStream(m, req, []string{"Hi there!"})

	stored, err := store.Conversation()
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if stored.MessageCount() != 2 {
		t.Errorf("persisted count = %d, want 2", stored.MessageCount())
	}
}

func TestStream_StaleMessagesIgnored(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")
	req, _ := findStreamRequest(drainCmd(cmd))
	m = runStream(m, req, []string{"answer"})

	// Messages for an old stream arriving after completion must not
	// disturb the conversation.
	before := m.Conversation().Messages[1].Content
	m, _ = m.Update(StreamTokenMsg{MessageID: req.MessageID, Token: "late", IsFirst: false})
	m, _ = m.Update(StreamErrorMsg{MessageID: req.MessageID, Err: errors.New("late failure")})

	if m.Conversation().MessageCount() != 2 {
		t.Errorf("stale messages changed the conversation: count = %d", m.Conversation().MessageCount())
	}
	if got := m.Conversation().Messages[1].Content; got != before {
		t.Errorf("stale token mutated content: %q", got)
	}
}

// =============================================================================
// ERROR PATH TESTS
// =============================================================================

func TestStreamError_ExactlyOneSyntheticMessage(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")
	req, _ := findStreamRequest(drainCmd(cmd))

	// Failure before any fragment: the placeholder is dropped and a
	// single synthetic assistant message takes its place.
	m, _ = m.Update(StreamErrorMsg{MessageID: req.MessageID, Err: provider.ErrAuthFailed})

	if m.State() != StateIdle {
		t.Errorf("state = %v, want StateIdle after error", m.State())
	}
	msgs := m.Conversation().Messages
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2 (user + synthetic)", len(msgs))
	}
	synthetic := msgs[1]
	if synthetic.Role != model.RoleAssistant {
		t.Errorf("synthetic role = %v, want assistant", synthetic.Role)
	}
	if !synthetic.IsError {
		t.Error("synthetic message not flagged as error")
	}
	if synthetic.Content == "" {
		t.Error("synthetic message has no description")
	}
	if synthetic.IsStreaming {
		t.Error("synthetic message left streaming")
	}
}

func TestStreamError_MidStreamDiscardsPartialText(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")
	req, _ := findStreamRequest(drainCmd(cmd))

	m, _ = m.Update(StreamStartMsg{MessageID: req.MessageID, StartTime: time.Now()})
	m, _ = m.Update(StreamTokenMsg{MessageID: req.MessageID, Token: "partial", IsFirst: true})
	m, _ = m.Update(StreamErrorMsg{MessageID: req.MessageID, Err: provider.ErrRateLimited})

	msgs := m.Conversation().Messages
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if !msgs[1].IsError {
		t.Error("error message missing after mid-stream failure")
	}
}

func TestStreamError_CanSubmitAgainAfterwards(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "first")
	req, _ := findStreamRequest(drainCmd(cmd))
	m, _ = m.Update(StreamErrorMsg{MessageID: req.MessageID, Err: provider.ErrAuthFailed})

	m, cmd = typeAndSubmit(m, "second")
	if _, found := findStreamRequest(drainCmd(cmd)); !found {
		t.Error("submit after error did not issue a stream request")
	}
	if m.State() != StateSending {
		t.Errorf("state = %v, want StateSending", m.State())
	}
}

// =============================================================================
// COMMAND MESSAGE TESTS
// =============================================================================

func TestSwitchProvider_ReloadsCredentialAndModel(t *testing.T) {
	m, store := newTestModel(t)

	if err := store.SetCredential(model.ProviderGemini, "AIza-gemini-test-key-0000000000000"); err != nil {
		t.Fatalf("SetCredential failed: %v", err)
	}

	m, _ = m.Update(commands.SwitchProviderMsg{Provider: model.ProviderGemini})

	if m.Provider().ID() != model.ProviderGemini {
		t.Errorf("provider = %v, want gemini", m.Provider().ID())
	}
	if m.Credential() == "" {
		t.Error("credential for new provider not loaded")
	}

	p, err := store.Provider()
	if err != nil {
		t.Fatalf("Provider failed: %v", err)
	}
	if p != model.ProviderGemini {
		t.Errorf("persisted provider = %v, want gemini", p)
	}
}

func TestSetCredential_RejectsMalformedKey(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = m.Update(commands.SetCredentialMsg{
		Provider:   model.ProviderOpenAI,
		Credential: "x",
	})

	if m.Credential() != "" {
		t.Error("malformed key was stored")
	}
	if !m.statusIsError {
		t.Error("expected an error status after rejected key")
	}
}

func TestClearCredential(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, _ = m.Update(commands.ClearCredentialMsg{Provider: model.ProviderOpenAI})
	if m.Credential() != "" {
		t.Error("credential not cleared")
	}

	stored, err := store.Credential(model.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if stored != "" {
		t.Error("credential still present in store")
	}
}

func TestSwitchModel_UpdatesProviderAndStore(t *testing.T) {
	m, store := newTestModel(t)

	m, _ = m.Update(commands.SwitchModelMsg{Provider: model.ProviderOpenAI, Model: "gpt-4o-mini"})

	if m.Provider().Model() != "gpt-4o-mini" {
		t.Errorf("provider model = %q, want gpt-4o-mini", m.Provider().Model())
	}
	stored, err := store.Model(model.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Model failed: %v", err)
	}
	if stored != "gpt-4o-mini" {
		t.Errorf("persisted model = %q, want gpt-4o-mini", stored)
	}
}

func TestClearConversation_PersistsEmpty(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)

	m, cmd := typeAndSubmit(m, "hello")
	req, _ := findStreamRequest(drainCmd(cmd))
	m = runStream(m, req, []string{"world"})

	m, _ = m.Update(commands.ClearConversationMsg{})
	if !m.Conversation().IsEmpty() {
		t.Error("conversation not cleared")
	}

	stored, err := store.Conversation()
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if !stored.IsEmpty() {
		t.Errorf("persisted conversation not empty: count = %d", stored.MessageCount())
	}
}

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestRenderMessage_MarkdownOffHighlightsCodeFences(t *testing.T) {
	m, store := newTestModel(t)
	m = withCredential(t, m, store)
	m.cfg.UI.Markdown = false

	m, cmd := typeAndSubmit(m, "print hello")
	req, ok := findStreamRequest(drainCmd(cmd))
	if !ok {
		t.Fatal("no stream request was produced")
	}
	m = runStream(m, req, []string{"Sure:\n```go\nfmt.Println(\"hi\")\n```\n"})

	out := m.renderMessages()
	if strings.Contains(out, "```") {
		t.Error("fences should be replaced by the rendered code block")
	}
	if !strings.Contains(out, "╭") {
		t.Error("rendered code block border missing")
	}
}

// =============================================================================
// TAB COMPLETION TESTS
// =============================================================================

func TestTabCompletion_CompletesUniquePrefix(t *testing.T) {
	m, _ := newTestModel(t)
	m.input.SetValue("/he")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "/help" {
		t.Errorf("completed to %q, want %q", got, "/help")
	}
}

func TestTabCompletion_CyclesThroughMatches(t *testing.T) {
	m, _ := newTestModel(t)
	m.input.SetValue("/")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "/clear" {
		t.Fatalf("first completion = %q, want %q", got, "/clear")
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "/export" {
		t.Errorf("second completion = %q, want %q", got, "/export")
	}
}

func TestTabCompletion_IgnoresPlainText(t *testing.T) {
	m, _ := newTestModel(t)
	m.input.SetValue("hello")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if got := m.input.Value(); got != "hello" {
		t.Errorf("tab on plain text changed input to %q", got)
	}
}

// =============================================================================
// STREAMING BUFFER TESTS
// =============================================================================

func TestStreamingBuffer_BatchesUntilThreshold(t *testing.T) {
	sb := NewStreamingBuffer()
	sb.batchSize = 3
	sb.minFlushTime = time.Hour

	sb.Write("a")
	sb.Write("b")
	if _, ok := sb.Flush(); ok {
		t.Error("flushed below batch threshold")
	}

	sb.Write("c")
	content, ok := sb.Flush()
	if !ok {
		t.Fatal("did not flush at batch threshold")
	}
	if content != "abc" {
		t.Errorf("flushed %q, want %q", content, "abc")
	}
}

func TestStreamingBuffer_ForceFlushDrainsEverything(t *testing.T) {
	sb := NewStreamingBuffer()
	sb.Write("tail")

	content, ok := sb.ForceFlush()
	if !ok || content != "tail" {
		t.Errorf("ForceFlush = %q, %v; want %q, true", content, ok, "tail")
	}
	if _, ok := sb.ForceFlush(); ok {
		t.Error("second ForceFlush returned content")
	}
}

func TestStreamingBuffer_ResetDiscards(t *testing.T) {
	sb := NewStreamingBuffer()
	sb.Write("discarded")
	sb.Reset()

	if sb.Pending() != 0 {
		t.Errorf("Pending = %d after Reset, want 0", sb.Pending())
	}
}
