// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"reflect"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/duetlabs/duet/internal/model"
)

func testContext() *HandlerContext {
	return &HandlerContext{
		Provider:      model.ProviderOpenAI,
		Model:         "gpt-4o-mini",
		HasCredential: true,
		MessageCount:  2,
	}
}

// runCmd executes a handler's tea.Cmd and returns the produced message.
func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("handler returned nil command")
	}
	return cmd()
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParse_NonCommandInput(t *testing.T) {
	p := NewParser(NewRegistry())

	for _, input := range []string{"hello", "  what is /help?", "", "  "} {
		result := p.Parse(input)
		if result.IsCommand {
			t.Errorf("Parse(%q).IsCommand = true, want false", input)
		}
	}
}

func TestParse_KnownCommand(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse("/model gpt-4o")
	if !result.IsCommand {
		t.Fatal("IsCommand = false")
	}
	if result.Command == nil || result.Command.Name != "/model" {
		t.Fatalf("Command = %v, want /model", result.Command)
	}
	if !reflect.DeepEqual(result.Args, []string{"gpt-4o"}) {
		t.Errorf("Args = %v", result.Args)
	}
}

func TestParse_AliasResolves(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse("/q")
	if result.Command == nil || result.Command.Name != "/quit" {
		t.Errorf("alias /q resolved to %v, want /quit", result.Command)
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse("/frobnicate")
	if !result.IsCommand {
		t.Error("IsCommand = false, want true")
	}
	if result.Command != nil {
		t.Errorf("Command = %v, want nil", result.Command)
	}
}

func TestParse_RawArgsPreserved(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse("/key sk-abc 'with spaces'")
	if result.RawArgs != "sk-abc 'with spaces'" {
		t.Errorf("RawArgs = %q", result.RawArgs)
	}
}

func TestSplitCommandLine_Quotes(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"/model gpt-4o", []string{"/model", "gpt-4o"}},
		{`/export json "my chat.json"`, []string{"/export", "json", "my chat.json"}},
		{"/key 'spaced key'", []string{"/key", "spaced key"}},
		{"/help", []string{"/help"}},
	}

	for _, tt := range tests {
		got := splitCommandLine(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommandLine(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_Complete(t *testing.T) {
	r := NewRegistry()

	got := r.Complete("/p")
	if !reflect.DeepEqual(got, []string{"/provider"}) {
		t.Errorf("Complete(/p) = %v", got)
	}

	if len(r.Complete("/")) != len(r.All()) {
		t.Error("Complete(/) should list every command")
	}

	if len(r.Complete("/zzz")) != 0 {
		t.Error("Complete(/zzz) should be empty")
	}
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func dispatch(t *testing.T, ctx *HandlerContext, input string) tea.Msg {
	t.Helper()
	p := NewParser(NewRegistry())
	result := p.Parse(input)
	if result.Command == nil {
		t.Fatalf("no command for %q", input)
	}
	return runCmd(t, result.Command.Handler(ctx, result))
}

func TestHandleProvider_Switch(t *testing.T) {
	msg := dispatch(t, testContext(), "/provider gemini")
	switched, ok := msg.(SwitchProviderMsg)
	if !ok {
		t.Fatalf("msg = %T, want SwitchProviderMsg", msg)
	}
	if switched.Provider != model.ProviderGemini {
		t.Errorf("Provider = %q", switched.Provider)
	}
}

func TestHandleProvider_AliasArgument(t *testing.T) {
	msg := dispatch(t, testContext(), "/provider google")
	if switched, ok := msg.(SwitchProviderMsg); !ok || switched.Provider != model.ProviderGemini {
		t.Errorf("msg = %#v, want switch to gemini", msg)
	}
}

func TestHandleProvider_NoArgShowsCurrent(t *testing.T) {
	msg := dispatch(t, testContext(), "/provider")
	status, ok := msg.(StatusInfoMsg)
	if !ok {
		t.Fatalf("msg = %T, want StatusInfoMsg", msg)
	}
	if !strings.Contains(status.Text, "OpenAI") {
		t.Errorf("status text %q missing provider name", status.Text)
	}
}

func TestHandleProvider_Unknown(t *testing.T) {
	msg := dispatch(t, testContext(), "/provider claude")
	if _, ok := msg.(CommandErrorMsg); !ok {
		t.Fatalf("msg = %T, want CommandErrorMsg", msg)
	}
}

func TestHandleKey_Set(t *testing.T) {
	msg := dispatch(t, testContext(), "/key sk-test-abcdefghijklmnopqrstuvwxyz0123456789")
	set, ok := msg.(SetCredentialMsg)
	if !ok {
		t.Fatalf("msg = %T, want SetCredentialMsg", msg)
	}
	if set.Provider != model.ProviderOpenAI {
		t.Errorf("Provider = %q", set.Provider)
	}
	if set.Credential != "sk-test-abcdefghijklmnopqrstuvwxyz0123456789" {
		t.Errorf("Credential = %q", set.Credential)
	}
}

func TestHandleKey_Clear(t *testing.T) {
	msg := dispatch(t, testContext(), "/key clear")
	if _, ok := msg.(ClearCredentialMsg); !ok {
		t.Fatalf("msg = %T, want ClearCredentialMsg", msg)
	}
}

func TestHandleKey_NoArgIsUsageError(t *testing.T) {
	msg := dispatch(t, testContext(), "/key")
	if _, ok := msg.(CommandErrorMsg); !ok {
		t.Fatalf("msg = %T, want CommandErrorMsg", msg)
	}
}

func TestHandleModel_AliasResolvesToWireID(t *testing.T) {
	ctx := testContext()
	ctx.Provider = model.ProviderGemini

	msg := dispatch(t, ctx, "/model gemini-flash")
	switched, ok := msg.(SwitchModelMsg)
	if !ok {
		t.Fatalf("msg = %T, want SwitchModelMsg", msg)
	}
	if switched.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q, want gemini-2.0-flash", switched.Model)
	}
}

func TestHandleModel_UnknownPassesThrough(t *testing.T) {
	msg := dispatch(t, testContext(), "/model gpt-5-preview")
	switched, ok := msg.(SwitchModelMsg)
	if !ok {
		t.Fatalf("msg = %T, want SwitchModelMsg", msg)
	}
	if switched.Model != "gpt-5-preview" {
		t.Errorf("Model = %q", switched.Model)
	}
}

func TestHandleClear(t *testing.T) {
	msg := dispatch(t, testContext(), "/clear")
	if _, ok := msg.(ClearConversationMsg); !ok {
		t.Fatalf("msg = %T, want ClearConversationMsg", msg)
	}
}

func TestHandleStatus(t *testing.T) {
	msg := dispatch(t, testContext(), "/status")
	status, ok := msg.(StatusInfoMsg)
	if !ok {
		t.Fatalf("msg = %T, want StatusInfoMsg", msg)
	}
	for _, want := range []string{"OpenAI", "gpt-4o-mini", "set", "2"} {
		if !strings.Contains(status.Text, want) {
			t.Errorf("status %q missing %q", status.Text, want)
		}
	}
}

func TestHandleExport(t *testing.T) {
	msg := dispatch(t, testContext(), "/export json out.json")
	exp, ok := msg.(ExportConversationMsg)
	if !ok {
		t.Fatalf("msg = %T, want ExportConversationMsg", msg)
	}
	if exp.Format != "json" || exp.Path != "out.json" {
		t.Errorf("export = %#v", exp)
	}
}

func TestHandleExport_EmptyConversation(t *testing.T) {
	ctx := testContext()
	ctx.MessageCount = 0

	msg := dispatch(t, ctx, "/export")
	if _, ok := msg.(CommandErrorMsg); !ok {
		t.Fatalf("msg = %T, want CommandErrorMsg", msg)
	}
}

func TestHelpText(t *testing.T) {
	text := HelpText(NewRegistry())
	for _, want := range []string{"/provider", "/key", "/model", "/clear", "/quit"} {
		if !strings.Contains(text, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}
