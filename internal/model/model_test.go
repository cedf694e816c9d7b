// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_StreamingAccumulation(t *testing.T) {
	msg := NewAssistantMessage()

	fragments := []string{"Hi", " there", "!"}
	for _, f := range fragments {
		msg.AppendFragment(f)
	}

	if got := msg.GetDisplayContent(); got != "Hi there!" {
		t.Errorf("GetDisplayContent() = %q, want %q", got, "Hi there!")
	}

	msg.FinalizeStream()

	if msg.IsStreaming {
		t.Error("FinalizeStream() did not clear IsStreaming")
	}
	if msg.Content != "Hi there!" {
		t.Errorf("Content = %q, want %q", msg.Content, "Hi there!")
	}
}

func TestMessage_AppendAfterFinalizeIsNoop(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendFragment("done")
	msg.FinalizeStream()
	msg.AppendFragment(" extra")

	if msg.Content != "done" {
		t.Errorf("Content = %q, want %q", msg.Content, "done")
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    string
	}{
		{"short content unchanged", "hello", 10, "hello"},
		{"long content truncated", "hello world", 8, "hello..."},
		{"unicode safe", "héllo wörld", 8, "héllo..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := NewUserMessage(tc.content)
			if got := msg.Preview(tc.maxLen); got != tc.want {
				t.Errorf("Preview(%d) = %q, want %q", tc.maxLen, got, tc.want)
			}
		})
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("connection refused")

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want %q", msg.Role, RoleAssistant)
	}
	if !msg.IsError {
		t.Error("IsError = false, want true")
	}
	if msg.IsStreaming {
		t.Error("error messages must be finalized on creation")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AppendOrder(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("first")
	conv.AddUserMessage("second")
	conv.AddUserMessage("third")

	want := []string{"first", "second", "third"}
	if conv.MessageCount() != len(want) {
		t.Fatalf("MessageCount() = %d, want %d", conv.MessageCount(), len(want))
	}
	for i, w := range want {
		if conv.Messages[i].Content != w {
			t.Errorf("Messages[%d].Content = %q, want %q", i, conv.Messages[i].Content, w)
		}
	}
}

func TestConversation_StreamingLifecycle(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hello")
	conv.AddAssistantMessage()

	conv.AppendToLast("Hi")
	conv.AppendToLast(" there")
	conv.AppendToLast("!")
	conv.FinalizeLast()

	last := conv.GetLastMessage()
	if last == nil {
		t.Fatal("GetLastMessage() = nil")
	}
	if last.Content != "Hi there!" {
		t.Errorf("finalized content = %q, want %q", last.Content, "Hi there!")
	}
	if last.IsStreaming {
		t.Error("last message still streaming after FinalizeLast()")
	}
}

func TestConversation_ClearHistory(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hello")
	conv.AddErrorMessage("boom")

	conv.ClearHistory()

	if !conv.IsEmpty() {
		t.Errorf("IsEmpty() = false after ClearHistory, %d messages remain", conv.MessageCount())
	}
}

func TestConversation_DropLast(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hello")
	conv.AddAssistantMessage()

	conv.DropLast()

	if conv.MessageCount() != 1 {
		t.Fatalf("MessageCount() = %d, want 1", conv.MessageCount())
	}
	if conv.GetLastMessage().Role != RoleUser {
		t.Errorf("remaining message role = %q, want %q", conv.GetLastMessage().Role, RoleUser)
	}
}

func TestConversation_Snapshot(t *testing.T) {
	conv := NewConversation()
	conv.SystemPrompt = "be brief"
	conv.AddUserMessage("hello")

	assistant := conv.AddAssistantMessage()
	assistant.AppendFragment("world")
	assistant.FinalizeStream()

	conv.AddErrorMessage("transport failure")
	conv.AddAssistantMessage() // in-flight placeholder, must be skipped

	turns := conv.Snapshot()
	want := []Turn{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "world"},
	}

	if len(turns) != len(want) {
		t.Fatalf("Snapshot() returned %d turns, want %d", len(turns), len(want))
	}
	for i, w := range want {
		if turns[i] != w {
			t.Errorf("turns[%d] = %+v, want %+v", i, turns[i], w)
		}
	}
}

func TestConversation_PruneOldMessages(t *testing.T) {
	conv := NewConversation()
	for i := 0; i < MaxMessages+10; i++ {
		conv.AddUserMessage("msg")
	}

	if conv.MessageCount() != MaxMessages {
		t.Errorf("MessageCount() = %d, want %d after pruning", conv.MessageCount(), MaxMessages)
	}
}

// =============================================================================
// PROVIDER SELECTION TESTS
// =============================================================================

func TestParseProviderID(t *testing.T) {
	tests := []struct {
		input   string
		want    ProviderID
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"OpenAI", ProviderOpenAI, false},
		{"gpt", ProviderOpenAI, false},
		{"gemini", ProviderGemini, false},
		{"google", ProviderGemini, false},
		{"  Gemini  ", ProviderGemini, false},
		{"anthropic", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseProviderID(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseProviderID(%q) expected error, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProviderID(%q) unexpected error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParseProviderID(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestDefaultModel(t *testing.T) {
	for _, p := range AllProviders() {
		info := DefaultModel(p)
		if info.ID == "" {
			t.Errorf("DefaultModel(%s) returned empty model ID", p)
		}
		if info.Provider != p {
			t.Errorf("DefaultModel(%s).Provider = %s", p, info.Provider)
		}
	}
}

func TestLookupModel(t *testing.T) {
	if _, ok := LookupModel("gpt-4o-mini"); !ok {
		t.Error("LookupModel failed to resolve alias gpt-4o-mini")
	}
	if _, ok := LookupModel("gemini-2.0-flash"); !ok {
		t.Error("LookupModel failed to resolve wire ID gemini-2.0-flash")
	}
	if _, ok := LookupModel("made-up-model"); ok {
		t.Error("LookupModel resolved a model that should not exist")
	}
	if !strings.HasPrefix(Models["gemini-flash"].ID, "gemini") {
		t.Error("registry wire ID mismatch for gemini-flash")
	}
}
