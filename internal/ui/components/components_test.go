// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/ui/styles"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "Ready"},
		{StatusSending, "Sending"},
		{StatusStreaming, "Streaming"},
		{StatusError, "Error"},
		{Status(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusBarView(t *testing.T) {
	theme := styles.NewTheme()
	bar := NewStatusBar(theme)
	bar.SetWidth(100)
	bar.SetProvider(model.ProviderGemini)
	bar.SetModel("gemini-2.0-flash")
	bar.SetHasCredential(true)
	bar.SetStatus(StatusStreaming)

	view := bar.View()
	for _, want := range []string{"Gemini", "gemini-2.0-flash", "Streaming"} {
		if !strings.Contains(view, want) {
			t.Errorf("status bar missing %q in %q", want, view)
		}
	}
	if strings.Contains(view, "no API key") {
		t.Error("credential warning shown despite stored key")
	}
}

func TestStatusBarWarnsWithoutCredential(t *testing.T) {
	bar := NewStatusBar(styles.NewTheme())
	bar.SetWidth(100)
	bar.SetHasCredential(false)

	if !strings.Contains(bar.View(), "no API key") {
		t.Error("missing credential warning")
	}
}

func TestStatusBarNarrow(t *testing.T) {
	bar := NewStatusBar(styles.NewTheme())
	bar.SetWidth(40)
	bar.SetHasCredential(true)

	view := bar.View()
	if view == "" {
		t.Error("narrow view rendered empty")
	}
	if strings.Contains(view, "ctrl+c") {
		t.Error("narrow view should drop shortcuts")
	}
}

func TestSpinnerLifecycle(t *testing.T) {
	s := NewSpinner(styles.NewTheme())

	if s.IsActive() {
		t.Error("spinner active before Start")
	}
	if s.View() != "" {
		t.Error("inactive spinner rendered non-empty")
	}

	if cmd := s.Start(); cmd == nil {
		t.Error("Start returned nil tick command")
	}
	if !s.IsActive() {
		t.Error("spinner inactive after Start")
	}
	if !strings.Contains(s.View(), "Thinking") {
		t.Errorf("spinner view missing message: %q", s.View())
	}

	s.Stop()
	if s.IsActive() {
		t.Error("spinner active after Stop")
	}
}

func TestCodeBlockRender(t *testing.T) {
	cb := NewCodeBlock("go", "package main\n\nfunc main() {}\n")
	out := cb.Render()
	if !strings.Contains(out, "go") {
		t.Error("rendered block missing language badge")
	}
	if !strings.Contains(out, "main") {
		t.Error("rendered block missing code content")
	}
}

func TestParseCodeBlocks(t *testing.T) {
	text := "before\n```python\nprint('hi')\n```\nafter"
	out := ParseCodeBlocks(text, 80)
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Error("surrounding text lost")
	}
	if strings.Contains(out, "```") {
		t.Error("fences not stripped")
	}
}

func TestParseCodeBlocks_UnclosedFence(t *testing.T) {
	out := ParseCodeBlocks("```go\nfunc partial() {", 80)
	if !strings.Contains(out, "partial") {
		t.Error("unclosed block content lost")
	}
}

func TestMarkdownRenderFallsBackOnContent(t *testing.T) {
	md, err := NewMarkdown(80)
	if err != nil {
		t.Fatalf("NewMarkdown error: %v", err)
	}

	out := md.Render("# Title\n\nSome **bold** text.")
	if !strings.Contains(out, "Title") {
		t.Errorf("rendered markdown missing heading text: %q", out)
	}
}

func TestWelcomeView(t *testing.T) {
	theme := styles.NewTheme()
	w := NewWelcome(theme)
	w.SetVersion("1.0.0")
	w.SetProvider(model.ProviderOpenAI)
	w.SetModelName("gpt-4o-mini")
	w.SetHasCredential(false)
	w.SetSize(100, 30)

	view := w.View()
	for _, want := range []string{"OpenAI", "gpt-4o-mini", "/key", "1.0.0"} {
		if !strings.Contains(view, want) {
			t.Errorf("welcome view missing %q", want)
		}
	}
}
