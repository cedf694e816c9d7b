// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/provider"
	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// STREAM RUNNER
// =============================================================================

// StreamRunner consumes a provider's fragment channel in a goroutine and
// feeds the results back into the Bubble Tea program. One stream is in
// flight at a time; the chat model rejects submits while busy, so the
// runner never races with itself.
type StreamRunner struct {
	program *tea.Program
}

// NewStreamRunner creates a runner bound to a program.
func NewStreamRunner(program *tea.Program) *StreamRunner {
	return &StreamRunner{program: program}
}

// Run starts the provider stream and forwards fragments as messages.
// Blocks until the stream terminates; callers run it in a goroutine.
func (r *StreamRunner) Run(ctx context.Context, prov provider.Provider, turns []model.Turn, credential, messageID string) {
	fragments, err := prov.ChatStream(ctx, turns, credential)
	if err != nil {
		r.program.Send(StreamErrorMsg{MessageID: messageID, Err: err})
		return
	}

	r.program.Send(StreamStartMsg{MessageID: messageID, StartTime: time.Now()})

	isFirst := true
	for fragment := range fragments {
		if fragment.Err != nil {
			util.Debugf("stream %s failed: %v", messageID, fragment.Err)
			r.program.Send(StreamErrorMsg{MessageID: messageID, Err: fragment.Err})
			return
		}

		r.program.Send(StreamTokenMsg{
			MessageID: messageID,
			Token:     fragment.Text,
			IsFirst:   isFirst,
		})
		isFirst = false
	}

	r.program.Send(StreamCompleteMsg{MessageID: messageID})
}
