// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/model"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamRequestMsg asks the application root to start a provider stream.
// The chat model emits it on submit; the root hands it to the StreamRunner.
type StreamRequestMsg struct {
	// MessageID identifies the pending assistant message
	MessageID string

	// Turns is the conversation snapshot to send
	Turns []model.Turn
}

// StreamStartMsg signals that the provider accepted the request.
type StreamStartMsg struct {
	MessageID string
	StartTime time.Time
}

// StreamTokenMsg carries one response fragment.
type StreamTokenMsg struct {
	MessageID string
	Token     string
	IsFirst   bool
}

// StreamTickMsg drives batched rendering of buffered fragments.
type StreamTickMsg struct {
	Time time.Time
}

// StreamCompleteMsg signals normal end-of-stream.
type StreamCompleteMsg struct {
	MessageID string
}

// StreamErrorMsg signals that the stream failed. Exactly one synthetic
// assistant message is appended in response.
type StreamErrorMsg struct {
	MessageID string
	Err       error
}

// =============================================================================
// APPLICATION MESSAGES
// =============================================================================

// PersistErrorMsg signals that a write to the state database failed.
type PersistErrorMsg struct {
	Err error
}

// ConfigReloadedMsg carries a freshly loaded configuration from the
// file watcher.
type ConfigReloadedMsg struct {
	Config *config.Config
}
