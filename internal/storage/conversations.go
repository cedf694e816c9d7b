// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// STORED CONVERSATION TYPE
// =============================================================================

// StoredConversation is the persisted form of a conversation. In-flight
// streaming placeholders are never written; only finalized messages are.
type StoredConversation struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Messages     []StoredMessage `json:"messages"`
}

// StoredMessage is the persisted form of a message.
type StoredMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

// FromConversation converts a live conversation to its persisted form.
// Streaming placeholders are dropped; an interrupted stream leaves no
// half-written assistant message behind.
func FromConversation(conv *model.Conversation) *StoredConversation {
	stored := &StoredConversation{
		ID:           conv.ID,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		SystemPrompt: conv.SystemPrompt,
		Messages:     make([]StoredMessage, 0, len(conv.Messages)),
	}

	for _, msg := range conv.Messages {
		if msg.IsStreaming {
			continue
		}
		stored.Messages = append(stored.Messages, StoredMessage{
			ID:        msg.ID,
			Role:      msg.Role.String(),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
			IsError:   msg.IsError,
		})
	}

	return stored
}

// ToConversation converts the persisted form back to a live conversation.
func (c *StoredConversation) ToConversation() *model.Conversation {
	conv := model.NewConversation()
	if c.ID != "" {
		conv.ID = c.ID
	}
	if !c.CreatedAt.IsZero() {
		conv.CreatedAt = c.CreatedAt
	}
	if !c.UpdatedAt.IsZero() {
		conv.UpdatedAt = c.UpdatedAt
	}
	conv.SystemPrompt = c.SystemPrompt

	for _, sm := range c.Messages {
		msg := &model.Message{
			ID:        sm.ID,
			Role:      model.Role(sm.Role),
			Content:   sm.Content,
			Timestamp: sm.Timestamp,
			IsError:   sm.IsError,
		}
		conv.Messages = append(conv.Messages, msg)
	}

	return conv
}

// MessageCount returns the number of persisted messages.
func (c *StoredConversation) MessageCount() int {
	return len(c.Messages)
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the conversation as a Markdown transcript.
func (c *StoredConversation) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# Conversation " + c.ID + "\n\n")
	sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		role := "**" + model.Role(msg.Role).DisplayName() + "**"
		sb.WriteString(role + " (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON renders the conversation as pretty-printed JSON.
func (c *StoredConversation) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// GetPreview returns a preview string from the first user message.
func (c *StoredConversation) GetPreview() string {
	for _, msg := range c.Messages {
		if msg.Role == "user" && msg.Content != "" {
			return util.TruncateRunes(strings.ReplaceAll(msg.Content, "\n", " "), 80)
		}
	}
	return ""
}
