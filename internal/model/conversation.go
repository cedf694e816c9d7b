// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxMessages is the maximum number of messages to keep in conversation history.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered chat history. Messages are append-only;
// the only truncation is an explicit Clear, and the order never changes.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	// System prompt (optional, never shown in the transcript)
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates a new empty conversation with a generated ID.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.pruneOldMessages()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and appends a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// AddErrorMessage creates and appends a synthetic assistant error message.
func (c *Conversation) AddErrorMessage(description string) *Message {
	msg := NewErrorMessage(description)
	c.AddMessage(msg)
	return msg
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// GetLastUserMessage returns the most recent user message, or nil.
func (c *Conversation) GetLastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// AppendToLast appends a fragment to the last (streaming) message.
func (c *Conversation) AppendToLast(fragment string) {
	last := c.GetLastMessage()
	if last != nil && last.IsStreaming {
		last.AppendFragment(fragment)
	}
}

// FinalizeLast finalizes the last streaming message.
func (c *Conversation) FinalizeLast() {
	last := c.GetLastMessage()
	if last != nil && last.IsStreaming {
		last.FinalizeStream()
	}
}

// DropLast removes the most recent message. Used to back out an
// uncommitted streaming placeholder before injecting an error message.
func (c *Conversation) DropLast() {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	c.UpdatedAt = time.Now()
}

// ClearHistory removes all messages from the conversation.
func (c *Conversation) ClearHistory() {
	c.Messages = make([]*Message, 0)
	c.UpdatedAt = time.Now()
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// PROVIDER SNAPSHOT
// =============================================================================

// Turn is a role/content pair handed to a provider adapter. Snapshots are
// value copies so an adapter can never mutate the conversation.
type Turn struct {
	Role    Role
	Content string
}

// Snapshot returns the ordered turns to send to a provider. Streaming
// placeholders and empty messages are skipped; the system prompt, when
// set, leads the sequence.
func (c *Conversation) Snapshot() []Turn {
	turns := make([]Turn, 0, len(c.Messages)+1)

	if c.SystemPrompt != "" {
		turns = append(turns, Turn{Role: RoleSystem, Content: c.SystemPrompt})
	}

	for _, msg := range c.Messages {
		if msg.IsStreaming || msg.IsError {
			continue
		}
		if msg.Content == "" {
			continue
		}
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}

	return turns
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// pruneOldMessages drops the oldest non-system messages once the history
// exceeds MaxMessages.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var system []*Message
	var rest []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if len(rest) > MaxMessages {
		rest = rest[len(rest)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(system)+len(rest))
	c.Messages = append(c.Messages, system...)
	c.Messages = append(c.Messages, rest...)
}
