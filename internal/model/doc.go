// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, messages, and provider selection.
//
// # Key Types
//
//   - Conversation: Ordered, append-only chat history with an explicit Clear
//   - Message: Single message with role, content, and timestamp
//   - Role: Message role enumeration (user, assistant, system)
//   - ProviderID: Which hosted provider is active (openai, gemini)
//   - ModelInfo: Information about a hosted model (ID, context window)
//
// # Usage
//
// Create a new conversation:
//
//	conv := model.NewConversation()
//	conv.AddUserMessage("Hello!")
//
// Look up a provider's default model:
//
//	info := model.DefaultModel(model.ProviderOpenAI)
package model
