// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// PROVIDER SELECTION
// =============================================================================

// ProviderID identifies which hosted provider is active. It is the value
// persisted under the "provider" key and the tag used to pick an adapter.
type ProviderID string

const (
	ProviderOpenAI ProviderID = "openai"
	ProviderGemini ProviderID = "gemini"
)

// String returns the string representation of the provider ID.
func (p ProviderID) String() string {
	return string(p)
}

// DisplayName returns a human-readable name for the provider.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGemini:
		return "Google Gemini"
	default:
		return string(p)
	}
}

// Valid reports whether p names a supported provider.
func (p ProviderID) Valid() bool {
	return p == ProviderOpenAI || p == ProviderGemini
}

// ParseProviderID converts user input into a ProviderID. Accepts common
// aliases so "/provider google" works at the prompt.
func ParseProviderID(s string) (ProviderID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "oai", "gpt":
		return ProviderOpenAI, nil
	case "gemini", "google", "goog":
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unknown provider %q (expected openai or gemini)", s)
	}
}

// AllProviders lists the supported providers in display order.
func AllProviders() []ProviderID {
	return []ProviderID{ProviderOpenAI, ProviderGemini}
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// ModelInfo contains display information about a hosted model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider owns this model
	Provider ProviderID `json:"provider"`

	// ContextWindow is the maximum context size in tokens
	ContextWindow int `json:"context_window"`
}

// Models is the registry of known hosted models. The map key is the short
// alias accepted by the /model command; the ID is what goes on the wire.
var Models = map[string]ModelInfo{
	"gpt-4o": {
		ID:            "gpt-4o",
		Name:          "GPT-4o",
		Provider:      ProviderOpenAI,
		ContextWindow: 128000,
	},
	"gpt-4o-mini": {
		ID:            "gpt-4o-mini",
		Name:          "GPT-4o mini",
		Provider:      ProviderOpenAI,
		ContextWindow: 128000,
	},
	"gpt-4.1": {
		ID:            "gpt-4.1",
		Name:          "GPT-4.1",
		Provider:      ProviderOpenAI,
		ContextWindow: 1000000,
	},
	"gemini-flash": {
		ID:            "gemini-2.0-flash",
		Name:          "Gemini 2.0 Flash",
		Provider:      ProviderGemini,
		ContextWindow: 1000000,
	},
	"gemini-pro": {
		ID:            "gemini-1.5-pro",
		Name:          "Gemini 1.5 Pro",
		Provider:      ProviderGemini,
		ContextWindow: 2000000,
	},
}

// DefaultModel returns the default model for a provider.
func DefaultModel(p ProviderID) ModelInfo {
	switch p {
	case ProviderGemini:
		return Models["gemini-flash"]
	default:
		return Models["gpt-4o-mini"]
	}
}

// LookupModel resolves a model alias or wire ID to its info. The bool
// result is false when the model is not in the registry; unknown models
// are still usable, they just render without a display name.
func LookupModel(name string) (ModelInfo, bool) {
	if info, ok := Models[name]; ok {
		return info, true
	}
	for _, info := range Models {
		if info.ID == name {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ModelsFor returns the registry entries for one provider.
func ModelsFor(p ProviderID) []ModelInfo {
	var out []ModelInfo
	for _, info := range Models {
		if info.Provider == p {
			out = append(out, info)
		}
	}
	return out
}
