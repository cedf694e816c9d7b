// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/duetlabs/duet/internal/model"
)

// =============================================================================
// TRANSPORT CONSTANTS
// =============================================================================

const (
	// MaxResponseSize is the maximum allowed error response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// fragmentBuffer is the channel depth between the SSE reader goroutine
	// and the consumer.
	fragmentBuffer = 64
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client for streaming requests (no timeout, context-controlled).
// SECURITY: TLS 1.2+ enforced, verification required.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: false,
		},
	},
	// No timeout for streaming, controlled via context
}

// =============================================================================
// FRAGMENT TYPE
// =============================================================================

// Fragment is one incremental piece of a streamed response. A Fragment
// carries either text or a terminal error, never both. The channel is
// closed after the terminal fragment.
type Fragment struct {
	Text string
	Err  error
}

// =============================================================================
// PROVIDER INTERFACE
// =============================================================================

// Provider is the adapter contract for a hosted chat service.
//
// ChatStream returns a single-consumption sequence of fragments. The
// concatenation of all fragment texts equals the full response. A
// transport or authentication failure is delivered as the final
// fragment's Err; the channel is then closed. ChatStream itself returns
// an error only for preconditions (missing credential, bad request build).
type Provider interface {
	// ID returns the stable provider identifier.
	ID() model.ProviderID

	// Model returns the wire model ID currently in use.
	Model() string

	// SetModel changes the wire model ID for subsequent requests.
	SetModel(m string)

	// ValidateCredential runs the advisory format check. The returned
	// error is user guidance only; it never gates a programmatically set
	// credential.
	ValidateCredential(credential string) error

	// ChatStream requests a streamed completion for the given turns.
	ChatStream(ctx context.Context, turns []model.Turn, credential string) (<-chan Fragment, error)
}

// New constructs the adapter for a provider selection. The returned
// provider uses its default model until SetModel is called.
func New(id model.ProviderID) Provider {
	switch id {
	case model.ProviderGemini:
		return NewGeminiClient()
	default:
		return NewOpenAIClient()
	}
}

// NewWithBaseURL constructs an adapter pointed at an alternate endpoint.
// An empty baseURL keeps the provider default.
func NewWithBaseURL(id model.ProviderID, baseURL string) Provider {
	if baseURL == "" {
		return New(id)
	}
	switch id {
	case model.ProviderGemini:
		return NewGeminiClient().WithBaseURL(baseURL)
	default:
		return NewOpenAIClient().WithBaseURL(baseURL)
	}
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// Accumulator drains a fragment channel and builds the complete response.
// Used by the plain REPL mode and by tests; the TUI consumes fragments
// one at a time instead.
type Accumulator struct {
	content strings.Builder
	err     error
}

// Consume reads the sequence to completion, invoking onFragment for each
// text fragment as it arrives. onFragment may be nil.
func (a *Accumulator) Consume(fragments <-chan Fragment, onFragment func(text string)) {
	for f := range fragments {
		if f.Err != nil {
			a.err = f.Err
			return
		}
		if f.Text == "" {
			continue
		}
		a.content.WriteString(f.Text)
		if onFragment != nil {
			onFragment(f.Text)
		}
	}
}

// Content returns the accumulated response text.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Err returns the terminal error, if any.
func (a *Accumulator) Err() error {
	return a.err
}
