// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/duetlabs/duet/internal/model"
)

// Configuration constants for the OpenAI API.
const (
	// DefaultOpenAIURL is the base URL for the OpenAI API.
	DefaultOpenAIURL = "https://api.openai.com/v1"

	// openAIKeyPrefix is the literal prefix OpenAI keys start with.
	openAIKeyPrefix = "sk-"

	// openAIKeyMinLen is the minimum plausible key length (prefix + 32).
	openAIKeyMinLen = 35
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatMessage is a single message in the flat OpenAI request shape.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// streamChunk is a single SSE chunk of a streamed completion.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// getContent returns the content from the first choice's delta.
func (c *streamChunk) getContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// isDone returns true if the stream has finished.
func (c *streamChunk) isDone() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// openAIErrorResponse is the error envelope returned by the API.
type openAIErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenAIClient is the Provider adapter for OpenAI chat completions.
type OpenAIClient struct {
	baseURL string
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClient creates an OpenAI adapter with the default model.
func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{
		baseURL: DefaultOpenAIURL,
		model:   model.DefaultModel(model.ProviderOpenAI).ID,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenAIClient) WithBaseURL(url string) *OpenAIClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// ID returns the provider identifier.
func (c *OpenAIClient) ID() model.ProviderID {
	return model.ProviderOpenAI
}

// Model returns the wire model ID in use.
func (c *OpenAIClient) Model() string {
	return c.model
}

// SetModel changes the wire model ID for subsequent requests.
func (c *OpenAIClient) SetModel(m string) {
	c.model = m
}

// ValidateCredential runs the advisory key format check.
// It does not verify the key with OpenAI, just the shape: a literal
// prefix, a minimum length, and enough character variety to rule out
// obvious placeholder keys.
func (c *OpenAIClient) ValidateCredential(credential string) error {
	credential = strings.TrimSpace(credential)

	if credential == "" {
		return errors.New("key is empty")
	}
	if !strings.HasPrefix(credential, openAIKeyPrefix) {
		return fmt.Errorf("OpenAI keys start with %q", openAIKeyPrefix)
	}
	if len(credential) < openAIKeyMinLen {
		return fmt.Errorf("key looks too short (%d chars, expected at least %d)", len(credential), openAIKeyMinLen)
	}

	uniqueChars := make(map[rune]bool)
	for _, char := range credential[len(openAIKeyPrefix):] {
		uniqueChars[char] = true
	}
	if len(uniqueChars) < 10 {
		return errors.New("key has too little character variety to be real")
	}

	return nil
}

// ChatStream requests a streamed chat completion. Fragments are delivered
// on the returned channel; a transport or API failure arrives as the final
// fragment's Err.
func (c *OpenAIClient) ChatStream(ctx context.Context, turns []model.Turn, credential string) (<-chan Fragment, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrNoCredential
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: toChatMessages(turns),
		Stream:   true,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "duet/0.1.0")

	fragments := make(chan Fragment, fragmentBuffer)

	go func() {
		defer close(fragments)

		if err := c.limiter.Wait(ctx); err != nil {
			fragments <- Fragment{Err: err}
			return
		}

		// PERFORMANCE: Shared streaming client with connection pooling
		resp, err := sharedStreamingClient.Do(req)
		if err != nil {
			fragments <- Fragment{Err: fmt.Errorf("request failed: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
			fragments <- Fragment{Err: c.handleErrorResponse(resp.StatusCode, body)}
			return
		}

		if err := c.processStream(ctx, resp.Body, fragments); err != nil {
			fragments <- Fragment{Err: err}
		}
	}()

	return fragments, nil
}

// processStream reads the SSE stream and forwards text deltas.
func (c *OpenAIClient) processStream(ctx context.Context, body io.Reader, fragments chan<- Fragment) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		// Check for [DONE] signal
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		// Textless chunks (role announcements, keep-alives) are skipped
		if content := chunk.getContent(); content != "" {
			select {
			case fragments <- Fragment{Text: content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if chunk.isDone() {
			return nil
		}
	}
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (c *OpenAIClient) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{
		Provider: "OpenAI",
		Status:   statusCode,
		Message:  strings.TrimSpace(string(body)),
	}

	var envelope openAIErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	return mapStatusError(apiErr)
}

// toChatMessages converts conversation turns to the flat wire shape.
func toChatMessages(turns []model.Turn) []chatMessage {
	messages := make([]chatMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, chatMessage{
			Role:    t.Role.String(),
			Content: t.Content,
		})
	}
	return messages
}
