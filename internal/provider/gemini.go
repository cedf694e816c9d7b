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

// Configuration constants for the Gemini API.
const (
	// DefaultGeminiURL is the base URL for the Gemini API.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

	// geminiKeyPrefix is the literal prefix Google API keys start with.
	geminiKeyPrefix = "AIza"

	// geminiKeyLen is the fixed length of Google API keys.
	geminiKeyLen = 39
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Gemini splits a chat into systemInstruction plus contents, with roles
// "user" and "model" instead of "user" and "assistant".

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

// geminiResponse is a full generateContentResponse. Streaming events each
// carry one of these, not a delta.
type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Role  string       `json:"role"`
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// geminiErrorResponse is the error envelope returned by the API.
type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// GeminiClient is the Provider adapter for Google Gemini.
type GeminiClient struct {
	baseURL string
	model   string
	limiter *rate.Limiter
}

// NewGeminiClient creates a Gemini adapter with the default model.
func NewGeminiClient() *GeminiClient {
	return &GeminiClient{
		baseURL: DefaultGeminiURL,
		model:   model.DefaultModel(model.ProviderGemini).ID,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *GeminiClient) WithBaseURL(url string) *GeminiClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// ID returns the provider identifier.
func (c *GeminiClient) ID() model.ProviderID {
	return model.ProviderGemini
}

// Model returns the wire model ID in use.
func (c *GeminiClient) Model() string {
	return c.model
}

// SetModel changes the wire model ID for subsequent requests.
func (c *GeminiClient) SetModel(m string) {
	c.model = m
}

// ValidateCredential runs the advisory key format check. Google API keys
// are a fixed 39 characters starting with "AIza"; anything else gets a
// hint, not a hard failure.
func (c *GeminiClient) ValidateCredential(credential string) error {
	credential = strings.TrimSpace(credential)

	if credential == "" {
		return errors.New("key is empty")
	}
	if !strings.HasPrefix(credential, geminiKeyPrefix) {
		return fmt.Errorf("Gemini keys start with %q", geminiKeyPrefix)
	}
	if len(credential) != geminiKeyLen {
		return fmt.Errorf("key is %d chars, Gemini keys are %d", len(credential), geminiKeyLen)
	}

	return nil
}

// ChatStream requests a streamed generation. Fragments are delivered on
// the returned channel; a transport or API failure arrives as the final
// fragment's Err.
func (c *GeminiClient) ChatStream(ctx context.Context, turns []model.Turn, credential string) (<-chan Fragment, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrNoCredential
	}

	reqBody := toGeminiRequest(turns)

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// streamGenerateContent with alt=sse delivers SSE events
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-goog-api-key", credential)
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
//
// Each SSE event carries a full generateContentResponse whose candidate
// text is cumulative. Deltas are computed by tracking the previously seen
// text length and emitting only the new portion.
func (c *GeminiClient) processStream(ctx context.Context, body io.Reader, fragments chan<- Fragment) error {
	reader := NewSSEReader(body)
	previousTextLength := 0

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

		var resp geminiResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			// Skip malformed chunks
			continue
		}

		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]
		if candidate.Content == nil {
			if candidate.FinishReason != "" {
				return nil
			}
			continue
		}

		var textParts []string
		for _, p := range candidate.Content.Parts {
			if p.Text != "" {
				textParts = append(textParts, p.Text)
			}
		}

		fullText := strings.Join(textParts, "\n")
		if len(fullText) > previousTextLength {
			delta := fullText[previousTextLength:]
			previousTextLength = len(fullText)
			select {
			case fragments <- Fragment{Text: delta}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if candidate.FinishReason != "" {
			return nil
		}
	}
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (c *GeminiClient) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{
		Provider: "Gemini",
		Status:   statusCode,
		Message:  strings.TrimSpace(string(body)),
	}

	var envelope geminiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	}

	return mapStatusError(apiErr)
}

// toGeminiRequest converts conversation turns to the Gemini request shape.
// System turns become the systemInstruction; "assistant" maps to Gemini's
// "model" role.
func toGeminiRequest(turns []model.Turn) geminiRequest {
	req := geminiRequest{
		Contents: make([]geminiContent, 0, len(turns)),
	}

	for _, t := range turns {
		switch t.Role {
		case model.RoleSystem:
			req.SystemInstruction = &geminiContent{
				Parts: []geminiPart{{Text: t.Content}},
			}
		case model.RoleAssistant:
			req.Contents = append(req.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: t.Content}},
			})
		default:
			req.Contents = append(req.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: t.Content}},
			})
		}
	}

	return req
}
