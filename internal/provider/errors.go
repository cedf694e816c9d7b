// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNoCredential indicates no API key is set for the active provider.
	ErrNoCredential = errors.New("API key not configured")

	// ErrAuthFailed indicates the provider rejected the credential.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrQuotaExceeded indicates the account is out of credits or quota.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// =============================================================================
// API ERROR TYPE
// =============================================================================

// APIError represents a non-success response from a provider endpoint.
type APIError struct {
	Provider string
	Code     string
	Message  string
	Status   int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s] (HTTP %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// mapStatusError wraps an APIError in the matching sentinel so callers can
// use errors.Is without caring which provider produced the failure.
func mapStatusError(apiErr *APIError) error {
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Message)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	default:
		return apiErr
	}
}

// =============================================================================
// USER-FACING DESCRIPTIONS
// =============================================================================

// Describe converts a streaming failure into the text of the synthetic
// assistant message shown in the transcript. Inputs are never retried, so
// the guidance tells the user how to fix and resubmit.
func Describe(id string, err error) string {
	switch {
	case errors.Is(err, ErrNoCredential):
		return fmt.Sprintf("No API key is set for %s. Save one with /key and resend your message.", id)
	case errors.Is(err, ErrAuthFailed):
		return fmt.Sprintf("%s rejected the API key. Check the key with /key and resend your message. (%v)", id, err)
	case errors.Is(err, ErrRateLimited):
		return fmt.Sprintf("%s is rate limiting requests. Wait a moment and resend your message. (%v)", id, err)
	case errors.Is(err, ErrModelNotFound):
		return fmt.Sprintf("The selected model is not available on %s. Pick another with /model. (%v)", id, err)
	case errors.Is(err, ErrQuotaExceeded):
		return fmt.Sprintf("The %s account is out of quota. (%v)", id, err)
	default:
		return fmt.Sprintf("Request to %s failed: %v", id, err)
	}
}
