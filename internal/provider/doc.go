// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the hosted-LLM adapters.
//
// Each adapter takes the ordered conversation turns plus the user's
// credential and produces an ordered sequence of text fragments whose
// concatenation equals the full response. The two adapters differ only in
// endpoint, request payload shape, and chunk-to-text extraction:
//
//   - OpenAI: flat message list, SSE deltas with a [DONE] sentinel
//   - Gemini: history-plus-latest-turn contents, SSE events carrying full
//     responses from which deltas are computed
//
// Transport and authentication failures surface as typed errors carrying
// the provider's message where available. Fragments with no extractable
// text are skipped silently. Adapters never retry.
package provider
