// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists duet's state between runs.
//
// State lives in a single SQLite database holding a key/value table with
// one value per key: the provider selection, each provider's credential,
// each provider's selected model, and the conversation history. Every set
// operation writes through synchronously; get operations fall back to a
// default when the key is absent.
//
// Credentials are sealed via the secret package before they touch disk and
// unsealed transparently on read.
package storage
