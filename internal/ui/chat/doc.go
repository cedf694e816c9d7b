// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the conversation loop as a Bubble Tea model.
//
// The loop is a small state machine: Idle accepts a submit only when the
// input is non-blank, a credential is stored for the active provider, and
// no request is already in flight. A submit appends the user message,
// persists it, and moves through Sending and Streaming while fragments
// accumulate into the pending assistant message. Both the success and the
// failure path finalize exactly one assistant message and return to Idle;
// a failure's message carries the error description. There is no retry
// and no user-facing cancellation.
//
// Streaming happens off the Bubble Tea loop: the model emits a
// StreamRequestMsg, the StreamRunner consumes the provider's fragment
// channel in a goroutine and feeds Stream* messages back through
// Program.Send. Fragment text is batched by a StreamingBuffer and drained
// at a capped frame rate so rendering stays smooth under fast streams.
package chat
