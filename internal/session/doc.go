// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns conversation state and drives one exchange at a time
// against the inference server.
//
// The Session is an explicit finite state machine. A user submission moves
// it idle → submitted; the first protocol event moves it to streaming; a
// finish event, an error, or an explicit cancel moves it to a terminal
// state and releases the active request. At most one exchange is ever in
// flight: Submit while busy fails fast instead of queueing.
//
// The session is the sole writer of the conversation. Everyone else reads
// snapshots, delivered through a change callback.
//
// # Key Types
//
//   - Session: the state machine with Submit, Cancel, and Retry
//   - Status: idle, submitted, streaming, ready, error
//   - Apply: folds protocol events into the streaming assistant message
//   - Classify: maps raw failures to the network/protocol/upstream/cancelled taxonomy
package session
