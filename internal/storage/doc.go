// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for ember.
//
// Conversations live in a single SQLite database, by default
// ~/.ember/history.db. The store is written to at exchange boundaries
// only, never per token, so write volume stays tiny.
//
// # Key Types
//
//   - Store: the SQLite-backed conversation store
//   - ConversationMeta: listing metadata without message bodies
//   - ExportMarkdown: renders a conversation as a markdown transcript
package storage
