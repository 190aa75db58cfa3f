// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the visual UI components for the ember TUI.

Components are small, self-contained renderers composed by the chat view:

# Key Types

  - StatusBar: bottom bar showing model, session status, and key hints
  - Spinner: loading indicator with elapsed-time display
  - ErrorBanner: classified failure rendering with a recovery hint
  - CodeBlock: chroma-highlighted fenced code rendering
*/
package components
