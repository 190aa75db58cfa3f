// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive chat view for the ember TUI.

The view is a Bubble Tea model wrapping a session.Session. All conversation
state lives in the session; the view renders snapshots of it and translates
key presses into session operations (submit, cancel, retry).

Streaming updates arrive on a session callback running outside the Bubble Tea
loop. A RenderGate coalesces those callbacks so the viewport re-renders at a
capped frame rate instead of once per token.

# Key Types

  - Model: the Bubble Tea model composing viewport, textarea, and components
  - RenderGate: frame-rate limiter between session callbacks and renders
  - KeyMap: key bindings, displayed through bubbles/help conventions
  - ModelPicker: overlay for switching the active model
*/
package chat
