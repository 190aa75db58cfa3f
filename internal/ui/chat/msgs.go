// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/morganforge/ember/internal/transport"

// =============================================================================
// MESSAGES
// =============================================================================

// wakeMsg is sent from the session's change callback when the render gate
// was asleep. It starts the frame tick loop.
type wakeMsg struct{}

// modelsLoadedMsg carries the model catalog for the picker overlay.
type modelsLoadedMsg struct {
	models []transport.ModelInfo
	err    error
}

// exportResultMsg carries the outcome of a markdown export.
type exportResultMsg struct {
	path string
	err  error
}
