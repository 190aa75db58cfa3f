// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements streaming render coalescing for smooth, flicker-free
// output while a reply streams in. Session change callbacks fire once per
// decoded event, which for a fast local model means hundreds of times per
// second; re-rendering the viewport at that rate burns CPU and flickers.
// The RenderGate batches those callbacks behind a capped frame rate.
package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// RENDER GATE
// =============================================================================

// RenderGate sits between the session's change callback and the Bubble Tea
// loop. The callback marks the gate dirty; a tick command drains it at most
// once per frame.
//
// Thread-safety: callbacks run on the session's pump goroutine while the
// Bubble Tea loop drains on the UI goroutine, so all state is mutex-guarded.
type RenderGate struct {
	mu    sync.Mutex
	dirty bool
	awake bool
}

// NewRenderGate creates a gate in the sleeping state.
func NewRenderGate() *RenderGate {
	return &RenderGate{}
}

// Mark records that session state changed. It returns true when the UI loop
// is asleep and needs a wake-up message; the caller sends one and the gate
// stays awake until TrySleep succeeds.
func (g *RenderGate) Mark() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dirty = true
	if g.awake {
		return false
	}
	g.awake = true
	return true
}

// Take reports whether a render is due and clears the dirty flag.
func (g *RenderGate) Take() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.dirty {
		return false
	}
	g.dirty = false
	return true
}

// TrySleep moves the gate to the sleeping state. It fails (returns false)
// when a mark arrived after the last Take, in which case the caller must
// keep ticking. This closes the race between a final stream event and the
// UI loop deciding it is done.
func (g *RenderGate) TrySleep() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dirty {
		return false
	}
	g.awake = false
	return true
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamFPS caps viewport re-renders during streaming. 30fps is smooth to
// the eye and leaves the terminal emulator plenty of headroom.
const streamFPS = 30

// streamTickMsg is delivered once per frame while the gate is awake.
type streamTickMsg struct {
	Time time.Time
}

// streamTickCmd creates a tea.Cmd that delivers the next frame tick.
func streamTickCmd() tea.Cmd {
	return tea.Tick(time.Second/streamFPS, func(t time.Time) tea.Msg {
		return streamTickMsg{Time: t}
	})
}
