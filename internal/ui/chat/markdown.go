// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/morganforge/ember/internal/ui/components"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer wraps glamour with a plain fallback. Glamour rendering of
// a half-streamed reply can fail on unbalanced markup; the fallback keeps
// the raw text visible with code fences still highlighted.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// newMarkdownRenderer builds a renderer for the given width and palette.
func newMarkdownRenderer(width int, dark bool) *markdownRenderer {
	style := "light"
	if dark {
		style = "dark"
	}

	wrap := width - 2
	if wrap < 20 {
		wrap = 20
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		// Glamour only fails on invalid options; fall back to plain.
		r = nil
	}

	return &markdownRenderer{renderer: r, width: width}
}

// Render renders markdown text for terminal display.
func (m *markdownRenderer) Render(text string) string {
	if m.renderer == nil {
		return components.ParseCodeBlocks(text, m.width)
	}

	out, err := m.renderer.Render(text)
	if err != nil {
		return components.ParseCodeBlocks(text, m.width)
	}
	return strings.TrimRight(out, "\n")
}
