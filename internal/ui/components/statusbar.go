// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/ember/internal/session"
	"github.com/morganforge/ember/internal/ui/styles"
	"github.com/morganforge/ember/internal/util"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// StatusBar is the bottom status bar: model name, session status, key hints.
type StatusBar struct {
	ModelName     string
	Status        session.Status
	Width         int
	ShowShortcuts bool

	theme *styles.Theme
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		Status:        session.StatusIdle,
		Width:         80,
		ShowShortcuts: true,
		theme:         theme,
	}
}

// SetWidth updates the status bar width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// SetModel updates the displayed model name.
func (s *StatusBar) SetModel(name string) {
	s.ModelName = name
}

// SetStatus updates the displayed session status.
func (s *StatusBar) SetStatus(status session.Status) {
	s.Status = status
}

// statusLabel returns the display string for a session status.
func statusLabel(status session.Status) string {
	switch status {
	case session.StatusIdle:
		return "Idle"
	case session.StatusSubmitted:
		return "Sending..."
	case session.StatusStreaming:
		return "Streaming..."
	case session.StatusReady:
		return "Ready"
	case session.StatusError:
		return "Error"
	default:
		return string(status)
	}
}

// statusIcon returns a shape indicator for a session status.
// ACCESSIBILITY: Distinct shapes alongside colors for colorblind users.
func statusIcon(status session.Status) string {
	switch status {
	case session.StatusReady:
		return styles.StatusIndicators.Success
	case session.StatusSubmitted, session.StatusStreaming:
		return styles.StatusIndicators.Pending
	case session.StatusError:
		return styles.StatusIndicators.Error
	default:
		return "-"
	}
}

// statusStyle returns the style for the current status.
func (s *StatusBar) statusStyle() lipgloss.Style {
	switch s.Status {
	case session.StatusReady:
		return s.theme.StatusReady
	case session.StatusSubmitted, session.StatusStreaming:
		return s.theme.StatusBusy
	case session.StatusError:
		return s.theme.StatusErrored
	default:
		return s.theme.StatusIdleText
	}
}

// View renders the status bar, choosing a layout based on width.
func (s *StatusBar) View() string {
	if styles.LayoutFor(s.Width) == styles.LayoutNarrow {
		return s.viewNarrow()
	}
	return s.viewWide()
}

// viewNarrow renders a compact bar: model | status icon.
func (s *StatusBar) viewNarrow() string {
	parts := []string{}

	if s.ModelName != "" {
		parts = append(parts, util.TruncateWidth(s.ModelName, 20))
	}
	parts = append(parts, s.statusStyle().Render(statusIcon(s.Status)))

	sep := lipgloss.NewStyle().Foreground(styles.Overlay).Render(" | ")
	return s.theme.StatusBar.Width(s.Width).Render(strings.Join(parts, sep))
}

// viewWide renders the full bar: model | status ... shortcuts.
func (s *StatusBar) viewWide() string {
	leftParts := []string{}

	if s.ModelName != "" {
		leftParts = append(leftParts, util.TruncateWidth(s.ModelName, 32))
	}
	leftParts = append(leftParts,
		s.statusStyle().Render(statusIcon(s.Status)+" "+statusLabel(s.Status)))

	sep := lipgloss.NewStyle().Foreground(styles.Overlay).Render(" | ")
	left := strings.Join(leftParts, sep)

	right := ""
	if s.ShowShortcuts {
		right = s.renderShortcuts()
	}

	// Pad the middle so shortcuts sit flush right.
	gap := s.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}

	return s.theme.StatusBar.Width(s.Width).Render(
		left + strings.Repeat(" ", gap) + right)
}

// renderShortcuts renders keyboard shortcut hints.
func (s *StatusBar) renderShortcuts() string {
	hints := []struct{ key, desc string }{
		{"enter", "send"},
		{"esc", "stop"},
		{"^r", "retry"},
		{"^p", "model"},
		{"^c", "quit"},
	}

	rendered := make([]string, 0, len(hints))
	for _, h := range hints {
		rendered = append(rendered,
			s.theme.ShortcutKey.Render(h.key)+" "+s.theme.ShortcutDesc.Render(h.desc))
	}
	return strings.Join(rendered, "  ")
}
