// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strconv"
	"strings"

	"github.com/morganforge/ember/internal/transport"
	"github.com/morganforge/ember/internal/ui/styles"
	"github.com/morganforge/ember/internal/util"
)

// =============================================================================
// MODEL PICKER
// =============================================================================

// ModelPicker is the overlay for switching the active model. It is created
// when the catalog loads and discarded when the overlay closes.
type ModelPicker struct {
	models []transport.ModelInfo
	cursor int

	theme *styles.Theme
}

// NewModelPicker creates a picker with the cursor on the current model.
func NewModelPicker(models []transport.ModelInfo, current string, theme *styles.Theme) *ModelPicker {
	p := &ModelPicker{models: models, theme: theme}
	for i, m := range models {
		if m.ID == current {
			p.cursor = i
			break
		}
	}
	return p
}

// MoveUp moves the cursor up, stopping at the top.
func (p *ModelPicker) MoveUp() {
	if p.cursor > 0 {
		p.cursor--
	}
}

// MoveDown moves the cursor down, stopping at the bottom.
func (p *ModelPicker) MoveDown() {
	if p.cursor < len(p.models)-1 {
		p.cursor++
	}
}

// Selected returns the model under the cursor, or nil for an empty catalog.
func (p *ModelPicker) Selected() *transport.ModelInfo {
	if len(p.models) == 0 {
		return nil
	}
	return &p.models[p.cursor]
}

// View renders the picker overlay.
func (p *ModelPicker) View() string {
	var sb strings.Builder
	sb.WriteString(p.theme.PickerTitle.Render("Switch model"))
	sb.WriteString("\n\n")

	if len(p.models) == 0 {
		sb.WriteString(p.theme.PickerMeta.Render("No models available on the server."))
	}

	for i, m := range p.models {
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		line := util.TruncateWidth(name, 40)
		if m.ContextLength > 0 {
			line += p.theme.PickerMeta.Render("  " + formatContextLength(m.ContextLength))
		}

		if i == p.cursor {
			sb.WriteString(p.theme.PickerItemSelected.Render("> " + line))
		} else {
			sb.WriteString(p.theme.PickerItem.Render("  " + line))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(p.theme.PickerMeta.Render("up/down move | enter select | esc close"))

	return p.theme.PickerBox.Render(sb.String())
}

// formatContextLength renders a context window size compactly, e.g. "32k".
func formatContextLength(n int) string {
	if n >= 1024 && n%1024 == 0 {
		return strconv.Itoa(n/1024) + "k ctx"
	}
	return strconv.Itoa(n) + " ctx"
}
