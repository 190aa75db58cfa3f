// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/morganforge/ember/internal/model"
	"github.com/morganforge/ember/internal/ui/components"
	"github.com/morganforge/ember/internal/ui/styles"
	"github.com/morganforge/ember/internal/util"
)

// =============================================================================
// CONVERSATION RENDERING
// =============================================================================

// conversationRenderer turns a conversation snapshot into viewport content.
type conversationRenderer struct {
	theme    *styles.Theme
	markdown *markdownRenderer
	width    int
}

// newConversationRenderer builds a renderer for the given width. The
// markdown renderer is nil when markdown rendering is disabled.
func newConversationRenderer(theme *styles.Theme, markdown *markdownRenderer, width int) *conversationRenderer {
	return &conversationRenderer{theme: theme, markdown: markdown, width: width}
}

// Render renders the whole conversation, one message block per turn.
func (r *conversationRenderer) Render(conv *model.Conversation) string {
	if conv == nil || conv.Len() == 0 {
		return r.theme.MessageMeta.Render("Type a message and press enter to start.")
	}

	blocks := make([]string, 0, conv.Len())
	for _, msg := range conv.Messages {
		if block := r.renderMessage(msg); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// renderMessage renders one turn: a role label line, then the parts in
// arrival order.
func (r *conversationRenderer) renderMessage(msg *model.Message) string {
	var sb strings.Builder

	label := r.theme.AssistantLabel
	if msg.Role == model.RoleUser {
		label = r.theme.UserLabel
	}
	sb.WriteString(label.Render(msg.Role.DisplayName()))
	sb.WriteString(" ")
	sb.WriteString(r.theme.MessageMeta.Render(msg.CreatedAt.Format("15:04")))
	sb.WriteString("\n")

	// Parts render in order so text around a tool call keeps its position.
	var text strings.Builder
	flushText := func() {
		if text.Len() == 0 {
			return
		}
		sb.WriteString(r.renderText(msg, text.String()))
		sb.WriteString("\n")
		text.Reset()
	}

	for _, part := range msg.Parts {
		switch part.Kind {
		case model.PartText:
			text.WriteString(part.Text)
		case model.PartTool:
			flushText()
			sb.WriteString(r.renderTool(part.Tool))
			sb.WriteString("\n")
		case model.PartFile:
			flushText()
			sb.WriteString(r.theme.MessageMeta.Render("[attachment: " + part.File.MimeType + "]"))
			sb.WriteString("\n")
		}
	}
	flushText()

	if msg.StopReason == model.StopCancelled {
		sb.WriteString(r.theme.CancelledNote.Render("(stopped by user)"))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// renderText renders a text run. Assistant text goes through markdown when
// enabled; user text is always plain.
func (r *conversationRenderer) renderText(msg *model.Message, text string) string {
	if msg.Role == model.RoleAssistant && r.markdown != nil {
		return r.markdown.Render(text)
	}
	if msg.Role == model.RoleAssistant {
		return components.ParseCodeBlocks(text, r.width)
	}
	return r.theme.MessageText.Render(text)
}

// renderTool renders a tool invocation badge with its arguments and, once
// resolved, its result.
func (r *conversationRenderer) renderTool(inv *model.ToolInvocation) string {
	style := r.theme.ToolPending
	state := "running"
	if inv.Resolved() {
		style = r.theme.ToolResolved
		state = "done"
	}

	var sb strings.Builder
	sb.WriteString("tool " + inv.Name + " [" + state + "]")
	if snippet := jsonSnippet(inv.Arguments); snippet != "" {
		sb.WriteString("\n" + snippet)
	}
	if inv.Resolved() {
		if snippet := jsonSnippet(inv.Result); snippet != "" {
			sb.WriteString("\n-> " + snippet)
		}
	}
	return style.Render(sb.String())
}

// jsonSnippet compacts a raw JSON payload into a one-line preview.
func jsonSnippet(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return util.TruncateWidth(string(raw), 60)
	}
	return util.TruncateWidth(buf.String(), 60)
}
