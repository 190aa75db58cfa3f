// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STOP REASON
// =============================================================================

// StopReason classifies why an exchange stopped producing further parts.
// "Stopped by the user" and "completed normally" are deliberately distinct:
// retry semantics differ between them downstream.
type StopReason string

const (
	StopNone      StopReason = ""          // Message still open
	StopCompleted StopReason = "completed" // Stream finished naturally
	StopCancelled StopReason = "cancelled" // User-initiated stop
	StopErrored   StopReason = "errored"   // Exchange failed
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation. Parts is append-only
// while the message is open; Close makes the message terminal, after which
// no mutation is permitted.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`

	// Terminal state
	Terminal   bool       `json:"terminal"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// NewMessage creates a terminal message holding a single text part.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Role:       role,
		Parts:      []Part{NewTextPart(text)},
		CreatedAt:  time.Now(),
		Terminal:   true,
		StopReason: StopCompleted,
	}
}

// NewUserMessage creates a terminal user message.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, text)
}

// NewSystemMessage creates a terminal system message.
func NewSystemMessage(text string) *Message {
	return NewMessage(RoleSystem, text)
}

// NewAssistantMessage creates an open assistant message with no parts yet.
// This is the placeholder the stream appends into.
func NewAssistantMessage() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Open reports whether the message still accepts parts.
func (m *Message) Open() bool {
	return !m.Terminal
}

// AppendText appends a text delta. If the last part is an open text part the
// delta extends it; otherwise a new text part opens. Distinct parts are
// never merged after the fact, so ordering survives exactly as received.
func (m *Message) AppendText(delta string) {
	if m.Terminal {
		return
	}
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Kind == PartText {
		m.Parts[n-1].Text += delta
		return
	}
	m.Parts = append(m.Parts, NewTextPart(delta))
}

// AppendPart appends a complete part.
func (m *Message) AppendPart(p Part) {
	if m.Terminal {
		return
	}
	m.Parts = append(m.Parts, p)
}

// OpenToolInvocation returns the most recent unresolved tool invocation
// with the given correlation ID, or nil.
func (m *Message) OpenToolInvocation(id string) *ToolInvocation {
	for i := len(m.Parts) - 1; i >= 0; i-- {
		p := m.Parts[i]
		if p.Kind == PartTool && p.Tool.ID == id && !p.Tool.Resolved() {
			return p.Tool
		}
	}
	return nil
}

// Close marks the message terminal with the given stop reason. Closing an
// already-terminal message keeps the original reason: the first terminal
// transition wins.
func (m *Message) Close(reason StopReason) {
	if m.Terminal {
		return
	}
	m.Terminal = true
	m.StopReason = reason
}

// Text returns the concatenation of all text parts in order. Parts stay
// separate in storage; concatenation happens only for display.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// IsEmpty returns true if the message carries no parts.
func (m *Message) IsEmpty() bool {
	return len(m.Parts) == 0
}

// Preview returns a truncated, rune-safe preview of the message text.
func (m *Message) Preview(maxRunes int) string {
	text := m.Text()
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// Clone returns a deep copy suitable for handing to readers outside the
// session: mutation of the copy never reaches conversation state.
func (m *Message) Clone() *Message {
	out := *m
	out.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		out.Parts[i] = p.Clone()
	}
	return &out
}
