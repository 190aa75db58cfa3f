// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "github.com/morganforge/ember/internal/transport"

// ToWire converts the conversation to the flat wire format the inference
// server expects. Parts collapse to concatenated text; the open assistant
// placeholder (empty, still streaming) is skipped so the request carries
// only finished turns.
func (c *Conversation) ToWire() []transport.ChatMessage {
	out := make([]transport.ChatMessage, 0, len(c.Messages))
	for _, msg := range c.Messages {
		var role string
		switch msg.Role {
		case RoleUser:
			role = "user"
		case RoleAssistant:
			role = "assistant"
		case RoleSystem:
			role = "system"
		default:
			continue
		}

		content := msg.Text()
		if content == "" {
			continue
		}
		out = append(out, transport.ChatMessage{Role: role, Content: content})
	}
	return out
}
