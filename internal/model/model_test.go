// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_AppendTextExtendsOpenPart(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendText("Hi")
	msg.AppendText(" there")

	if len(msg.Parts) != 1 {
		t.Fatalf("got %d parts, want 1", len(msg.Parts))
	}
	if msg.Parts[0].Text != "Hi there" {
		t.Errorf("Parts[0].Text = %q, want 'Hi there'", msg.Parts[0].Text)
	}
}

func TestMessage_TextPartsStaySeparateAcrossToolCalls(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendText("before")
	msg.AppendPart(NewToolPart("t1", "search", json.RawMessage(`{"q":"go"}`)))
	msg.AppendText("after")

	if len(msg.Parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(msg.Parts))
	}
	if msg.Parts[0].Kind != PartText || msg.Parts[1].Kind != PartTool || msg.Parts[2].Kind != PartText {
		t.Errorf("part kinds = %v %v %v, want text tool text",
			msg.Parts[0].Kind, msg.Parts[1].Kind, msg.Parts[2].Kind)
	}
	if msg.Text() != "beforeafter" {
		t.Errorf("Text() = %q, want 'beforeafter'", msg.Text())
	}
}

func TestMessage_CloseFirstReasonWins(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendText("Hi")
	msg.Close(StopCancelled)
	msg.Close(StopCompleted)

	if msg.StopReason != StopCancelled {
		t.Errorf("StopReason = %q, want cancelled", msg.StopReason)
	}
}

func TestMessage_NoAppendAfterClose(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendText("Hi")
	msg.Close(StopCompleted)
	msg.AppendText(" ignored")
	msg.AppendPart(NewToolPart("t1", "search", nil))

	if got := msg.Text(); got != "Hi" {
		t.Errorf("Text() = %q, want 'Hi'", got)
	}
	if len(msg.Parts) != 1 {
		t.Errorf("got %d parts, want 1", len(msg.Parts))
	}
}

func TestMessage_OpenToolInvocation(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendPart(NewToolPart("t1", "search", nil))
	msg.AppendPart(NewToolPart("t2", "read", nil))

	inv := msg.OpenToolInvocation("t1")
	if inv == nil || inv.Name != "search" {
		t.Fatalf("OpenToolInvocation(t1) = %+v, want search", inv)
	}
	inv.Result = json.RawMessage(`{"ok":true}`)

	if msg.OpenToolInvocation("t1") != nil {
		t.Error("resolved invocation should no longer be open")
	}
	if msg.OpenToolInvocation("t3") != nil {
		t.Error("unknown id should return nil")
	}
}

func TestMessage_CloneIsolation(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendText("Hi")
	msg.AppendPart(NewToolPart("t1", "search", json.RawMessage(`{}`)))

	snap := msg.Clone()
	snap.Parts[0].Text = "mutated"
	snap.Parts[1].Tool.Name = "mutated"

	if msg.Parts[0].Text != "Hi" {
		t.Error("mutating clone text leaked into original")
	}
	if msg.Parts[1].Tool.Name != "search" {
		t.Error("mutating clone tool leaked into original")
	}
}

func TestMessage_UniqueIDs(t *testing.T) {
	a, b := NewUserMessage("x"), NewUserMessage("x")
	if a.ID == b.ID {
		t.Error("messages should receive unique IDs")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_InsertionOrder(t *testing.T) {
	conv := NewConversation()
	conv.Add(NewUserMessage("one"))
	asst := NewAssistantMessage()
	conv.Add(asst)
	conv.Add(NewUserMessage("two"))

	if conv.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", conv.Len())
	}
	if conv.LastUserMessage().Text() != "two" {
		t.Errorf("LastUserMessage() = %q, want 'two'", conv.LastUserMessage().Text())
	}
	if conv.LastAssistantMessage() != asst {
		t.Error("LastAssistantMessage() should return the assistant turn")
	}
}

func TestConversation_RemoveLastAssistant(t *testing.T) {
	conv := NewConversation()
	conv.Add(NewUserMessage("hello"))
	conv.Add(NewAssistantMessage())

	if !conv.RemoveLastAssistant() {
		t.Fatal("RemoveLastAssistant() = false, want true")
	}
	if conv.Len() != 1 {
		t.Errorf("Len() = %d after removal, want 1", conv.Len())
	}
	// Trailing message is now a user turn; nothing to remove.
	if conv.RemoveLastAssistant() {
		t.Error("RemoveLastAssistant() should refuse when last turn is not assistant")
	}
}

func TestConversation_TitleFromFirstUserMessage(t *testing.T) {
	conv := NewConversation()
	if conv.GetTitle() != "New Conversation" {
		t.Errorf("empty title = %q, want placeholder", conv.GetTitle())
	}
	conv.Add(NewUserMessage("explain goroutines to me"))
	if conv.Title != "explain goroutines to me" {
		t.Errorf("Title = %q, want first user message", conv.Title)
	}
}

func TestConversation_CloneIsolation(t *testing.T) {
	conv := NewConversation()
	conv.Add(NewUserMessage("hello"))

	snap := conv.Clone()
	snap.Messages[0].Parts[0].Text = "mutated"

	if conv.Messages[0].Text() != "hello" {
		t.Error("mutating clone leaked into original conversation")
	}
}
