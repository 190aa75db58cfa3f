// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Message is an ordered, append-only sequence of Parts. Parts form a
// closed tagged variant: plain text, a tool invocation with an optional
// result, or an inline file. The single assistant message currently
// streaming is the only mutable message in a conversation, and even it may
// only grow; every other message is terminal.
//
// # Key Types
//
//   - Conversation: ordered container for a chat session
//   - Message: one turn, built from Parts, with a terminal stop reason
//   - Part: tagged variant (text, tool invocation, file)
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a conversation and append a turn:
//
//	conv := model.NewConversation()
//	conv.Add(model.NewUserMessage("Hello!"))
//	asst := model.NewAssistantMessage()
//	conv.Add(asst)
//	asst.AppendText("Hi ")
//	asst.AppendText("there")
//	asst.Close(model.StopCompleted)
package model
