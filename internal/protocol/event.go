// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the wire protocol for the inference server.
package protocol

import "encoding/json"

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType identifies the kind of a stream event.
type EventType string

const (
	// EventTextDelta carries a fragment of assistant text.
	EventTextDelta EventType = "text-delta"

	// EventToolCall announces a tool invocation requested by the model.
	EventToolCall EventType = "tool-call"

	// EventToolResult delivers the result for a previously announced call.
	EventToolResult EventType = "tool-result"

	// EventError reports an error from the inference server.
	EventError EventType = "error"

	// EventFinish terminates the stream.
	EventFinish EventType = "finish"
)

// FinishReason explains why the server stopped generating.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"   // Natural end of the reply
	FinishLength FinishReason = "length" // Token limit reached
	FinishError  FinishReason = "error"  // Server-side failure mid-stream
)

// =============================================================================
// EVENT
// =============================================================================

// Event is one decoded unit from the streaming response. The Type field
// selects which of the remaining fields are meaningful:
//
//	text-delta:  Text
//	tool-call:   ID, Name, Arguments
//	tool-result: ID, Result
//	error:       Message, Code
//	finish:      Reason
type Event struct {
	Type EventType `json:"type"`

	// text-delta
	Text string `json:"text,omitempty"`

	// tool-call / tool-result correlation
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	// finish
	Reason FinishReason `json:"reason,omitempty"`
}

// Terminal reports whether no further events follow this one on a
// well-formed stream.
func (e Event) Terminal() bool {
	return e.Type == EventFinish || e.Type == EventError
}

// Validate checks the per-type field constraints. The decoder rejects any
// event that fails validation, so downstream consumers can rely on these
// invariants without re-checking.
func (e Event) Validate() error {
	switch e.Type {
	case EventTextDelta:
		return nil
	case EventToolCall:
		if e.ID == "" || e.Name == "" {
			return &DecodeError{Reason: "tool-call event missing id or name"}
		}
		return nil
	case EventToolResult:
		if e.ID == "" {
			return &DecodeError{Reason: "tool-result event missing id"}
		}
		return nil
	case EventError:
		if e.Message == "" {
			return &DecodeError{Reason: "error event missing message"}
		}
		return nil
	case EventFinish:
		switch e.Reason {
		case FinishStop, FinishLength, FinishError:
			return nil
		}
		return &DecodeError{Reason: "finish event with unknown reason " + string(e.Reason)}
	case "":
		return &DecodeError{Reason: "event missing type"}
	default:
		return &DecodeError{Reason: "unknown event type " + string(e.Type)}
	}
}
