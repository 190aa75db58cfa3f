// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns conversation state and drives exchanges.
package session

import (
	"errors"

	"github.com/morganforge/ember/internal/model"
	"github.com/morganforge/ember/internal/protocol"
)

// =============================================================================
// ASSEMBLY ERRORS
// =============================================================================

// ErrMessageClosed reports an event that arrived after the message was
// already terminal. The caller logs and discards such events; they never
// fail the exchange.
var ErrMessageClosed = errors.New("message already closed")

// AssemblyError reports a protocol violation discovered while folding
// events into a message: the stream referenced state that does not exist.
// Unlike ErrMessageClosed this is a real failure and terminates the
// exchange with a protocol classification.
type AssemblyError struct {
	Reason    string
	EventType protocol.EventType
	ID        string // Correlation id involved, if any
}

func (e *AssemblyError) Error() string {
	return "assembly: " + e.Reason
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Apply folds one protocol event into the streaming assistant message.
// Replaying the same ordered event sequence against a fresh message is
// deterministic: the resulting part structure is always identical.
//
// Rules, one per event type:
//
//   - text-delta extends the open text part or opens a new one
//   - tool-call appends an open tool invocation
//   - tool-result resolves the most recent open invocation with a matching
//     id; no match is an AssemblyError and the message is left untouched
//   - finish closes the message (reason error closes it as errored)
//   - error closes the message as errored
func Apply(msg *model.Message, ev protocol.Event) error {
	if msg.Terminal {
		return ErrMessageClosed
	}

	switch ev.Type {
	case protocol.EventTextDelta:
		msg.AppendText(ev.Text)
		return nil

	case protocol.EventToolCall:
		msg.AppendPart(model.NewToolPart(ev.ID, ev.Name, ev.Arguments))
		return nil

	case protocol.EventToolResult:
		inv := msg.OpenToolInvocation(ev.ID)
		if inv == nil {
			return &AssemblyError{
				Reason:    "tool-result for unknown or resolved invocation " + ev.ID,
				EventType: ev.Type,
				ID:        ev.ID,
			}
		}
		inv.Result = ev.Result
		return nil

	case protocol.EventFinish:
		if ev.Reason == protocol.FinishError {
			msg.Close(model.StopErrored)
		} else {
			msg.Close(model.StopCompleted)
		}
		return nil

	case protocol.EventError:
		msg.Close(model.StopErrored)
		return nil

	default:
		// The decoder validates event types; reaching this is a bug.
		return &AssemblyError{Reason: "unhandled event type " + string(ev.Type), EventType: ev.Type}
	}
}
