// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/morganforge/ember/internal/protocol"
	"github.com/morganforge/ember/internal/transport"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Kind is the coarse failure taxonomy presented to the user. Every raw
// failure maps to exactly one kind; classification is total.
type Kind string

const (
	// KindNetwork covers connection failures, timeouts, and an unreachable
	// server. Retrying is likely to help once the server is back.
	KindNetwork Kind = "network"

	// KindProtocol covers malformed or truncated streams and events that
	// violate assembly rules. Retrying may help; a persistent protocol
	// failure means a client/server version mismatch.
	KindProtocol Kind = "protocol"

	// KindUpstream covers errors the server reported about itself, such as
	// an unknown model or an overloaded backend.
	KindUpstream Kind = "upstream"

	// KindCancelled marks user-initiated interruption. It is not a failure
	// and is never rendered as one.
	KindCancelled Kind = "cancelled"
)

// ClassifiedError wraps a raw failure with its taxonomy kind and a short
// hint suitable for the status line.
type ClassifiedError struct {
	Kind Kind
	Hint string
	Err  error
}

func (e *ClassifiedError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify maps a raw exchange failure to the user-facing taxonomy. It
// reads structured signals first (error types, sentinel values) and falls
// back to message sniffing only for errors that carry no structure.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	if errors.Is(err, transport.ErrStreamCancelled) || errors.Is(err, context.Canceled) {
		return &ClassifiedError{Kind: KindCancelled, Hint: "stopped", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Kind: KindNetwork, Hint: "the server took too long to respond", Err: err}
	}

	var clientErr *transport.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case transport.ErrTypeNotRunning, transport.ErrTypeTimeout:
			return &ClassifiedError{Kind: KindNetwork, Hint: "cannot reach the inference server", Err: err}
		case transport.ErrTypeHTTP, transport.ErrTypeUpstream:
			return &ClassifiedError{Kind: KindUpstream, Hint: upstreamHint(clientErr), Err: err}
		case transport.ErrTypeInvalidResponse:
			return &ClassifiedError{Kind: KindProtocol, Hint: "the server sent an unreadable response", Err: err}
		}
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
		return &ClassifiedError{Kind: KindProtocol, Hint: "the server sent a malformed event", Err: err}
	}
	if errors.Is(err, protocol.ErrTruncatedStream) {
		return &ClassifiedError{Kind: KindProtocol, Hint: "the stream was cut off mid-reply", Err: err}
	}

	var asmErr *AssemblyError
	if errors.As(err, &asmErr) {
		return &ClassifiedError{Kind: KindProtocol, Hint: "the server broke the streaming protocol", Err: err}
	}

	// A stream that ends without a finish event surfaces here as bare EOF.
	if errors.Is(err, io.EOF) {
		return &ClassifiedError{Kind: KindProtocol, Hint: "the stream ended without finishing", Err: err}
	}

	// Unstructured errors: sniff the message, default to network. Local
	// inference failures are overwhelmingly connectivity problems.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &ClassifiedError{Kind: KindNetwork, Hint: "the server took too long to respond", Err: err}
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return &ClassifiedError{Kind: KindNetwork, Hint: "cannot reach the inference server", Err: err}
	default:
		return &ClassifiedError{Kind: KindNetwork, Hint: "the connection to the server failed", Err: err}
	}
}

// upstreamHint builds a short hint from a server-reported error.
func upstreamHint(ce *transport.ClientError) string {
	if ce.Code == "model_not_found" {
		return "the requested model is not available on the server"
	}
	if ce.Message != "" {
		return ce.Message
	}
	return "the server reported an error"
}
