// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP client for the local inference server.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/morganforge/ember/internal/protocol"
)

// ErrStreamCancelled is returned by Next after Cancel has taken effect.
// It is not a true failure; the classifier maps it to the cancelled kind.
var ErrStreamCancelled = errors.New("stream cancelled")

// =============================================================================
// STREAM
// =============================================================================

// Stream is the live event sequence for one exchange. It is pull-based and
// non-restartable: events come out in arrival order until a terminal event,
// a decode failure, or cancellation.
//
// Next returns io.EOF when the response body ends after a complete line.
// A well-formed stream delivers a finish event first; EOF without finish is
// the session's cue that the stream was cut short.
type Stream struct {
	mu        sync.Mutex
	dec       *protocol.Decoder
	body      io.ReadCloser
	cancel    context.CancelFunc
	cancelled bool
	err       error // Immediate failure for streams that never connected
}

// newStream wraps a live response body.
func newStream(body io.ReadCloser, cancel context.CancelFunc) *Stream {
	return &Stream{
		dec:    protocol.NewDecoder(body),
		body:   body,
		cancel: cancel,
	}
}

// failedStream builds a stream whose only output is the given terminal
// failure. Connection-level errors travel this path so that Send never
// fails asynchronously for anything but caller misuse.
func failedStream(err error) *Stream {
	return &Stream{err: err}
}

// Next returns the next protocol event. After Cancel it returns
// ErrStreamCancelled regardless of any bytes still buffered: an event in
// flight at cancellation time is delivered to no one.
//
// The decode itself runs outside the lock. It blocks on the network while
// the server is between chunks, and Cancel must be able to take the lock
// and tear down the connection to unblock it.
func (s *Stream) Next() (protocol.Event, error) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return protocol.Event{}, ErrStreamCancelled
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return protocol.Event{}, err
	}
	dec := s.dec
	s.mu.Unlock()

	ev, err := dec.Next()

	// A cancel that landed mid-read closed the body; the read error it
	// caused is not the caller's business.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return protocol.Event{}, ErrStreamCancelled
	}
	return ev, err
}

// Cancel stops the stream and releases the underlying connection. It is
// idempotent and safe to call at any point, including after natural
// completion, where it is a no-op beyond freeing the connection.
func (s *Stream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.body != nil {
		s.body.Close()
	}
}

// Cancelled reports whether Cancel has been called.
func (s *Stream) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
