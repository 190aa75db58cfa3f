// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the wire protocol for the inference server.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrTruncatedStream reports a stream that ended mid-event: bytes arrived
// after the last complete line but no newline ever followed.
var ErrTruncatedStream = errors.New("stream truncated mid-event")

// DecodeError reports a line that could not be parsed into a valid Event.
type DecodeError struct {
	Reason string
	Line   string // Offending line, truncated for display
	Cause  error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return "protocol: " + e.Reason + ": " + e.Cause.Error()
	}
	return "protocol: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// maxErrLine bounds how much of a bad line is kept for diagnostics.
const maxErrLine = 120

// =============================================================================
// DECODER
// =============================================================================

// Decoder reads NDJSON-framed events from a response body. It is a lazy,
// finite, non-restartable sequence: events come out in exactly the order
// their bytes arrived, and once Next returns a non-nil error the decoder
// stays in that state.
type Decoder struct {
	reader *bufio.Reader
	err    error // Sticky terminal state
}

// NewDecoder creates a decoder over the raw byte stream.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next event from the stream. It returns io.EOF when the
// stream ends cleanly after a complete line, ErrTruncatedStream when the
// stream is cut off mid-event, and a *DecodeError for malformed lines.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}

	for {
		line, err := d.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(bytes.TrimSpace(line)) > 0 {
					// Bytes after the final newline: a chunk that never
					// completed must surface, not vanish.
					d.err = ErrTruncatedStream
					return Event{}, d.err
				}
				d.err = io.EOF
				return Event{}, d.err
			}
			d.err = err
			return Event{}, d.err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue // Blank keep-alive lines are legal
		}

		ev, derr := decodeLine(line)
		if derr != nil {
			d.err = derr
			return Event{}, d.err
		}
		return ev, nil
	}
}

// decodeLine parses one complete line into a validated Event.
func decodeLine(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, &DecodeError{
			Reason: "malformed event",
			Line:   clipLine(line),
			Cause:  err,
		}
	}
	if err := ev.Validate(); err != nil {
		var derr *DecodeError
		if errors.As(err, &derr) {
			derr.Line = clipLine(line)
		}
		return Event{}, err
	}
	return ev, nil
}

// clipLine truncates a line for inclusion in error messages.
func clipLine(line []byte) string {
	if len(line) > maxErrLine {
		return string(line[:maxErrLine]) + "..."
	}
	return string(line)
}
