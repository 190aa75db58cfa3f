// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the wire protocol spoken by the inference server
// and the decoder that turns a chunked response body into typed events.
//
// The server streams one JSON object per line (NDJSON). Each line decodes
// to exactly one Event; a physical chunk boundary carries no meaning. The
// decoder buffers partial lines until a newline completes them and surfaces
// a stream that is cut off mid-event as ErrTruncatedStream rather than
// silently dropping the fragment.
//
// # Key Types
//
//   - Event: one decoded unit (text delta, tool call/result, error, finish)
//   - Decoder: line-oriented reader producing Events in arrival order
//   - DecodeError: a line that could not be parsed into a valid Event
//
// # Usage
//
//	dec := protocol.NewDecoder(resp.Body)
//	for {
//	    ev, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(ev)
//	}
package protocol
