// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP client for the local inference server.
//
// A Client issues exactly one network connection per Send call and exposes
// the chunked response as a pull-based sequence of protocol events plus a
// cancellation capability. The client never retries on its own; retry is a
// decision that belongs to the session layer.
//
// # Key Types
//
//   - Client: HTTP client for the chat and model-catalog endpoints
//   - Stream: live event sequence for one exchange, with idempotent Cancel
//   - ChatMessage: wire form of one conversation turn
//   - ClientError: typed transport failure for classification
//
// # Usage
//
//	client := transport.NewClient(transport.DefaultConfig())
//	stream, err := client.Send(ctx, messages, "qwen2.5:7b")
//	if err != nil {
//	    return err // input-constraint violation only
//	}
//	defer stream.Cancel()
//	for {
//	    ev, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package transport
