// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP client for the local inference server.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeInvalidInput
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeHTTP
	ErrTypeUpstream
	ErrTypeInvalidResponse
)

// ClientError represents an error from the inference server client. The
// Type and StatusCode fields are the structured signals the classifier
// reads; Message is for humans only.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int // HTTP status, 0 if the connection never completed
	Code       string
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning   = &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not running"}
	ErrTimeout      = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrEmptyHistory = &ClientError{Type: ErrTypeInvalidInput, Message: "conversation must contain at least one message"}
	ErrEmptyModel   = &ClientError{Type: ErrTypeInvalidInput, Message: "model id must not be empty"}
)

// IsInvalidInput checks if an error is an input-constraint violation.
func IsInvalidInput(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeInvalidInput
}

// IsNotRunning checks if an error indicates the server is unreachable.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeNotRunning
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is the wire form of one conversation turn. The server is
// stateless: every request carries the full history.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is the request body for the chat endpoint.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ModelInfo describes one entry from the model catalog. The core treats
// this as opaque metadata and never validates it against the wire protocol.
type ModelInfo struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	ContextLength int      `json:"context_length"`
	Capabilities  []string `json:"capabilities,omitempty"`
}

// listModelsResponse is the body of the model catalog endpoint.
type listModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// serverError is the error body the server attaches to non-2xx responses.
type serverError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"` // Legacy field, message wins
}

func (se serverError) text() string {
	if se.Message != "" {
		return se.Message
	}
	return se.Error
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the client.
type Config struct {
	// BaseURL is the inference server base URL.
	// Uses an explicit IPv4 address to avoid IPv6 resolution issues on Windows.
	BaseURL string

	// Timeout for non-streaming requests (health check, model catalog).
	Timeout time.Duration

	// Temperature forwarded on every chat request; 0 lets the server decide.
	Temperature float64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the inference server. It is safe for
// concurrent use, though the session layer issues at most one streaming
// request at a time.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client, filling zero config values with defaults.
func NewClient(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the inference server is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:       ErrTypeHTTP,
			Message:    "unexpected status from server: " + resp.Status,
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// ListModels retrieves the model catalog from the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeNotRunning, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:       ErrTypeHTTP,
			Message:    "failed to list models: " + resp.Status,
			StatusCode: resp.StatusCode,
		}
	}

	var result listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode model catalog", Cause: err}
	}
	return result.Models, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Send opens a streaming chat exchange carrying the full conversation so
// far. It returns an error synchronously only for input-constraint
// violations; connection and HTTP failures surface as a single terminal
// error event on the returned stream. Exactly one network connection is
// opened per call and the client never retries.
func (c *Client) Send(ctx context.Context, messages []ChatMessage, modelID string) (*Stream, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyHistory
	}
	if modelID == "" {
		return nil, ErrEmptyModel
	}

	body, err := json.Marshal(ChatRequest{
		Messages:    messages,
		Model:       modelID,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidInput, Message: "failed to marshal request", Cause: err}
	}

	// The stream owns this context: Cancel tears down the connection.
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.config.BaseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		cancel()
		return failedStream(&ClientError{Type: ErrTypeNotRunning, Message: "failed to create request", Cause: err}), nil
	}
	req.Header.Set("Content-Type", "application/json")

	// No client-level timeout for streaming; deadlines arrive via ctx.
	// TLS is not in play: the server runs on localhost over HTTP.
	streamClient := &http.Client{}

	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return failedStream(ErrTimeout), nil
		}
		if errors.Is(err, context.Canceled) {
			return failedStream(&ClientError{Type: ErrTypeNotRunning, Message: "request cancelled before connecting", Cause: err}), nil
		}
		return failedStream(&ClientError{Type: ErrTypeNotRunning, Message: "could not reach inference server", Cause: err}), nil
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		var se serverError
		if derr := json.NewDecoder(resp.Body).Decode(&se); derr == nil && se.text() != "" {
			return failedStream(&ClientError{
				Type:       ErrTypeUpstream,
				Message:    se.text(),
				Code:       se.Code,
				StatusCode: resp.StatusCode,
			}), nil
		}
		return failedStream(&ClientError{
			Type:       ErrTypeHTTP,
			Message:    "chat request failed: " + resp.Status,
			StatusCode: resp.StatusCode,
		}), nil
	}

	return newStream(resp.Body, cancel), nil
}
