// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/morganforge/ember/internal/model"
	"github.com/morganforge/ember/internal/protocol"
	"github.com/morganforge/ember/internal/transport"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the session's lifecycle state. Transitions are strictly:
// idle → submitted → streaming → ready|error, with ready and error both
// returning to submitted on the next exchange.
type Status string

const (
	StatusIdle      Status = "idle"      // No exchange yet
	StatusSubmitted Status = "submitted" // Request sent, no event received
	StatusStreaming Status = "streaming" // At least one event received
	StatusReady     Status = "ready"     // Last exchange reached a terminal state
	StatusError     Status = "error"     // Last exchange failed
)

// Busy reports whether an exchange is in flight.
func (s Status) Busy() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned by Submit and Retry while an exchange is in flight.
	ErrBusy = errors.New("an exchange is already in flight")

	// ErrEmptyInput is returned by Submit for blank input.
	ErrEmptyInput = errors.New("input must not be empty")

	// ErrNothingToRetry is returned by Retry when the conversation has no
	// user message to resubmit.
	ErrNothingToRetry = errors.New("no previous message to retry")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Transport opens streaming exchanges. *transport.Client satisfies it
// through ClientTransport; tests substitute scripted fakes.
type Transport interface {
	Send(ctx context.Context, messages []transport.ChatMessage, modelID string) (Stream, error)
}

// Stream is one live exchange, pull-based and cancellable.
type Stream interface {
	Next() (protocol.Event, error)
	Cancel()
}

// ClientTransport adapts the HTTP client to the Transport interface.
type ClientTransport struct {
	Client *transport.Client
}

func (t ClientTransport) Send(ctx context.Context, messages []transport.ChatMessage, modelID string) (Stream, error) {
	return t.Client.Send(ctx, messages, modelID)
}

// History persists conversations across runs. The session calls it only at
// exchange boundaries, never per event. A nil History disables persistence.
type History interface {
	LoadLatest(ctx context.Context) (*model.Conversation, error)
	Save(ctx context.Context, conv *model.Conversation) error
}

// =============================================================================
// SESSION
// =============================================================================

// Session drives one conversation against the inference server. It is the
// sole writer of the conversation; everything outside reads snapshots.
// All methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	transport Transport
	history   History
	logger    *log.Logger

	conv    *model.Conversation
	status  Status
	lastErr *ClassifiedError
	modelID string

	// active is the in-flight exchange, nil otherwise. Pump goroutines from
	// superseded exchanges compare against it and drop their events.
	active *exchange

	onChange func()
}

// exchange tracks one in-flight request and its streaming assistant message.
// cancel aborts the exchange's context; it covers the connection dial, which
// the stream's own Cancel cannot reach before Send returns.
type exchange struct {
	msg       *model.Message
	stream    Stream
	cancel    context.CancelFunc
	cancelled bool
}

// Config carries the session's collaborators.
type Config struct {
	Transport Transport
	History   History // Optional
	Logger    *log.Logger
	ModelID   string
}

// New creates an idle session over an empty conversation.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		transport: cfg.Transport,
		history:   cfg.History,
		logger:    logger,
		conv:      model.NewConversation(),
		status:    StatusIdle,
		modelID:   cfg.ModelID,
	}
}

// SetOnChange registers the callback invoked after every observable state
// change. It runs outside the session lock, so the callback may call back
// into the session freely.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetModel switches the model used for subsequent exchanges. The in-flight
// exchange, if any, keeps the model it started with.
func (s *Session) SetModel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelID = id
}

// Model returns the current model id.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelID
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the classified failure of the most recent exchange, or
// nil if it succeeded or was cancelled.
func (s *Session) LastError() *ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Conversation returns a deep copy of the conversation. The copy is safe
// to read and mutate without affecting session state.
func (s *Session) Conversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone()
}

// Restore replaces the conversation, typically with one loaded from
// history. It is rejected while an exchange is in flight.
func (s *Session) Restore(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Busy() {
		return ErrBusy
	}
	s.conv = conv
	s.lastErr = nil
	if conv.IsEmpty() {
		s.status = StatusIdle
	} else {
		s.status = StatusReady
	}
	return nil
}

// Clear discards the conversation and returns the session to idle. It is
// rejected while an exchange is in flight.
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return ErrBusy
	}
	s.conv = model.NewConversation()
	s.conv.Model = s.modelID
	s.status = StatusIdle
	s.lastErr = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

// =============================================================================
// SUBMIT / CANCEL / RETRY
// =============================================================================

// Submit appends the user's turn and starts a new exchange. It fails fast
// with ErrBusy while an exchange is in flight and ErrEmptyInput for blank
// text; in both cases the conversation is left untouched. Submit returns
// as soon as the exchange is started; results arrive via the change
// callback.
func (s *Session) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return ErrBusy
	}
	s.conv.Add(model.NewUserMessage(text))
	s.startLocked(ctx)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Cancel stops the in-flight exchange. The streaming message keeps every
// part already applied and closes with the cancelled stop reason, even if
// a finish event is already in flight. Cancel on an idle session is a
// no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	ex := s.active
	if ex == nil {
		s.mu.Unlock()
		return
	}
	ex.cancelled = true
	stream := ex.stream
	cancel := ex.cancel
	s.mu.Unlock()

	// The context cancel aborts a dial still in progress; the stream
	// cancel covers a connection already established.
	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Cancel()
	}
}

// Retry discards the last assistant reply and resubmits the conversation
// as it stands. The user message is not duplicated. Retry after a
// cancelled or failed exchange is the common path; retrying a successful
// reply regenerates it.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Busy() {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.conv.LastUserMessage() == nil {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	s.conv.RemoveLastAssistant()
	s.startLocked(ctx)
	s.mu.Unlock()

	s.notify()
	return nil
}

// startLocked begins a new exchange for the conversation as it stands.
// Caller holds the lock. The heavy lifting, including the connection
// itself, happens on the pump goroutine so submission never blocks.
func (s *Session) startLocked(ctx context.Context) {
	placeholder := model.NewAssistantMessage()
	s.conv.Add(placeholder)

	ctx, cancel := context.WithCancel(ctx)
	ex := &exchange{msg: placeholder, cancel: cancel}
	s.active = ex
	s.status = StatusSubmitted
	s.lastErr = nil
	s.conv.Model = s.modelID

	wire := s.conv.ToWire()
	modelID := s.modelID
	go s.pump(ctx, ex, wire, modelID)
}

// =============================================================================
// PUMP
// =============================================================================

// pump owns one exchange from connection to terminal state. It is the only
// goroutine that applies events for its exchange; a superseded pump finds
// itself detached from the session and exits quietly.
func (s *Session) pump(ctx context.Context, ex *exchange, wire []transport.ChatMessage, modelID string) {
	stream, err := s.transport.Send(ctx, wire, modelID)
	if err != nil {
		// Input-constraint violations or a dial aborted by Cancel. Either
		// way finish sorts it out; cancellation takes precedence there.
		s.finish(ex, err)
		return
	}

	s.mu.Lock()
	ex.stream = stream
	cancelled := ex.cancelled
	s.mu.Unlock()
	if cancelled {
		// Cancel raced the connection; tear it down now.
		stream.Cancel()
		s.finish(ex, transport.ErrStreamCancelled)
		return
	}

	for {
		ev, err := stream.Next()
		if err != nil {
			// Bare EOF means the stream was cut off before a terminal
			// event; a well-formed stream finishes below instead.
			s.finish(ex, err)
			return
		}
		if !s.apply(ex, ev) {
			return
		}
		if !ev.Terminal() {
			continue
		}

		// The terminal event is the transition trigger. Some servers keep
		// the connection open after finish (keep-alive blank lines), so
		// waiting for EOF here would strand the exchange in streaming.
		// Cancel releases the connection; trailing bytes go unread.
		var streamErr error
		switch {
		case ev.Type == protocol.EventError:
			streamErr = &transport.ClientError{
				Type:    transport.ErrTypeUpstream,
				Message: ev.Message,
				Code:    ev.Code,
			}
		case ev.Reason == protocol.FinishError:
			streamErr = &transport.ClientError{
				Type:    transport.ErrTypeUpstream,
				Message: "the server ended the reply with an error",
			}
		}
		stream.Cancel()
		s.finish(ex, streamErr)
		return
	}
}

// apply folds one event into the exchange's message. It returns false when
// the pump should stop: the exchange was superseded, cancelled, or hit an
// assembly failure.
func (s *Session) apply(ex *exchange, ev protocol.Event) bool {
	s.mu.Lock()
	if s.active != ex {
		// Superseded: a finish already ran for this exchange.
		s.mu.Unlock()
		return false
	}
	if ex.cancelled {
		// Cancellation wins over anything still in flight, including a
		// finish event that raced the cancel.
		s.mu.Unlock()
		s.finish(ex, transport.ErrStreamCancelled)
		return false
	}

	if err := Apply(ex.msg, ev); err != nil {
		if errors.Is(err, ErrMessageClosed) {
			// Trailing events after finish are discarded, not fatal.
			s.mu.Unlock()
			s.logger.Printf("session: discarding %s event after finish", ev.Type)
			return true
		}
		s.mu.Unlock()
		ex.stream.Cancel()
		s.finish(ex, err)
		return false
	}

	if s.status == StatusSubmitted {
		s.status = StatusStreaming
	}
	s.mu.Unlock()

	s.notify()
	return true
}

// finish moves the exchange to its terminal state. cause is nil for
// natural completion; cancellation and failures arrive as errors and are
// classified here. Cancellation always wins over a finish event still in
// flight.
func (s *Session) finish(ex *exchange, cause error) {
	s.mu.Lock()
	if s.active != ex {
		s.mu.Unlock()
		return
	}
	s.active = nil
	if ex.cancel != nil {
		ex.cancel()
	}

	switch {
	case ex.cancelled:
		ex.msg.Close(model.StopCancelled)
		s.status = StatusReady
		s.lastErr = nil

	case cause == nil:
		// The finish event already closed the message.
		ex.msg.Close(model.StopCompleted)
		s.status = StatusReady
		s.lastErr = nil

	default:
		classified := Classify(cause)
		if classified.Kind == KindCancelled {
			ex.msg.Close(model.StopCancelled)
			s.status = StatusReady
			s.lastErr = nil
			break
		}
		// Partial output survives: the message keeps every part applied
		// before the failure.
		ex.msg.Close(model.StopErrored)
		s.status = StatusError
		s.lastErr = classified
		s.logger.Printf("session: exchange failed (%s): %v", classified.Kind, cause)
	}

	var snapshot *model.Conversation
	if s.history != nil {
		snapshot = s.conv.Clone()
	}
	s.mu.Unlock()

	if snapshot != nil {
		if err := s.history.Save(context.Background(), snapshot); err != nil {
			s.logger.Printf("session: history save failed: %v", err)
		}
	}
	s.notify()
}

// notify invokes the change callback outside the lock.
func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
