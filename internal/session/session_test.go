// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/morganforge/ember/internal/model"
	"github.com/morganforge/ember/internal/protocol"
	"github.com/morganforge/ember/internal/transport"
)

// =============================================================================
// SCRIPTED FAKES
// =============================================================================

// step is one scripted Next result.
type step struct {
	ev  protocol.Event
	err error
}

func textDelta(text string) step {
	return step{ev: protocol.Event{Type: protocol.EventTextDelta, Text: text}}
}

func finishStop() step {
	return step{ev: protocol.Event{Type: protocol.EventFinish, Reason: protocol.FinishStop}}
}

// fakeStream plays scripted steps. A closed steps channel reads as io.EOF.
// With ignoreCancel set the stream keeps delivering after Cancel, modelling
// events already in flight when the user cancelled.
type fakeStream struct {
	steps        chan step
	cancel       chan struct{}
	cancelOnce   sync.Once
	ignoreCancel bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{steps: make(chan step), cancel: make(chan struct{})}
}

// scriptedStream preloads the whole script and ends with io.EOF.
func scriptedStream(steps ...step) *fakeStream {
	f := &fakeStream{steps: make(chan step, len(steps)), cancel: make(chan struct{})}
	for _, st := range steps {
		f.steps <- st
	}
	close(f.steps)
	return f
}

func (f *fakeStream) Next() (protocol.Event, error) {
	if f.ignoreCancel {
		st, ok := <-f.steps
		if !ok {
			return protocol.Event{}, io.EOF
		}
		return st.ev, st.err
	}

	select {
	case <-f.cancel:
		return protocol.Event{}, transport.ErrStreamCancelled
	default:
	}
	select {
	case <-f.cancel:
		return protocol.Event{}, transport.ErrStreamCancelled
	case st, ok := <-f.steps:
		if !ok {
			return protocol.Event{}, io.EOF
		}
		if st.err != nil {
			return protocol.Event{}, st.err
		}
		return st.ev, nil
	}
}

func (f *fakeStream) Cancel() {
	f.cancelOnce.Do(func() { close(f.cancel) })
}

// fakeTransport hands out prepared streams in order and records requests.
type fakeTransport struct {
	mu      sync.Mutex
	streams []*fakeStream
	sendErr error
	calls   [][]transport.ChatMessage
}

func (f *fakeTransport) Send(_ context.Context, messages []transport.ChatMessage, _ string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if len(f.streams) == 0 {
		return scriptedStream(finishStop()), nil
	}
	st := f.streams[0]
	f.streams = f.streams[1:]
	return st, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// connectBlockedTransport models a dial that never completes. Send returns
// only when the exchange context is cancelled.
type connectBlockedTransport struct{}

func (connectBlockedTransport) Send(ctx context.Context, _ []transport.ChatMessage, _ string) (Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakeHistory records saves.
type fakeHistory struct {
	mu    sync.Mutex
	saved []*model.Conversation
}

func (f *fakeHistory) LoadLatest(context.Context) (*model.Conversation, error) {
	return nil, nil
}

func (f *fakeHistory) Save(_ context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, conv)
	return nil
}

func (f *fakeHistory) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestSession(t *testing.T, tr Transport) *Session {
	t.Helper()
	return New(Config{Transport: tr, ModelID: "test-model"})
}

// waitSettled blocks until the session leaves the busy states.
func waitSettled(t *testing.T, s *Session) {
	t.Helper()
	waitCond(t, func() bool { return !s.Status().Busy() })
}

func waitCond(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

// lastAssistant fetches the trailing assistant message from a snapshot.
func lastAssistant(t *testing.T, s *Session) *model.Message {
	t.Helper()
	msg := s.Conversation().LastAssistantMessage()
	if msg == nil {
		t.Fatal("no assistant message in conversation")
	}
	return msg
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestSession_SubmitStreamsReply(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(textDelta("Hi"), textDelta(" there"), finishStop()),
	}}
	s := newTestSession(t, tr)

	if err := s.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitSettled(t, s)

	if got := s.Status(); got != StatusReady {
		t.Fatalf("Status() = %q, want ready", got)
	}
	if s.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", s.LastError())
	}

	conv := s.Conversation()
	if conv.Len() != 2 {
		t.Fatalf("conversation has %d messages, want 2", conv.Len())
	}
	reply := conv.LastAssistantMessage()
	if got := reply.Text(); got != "Hi there" {
		t.Errorf("reply text = %q, want %q", got, "Hi there")
	}
	if len(reply.Parts) != 1 {
		t.Errorf("reply has %d parts, want 1 merged text part", len(reply.Parts))
	}
	if reply.StopReason != model.StopCompleted {
		t.Errorf("StopReason = %q, want completed", reply.StopReason)
	}
}

func TestSession_ChangeCallbackFires(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(textDelta("Hi"), finishStop()),
	}}
	s := newTestSession(t, tr)

	var mu sync.Mutex
	changes := 0
	s.SetOnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	mu.Lock()
	defer mu.Unlock()
	// At least submit, first delta, and terminal transition.
	if changes < 3 {
		t.Errorf("change callback fired %d times, want >= 3", changes)
	}
}

// =============================================================================
// INPUT CONSTRAINTS AND CONCURRENCY
// =============================================================================

func TestSession_SubmitEmptyInput(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(t, tr)

	for _, input := range []string{"", "   ", "\n\t"} {
		if err := s.Submit(context.Background(), input); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Submit(%q) error = %v, want ErrEmptyInput", input, err)
		}
	}
	if s.Status() != StatusIdle {
		t.Errorf("Status() = %q after rejected input, want idle", s.Status())
	}
	if !s.Conversation().IsEmpty() {
		t.Error("rejected input reached the conversation")
	}
	if tr.callCount() != 0 {
		t.Error("rejected input reached the transport")
	}
}

func TestSession_SubmitWhileBusy(t *testing.T) {
	held := newFakeStream() // Never delivers; the exchange stays in flight.
	tr := &fakeTransport{streams: []*fakeStream{held}}
	s := newTestSession(t, tr)

	if err := s.Submit(context.Background(), "first"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitCond(t, func() bool { return tr.callCount() == 1 })

	before := s.Conversation().Len()
	if err := s.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Submit() while busy = %v, want ErrBusy", err)
	}
	if got := s.Conversation().Len(); got != before {
		t.Errorf("busy Submit changed conversation: %d messages, was %d", got, before)
	}
	if err := s.Retry(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Retry() while busy = %v, want ErrBusy", err)
	}

	s.Cancel()
	waitSettled(t, s)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestSession_CancelPreservesPartialOutput(t *testing.T) {
	held := newFakeStream()
	tr := &fakeTransport{streams: []*fakeStream{held}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	held.steps <- textDelta("Hi")
	waitCond(t, func() bool { return s.Status() == StatusStreaming })

	s.Cancel()
	waitSettled(t, s)

	if got := s.Status(); got != StatusReady {
		t.Fatalf("Status() after cancel = %q, want ready", got)
	}
	if s.LastError() != nil {
		t.Errorf("cancellation produced an error: %v", s.LastError())
	}
	reply := lastAssistant(t, s)
	if reply.Text() != "Hi" {
		t.Errorf("partial output lost: text = %q, want %q", reply.Text(), "Hi")
	}
	if reply.StopReason != model.StopCancelled {
		t.Errorf("StopReason = %q, want cancelled", reply.StopReason)
	}
}

func TestSession_CancelBeatsInFlightFinish(t *testing.T) {
	// This stream ignores Cancel: the finish event is already in flight
	// when the user hits stop. The session must still record cancelled.
	held := newFakeStream()
	held.ignoreCancel = true
	tr := &fakeTransport{streams: []*fakeStream{held}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	held.steps <- textDelta("Hi")
	waitCond(t, func() bool { return s.Status() == StatusStreaming })

	s.Cancel()
	held.steps <- finishStop()
	close(held.steps)
	waitSettled(t, s)

	reply := lastAssistant(t, s)
	if reply.StopReason != model.StopCancelled {
		t.Errorf("StopReason = %q, want cancelled to win over finish", reply.StopReason)
	}
	if s.Status() != StatusReady {
		t.Errorf("Status() = %q, want ready", s.Status())
	}
}

func TestSession_CancelAbortsPendingConnect(t *testing.T) {
	// Cancel during the dial, before the stream exists. The exchange
	// context must tear the connect down; the stream's own Cancel is not
	// reachable yet.
	s := newTestSession(t, connectBlockedTransport{})

	if err := s.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitCond(t, func() bool { return s.Status().Busy() })

	s.Cancel()
	waitSettled(t, s)

	if s.Status() != StatusReady {
		t.Fatalf("Status() after connect-phase cancel = %q, want ready", s.Status())
	}
	if s.LastError() != nil {
		t.Errorf("connect-phase cancel produced an error: %v", s.LastError())
	}
	if reply := lastAssistant(t, s); reply.StopReason != model.StopCancelled {
		t.Errorf("StopReason = %q, want cancelled", reply.StopReason)
	}
}

func TestSession_CancelWhenIdle(t *testing.T) {
	s := newTestSession(t, &fakeTransport{})
	s.Cancel() // Must not panic or change state.
	if s.Status() != StatusIdle {
		t.Errorf("Status() = %q after idle cancel, want idle", s.Status())
	}
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSession_ConnectFailure(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(step{err: transport.ErrNotRunning}),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if got := s.Status(); got != StatusError {
		t.Fatalf("Status() = %q, want error", got)
	}
	classified := s.LastError()
	if classified == nil || classified.Kind != KindNetwork {
		t.Fatalf("LastError() = %v, want network kind", classified)
	}

	// The placeholder survives as an empty, terminal assistant message so
	// the transcript shows where the reply should have been.
	reply := lastAssistant(t, s)
	if !reply.IsEmpty() {
		t.Errorf("reply has %d parts, want none", len(reply.Parts))
	}
	if reply.StopReason != model.StopErrored {
		t.Errorf("StopReason = %q, want errored", reply.StopReason)
	}
}

func TestSession_StreamCutShort(t *testing.T) {
	// EOF without a finish event is a protocol failure; the partial text
	// already applied must survive.
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(textDelta("Hi")),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if s.Status() != StatusError {
		t.Fatalf("Status() = %q, want error", s.Status())
	}
	if got := s.LastError().Kind; got != KindProtocol {
		t.Errorf("LastError().Kind = %q, want protocol", got)
	}
	reply := lastAssistant(t, s)
	if reply.Text() != "Hi" {
		t.Errorf("partial output lost: %q", reply.Text())
	}
	if reply.StopReason != model.StopErrored {
		t.Errorf("StopReason = %q, want errored", reply.StopReason)
	}
}

func TestSession_ToolResultMismatchFailsExchange(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(
			textDelta("Hi"),
			step{ev: protocol.Event{Type: protocol.EventToolCall, ID: "c1", Name: "weather"}},
			step{ev: protocol.Event{Type: protocol.EventToolResult, ID: "other"}},
		),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if s.Status() != StatusError {
		t.Fatalf("Status() = %q, want error", s.Status())
	}
	if got := s.LastError().Kind; got != KindProtocol {
		t.Errorf("LastError().Kind = %q, want protocol", got)
	}
	reply := lastAssistant(t, s)
	if len(reply.Parts) != 2 {
		t.Errorf("reply has %d parts, want text and unresolved tool call", len(reply.Parts))
	}
}

func TestSession_UpstreamErrorEvent(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(
			textDelta("Let me"),
			step{ev: protocol.Event{Type: protocol.EventError, Message: "backend overloaded", Code: "overloaded"}},
		),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if s.Status() != StatusError {
		t.Fatalf("Status() = %q, want error", s.Status())
	}
	if got := s.LastError().Kind; got != KindUpstream {
		t.Errorf("LastError().Kind = %q, want upstream", got)
	}
	if reply := lastAssistant(t, s); reply.StopReason != model.StopErrored {
		t.Errorf("StopReason = %q, want errored", reply.StopReason)
	}
}

func TestSession_TrailingEventsAfterFinishDiscarded(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(textDelta("Hi"), finishStop(), textDelta(" ignored")),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if s.Status() != StatusReady {
		t.Fatalf("Status() = %q, want ready; trailing events are not failures", s.Status())
	}
	if got := lastAssistant(t, s).Text(); got != "Hi" {
		t.Errorf("reply text = %q, want %q", got, "Hi")
	}
}

func TestSession_FinishSettlesWithoutEOF(t *testing.T) {
	// The server sends finish but keeps the connection open, the way
	// keep-alive servers do. The terminal event alone must settle the
	// exchange; waiting for EOF would strand the session in streaming.
	held := newFakeStream()
	tr := &fakeTransport{streams: []*fakeStream{
		held,
		scriptedStream(textDelta("again"), finishStop()),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	held.steps <- textDelta("Hi")
	held.steps <- finishStop()
	waitSettled(t, s)

	if s.Status() != StatusReady {
		t.Fatalf("Status() = %q, want ready without EOF", s.Status())
	}
	reply := lastAssistant(t, s)
	if reply.Text() != "Hi" {
		t.Errorf("reply text = %q, want %q", reply.Text(), "Hi")
	}
	if reply.StopReason != model.StopCompleted {
		t.Errorf("StopReason = %q, want completed", reply.StopReason)
	}

	// The exchange is released: the next turn is accepted immediately.
	if err := s.Submit(context.Background(), "more"); err != nil {
		t.Fatalf("Submit() after open-connection finish = %v, want accepted", err)
	}
	waitSettled(t, s)
	if s.Status() != StatusReady {
		t.Errorf("Status() after second exchange = %q, want ready", s.Status())
	}
}

func TestSession_GarbageAfterFinishDoesNotFailExchange(t *testing.T) {
	// A malformed trailing line after finish must not flip a completed
	// exchange into an error.
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(
			textDelta("Hi"),
			finishStop(),
			step{err: &protocol.DecodeError{Reason: "invalid JSON"}},
		),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if s.Status() != StatusReady {
		t.Fatalf("Status() = %q, want ready despite trailing garbage", s.Status())
	}
	if s.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", s.LastError())
	}
}

// =============================================================================
// RETRY
// =============================================================================

func TestSession_RetryAfterFailure(t *testing.T) {
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(step{err: transport.ErrNotRunning}),
		scriptedStream(textDelta("Hi there"), finishStop()),
	}}
	s := newTestSession(t, tr)

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)
	if s.Status() != StatusError {
		t.Fatalf("setup: Status() = %q, want error", s.Status())
	}

	if err := s.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	waitSettled(t, s)

	if s.Status() != StatusReady {
		t.Fatalf("Status() after retry = %q, want ready", s.Status())
	}
	conv := s.Conversation()
	if conv.Len() != 2 {
		t.Fatalf("conversation has %d messages, want 2 (user not duplicated)", conv.Len())
	}
	if got := conv.LastAssistantMessage().Text(); got != "Hi there" {
		t.Errorf("reply text = %q, want %q", got, "Hi there")
	}

	// Both requests carried the same single user turn.
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.calls) != 2 {
		t.Fatalf("transport saw %d calls, want 2", len(tr.calls))
	}
	for i, call := range tr.calls {
		if len(call) != 1 || call[0].Content != "hello" {
			t.Errorf("call %d payload = %+v, want single user turn", i, call)
		}
	}
}

func TestSession_RetryWithNothingToRetry(t *testing.T) {
	s := newTestSession(t, &fakeTransport{})
	if err := s.Retry(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("Retry() on empty conversation = %v, want ErrNothingToRetry", err)
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func TestSession_SavesHistoryAtExchangeBoundaries(t *testing.T) {
	hist := &fakeHistory{}
	tr := &fakeTransport{streams: []*fakeStream{
		scriptedStream(textDelta("Hi"), finishStop()),
	}}
	s := New(Config{Transport: tr, History: hist, ModelID: "test-model"})

	s.Submit(context.Background(), "hello")
	waitSettled(t, s)

	if got := hist.saveCount(); got != 1 {
		t.Fatalf("history saved %d times, want 1 (per exchange, not per event)", got)
	}
	hist.mu.Lock()
	saved := hist.saved[0]
	hist.mu.Unlock()
	if saved.Len() != 2 {
		t.Errorf("saved conversation has %d messages, want 2", saved.Len())
	}
}

// =============================================================================
// RESTORE AND CLEAR
// =============================================================================

func TestSession_RestoreAndClear(t *testing.T) {
	s := newTestSession(t, &fakeTransport{})

	conv := model.NewConversation()
	conv.Add(model.NewUserMessage("old question"))
	if err := s.Restore(conv); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if s.Status() != StatusReady {
		t.Errorf("Status() after restore = %q, want ready", s.Status())
	}
	if s.Conversation().Len() != 1 {
		t.Error("restored conversation not visible")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Status() != StatusIdle || !s.Conversation().IsEmpty() {
		t.Error("Clear() did not reset the session")
	}
}
