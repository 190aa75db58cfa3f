// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// =============================================================================
// DECODER TESTS
// =============================================================================

// drain reads every event until the decoder reports a terminal condition.
func drain(t *testing.T, d *Decoder) ([]Event, error) {
	t.Helper()
	var events []Event
	for {
		ev, err := d.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestDecoder_TextStream(t *testing.T) {
	input := `{"type":"text-delta","text":"Hi"}
{"type":"text-delta","text":" there"}
{"type":"finish","reason":"stop"}
`
	events, err := drain(t, NewDecoder(strings.NewReader(input)))
	if err != io.EOF {
		t.Fatalf("drain error = %v, want io.EOF", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != EventTextDelta || events[0].Text != "Hi" {
		t.Errorf("events[0] = %+v, want text-delta 'Hi'", events[0])
	}
	if events[1].Text != " there" {
		t.Errorf("events[1].Text = %q, want ' there'", events[1].Text)
	}
	if events[2].Type != EventFinish || events[2].Reason != FinishStop {
		t.Errorf("events[2] = %+v, want finish/stop", events[2])
	}
}

func TestDecoder_PreservesArrivalOrder(t *testing.T) {
	input := `{"type":"text-delta","text":"a"}
{"type":"tool-call","id":"t1","name":"search","arguments":{"q":"go"}}
{"type":"text-delta","text":"b"}
{"type":"tool-result","id":"t1","result":{"hits":3}}
{"type":"finish","reason":"stop"}
`
	events, err := drain(t, NewDecoder(strings.NewReader(input)))
	if err != io.EOF {
		t.Fatalf("drain error = %v, want io.EOF", err)
	}

	wantTypes := []EventType{EventTextDelta, EventToolCall, EventTextDelta, EventToolResult, EventFinish}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("events[%d].Type = %q, want %q", i, events[i].Type, want)
		}
	}
}

func TestDecoder_SkipsBlankLines(t *testing.T) {
	input := "\n{\"type\":\"text-delta\",\"text\":\"x\"}\n\n\n{\"type\":\"finish\",\"reason\":\"stop\"}\n"
	events, err := drain(t, NewDecoder(strings.NewReader(input)))
	if err != io.EOF {
		t.Fatalf("drain error = %v, want io.EOF", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}

func TestDecoder_TruncatedStream(t *testing.T) {
	// Stream cut off mid-event: partial line with no trailing newline.
	input := "{\"type\":\"text-delta\",\"text\":\"x\"}\n{\"type\":\"text-del"
	events, err := drain(t, NewDecoder(strings.NewReader(input)))
	if !errors.Is(err, ErrTruncatedStream) {
		t.Fatalf("drain error = %v, want ErrTruncatedStream", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events before truncation, want 1", len(events))
	}
}

func TestDecoder_MalformedLine(t *testing.T) {
	input := "not json at all\n"
	_, err := drain(t, NewDecoder(strings.NewReader(input)))
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("drain error = %v, want *DecodeError", err)
	}
	if derr.Line == "" {
		t.Error("DecodeError.Line should carry the offending line")
	}
}

func TestDecoder_ErrorIsSticky(t *testing.T) {
	d := NewDecoder(strings.NewReader("garbage\n{\"type\":\"finish\",\"reason\":\"stop\"}\n"))
	_, err1 := d.Next()
	if err1 == nil {
		t.Fatal("first Next() should fail on garbage line")
	}
	_, err2 := d.Next()
	if err2 != err1 {
		t.Errorf("decoder error not sticky: first %v, second %v", err1, err2)
	}
}

func TestDecoder_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"missing type", `{"text":"hi"}`},
		{"unknown type", `{"type":"usage","tokens":5}`},
		{"tool-call without id", `{"type":"tool-call","name":"search"}`},
		{"tool-call without name", `{"type":"tool-call","id":"t1"}`},
		{"tool-result without id", `{"type":"tool-result","result":{}}`},
		{"error without message", `{"type":"error","code":"oops"}`},
		{"finish with bad reason", `{"type":"finish","reason":"done"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecoder(strings.NewReader(tc.line + "\n"))
			_, err := d.Next()
			var derr *DecodeError
			if !errors.As(err, &derr) {
				t.Fatalf("Next() error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestDecoder_ChunkBoundariesAreMeaningless(t *testing.T) {
	// Feed the same logical stream one byte at a time to prove framing
	// does not depend on chunk boundaries.
	input := `{"type":"text-delta","text":"Hello"}
{"type":"finish","reason":"stop"}
`
	events, err := drain(t, NewDecoder(&oneByteReader{data: []byte(input)}))
	if err != io.EOF {
		t.Fatalf("drain error = %v, want io.EOF", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Text != "Hello" {
		t.Errorf("events[0].Text = %q, want 'Hello'", events[0].Text)
	}
}

// oneByteReader yields one byte per Read call.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestEvent_Terminal(t *testing.T) {
	tests := []struct {
		ev   Event
		want bool
	}{
		{Event{Type: EventTextDelta, Text: "x"}, false},
		{Event{Type: EventToolCall, ID: "t", Name: "n"}, false},
		{Event{Type: EventError, Message: "boom"}, true},
		{Event{Type: EventFinish, Reason: FinishStop}, true},
	}
	for _, tc := range tests {
		if got := tc.ev.Terminal(); got != tc.want {
			t.Errorf("Terminal(%s) = %v, want %v", tc.ev.Type, got, tc.want)
		}
	}
}
