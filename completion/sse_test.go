package completion

import (
	"io"
	"strings"
	"testing"
)

func TestSSEScanner_BasicEvents(t *testing.T) {
	input := `data: {"delta": "hello"}

data: {"delta": " world"}

data: [DONE]

`
	scanner := NewSSEScanner(strings.NewReader(input))

	if !scanner.Scan() {
		t.Fatal("Expected first event")
	}
	if got := scanner.Data(); got != `{"delta": "hello"}` {
		t.Errorf("First event: got %q, want %q", got, `{"delta": "hello"}`)
	}

	if !scanner.Scan() {
		t.Fatal("Expected second event")
	}
	if got := scanner.Data(); got != `{"delta": " world"}` {
		t.Errorf("Second event: got %q, want %q", got, `{"delta": " world"}`)
	}

	if !scanner.Scan() {
		t.Fatal("Expected third event")
	}
	if got := scanner.Data(); got != "[DONE]" {
		t.Errorf("Third event: got %q, want %q", got, "[DONE]")
	}

	if scanner.Scan() {
		t.Error("Expected no more events")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSSEScanner_NoSpaceAfterColon(t *testing.T) {
	scanner := NewSSEScanner(strings.NewReader("data:first\n\ndata: second\n"))

	events := []string{}
	for scanner.Scan() {
		events = append(events, scanner.Data())
	}

	if len(events) != 2 || events[0] != "first" || events[1] != "second" {
		t.Errorf("Unexpected events: %v", events)
	}
}

func TestSSEScanner_SkipsNonDataLines(t *testing.T) {
	input := ": keepalive comment\nevent: message\ndata: payload\n\n"
	scanner := NewSSEScanner(strings.NewReader(input))

	if !scanner.Scan() {
		t.Fatal("Expected one event")
	}
	if got := scanner.Data(); got != "payload" {
		t.Errorf("Got %q, want %q", got, "payload")
	}
	if scanner.Scan() {
		t.Error("Expected no more events")
	}
}

// chunkedReader yields its chunks one per Read call, simulating records split
// across network reads.
type chunkedReader struct {
	chunks []string
	index  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.index >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.index])
	r.index++
	return n, nil
}

func TestSSEScanner_RecordSplitAcrossReads(t *testing.T) {
	reader := &chunkedReader{chunks: []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}",
		"]}\n\ndata: [DONE]\n",
	}}
	scanner := NewSSEScanner(reader)

	if !scanner.Scan() {
		t.Fatal("Expected reassembled event")
	}
	want := `{"choices":[{"delta":{"content":"hel"}}]}`
	if got := scanner.Data(); got != want {
		t.Errorf("Got %q, want %q", got, want)
	}

	if !scanner.Scan() {
		t.Fatal("Expected sentinel event")
	}
	if got := scanner.Data(); got != "[DONE]" {
		t.Errorf("Got %q, want %q", got, "[DONE]")
	}

	if scanner.Scan() {
		t.Error("Expected no more events")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
