package chat

import (
	"fmt"
	"reflect"
	"testing"
)

func feedAll(p *Parser, chunks ...string) []StreamEvent {
	var events []StreamEvent
	for _, chunk := range chunks {
		events = append(events, p.Feed([]byte(chunk))...)
	}
	events = append(events, p.Flush()...)
	return events
}

func TestParserBasicSequence(t *testing.T) {
	input := "data: {\"type\":\"status\",\"message\":\"searching\"}\n" +
		"data: {\"type\":\"text_delta\",\"text\":\"Hi\"}\n" +
		"data: {\"type\":\"complete\",\"response\":{\"message\":\"Hi\"}}\n"

	events := feedAll(&Parser{}, input)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != EventStatus || events[0].Message != "searching" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != EventTextDelta || events[1].Text != "Hi" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[2].Type != EventComplete || events[2].Response == nil || events[2].Response.Message != "Hi" {
		t.Fatalf("unexpected third event: %+v", events[2])
	}
}

func TestParserChunkBoundaryInvariance(t *testing.T) {
	input := "data: {\"type\":\"text_delta\",\"text\":\"Hello there\"}\n" +
		"data: ping\n" +
		"data: {\"type\":\"tool_progress\",\"tool\":\"search\",\"progress\":\"20 results\"}\n" +
		"data: {\"type\":\"complete\",\"response\":{\"message\":\"done\",\"conversation_id\":7}}\n"

	want := feedAll(&Parser{}, input)
	if len(want) != 3 {
		t.Fatalf("baseline should yield 3 events, got %d", len(want))
	}

	// Split the byte stream at every possible single boundary, then at every
	// pair of boundaries, and require identical output.
	for i := 1; i < len(input); i++ {
		got := feedAll(&Parser{}, input[:i], input[i:])
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d diverged: %+v", i, got)
		}
	}
	for i := 1; i < len(input)-1; i += 7 {
		for j := i + 1; j < len(input); j += 5 {
			got := feedAll(&Parser{}, input[:i], input[i:j], input[j:])
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("split at (%d,%d) diverged", i, j)
			}
		}
	}

	// Byte-at-a-time is the degenerate fragmentation.
	p := &Parser{}
	var got []StreamEvent
	for i := 0; i < len(input); i++ {
		got = append(got, p.Feed([]byte{input[i]})...)
	}
	got = append(got, p.Flush()...)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("byte-at-a-time diverged: %+v", got)
	}
}

func TestParserDiscardsPingAndUnprefixedLines(t *testing.T) {
	input := "data: ping\n" +
		": heartbeat\n" +
		"event: something\n" +
		"\n" +
		"data: {\"type\":\"status\",\"message\":\"ok\"}\n"

	events := feedAll(&Parser{}, input)
	if len(events) != 1 || events[0].Type != EventStatus {
		t.Fatalf("expected only the status event, got %+v", events)
	}
}

func TestParserFinalEventWithoutTrailingNewline(t *testing.T) {
	events := feedAll(&Parser{}, "data: {\"type\":\"complete\",\"response\":{\"message\":\"bye\"}}")
	if len(events) != 1 || events[0].Type != EventComplete {
		t.Fatalf("expected flush to recover final event, got %+v", events)
	}
}

func TestParserDropsInvalidTerminatedLineOnce(t *testing.T) {
	p := &Parser{}
	events := p.Feed([]byte("data: {not json}\ndata: {\"type\":\"status\",\"message\":\"ok\"}\n"))
	if len(events) != 1 || events[0].Type != EventStatus {
		t.Fatalf("invalid line should be dropped, got %+v", events)
	}
	if p.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", p.Dropped())
	}
	// Feeding more data must not re-attempt the dropped line.
	more := p.Feed([]byte("data: {\"type\":\"status\",\"message\":\"again\"}\n"))
	if len(more) != 1 || p.Dropped() != 1 {
		t.Fatalf("dropped line was retried: events=%v dropped=%d", more, p.Dropped())
	}
}

func TestParserCRLFTolerated(t *testing.T) {
	events := feedAll(&Parser{}, "data: {\"type\":\"status\",\"message\":\"ok\"}\r\n")
	if len(events) != 1 || events[0].Message != "ok" {
		t.Fatalf("CRLF line not parsed: %+v", events)
	}
}

func TestParserAbandonsOversizedLine(t *testing.T) {
	p := &Parser{}
	huge := make([]byte, maxCarryover+10)
	for i := range huge {
		huge[i] = 'a'
	}
	if events := p.Feed(huge); len(events) != 0 {
		t.Fatalf("oversized fragment yielded events: %v", events)
	}
	if p.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", p.Dropped())
	}
	// More chunks of the same line do not inflate the count.
	if events := p.Feed(huge); len(events) != 0 {
		t.Fatalf("continuation of oversized line yielded events: %v", events)
	}
	if p.Dropped() != 1 {
		t.Fatalf("one oversized line counted %d times", p.Dropped())
	}
	// The rest of the oversized line is discarded up to its newline, then
	// parsing resumes.
	events := p.Feed([]byte(fmt.Sprintf("aaaa\ndata: %s\n", `{"type":"status","message":"ok"}`)))
	if len(events) != 1 || events[0].Type != EventStatus {
		t.Fatalf("parser did not recover after oversized line: %+v", events)
	}
}
