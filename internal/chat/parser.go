package chat

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix = "data: "
	keepalive  = "ping"

	// maxCarryover bounds the buffer held across chunks. A payload that grows
	// past this without a newline is abandoned rather than re-parsed forever.
	maxCarryover = 1 << 20
)

// Parser turns raw transport chunks into StreamEvents. It tolerates
// arbitrary chunk fragmentation at byte level: an unterminated trailing
// fragment is carried over until more data arrives, so a JSON payload split
// across chunk boundaries parses identically to the unsplit payload. This
// relies on payloads never containing an unescaped newline, which the server
// upholds.
//
// A newline-terminated line that still fails to decode is invalid rather
// than incomplete; it is dropped and counted, never retried.
type Parser struct {
	carry   strings.Builder
	skip    bool // discarding an oversized line until its newline shows up
	dropped int
}

// Feed appends chunk to the carry-over buffer and returns every event whose
// line completed. A nil or empty chunk returns no events.
func (p *Parser) Feed(chunk []byte) []StreamEvent {
	if len(chunk) == 0 {
		return nil
	}
	p.carry.Write(chunk)

	data := p.carry.String()
	p.carry.Reset()

	var events []StreamEvent
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := data[:idx]
		data = data[idx+1:]

		if p.skip {
			p.skip = false
			continue
		}
		if event, ok := p.parseLine(line); ok {
			events = append(events, event)
		}
	}

	if len(data) > maxCarryover {
		// Count the abandoned line once, however many chunks it spans.
		if !p.skip {
			p.dropped++
			p.skip = true
		}
		return events
	}
	p.carry.WriteString(data)
	return events
}

// Flush makes a best-effort parse of any unterminated residue at
// end-of-stream and resets the parser.
func (p *Parser) Flush() []StreamEvent {
	rest := p.carry.String()
	p.carry.Reset()
	skipping := p.skip
	p.skip = false

	if skipping || strings.TrimSpace(rest) == "" {
		return nil
	}
	if event, ok := p.parseLine(rest); ok {
		return []StreamEvent{event}
	}
	return nil
}

// Dropped reports how many invalid or oversized lines were discarded.
func (p *Parser) Dropped() int {
	return p.dropped
}

func (p *Parser) parseLine(line string) (StreamEvent, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return StreamEvent{}, false
	}
	payload := line[len(dataPrefix):]
	if payload == keepalive || strings.TrimSpace(payload) == "" {
		return StreamEvent{}, false
	}

	var event StreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		p.dropped++
		return StreamEvent{}, false
	}
	if event.Type == "" {
		p.dropped++
		return StreamEvent{}, false
	}
	return event, true
}
