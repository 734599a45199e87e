package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// EstimateTokens approximates how much of the model context the transcript
// occupies, for the TUI status bar. Falls back to a bytes/4 heuristic when
// the encoding is unavailable (offline first run).
func EstimateTokens(messages []Message) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})

	total := 0
	for _, msg := range messages {
		if encoder != nil {
			total += len(encoder.Encode(msg.Content, nil, nil))
		} else {
			total += len(msg.Content) / 4
		}
		// Per-message framing overhead.
		total += 4
	}
	return total
}
