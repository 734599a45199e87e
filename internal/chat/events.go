// Package chat holds the streaming chat session: the event parser that turns
// raw transport chunks into typed events, and the state machine that folds
// those events into the conversation shown to the user.
package chat

import (
	"encoding/json"
	"time"
)

// EventType tags a StreamEvent.
type EventType string

const (
	EventTextDelta    EventType = "text_delta"
	EventStatus       EventType = "status"
	EventToolStart    EventType = "tool_start"
	EventToolProgress EventType = "tool_progress"
	EventToolComplete EventType = "tool_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
	EventCancelled    EventType = "cancelled"
)

// IsTerminal reports whether the event ends a turn.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventComplete, EventError, EventCancelled:
		return true
	}
	return false
}

// StreamEvent is the tagged union carried on each `data:` line of the
// chat stream.
type StreamEvent struct {
	Type EventType `json:"type"`

	// text_delta
	Text string `json:"text,omitempty"`

	// status, error
	Message string `json:"message,omitempty"`

	// tool_start / tool_progress / tool_complete
	Tool     string `json:"tool,omitempty"`
	Progress string `json:"progress,omitempty"`

	// complete
	Response *TurnResponse `json:"response,omitempty"`
}

// TurnResponse is the structured payload closing a turn.
type TurnResponse struct {
	Message          string            `json:"message"`
	ConversationID   int64             `json:"conversation_id,omitempty"`
	SuggestedValues  map[string]string `json:"suggested_values,omitempty"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
	PayloadType      string            `json:"payload_type,omitempty"`
	Payload          json.RawMessage   `json:"payload,omitempty"`
	ToolHistory      []ToolRun         `json:"tool_history,omitempty"`
	Trace            []string          `json:"trace,omitempty"`
}

// SuggestedAction is a follow-up the assistant offers alongside its message.
type SuggestedAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// ToolRun records one tool invocation reported during a turn.
type ToolRun struct {
	Name    string   `json:"name"`
	Updates []string `json:"updates,omitempty"`
	Done    bool     `json:"done,omitempty"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation transcript. Messages are
// immutable once appended.
type Message struct {
	Role      Role
	Content   string
	Extras    *MessageExtras
	CreatedAt time.Time
}

// MessageExtras carries the structured parts of an assistant message beyond
// free text.
type MessageExtras struct {
	SuggestedValues  map[string]string
	SuggestedActions []SuggestedAction
	PayloadType      string
	Payload          json.RawMessage
	ToolHistory      []ToolRun
	Trace            []string
	// Cancelled marks partial text committed after a mid-stream abort.
	Cancelled bool
	// Error marks a synthetic message rendered from a failure.
	Error bool
}
