// Package payload routes the assistant's structured JSON payloads to
// terminal cards and their accept/reject actions. Handlers are registered at
// startup; a lookup miss falls back to a raw JSON card instead of failing
// the turn.
package payload

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"horizon/internal/logging"
)

// Card is the terminal rendering of a payload.
type Card struct {
	Title string
	Body  string
	// Confirm, when non-empty, is the accept/reject prompt shown under the
	// card. Cards without a confirm prompt are informational.
	Confirm string
}

// Handler renders one payload type. Render may call the backend, e.g. to
// fetch the current state a proposal would change.
type Handler interface {
	Type() string
	Render(ctx context.Context, raw json.RawMessage) (Card, error)
}

// Actionable is implemented by handlers whose card the user can accept or
// reject.
type Actionable interface {
	Accept(ctx context.Context, raw json.RawMessage) (string, error)
	Reject(ctx context.Context, raw json.RawMessage) (string, error)
}

// Registry maps payload type names to handlers.
type Registry struct {
	handlers map[string]Handler
	logger   logging.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logging.OrNop(logger),
	}
}

// Register adds a handler. Registering the same type twice is a programming
// error and fails loudly.
func (r *Registry) Register(h Handler) error {
	name := h.Type()
	if name == "" {
		return fmt.Errorf("handler has empty payload type")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("payload handler %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Handler looks up the handler for a payload type.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Render produces the card for a payload. Unknown types and render failures
// degrade to a raw JSON card so the chat keeps working when the backend
// ships a payload this build does not know.
func (r *Registry) Render(ctx context.Context, typeName string, raw json.RawMessage) Card {
	h, ok := r.handlers[typeName]
	if !ok {
		r.logger.Debug("no handler for payload type %q, rendering raw", typeName)
		return rawCard(typeName, raw)
	}
	card, err := h.Render(ctx, raw)
	if err != nil {
		r.logger.Warn("render payload %q: %v", typeName, err)
		return rawCard(typeName, raw)
	}
	return card
}

func rawCard(typeName string, raw json.RawMessage) Card {
	body := string(raw)
	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err == nil {
		if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			body = string(formatted)
		}
	}
	title := typeName
	if title == "" {
		title = "payload"
	}
	return Card{Title: title, Body: body}
}

// Decode unmarshals a payload into v, repairing slightly malformed JSON the
// way model output tends to be malformed (trailing commas, single quotes).
func Decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(raw))
	if repairErr != nil {
		return fmt.Errorf("decode payload: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired payload: %w", err)
	}
	return nil
}
