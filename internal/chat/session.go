package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"horizon/internal/chat/stream"
	horizonerrors "horizon/internal/errors"
	"horizon/internal/logging"
	"horizon/internal/observability"
)

// StreamEndpoint is the backend path the session streams turns from.
const StreamEndpoint = "/api/chat/stream"

// ErrTurnInFlight is returned by Send while a previous turn is still active.
// Overlapping sends would race on the per-turn scratch state, so they are
// rejected rather than interleaved.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// Streamer is the transport contract the session consumes. Satisfied by
// stream.Transport.
type Streamer interface {
	Stream(ctx context.Context, path string, body any) (ChunkReader, error)
}

// ChunkReader matches stream.Reader.
type ChunkReader interface {
	Next() ([]byte, error)
	Aborted() bool
	Close() error
}

type transportStreamer struct {
	t *stream.Transport
}

// NewTransportStreamer adapts a stream.Transport to the Streamer interface.
func NewTransportStreamer(t *stream.Transport) Streamer {
	return transportStreamer{t: t}
}

func (ts transportStreamer) Stream(ctx context.Context, path string, body any) (ChunkReader, error) {
	reader, err := ts.t.Stream(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// turnRequest is the body of a streaming turn request. The conversation
// identifier adopted from a previous complete event rides along so the
// server appends to the same record.
type turnRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

// Session folds the event stream into conversational state: the transcript,
// the streaming text buffer, the status line and the active tool. All state
// transitions happen on the goroutine running Send, in strict event arrival
// order.
type Session struct {
	transport Streamer
	logger    logging.Logger
	tracer    trace.Tracer
	onEvent   func(StreamEvent)

	mu             sync.Mutex
	messages       []Message
	conversationID int64
	turnActive     bool
	cancelTurn     context.CancelFunc

	// Per-turn scratch, cleared when the turn reaches its terminal event.
	textBuf       strings.Builder
	streamingText string
	statusLine    string
	activeTool    *ToolRun
	toolHistory   []ToolRun
	lastError     string
	terminalSeen  bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) { s.logger = logging.OrNop(logger) }
}

// WithEventObserver registers a callback invoked after each event has been
// applied. The REPL and TUI use it to repaint incrementally.
func WithEventObserver(fn func(StreamEvent)) Option {
	return func(s *Session) { s.onEvent = fn }
}

// NewSession builds a chat session over the given transport.
func NewSession(transport Streamer, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		logger:    logging.Nop(),
		tracer:    otel.Tracer("horizon/chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send runs one turn: appends the user message, opens the stream and folds
// events until the turn's single terminal transition. It blocks until the
// turn finishes; progress is observable through the snapshot accessors and
// the event observer. Send returns ErrTurnInFlight when called while a turn
// is active.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.turnActive {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.turnActive = true
	s.cancelTurn = cancel
	s.messages = append(s.messages, Message{Role: RoleUser, Content: text, CreatedAt: time.Now()})
	s.resetScratchLocked()
	req := turnRequest{Message: text, ConversationID: s.conversationID}
	s.mu.Unlock()

	turnCtx, span := s.tracer.Start(turnCtx, observability.SpanChatTurn,
		trace.WithAttributes(observability.ConversationAttrs(req.ConversationID)...))

	defer func() {
		cancel()
		span.End()
		s.mu.Lock()
		s.turnActive = false
		s.cancelTurn = nil
		s.mu.Unlock()
	}()

	reader, err := s.transport.Stream(turnCtx, StreamEndpoint, req)
	if err != nil {
		span.RecordError(err)
		s.failTurn(err.Error())
		return err
	}
	defer func() { _ = reader.Close() }()

	parser := &Parser{}
	for {
		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			s.failTurn(err.Error())
			return err
		}
		for _, event := range parser.Feed(chunk) {
			s.apply(event)
		}
	}
	for _, event := range parser.Flush() {
		s.apply(event)
	}
	if dropped := parser.Dropped(); dropped > 0 {
		s.logger.Warn("discarded %d malformed stream lines", dropped)
	}

	if reader.Aborted() {
		s.apply(StreamEvent{Type: EventCancelled})
		return nil
	}

	s.mu.Lock()
	terminal := s.terminalSeen
	s.mu.Unlock()
	if !terminal {
		// The server closed the stream without finishing the turn.
		err := horizonerrors.WrapTransport(errors.New("stream ended before the turn completed"))
		span.RecordError(err)
		s.failTurn(err.Error())
		return err
	}
	return nil
}

// Cancel aborts the active turn. A no-op when idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancelTurn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// apply folds one event into session state. Events arriving after the turn's
// terminal transition are ignored: exactly one terminal transition happens
// per turn.
func (s *Session) apply(event StreamEvent) {
	s.mu.Lock()
	if s.terminalSeen {
		s.mu.Unlock()
		return
	}

	switch event.Type {
	case EventTextDelta:
		s.textBuf.WriteString(event.Text)
		s.streamingText = s.textBuf.String()
		// Text production supersedes any status message.
		s.statusLine = ""

	case EventStatus:
		s.statusLine = event.Message

	case EventToolStart:
		s.activeTool = &ToolRun{Name: event.Tool}

	case EventToolProgress:
		// Last tool wins: a progress report for a different tool resets
		// tracking, there is no concurrent multi-tool display.
		if s.activeTool == nil || s.activeTool.Name != event.Tool {
			s.activeTool = &ToolRun{Name: event.Tool}
		}
		s.activeTool.Updates = append(s.activeTool.Updates, event.Progress)

	case EventToolComplete:
		if s.activeTool != nil && s.activeTool.Name == event.Tool {
			s.activeTool.Done = true
			s.toolHistory = append(s.toolHistory, *s.activeTool)
			s.activeTool = nil
		}

	case EventComplete:
		s.completeLocked(event.Response)

	case EventError:
		s.errorLocked(event.Message)

	case EventCancelled:
		s.cancelLocked()
	}
	if event.Type.IsTerminal() {
		s.finishTurnLocked()
	}
	s.mu.Unlock()

	if s.onEvent != nil {
		s.onEvent(event)
	}
}

// completeLocked finalizes the turn from the structured response.
func (s *Session) completeLocked(resp *TurnResponse) {
	if resp == nil {
		resp = &TurnResponse{}
	}

	content := resp.Message
	if content == "" {
		content = s.textBuf.String()
	}

	var extras *MessageExtras
	toolHistory := resp.ToolHistory
	if len(toolHistory) == 0 {
		toolHistory = s.toolHistory
	}
	if len(resp.SuggestedValues) > 0 || len(resp.SuggestedActions) > 0 ||
		len(resp.Payload) > 0 || len(toolHistory) > 0 || len(resp.Trace) > 0 {
		extras = &MessageExtras{
			SuggestedValues:  resp.SuggestedValues,
			SuggestedActions: resp.SuggestedActions,
			PayloadType:      resp.PayloadType,
			Payload:          resp.Payload,
			ToolHistory:      toolHistory,
			Trace:            resp.Trace,
		}
	}

	s.messages = append(s.messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		Extras:    extras,
		CreatedAt: time.Now(),
	})
	if resp.ConversationID != 0 {
		s.conversationID = resp.ConversationID
	}
}

func (s *Session) errorLocked(message string) {
	if message == "" {
		message = "something went wrong"
	}
	s.lastError = message
	s.messages = append(s.messages, Message{
		Role:      RoleAssistant,
		Content:   message,
		Extras:    &MessageExtras{Error: true},
		CreatedAt: time.Now(),
	})
}

// cancelLocked commits any partial text rather than discarding it silently.
func (s *Session) cancelLocked() {
	if partial := s.textBuf.String(); partial != "" {
		s.messages = append(s.messages, Message{
			Role:      RoleAssistant,
			Content:   partial,
			Extras:    &MessageExtras{Cancelled: true},
			CreatedAt: time.Now(),
		})
	}
}

func (s *Session) finishTurnLocked() {
	s.terminalSeen = true
	s.clearTransientLocked()
}

func (s *Session) resetScratchLocked() {
	s.terminalSeen = false
	s.lastError = ""
	s.toolHistory = nil
	s.clearTransientLocked()
}

func (s *Session) clearTransientLocked() {
	s.textBuf.Reset()
	s.streamingText = ""
	s.statusLine = ""
	s.activeTool = nil
}

// failTurn records a transport-level failure as a synthetic assistant message
// plus a stored error string. Nothing is retried automatically.
func (s *Session) failTurn(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalSeen {
		return
	}
	s.errorLocked(message)
	s.finishTurnLocked()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// StreamingText returns the text accumulated for the in-flight turn.
func (s *Session) StreamingText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamingText
}

// Status returns the current human-readable progress line, if any.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLine
}

// ActiveTool returns a snapshot of the tool currently reporting progress.
func (s *Session) ActiveTool() *ToolRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTool == nil {
		return nil
	}
	snapshot := *s.activeTool
	snapshot.Updates = append([]string(nil), s.activeTool.Updates...)
	return &snapshot
}

// ConversationID returns the identifier adopted from the backend, 0 before
// the first completed turn.
func (s *Session) ConversationID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// LastError returns the error recorded for the most recent failed turn.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Busy reports whether a turn is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnActive
}
