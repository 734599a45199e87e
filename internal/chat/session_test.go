package chat

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"horizon/internal/observability"
)

type fakeReader struct {
	chunks  [][]byte
	pos     int
	aborted bool
}

func (r *fakeReader) Next() ([]byte, error) {
	if r.pos >= len(r.chunks) {
		return nil, io.EOF
	}
	chunk := r.chunks[r.pos]
	r.pos++
	return chunk, nil
}

func (r *fakeReader) Aborted() bool { return r.aborted }
func (r *fakeReader) Close() error  { return nil }

type fakeStreamer struct {
	reader *fakeReader
	err    error
	bodies []turnRequest
}

func (f *fakeStreamer) Stream(ctx context.Context, path string, body any) (ChunkReader, error) {
	if req, ok := body.(turnRequest); ok {
		f.bodies = append(f.bodies, req)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reader, nil
}

func eventLines(events ...string) [][]byte {
	chunks := make([][]byte, len(events))
	for i, e := range events {
		chunks[i] = []byte("data: " + e + "\n")
	}
	return chunks
}

func TestSessionFoldsTextDeltasIntoSingleMessage(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"status","message":"thinking"}`,
		`{"type":"text_delta","text":"Hi"}`,
		`{"type":"text_delta","text":" there"}`,
		`{"type":"complete","response":{"message":"Hi there"}}`,
	)}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "hello"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hi there", messages[1].Content)

	// Scratch state is cleared once the turn completes.
	assert.Empty(t, session.StreamingText())
	assert.Empty(t, session.Status())
	assert.Nil(t, session.ActiveTool())
}

func TestSessionTextDeltaClearsStatus(t *testing.T) {
	var statusDuringDelta string
	session := NewSession(nil)
	session.apply(StreamEvent{Type: EventStatus, Message: "searching"})
	session.apply(StreamEvent{Type: EventTextDelta, Text: "H"})
	statusDuringDelta = session.Status()

	assert.Empty(t, statusDuringDelta, "text production supersedes the status line")
	assert.Equal(t, "H", session.StreamingText())
}

func TestSessionErrorClearsToolStateAndAppendsMessage(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"tool_start","tool":"search"}`,
		`{"type":"tool_progress","tool":"search","progress":"querying"}`,
		`{"type":"error","message":"boom"}`,
	)}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "find papers"))

	assert.Nil(t, session.ActiveTool())
	assert.Empty(t, session.Status())
	assert.Equal(t, "boom", session.LastError())

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "boom", messages[1].Content)
	require.NotNil(t, messages[1].Extras)
	assert.True(t, messages[1].Extras.Error)
}

func TestSessionAdoptsConversationID(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"complete","response":{"message":"ok","conversation_id":42}}`,
	)}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "first"))
	assert.EqualValues(t, 42, session.ConversationID())

	streamer.reader = &fakeReader{chunks: eventLines(
		`{"type":"complete","response":{"message":"ok again"}}`,
	)}
	require.NoError(t, session.Send(context.Background(), "second"))

	require.Len(t, streamer.bodies, 2)
	assert.EqualValues(t, 0, streamer.bodies[0].ConversationID)
	assert.EqualValues(t, 42, streamer.bodies[1].ConversationID, "adopted id must ride on the next turn")
}

func TestSessionLastToolWins(t *testing.T) {
	session := NewSession(nil)
	session.resetScratchLocked()
	session.apply(StreamEvent{Type: EventToolStart, Tool: "search"})
	session.apply(StreamEvent{Type: EventToolProgress, Tool: "search", Progress: "p1"})
	session.apply(StreamEvent{Type: EventToolProgress, Tool: "summarize", Progress: "q1"})

	tool := session.ActiveTool()
	require.NotNil(t, tool)
	assert.Equal(t, "summarize", tool.Name)
	assert.Equal(t, []string{"q1"}, tool.Updates)
}

func TestSessionCancelCommitsPartialText(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{
		chunks:  eventLines(`{"type":"text_delta","text":"partial answ"}`),
		aborted: true,
	}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "question"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "partial answ", messages[1].Content)
	require.NotNil(t, messages[1].Extras)
	assert.True(t, messages[1].Extras.Cancelled)
	assert.Empty(t, session.StreamingText())
}

func TestSessionAbortWithoutTextAppendsNothing(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{
		chunks:  eventLines(`{"type":"status","message":"thinking"}`),
		aborted: true,
	}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "question"))
	assert.Len(t, session.Messages(), 1, "only the user message remains")
}

func TestSessionSingleTerminalTransition(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"complete","response":{"message":"done"}}`,
		`{"type":"error","message":"late failure"}`,
		`{"type":"text_delta","text":"stray"}`,
	)}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "go"))

	messages := session.Messages()
	require.Len(t, messages, 2, "events after the terminal must be ignored")
	assert.Equal(t, "done", messages[1].Content)
	assert.Empty(t, session.LastError())
	assert.Empty(t, session.StreamingText())
}

func TestSessionRejectsOverlappingSend(t *testing.T) {
	session := NewSession(&fakeStreamer{reader: &fakeReader{}})
	session.mu.Lock()
	session.turnActive = true
	session.mu.Unlock()

	err := session.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)
}

func TestSessionStreamEndWithoutTerminalFailsTurn(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"text_delta","text":"Hi"}`,
	)}}
	session := NewSession(streamer)

	err := session.Send(context.Background(), "hello")
	require.Error(t, err)

	messages := session.Messages()
	require.Len(t, messages, 2)
	require.NotNil(t, messages[1].Extras)
	assert.True(t, messages[1].Extras.Error)
}

func TestSessionTransportFailureBecomesChatMessage(t *testing.T) {
	streamer := &fakeStreamer{err: fmt.Errorf("connect: host unreachable")}
	session := NewSession(streamer)

	err := session.Send(context.Background(), "hello")
	require.Error(t, err)

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "host unreachable")
	assert.NotEmpty(t, session.LastError())
}

func TestSessionToolHistoryAttachedToFinalMessage(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"tool_start","tool":"search"}`,
		`{"type":"tool_progress","tool":"search","progress":"30 hits"}`,
		`{"type":"tool_complete","tool":"search"}`,
		`{"type":"complete","response":{"message":"found them"}}`,
	)}}
	session := NewSession(streamer)

	require.NoError(t, session.Send(context.Background(), "search"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	require.NotNil(t, messages[1].Extras)
	require.Len(t, messages[1].Extras.ToolHistory, 1)
	assert.Equal(t, "search", messages[1].Extras.ToolHistory[0].Name)
	assert.True(t, messages[1].Extras.ToolHistory[0].Done)
}

func TestSessionTurnSpanCarriesConversationID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"complete","response":{"message":"ok"}}`,
	)}}
	// NewSession captures the global tracer, so it must run after the swap.
	session := NewSession(streamer)
	session.conversationID = 7

	require.NoError(t, session.Send(context.Background(), "hello"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, observability.SpanChatTurn, spans[0].Name())

	var found bool
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == observability.AttrConversationID {
			found = true
			assert.EqualValues(t, 7, attr.Value.AsInt64())
		}
	}
	assert.True(t, found, "turn span must be tagged with the conversation")
}

func TestSessionEventObserverSeesArrivalOrder(t *testing.T) {
	streamer := &fakeStreamer{reader: &fakeReader{chunks: eventLines(
		`{"type":"status","message":"s"}`,
		`{"type":"text_delta","text":"a"}`,
		`{"type":"complete","response":{"message":"a"}}`,
	)}}

	var order []EventType
	session := NewSession(streamer, WithEventObserver(func(e StreamEvent) {
		order = append(order, e.Type)
	}))

	require.NoError(t, session.Send(context.Background(), "hi"))
	assert.Equal(t, []EventType{EventStatus, EventTextDelta, EventComplete}, order)
}
