package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"horizon/internal/chat"
)

type turnRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id"`
}

// handleChatStream streams a scripted assistant turn. The script branches on
// the message text so every client code path can be exercised by hand:
//
//	"fail"    emits an error event instead of a reply
//	"search"  runs two tools before answering
//	"propose" attaches a stream_proposal payload to the final response
func (s *Server) handleChatStream(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	w := &sseWriter{server: s, ctx: c, flusher: flusher}

	w.event(chat.StreamEvent{Type: chat.EventStatus, Message: "Thinking..."})
	w.keepalive()

	lower := strings.ToLower(req.Message)
	if strings.Contains(lower, "fail") {
		w.event(chat.StreamEvent{Type: chat.EventError, Message: "the research backend is unavailable"})
		return
	}

	var toolHistory []chat.ToolRun
	if strings.Contains(lower, "search") {
		toolHistory = w.runTools()
	}

	reply := s.scriptedReply(req.Message)
	for _, delta := range splitDeltas(reply) {
		if w.done() {
			return
		}
		w.event(chat.StreamEvent{Type: chat.EventTextDelta, Text: delta})
	}
	w.keepalive()

	conversationID := s.store.recordTurn(req.ConversationID, req.Message)
	response := chat.TurnResponse{
		Message:        reply,
		ConversationID: conversationID,
		ToolHistory:    toolHistory,
		SuggestedActions: []chat.SuggestedAction{
			{Label: "Show my streams", Action: "list streams"},
		},
	}
	if strings.Contains(lower, "propose") {
		response.PayloadType = "stream_proposal"
		response.Payload = json.RawMessage(`{"name":"New topic","query":"` + jsonEscape(req.Message) + `","sources":["arxiv"],"frequency":"daily","rationale":"Based on what you asked about."}`)
	}

	w.event(chat.StreamEvent{Type: chat.EventComplete, Response: &response})
	s.metrics.turns.Inc()
}

func (s *Server) scriptedReply(message string) string {
	return fmt.Sprintf(
		"Here is what I found about %q. The most active work clusters around two groups, "+
			"and the publication rate has roughly doubled in the last quarter.",
		strings.TrimSpace(message))
}

// runTools emits the tool event sequence: two tools overlap so clients show
// only the most recent one.
func (w *sseWriter) runTools() []chat.ToolRun {
	w.event(chat.StreamEvent{Type: chat.EventToolStart, Tool: "web_search"})
	w.event(chat.StreamEvent{Type: chat.EventToolProgress, Tool: "web_search", Progress: "querying indexes"})
	w.event(chat.StreamEvent{Type: chat.EventToolStart, Tool: "literature_scan"})
	w.event(chat.StreamEvent{Type: chat.EventToolProgress, Tool: "literature_scan", Progress: "ranking 124 papers"})
	w.event(chat.StreamEvent{Type: chat.EventToolComplete, Tool: "literature_scan"})
	w.event(chat.StreamEvent{Type: chat.EventToolComplete, Tool: "web_search"})
	return []chat.ToolRun{
		{Name: "web_search", Updates: []string{"querying indexes"}, Done: true},
		{Name: "literature_scan", Updates: []string{"ranking 124 papers"}, Done: true},
	}
}

// sseWriter frames events the way the production backend does: one
// `data: <json>` line per event, bare `data: ping` keepalives.
type sseWriter struct {
	server  *Server
	ctx     *gin.Context
	flusher http.Flusher
	failed  bool
}

func (w *sseWriter) event(event chat.StreamEvent) {
	if w.failed || w.done() {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		w.server.logger.Error("marshal sse event: %v", err)
		w.failed = true
		return
	}
	if _, err := fmt.Fprintf(w.ctx.Writer, "data: %s\n", data); err != nil {
		w.failed = true
		return
	}
	w.flusher.Flush()
	w.server.metrics.sseEvents.Inc()
	w.pace()
}

func (w *sseWriter) keepalive() {
	if w.failed || w.done() {
		return
	}
	if _, err := fmt.Fprint(w.ctx.Writer, "data: ping\n"); err != nil {
		w.failed = true
		return
	}
	w.flusher.Flush()
}

func (w *sseWriter) pace() {
	if d := w.server.cfg.ChunkDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-w.ctx.Request.Context().Done():
		}
	}
}

func (w *sseWriter) done() bool {
	select {
	case <-w.ctx.Request.Context().Done():
		return true
	default:
		return false
	}
}

// splitDeltas chops a reply into word-group chunks so the client renders a
// visibly incremental stream.
func splitDeltas(reply string) []string {
	words := strings.SplitAfter(reply, " ")
	var deltas []string
	for i := 0; i < len(words); i += 3 {
		end := i + 3
		if end > len(words) {
			end = len(words)
		}
		deltas = append(deltas, strings.Join(words[i:end], ""))
	}
	return deltas
}

func jsonEscape(s string) string {
	data, _ := json.Marshal(s)
	return strings.Trim(string(data), `"`)
}
