package payload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizon/internal/api"
	"horizon/internal/auth"
	"horizon/internal/logging"
)

func TestRenderUnknownTypeFallsBackToRawCard(t *testing.T) {
	r := NewRegistry(logging.Nop())
	card := r.Render(context.Background(), "mystery_widget", json.RawMessage(`{"a":1}`))

	assert.Equal(t, "mystery_widget", card.Title)
	assert.Contains(t, card.Body, `"a": 1`)
	assert.Empty(t, card.Confirm)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(logging.Nop())
	require.NoError(t, r.Register(NewArticleListHandler()))
	assert.Error(t, r.Register(NewArticleListHandler()))
}

func TestDecodeRepairsMalformedJSON(t *testing.T) {
	var schedule reportSchedule
	// Trailing comma and single quotes, the way model output breaks.
	raw := json.RawMessage(`{'stream_id': 4, 'cadence': 'weekly',}`)
	require.NoError(t, Decode(raw, &schedule))
	assert.Equal(t, int64(4), schedule.StreamID)
	assert.Equal(t, "weekly", schedule.Cadence)
}

func TestArticleListRenderFlattensAbstracts(t *testing.T) {
	raw, err := json.Marshal(articleList{Articles: []article{{
		Title:        "Scaling laws revisited",
		Source:       "arXiv",
		URL:          "https://arxiv.org/abs/0000.00000",
		AbstractHTML: "<p>First paragraph.</p><p>Second <b>bold</b> paragraph.</p>",
	}}})
	require.NoError(t, err)

	card, err := NewArticleListHandler().Render(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "1 article", card.Title)
	assert.Contains(t, card.Body, "1. Scaling laws revisited (arXiv)")
	assert.Contains(t, card.Body, "First paragraph.")
	assert.Contains(t, card.Body, "Second bold paragraph.")
	assert.NotContains(t, card.Body, "<p>")
}

func payloadTestClient(t *testing.T, handler http.Handler) (*api.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := api.New(api.Config{BaseURL: server.URL, Timeout: 5 * time.Second},
		auth.NewMemoryStore("tok"), auth.Hooks{}, logging.Nop())
	require.NoError(t, err)
	return client, server
}

func TestStreamProposalRenderNewStream(t *testing.T) {
	client, _ := payloadTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))

	raw := json.RawMessage(`{"name":"AI safety","query":"alignment","sources":["arxiv"],"frequency":"daily","rationale":"You asked to track alignment work."}`)
	card, err := NewStreamProposalHandler(client, false).Render(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "New research stream: AI safety", card.Title)
	assert.Contains(t, card.Body, "You asked to track alignment work.")
	assert.Contains(t, card.Body, "query:     alignment")
	assert.Equal(t, "Create this stream?", card.Confirm)
}

func TestStreamProposalRenderDiffsAgainstCurrent(t *testing.T) {
	client, _ := payloadTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables/9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.ResearchStream{
			ID: 9, Name: "LLM eval", Query: "benchmarks", Sources: []string{"arxiv"}, Frequency: "daily",
		})
	}))

	raw := json.RawMessage(`{"stream_id":9,"name":"LLM eval","query":"leaderboards","sources":["arxiv"],"frequency":"daily"}`)
	card, err := NewStreamProposalHandler(client, false).Render(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "Update research stream: LLM eval", card.Title)
	assert.Contains(t, card.Body, "[-")
	assert.Contains(t, card.Body, "{+")
	assert.Contains(t, card.Body, "name: LLM eval")
	assert.Equal(t, "Apply these changes?", card.Confirm)
}

func TestStreamProposalAcceptCreates(t *testing.T) {
	var created api.StreamDraft
	client, _ := payloadTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/tables", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_ = json.NewEncoder(w).Encode(api.ResearchStream{ID: 12, Name: created.Name})
	}))

	raw := json.RawMessage(`{"name":"AI safety","query":"alignment","frequency":"daily"}`)
	result, err := NewStreamProposalHandler(client, false).Accept(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "alignment", created.Query)
	assert.Contains(t, result, `Created stream "AI safety" (#12)`)
}

func TestReportScheduleAccept(t *testing.T) {
	var body map[string]string
	client, _ := payloadTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables/3/schedule", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))

	raw := json.RawMessage(`{"stream_id":3,"cadence":"weekly"}`)
	result, err := NewReportScheduleHandler(client).Accept(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "weekly", body["cadence"])
	assert.Contains(t, result, "weekly")
}

func TestRenderFailureFallsBackToRawCard(t *testing.T) {
	r := NewRegistry(logging.Nop())
	require.NoError(t, r.Register(NewArticleListHandler()))

	// Not repairable into an article list: decoding yields an error.
	card := r.Render(context.Background(), "article_list", json.RawMessage(`{"articles": "nope"}`))
	assert.Equal(t, "article_list", card.Title)
	assert.Contains(t, card.Body, "articles")
}
