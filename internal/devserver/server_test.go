package devserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horizon/internal/api"
	"horizon/internal/auth"
	"horizon/internal/chat"
	"horizon/internal/chat/stream"
	horizonerrors "horizon/internal/errors"
	"horizon/internal/logging"
)

func startServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	s, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestChatTurnEndToEnd(t *testing.T) {
	server := startServer(t, Config{})

	creds := auth.NewMemoryStore("dev-token")
	transport := stream.NewTransport(server.URL, server.Client(), creds, auth.Hooks{}, logging.Nop())
	session := chat.NewSession(chat.NewTransportStreamer(transport))

	require.NoError(t, session.Send(context.Background(), "search for alignment work"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, chat.RoleUser, messages[0].Role)
	assert.Equal(t, chat.RoleAssistant, messages[1].Role)
	assert.Contains(t, messages[1].Content, "search for alignment work")
	require.NotNil(t, messages[1].Extras)
	assert.Len(t, messages[1].Extras.ToolHistory, 2)

	// The turn opened a conversation and the id sticks for the next turn.
	firstID := session.ConversationID()
	require.NotZero(t, firstID)
	require.NoError(t, session.Send(context.Background(), "tell me more"))
	assert.Equal(t, firstID, session.ConversationID())

	// Scratch state is idle between turns.
	assert.Empty(t, session.StreamingText())
	assert.Empty(t, session.Status())
	assert.Nil(t, session.ActiveTool())
}

func TestChatErrorScriptBecomesErrorMessage(t *testing.T) {
	server := startServer(t, Config{})

	transport := stream.NewTransport(server.URL, server.Client(), auth.NewMemoryStore("dev-token"), auth.Hooks{}, logging.Nop())
	session := chat.NewSession(chat.NewTransportStreamer(transport))

	require.NoError(t, session.Send(context.Background(), "please fail"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	require.NotNil(t, messages[1].Extras)
	assert.True(t, messages[1].Extras.Error)
	assert.Contains(t, messages[1].Content, "unavailable")
	assert.Equal(t, "the research backend is unavailable", session.LastError())
}

func TestProposalPayloadRidesCompleteEvent(t *testing.T) {
	server := startServer(t, Config{})

	transport := stream.NewTransport(server.URL, server.Client(), auth.NewMemoryStore("dev-token"), auth.Hooks{}, logging.Nop())
	session := chat.NewSession(chat.NewTransportStreamer(transport))

	require.NoError(t, session.Send(context.Background(), "propose a stream about fusion"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	require.NotNil(t, messages[1].Extras)
	assert.Equal(t, "stream_proposal", messages[1].Extras.PayloadType)
	assert.Contains(t, string(messages[1].Extras.Payload), "fusion")
}

func TestExpiredTokenTriggersSessionExpiry(t *testing.T) {
	server := startServer(t, Config{})

	creds := auth.NewMemoryStore("expired")
	expired := false
	hooks := auth.Hooks{SessionExpired: func() { expired = true }}
	transport := stream.NewTransport(server.URL, server.Client(), creds, hooks, logging.Nop())
	session := chat.NewSession(chat.NewTransportStreamer(transport))

	err := session.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, horizonerrors.IsAuth(err))
	assert.True(t, expired)
	assert.Empty(t, creds.Token())
}

func TestRefreshRotationAdoptedByRESTClient(t *testing.T) {
	server := startServer(t, Config{RefreshEvery: 1})

	creds := auth.NewMemoryStore("dev-token")
	var refreshed string
	client, err := api.New(api.Config{BaseURL: server.URL, Timeout: 5 * time.Second},
		creds, auth.Hooks{TokenRefreshed: func(token string) { refreshed = token }}, logging.Nop())
	require.NoError(t, err)
	client.SetHTTPClient(server.Client())

	_, err = client.CurrentOrg(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(creds.Token(), "dev-token-"), "token %q not rotated", creds.Token())
	assert.Equal(t, creds.Token(), refreshed)
}

func TestRESTSurface(t *testing.T) {
	server := startServer(t, Config{})

	client, err := api.New(api.Config{BaseURL: server.URL, Timeout: 5 * time.Second},
		auth.NewMemoryStore("dev-token"), auth.Hooks{}, logging.Nop())
	require.NoError(t, err)
	client.SetHTTPClient(server.Client())
	ctx := context.Background()

	org, err := client.CurrentOrg(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme Research", org.Name)

	streams, err := client.ListStreams(ctx, false)
	require.NoError(t, err)
	assert.Len(t, streams, 1)
	streams, err = client.ListStreams(ctx, true)
	require.NoError(t, err)
	assert.Len(t, streams, 2)

	created, err := client.CreateStream(ctx, api.StreamDraft{Name: "Robotics", Query: "manipulation", Frequency: "daily"})
	require.NoError(t, err)
	require.NoError(t, client.ArchiveStream(ctx, created.ID))
	got, err := client.GetStream(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	invitation, err := client.Invite(ctx, "new@acme-research.io", "member")
	require.NoError(t, err)
	require.NoError(t, client.RevokeInvitation(ctx, invitation.ID))
	invitations, err := client.Invitations(ctx)
	require.NoError(t, err)
	for _, inv := range invitations {
		assert.NotEqual(t, invitation.ID, inv.ID)
	}

	overview, err := client.Overview(ctx)
	require.NoError(t, err)
	assert.Len(t, overview.Organizations, 1)
	assert.NotEmpty(t, overview.Users)
}

func TestMetricsEndpoint(t *testing.T) {
	server := startServer(t, Config{})

	resp, err := server.Client().Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "horizon_devserver")
}
