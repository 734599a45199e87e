package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"horizon/internal/auth"
	horizonerrors "horizon/internal/errors"
	"horizon/internal/logging"
)

func testClient(t *testing.T, serverURL string, creds auth.CredentialStore, hooks auth.Hooks) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
		Retry: horizonerrors.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}, creds, hooks, logging.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGetStreamUsesCache(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/api/tables/7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(ResearchStream{ID: 7, Name: "LLM safety"})
	}))
	defer server.Close()

	client := testClient(t, server.URL, auth.NewMemoryStore("tok"), auth.Hooks{})

	for i := 0; i < 3; i++ {
		stream, err := client.GetStream(context.Background(), 7)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if stream.Name != "LLM safety" {
			t.Fatalf("unexpected stream: %+v", stream)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("server hit %d times, want 1", got)
	}
}

func TestArchiveStreamInvalidatesCache(t *testing.T) {
	var gets int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
			_ = json.NewEncoder(w).Encode(ResearchStream{ID: 7, Name: "x"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := testClient(t, server.URL, auth.NewMemoryStore("tok"), auth.Hooks{})
	ctx := context.Background()

	if _, err := client.GetStream(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if err := client.ArchiveStream(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetStream(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&gets); got != 2 {
		t.Fatalf("expected cache invalidation to force a refetch, gets=%d", got)
	}
}

func TestAuthFailureClearsCredentialsAndFiresHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	creds := auth.NewMemoryStore("tok")
	expired := false
	client := testClient(t, server.URL, creds, auth.Hooks{SessionExpired: func() { expired = true }})

	_, err := client.CurrentOrg(context.Background())
	if !horizonerrors.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if creds.Token() != "" {
		t.Fatal("credential not cleared")
	}
	if !expired {
		t.Fatal("session-expired hook not fired")
	}
}

func TestRefreshHeaderAdopted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RefreshTokenHeader, "tok-2")
		_ = json.NewEncoder(w).Encode(Organization{ID: 1, Name: "Acme"})
	}))
	defer server.Close()

	creds := auth.NewMemoryStore("tok-1")
	refreshed := ""
	client := testClient(t, server.URL, creds, auth.Hooks{TokenRefreshed: func(token string) { refreshed = token }})

	if _, err := client.CurrentOrg(context.Background()); err != nil {
		t.Fatal(err)
	}
	if creds.Token() != "tok-2" || refreshed != "tok-2" {
		t.Fatalf("refresh not adopted: token=%q hook=%q", creds.Token(), refreshed)
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]Conversation{{ID: 1, Title: "chat"}})
	}))
	defer server.Close()

	client := testClient(t, server.URL, auth.NewMemoryStore("tok"), auth.Hooks{})
	// The circuit-breaker default threshold (5) is above the two failures
	// this test produces.
	conversations, err := client.Conversations(context.Background())
	if err != nil {
		t.Fatalf("expected retries to recover: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("unexpected result: %+v", conversations)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server called %d times, want 3", got)
	}
}

func TestMutationsDoNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, server.URL, auth.NewMemoryStore("tok"), auth.Hooks{})
	_, err := client.Invite(context.Background(), "a@b.c", "member")
	if !horizonerrors.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("mutation retried: %d calls", got)
	}
}

func TestOverviewFansOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin/orgs":
			_ = json.NewEncoder(w).Encode([]Organization{{ID: 1, Name: "Acme"}})
		case "/api/admin/users":
			_ = json.NewEncoder(w).Encode([]User{{ID: 2, Email: "a@acme.io"}, {ID: 3, Email: "b@acme.io"}})
		case "/api/admin/invitations":
			_ = json.NewEncoder(w).Encode([]Invitation{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, auth.NewMemoryStore("tok"), auth.Hooks{})
	overview, err := client.Overview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(overview.Organizations) != 1 || len(overview.Users) != 2 || len(overview.Invitations) != 0 {
		t.Fatalf("unexpected overview: %+v", overview)
	}
}

func TestOverviewPropagatesFirstError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/admin/users" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	client := testClient(t, server.URL, auth.NewMemoryStore("tok"), auth.Hooks{})
	_, err := client.Overview(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}
