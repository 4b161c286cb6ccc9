package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/whitea-cloud/photoshare-go/internal/auth"
	"github.com/whitea-cloud/photoshare-go/internal/cache"
	"github.com/whitea-cloud/photoshare-go/internal/config"
	"github.com/whitea-cloud/photoshare-go/internal/httpclient"

	_ "github.com/whitea-cloud/photoshare-go/internal/cache/memory"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := &config.APIConfig{
		BaseURL:          srv.URL,
		TimeoutMS:        2000,
		ConnectTimeoutMS: 500,
		MaxResponseBytes: 1 << 20,
	}
	session := auth.NewSession(1, nil, nil)
	return New(cfg, httpclient.New(cfg), session, nil)
}

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.session.SetTokens(context.Background(), &auth.TokenPair{AccessToken: "tok", RefreshToken: "r"})

	raw, err := c.Call(context.Background(), http.MethodGet, "/api/photos/", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", raw)
	}
}

func TestCallNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	raw, err := c.Call(context.Background(), http.MethodDelete, "/api/photos/", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil result for 204, got %s", raw)
	}
}

func TestCallErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"You do not own all of the specified photos."}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Call(context.Background(), http.MethodDelete, "/api/photos/", nil)

	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("unexpected status: %d", apiErr.Status)
	}
	if apiErr.Detail != "You do not own all of the specified photos." {
		t.Errorf("unexpected detail: %q", apiErr.Detail)
	}
	if !IsStatus(err, http.StatusForbidden) {
		t.Error("IsStatus should match")
	}
}

func TestCallRefreshesOnceAndRetriesOnce(t *testing.T) {
	var photoCalls, refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/photos/", func(w http.ResponseWriter, r *http.Request) {
		n := photoCalls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Token expired"}`))
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer new-access" {
			t.Errorf("retry must carry the refreshed token, got %q", got)
		}
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "old-refresh" {
			t.Errorf("unexpected refresh token: %q", body["refresh_token"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "bearer",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()
	c.session.SetTokens(ctx, &auth.TokenPair{AccessToken: "stale", RefreshToken: "old-refresh"})

	photos, err := c.GetPhotos(ctx)
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if len(photos) != 0 {
		t.Errorf("expected empty photo list, got %v", photos)
	}

	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", n)
	}
	if n := photoCalls.Load(); n != 2 {
		t.Errorf("expected exactly 2 photo calls (original + retry), got %d", n)
	}
	if c.session.RefreshToken() != "new-refresh" {
		t.Errorf("rotated refresh token not stored: %q", c.session.RefreshToken())
	}
}

func TestCallSecond401ExpiresSession(t *testing.T) {
	var photoCalls, refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/photos/", func(w http.ResponseWriter, r *http.Request) {
		photoCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()
	c.session.SetTokens(ctx, &auth.TokenPair{AccessToken: "stale", RefreshToken: "r"})

	expired := false
	c.OnSessionExpired(func() { expired = true })

	_, err := c.Call(ctx, http.MethodGet, "/api/photos/", nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", n)
	}
	if n := photoCalls.Load(); n != 2 {
		t.Errorf("expected exactly 2 photo calls, got %d", n)
	}
	if !expired {
		t.Error("session-expired hook did not fire")
	}
	if c.session.AccessToken() != "" || c.session.RefreshToken() != "" {
		t.Error("session tokens not cleared")
	}
}

func TestCallRefreshFailureExpiresWithoutRetry(t *testing.T) {
	var photoCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/photos/", func(w http.ResponseWriter, r *http.Request) {
		photoCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid refresh token"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()
	c.session.SetTokens(ctx, &auth.TokenPair{AccessToken: "stale", RefreshToken: "bad"})

	expired := false
	c.OnSessionExpired(func() { expired = true })

	_, err := c.Call(ctx, http.MethodGet, "/api/photos/", nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if n := photoCalls.Load(); n != 1 {
		t.Errorf("failed refresh must not retry the original request, got %d calls", n)
	}
	if !expired {
		t.Error("session-expired hook did not fire")
	}
}

func TestLoginInstallsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["init_data"] != "init-blob" {
			t.Errorf("unexpected init_data: %q", body["init_data"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "a1",
			"refresh_token": "r1",
			"token_type":    "bearer",
			"is_new_user":   true,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	result, err := c.Login(context.Background(), "init-blob")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.IsNewUser {
		t.Error("expected is_new_user true")
	}
	if c.session.AccessToken() != "a1" || c.session.RefreshToken() != "r1" {
		t.Errorf("tokens not installed: %q %q", c.session.AccessToken(), c.session.RefreshToken())
	}
}

func TestConfirmTransferQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transfers/confirm" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("transfer_id") != "t-1" || q.Get("accept") != "false" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"message":"Transfer rejected."}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.ConfirmTransfer(context.Background(), "t-1", false); err != nil {
		t.Fatalf("ConfirmTransfer failed: %v", err)
	}
}

func TestGetApprovedPhotosDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/profile-requests/r1/photos" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":1,"url":"https://x/uploads/a.jpg","file_id":"a.jpg"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	photos, err := c.GetApprovedPhotos(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetApprovedPhotos failed: %v", err)
	}
	if len(photos) != 1 || photos[0].ID != 1 || photos[0].FileID != "a.jpg" {
		t.Errorf("unexpected photos: %+v", photos)
	}
}

func TestGetUserProfileUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"user":{"id":9,"first_name":"Ann"},"photos":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	cc, err := cache.NewFromConfig("memory", nil)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	defer cc.Close()
	c.SetCache(cc)

	for i := 0; i < 3; i++ {
		profile, err := c.GetUserProfile(context.Background(), 9)
		if err != nil {
			t.Fatalf("GetUserProfile: %v", err)
		}
		if profile.User.ID != 9 || profile.User.FirstName != "Ann" {
			t.Errorf("unexpected profile: %+v", profile)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected one upstream fetch, got %d", got)
	}
}
