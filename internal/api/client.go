// Package api provides the REST client for the photo-sharing service.
// It attaches bearer credentials, refreshes them once on a 401, and maps
// non-2xx responses to typed errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/whitea-cloud/photoshare-go/internal/auth"
	"github.com/whitea-cloud/photoshare-go/internal/cache"
	"github.com/whitea-cloud/photoshare-go/internal/config"
	"github.com/whitea-cloud/photoshare-go/internal/httpclient"
	"github.com/whitea-cloud/photoshare-go/internal/logutil"
)

// Client is the authenticated REST client.
type Client struct {
	base    string
	http    *httpclient.Client
	session *auth.Session
	logger  *slog.Logger

	// cache, when set, holds short-lived lookup results (user
	// profiles, usage checks).
	cache cache.Cache

	// onSessionExpired runs after the session has been cleared because
	// a refresh failed or the retried request was rejected again.
	onSessionExpired func()
}

// New creates a REST client bound to a session.
func New(cfg *config.APIConfig, hc *httpclient.Client, session *auth.Session, logger *slog.Logger) *Client {
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		session: session,
		logger:  logutil.NoopIfNil(logger),
	}
}

// OnSessionExpired registers the hook invoked when the session dies.
// The hook runs at most once per expiry, after tokens are cleared.
func (c *Client) OnSessionExpired(fn func()) {
	c.onSessionExpired = fn
}

// SetCache installs a cache for short-lived lookup results.
func (c *Client) SetCache(cc cache.Cache) {
	c.cache = cc
}

// Session returns the client's session.
func (c *Client) Session() *auth.Session {
	return c.session
}

// Call performs an authenticated request against the API.
// body (if non-nil) is JSON-encoded. The result is the raw response
// body for 2xx responses, nil for 204.
//
// On 401 the client refreshes the token pair exactly once and retries
// the request exactly once. If the refresh fails, or the retried
// request is rejected with 401 again, the session is cleared, the
// session-expired hook fires, and ErrSessionExpired is returned.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	requestID := uuid.NewString()

	resp, raw, err := c.doOnce(ctx, method, path, payload, requestID, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Debug("request rejected with 401, refreshing session",
			"method", method, "path", path, "request_id", requestID)

		if err := c.session.Refresh(ctx, c.refreshExchange); err != nil {
			c.logger.Warn("session refresh failed", "error", err)
			return nil, c.expireSession(ctx)
		}

		resp, raw, err = c.doOnce(ctx, method, path, payload, requestID, true)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.Warn("retried request rejected again after refresh",
				"method", method, "path", path, "request_id", requestID)
			return nil, c.expireSession(ctx)
		}
	}

	return c.decode(resp, raw)
}

// doOnce issues a single request and reads the bounded body.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, requestID string, withAuth bool) (*http.Response, []byte, error) {
	var reqBody *bytes.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withAuth {
		if token := c.session.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}

	raw, err := c.http.ReadBody(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp, raw, nil
}

// decode maps a final response to a result or a typed error.
func (c *Client) decode(resp *http.Response, raw []byte) (json.RawMessage, error) {
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(raw), nil
	}
	return nil, &Error{
		Status: resp.StatusCode,
		Detail: extractDetail(raw),
	}
}

// extractDetail pulls the server's detail field out of an error body.
// Non-JSON or structured detail payloads fall back to the raw text.
func extractDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}

// expireSession clears the session, fires the hook, and returns
// ErrSessionExpired.
func (c *Client) expireSession(ctx context.Context) error {
	c.session.Clear(ctx)
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
	return ErrSessionExpired
}

// refreshExchange performs the unauthenticated refresh call.
func (c *Client) refreshExchange(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	resp, raw, err := c.doOnce(ctx, http.MethodPost, "/auth/refresh", payload, uuid.NewString(), false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Detail: extractDetail(raw)}
	}

	var result LoginResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}

	return &auth.TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, nil
}
