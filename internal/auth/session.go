// Package auth manages session credentials: the in-memory token pair,
// durable persistence, and serialized refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/whitea-cloud/photoshare-go/internal/logutil"
	"github.com/whitea-cloud/photoshare-go/internal/store"
)

// ErrNoRefreshToken is returned when a refresh is requested without a
// stored refresh token.
var ErrNoRefreshToken = errors.New("no refresh token available")

// TokenPair is an access/refresh token pair issued by the server.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc exchanges a refresh token for a new token pair.
// The REST client supplies the actual HTTP call.
type RefreshFunc func(ctx context.Context, refreshToken string) (*TokenPair, error)

// Session holds the credentials for one authenticated user.
// All methods are safe for concurrent use. At most one refresh is in
// flight at a time; concurrent callers wait for its result.
type Session struct {
	userID int64
	creds  store.CredentialStore // optional, nil disables persistence
	logger *slog.Logger

	mu       sync.Mutex
	access   string
	refresh  string
	inflight *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// NewSession creates a session for the given user.
// creds may be nil to keep tokens in memory only.
func NewSession(userID int64, creds store.CredentialStore, logger *slog.Logger) *Session {
	return &Session{
		userID: userID,
		creds:  creds,
		logger: logutil.NoopIfNil(logger),
	}
}

// UserID returns the session's user id.
func (s *Session) UserID() int64 {
	return s.userID
}

// AccessToken returns the current access token, empty if logged out.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// RefreshToken returns the current refresh token, empty if logged out.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

// Load restores persisted credentials. A missing record is not an error
// and leaves the session logged out.
func (s *Session) Load(ctx context.Context) error {
	if s.creds == nil {
		return nil
	}

	rec, err := s.creds.GetCredentials(ctx, s.userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	s.mu.Lock()
	s.access = rec.AccessToken
	s.refresh = rec.RefreshToken
	s.mu.Unlock()

	s.logger.Debug("restored persisted credentials", "user_id", s.userID)
	return nil
}

// SetTokens replaces the token pair and persists it.
// A persistence failure is logged but does not invalidate the in-memory
// tokens.
func (s *Session) SetTokens(ctx context.Context, pair *TokenPair) {
	s.mu.Lock()
	s.access = pair.AccessToken
	s.refresh = pair.RefreshToken
	s.mu.Unlock()

	if s.creds == nil {
		return
	}
	err := s.creds.PutCredentials(ctx, &store.Credentials{
		UserID:       s.userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedAt:    time.Now().Unix(),
	})
	if err != nil {
		s.logger.Warn("failed to persist credentials", "user_id", s.userID, "error", err)
	}
}

// Clear drops the token pair and removes the persisted record.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.mu.Unlock()

	if s.creds == nil {
		return
	}
	if err := s.creds.DeleteCredentials(ctx, s.userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to delete persisted credentials", "user_id", s.userID, "error", err)
	}
}

// Refresh exchanges the refresh token for a new pair via do.
// Concurrent callers share a single in-flight exchange: exactly one
// caller runs do, the rest wait for its outcome.
func (s *Session) Refresh(ctx context.Context, do RefreshFunc) error {
	s.mu.Lock()
	if s.inflight != nil {
		call := s.inflight
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	token := s.refresh
	call := &refreshCall{done: make(chan struct{})}
	s.inflight = call
	s.mu.Unlock()

	err := s.doRefresh(ctx, token, do)

	s.mu.Lock()
	call.err = err
	s.inflight = nil
	s.mu.Unlock()
	close(call.done)

	return err
}

func (s *Session) doRefresh(ctx context.Context, token string, do RefreshFunc) error {
	if token == "" {
		return ErrNoRefreshToken
	}

	pair, err := do(ctx, token)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	s.SetTokens(ctx, pair)
	s.logger.Debug("refreshed session tokens", "user_id", s.userID)
	return nil
}
