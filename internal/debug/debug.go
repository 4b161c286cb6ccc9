// Package debug provides a localhost-only HTTP endpoint exposing the
// agent's runtime state for troubleshooting.
package debug

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/whitea-cloud/photoshare-go/internal/logutil"
	"github.com/whitea-cloud/photoshare-go/internal/state"
)

// Server serves the debug endpoints.
type Server struct {
	httpServer *http.Server
	app        *state.App
	pushStatus func() string
	logger     *slog.Logger
}

// New creates a debug server. pushStatus reports the current push
// channel state.
func New(addr string, app *state.App, pushStatus func() string, logger *slog.Logger) *Server {
	s := &Server{
		app:        app,
		pushStatus: pushStatus,
		logger:     logutil.NoopIfNil(logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	s.logger.Info("starting debug server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusPayload is the /status response body.
type statusPayload struct {
	Authenticated   bool   `json:"authenticated"`
	Screen          string `json:"screen"`
	ViewedUserID    int64  `json:"viewed_user_id,omitempty"`
	PushStatus      string `json:"push_status"`
	Photos          int    `json:"photos"`
	Favorites       int    `json:"favorites"`
	PendingRequests int    `json:"pending_requests"`
	ScannedTrades   int    `json:"scanned_trades"`
	HasGrant        bool   `json:"has_grant"`
	PendingTransfer bool   `json:"pending_transfer"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		Authenticated:   s.app.Authenticated(),
		Screen:          string(s.app.Screen()),
		ViewedUserID:    s.app.ViewedUserID(),
		PushStatus:      s.pushStatus(),
		Photos:          len(s.app.Photos()),
		Favorites:       len(s.app.FavoriteIDs()),
		PendingRequests: len(s.app.PendingRequests()),
		ScannedTrades:   len(s.app.ScannedTrades()),
		HasGrant:        s.app.Approved() != nil,
		PendingTransfer: s.app.IncomingTransfer() != nil,
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
