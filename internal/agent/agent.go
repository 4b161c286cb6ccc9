// Package agent wires the REST client, the push channel, the
// reconciler and the application state into one headless client.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/whitea-cloud/photoshare-go/internal/api"
	"github.com/whitea-cloud/photoshare-go/internal/approval"
	"github.com/whitea-cloud/photoshare-go/internal/auth"
	"github.com/whitea-cloud/photoshare-go/internal/config"
	"github.com/whitea-cloud/photoshare-go/internal/logutil"
	"github.com/whitea-cloud/photoshare-go/internal/notify"
	"github.com/whitea-cloud/photoshare-go/internal/push"
	"github.com/whitea-cloud/photoshare-go/internal/reconcile"
	"github.com/whitea-cloud/photoshare-go/internal/state"
)

// ErrNotAuthenticated is returned when an operation needs a session
// and no stored credentials exist.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrNoPendingTransfer is returned when a transfer decision arrives
// with no staged incoming transfer.
var ErrNoPendingTransfer = errors.New("no pending transfer")

// API is the REST surface the agent drives.
type API interface {
	Login(ctx context.Context, initData string) (*api.LoginResult, error)
	ProactiveRefresh(ctx context.Context) error
	OnSessionExpired(fn func())

	GetPhotos(ctx context.Context) ([]api.Photo, error)
	GetFavoriteIDs(ctx context.Context) ([]int64, error)
	AddFavorite(ctx context.Context, photoID int64) error
	RemoveFavorite(ctx context.Context, photoID int64) error
	CheckPhotoUsage(ctx context.Context, photoIDs []int64) (*api.UsageReport, error)
	DeletePhotos(ctx context.Context, photoIDs []int64) error
	RemoveImportedPhoto(ctx context.Context, photoID int64) error

	GetPendingProfileRequests(ctx context.Context) ([]api.PendingRequest, error)
	GetApprovedPhotos(ctx context.Context, requestID string) ([]api.Photo, error)
	RespondToProfileRequest(ctx context.Context, requestID string, approved bool, photoIDs []int64) error
	CreateProfileRequest(ctx context.Context, targetUserID int64) (*api.RequestStatus, error)
	GetUserProfile(ctx context.Context, userID int64) (*api.UserProfile, error)

	GetScannedTrades(ctx context.Context) ([]api.ScannedTrade, error)
	ConfirmTrade(ctx context.Context, tradeID string) error
	RejectTrade(ctx context.Context, tradeID string) error
	ConfirmTransfer(ctx context.Context, transferID string, accept bool) error
}

var _ API = (*api.Client)(nil)

// PushChannel is the reconnecting push connection the agent manages.
type PushChannel interface {
	Start(ctx context.Context)
	Retry(ctx context.Context)
	Close()
	Status() push.Status
}

var _ PushChannel = (*push.Channel)(nil)

// Options configures an Agent.
type Options struct {
	Config    *config.Config
	Client    API
	Session   *auth.Session
	App       *state.App
	Notifier  notify.Notifier
	Approvals *approval.Cache
	Logger    *slog.Logger

	// NewChannel builds the push channel. Defaults to push.New.
	NewChannel func(opts push.Options) PushChannel

	// RefreshInterval is the period of the proactive token refresh
	// loop. Zero selects the default of twenty minutes.
	RefreshInterval time.Duration
}

// Agent is the headless photo-sharing client.
type Agent struct {
	cfg      *config.Config
	client   API
	session  *auth.Session
	app      *state.App
	notifier notify.Notifier
	rec      *reconcile.Reconciler
	logger   *slog.Logger

	newChannel      func(opts push.Options) PushChannel
	refreshInterval time.Duration

	mu      sync.Mutex
	channel PushChannel
}

// New creates an agent. The session-expired hook on the client is
// installed here.
func New(opts Options) *Agent {
	if opts.NewChannel == nil {
		opts.NewChannel = func(o push.Options) PushChannel { return push.New(o) }
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = 20 * time.Minute
	}

	a := &Agent{
		cfg:             opts.Config,
		client:          opts.Client,
		session:         opts.Session,
		app:             opts.App,
		notifier:        opts.Notifier,
		logger:          logutil.NoopIfNil(opts.Logger),
		newChannel:      opts.NewChannel,
		refreshInterval: opts.RefreshInterval,
	}
	a.rec = reconcile.New(opts.App, opts.Client, opts.Notifier, opts.Approvals, opts.Logger)
	a.client.OnSessionExpired(a.handleSessionExpired)
	return a
}

// Login exchanges init data for a token pair, loads the initial state
// and opens the push channel.
func (a *Agent) Login(ctx context.Context, initData string) (*api.LoginResult, error) {
	result, err := a.client.Login(ctx, initData)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	a.app.SetAuthenticated(true)
	if result.IsNewUser {
		a.notifier.Notify("Welcome!", "Your account has been created", notify.SignalSuccess)
	}

	if err := a.Sync(ctx); err != nil {
		a.logger.Warn("initial sync failed", "error", err)
	}
	a.StartPush(ctx)
	return result, nil
}

// Resume restores a stored session without a fresh login. When only a
// refresh token survives, the access token is renewed first.
func (a *Agent) Resume(ctx context.Context) error {
	if a.session.AccessToken() == "" && a.session.RefreshToken() == "" {
		return ErrNotAuthenticated
	}
	if a.session.AccessToken() == "" {
		if err := a.client.ProactiveRefresh(ctx); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
	}
	a.app.SetAuthenticated(true)

	if err := a.Sync(ctx); err != nil {
		a.logger.Warn("initial sync failed", "error", err)
	}
	a.StartPush(ctx)
	return nil
}

// Sync loads the photo collection, favorites and pending requests.
func (a *Agent) Sync(ctx context.Context) error {
	photos, err := a.client.GetPhotos(ctx)
	if err != nil {
		return fmt.Errorf("load photos: %w", err)
	}
	a.app.SetPhotos(photos)

	favorites, err := a.client.GetFavoriteIDs(ctx)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	a.app.SetFavoriteIDs(favorites)

	pending, err := a.client.GetPendingProfileRequests(ctx)
	if err != nil {
		return fmt.Errorf("load pending requests: %w", err)
	}
	a.app.SetPendingRequests(pending)
	return nil
}

// Run drives the proactive token refresh loop until the context ends,
// then closes the push channel.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Close()
			return
		case <-ticker.C:
			if !a.app.Authenticated() {
				continue
			}
			if err := a.client.ProactiveRefresh(ctx); err != nil {
				a.logger.Warn("proactive refresh failed", "error", err)
			}
		}
	}
}

// StartPush opens the push channel for the current session.
func (a *Agent) StartPush(ctx context.Context) {
	a.mu.Lock()
	if a.channel != nil {
		a.mu.Unlock()
		return
	}
	ch := a.newChannel(push.Options{
		URL:                  a.cfg.Push.URL,
		UserID:               a.session.UserID(),
		HealthURL:            a.healthURL(),
		MaxReconnectAttempts: a.cfg.Push.MaxReconnectAttempts,
		ReconnectDelay:       time.Duration(a.cfg.Push.ReconnectDelayMS) * time.Millisecond,
		BackoffMultiplier:    a.cfg.Push.BackoffMultiplier,
		BackoffJitter:        a.cfg.Push.BackoffJitter,
		DialTimeout:          time.Duration(a.cfg.Push.DialTimeoutMS) * time.Millisecond,
		OnMessage: func(data []byte) {
			a.rec.HandleMessage(ctx, data)
		},
		OnStatus: a.onPushStatus,
		Logger:   a.logger,
	})
	a.channel = ch
	a.mu.Unlock()

	ch.Start(ctx)
}

// RetryPush restarts connecting after the channel went offline.
func (a *Agent) RetryPush(ctx context.Context) {
	a.mu.Lock()
	ch := a.channel
	a.mu.Unlock()
	if ch != nil {
		ch.Retry(ctx)
	}
}

// PushStatus returns the channel state, or offline before the first
// StartPush.
func (a *Agent) PushStatus() push.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel == nil {
		return push.StatusDisconnected
	}
	return a.channel.Status()
}

// Logout drops the session and resets all state.
func (a *Agent) Logout(ctx context.Context) {
	a.closeChannel()
	a.session.Clear(ctx)
	a.app.Reset()
}

// Close shuts the push channel down and flushes pending reconciler
// effects.
func (a *Agent) Close() {
	a.closeChannel()
	a.rec.Wait()
}

// ToggleFavorite flips the favorite flag of a photo. A conflict with
// the server's view resyncs favorites instead of failing.
func (a *Agent) ToggleFavorite(ctx context.Context, photoID int64) error {
	if a.app.IsFavorite(photoID) {
		err := a.client.RemoveFavorite(ctx, photoID)
		if isConflict(err, "not in favorites") {
			return a.resyncFavorites(ctx)
		}
		if err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		a.app.RemoveFavorite(photoID)
		return nil
	}

	err := a.client.AddFavorite(ctx, photoID)
	if isConflict(err, "already in favorites") {
		return a.resyncFavorites(ctx)
	}
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	a.app.AddFavorite(photoID)
	return nil
}

// DeletePhotos removes photos from the collection. Photos still used
// in requests, trades or transfers require confirmation; owned photos
// are deleted, imported ones only detached.
func (a *Agent) DeletePhotos(ctx context.Context, photoIDs []int64) error {
	usage, err := a.client.CheckPhotoUsage(ctx, photoIDs)
	if err != nil {
		return fmt.Errorf("check photo usage: %w", err)
	}
	if len(usage.UsedPhotos) > 0 {
		prompt := fmt.Sprintf("%d of the selected photos are still shared or in active trades. Delete anyway?",
			len(usage.UsedPhotos))
		if !a.notifier.Confirm("Photos in use", prompt) {
			return nil
		}
	}

	owned, imported := a.splitImported(photoIDs)
	if len(owned) > 0 {
		if err := a.client.DeletePhotos(ctx, owned); err != nil {
			return fmt.Errorf("delete photos: %w", err)
		}
	}
	for _, id := range imported {
		if err := a.client.RemoveImportedPhoto(ctx, id); err != nil {
			return fmt.Errorf("remove imported photo %d: %w", id, err)
		}
	}

	a.app.RemovePhotos(photoIDs)
	a.notifier.Notify("Photos deleted", fmt.Sprintf("%d photos removed", len(photoIDs)), notify.SignalSuccess)
	return nil
}

// RespondToRequest approves or rejects a profile-view request. A
// request already handled elsewhere reloads the pending list instead
// of failing.
func (a *Agent) RespondToRequest(ctx context.Context, requestID string, approve bool, photoIDs []int64) error {
	err := a.client.RespondToProfileRequest(ctx, requestID, approve, photoIDs)
	if isConflict(err, "already been responded") {
		a.notifier.Notify("Request already handled",
			"This request was already responded to", notify.SignalWarning)
		return a.resyncPendingRequests(ctx)
	}
	if err != nil {
		return fmt.Errorf("respond to request: %w", err)
	}

	a.app.RemovePendingRequest(requestID)
	if approve {
		a.notifier.Notify("Request approved", "Access to the selected photos granted", notify.SignalSuccess)
	} else {
		a.notifier.Notify("Request rejected", "The request was declined", notify.SignalSuccess)
	}
	return nil
}

// ConfirmTrade accepts a scanned trade and reloads the trade list.
func (a *Agent) ConfirmTrade(ctx context.Context, tradeID string) error {
	return a.decideTrade(ctx, tradeID, true)
}

// RejectTrade declines a scanned trade and reloads the trade list.
func (a *Agent) RejectTrade(ctx context.Context, tradeID string) error {
	return a.decideTrade(ctx, tradeID, false)
}

func (a *Agent) decideTrade(ctx context.Context, tradeID string, accept bool) error {
	var err error
	if accept {
		err = a.client.ConfirmTrade(ctx, tradeID)
	} else {
		err = a.client.RejectTrade(ctx, tradeID)
	}

	switch {
	case isConflict(err, "already"):
		a.notifier.Notify("Trade already handled",
			"This trade was already resolved", notify.SignalWarning)
	case err != nil:
		return fmt.Errorf("resolve trade: %w", err)
	case accept:
		a.notifier.Notify("Trade confirmed", "The trade has been confirmed", notify.SignalSuccess)
	default:
		a.notifier.Notify("Trade rejected", "The trade has been rejected", notify.SignalSuccess)
	}

	return a.resyncScannedTrades(ctx)
}

// LoadScannedTrades refreshes the scanned-trade list.
func (a *Agent) LoadScannedTrades(ctx context.Context) error {
	return a.resyncScannedTrades(ctx)
}

// AcceptTransfer accepts the staged incoming transfer and refreshes
// the photo collection.
func (a *Agent) AcceptTransfer(ctx context.Context) error {
	return a.decideTransfer(ctx, true)
}

// RejectTransfer declines the staged incoming transfer.
func (a *Agent) RejectTransfer(ctx context.Context) error {
	return a.decideTransfer(ctx, false)
}

func (a *Agent) decideTransfer(ctx context.Context, accept bool) error {
	tr := a.app.IncomingTransfer()
	if tr == nil {
		return ErrNoPendingTransfer
	}

	if err := a.client.ConfirmTransfer(ctx, tr.TransferID, accept); err != nil {
		return fmt.Errorf("confirm transfer: %w", err)
	}
	a.app.ClearIncomingTransfer()

	if !accept {
		return nil
	}
	photos, err := a.client.GetPhotos(ctx)
	if err != nil {
		a.logger.Warn("failed to refresh photos after transfer", "error", err)
		return nil
	}
	a.app.SetPhotos(photos)
	return nil
}

// OpenProfile loads another user's profile and navigates to it.
func (a *Agent) OpenProfile(ctx context.Context, userID int64) (*api.UserProfile, error) {
	profile, err := a.client.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	a.app.Navigate(state.ScreenUserProfile, userID)
	return profile, nil
}

// CloseProfile returns to the collection screen. Navigation drops the
// viewed grant.
func (a *Agent) CloseProfile() {
	a.app.Navigate(state.ScreenMain, 0)
}

// RequestProfileAccess asks another user to share their photos.
func (a *Agent) RequestProfileAccess(ctx context.Context, userID int64) (*api.RequestStatus, error) {
	status, err := a.client.CreateProfileRequest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create profile request: %w", err)
	}
	return status, nil
}

func (a *Agent) resyncFavorites(ctx context.Context) error {
	ids, err := a.client.GetFavoriteIDs(ctx)
	if err != nil {
		return fmt.Errorf("resync favorites: %w", err)
	}
	a.app.SetFavoriteIDs(ids)
	return nil
}

func (a *Agent) resyncPendingRequests(ctx context.Context) error {
	reqs, err := a.client.GetPendingProfileRequests(ctx)
	if err != nil {
		return fmt.Errorf("resync pending requests: %w", err)
	}
	a.app.SetPendingRequests(reqs)
	return nil
}

func (a *Agent) resyncScannedTrades(ctx context.Context) error {
	trades, err := a.client.GetScannedTrades(ctx)
	if err != nil {
		return fmt.Errorf("resync scanned trades: %w", err)
	}
	a.app.SetScannedTrades(trades)
	return nil
}

// splitImported partitions photo ids into owned and imported, based on
// the current collection.
func (a *Agent) splitImported(photoIDs []int64) (owned, imported []int64) {
	importedSet := make(map[int64]struct{})
	for _, p := range a.app.Photos() {
		if p.IsImported {
			importedSet[p.ID] = struct{}{}
		}
	}
	for _, id := range photoIDs {
		if _, ok := importedSet[id]; ok {
			imported = append(imported, id)
		} else {
			owned = append(owned, id)
		}
	}
	return owned, imported
}

func (a *Agent) onPushStatus(status push.Status) {
	a.app.SetConnStatus(string(status))
	if status == push.StatusOffline {
		a.notifier.Notify("Connection lost",
			"Live updates are paused until the connection is retried", notify.SignalWarning)
	}
}

func (a *Agent) handleSessionExpired() {
	a.logger.Info("session expired, resetting state")
	a.closeChannel()
	a.app.Reset()
	a.notifier.Notify("Session expired", "Please log in again", notify.SignalError)
}

func (a *Agent) closeChannel() {
	a.mu.Lock()
	ch := a.channel
	a.channel = nil
	a.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

func (a *Agent) healthURL() string {
	if !a.cfg.Push.ProbeHealth {
		return ""
	}
	base := strings.TrimSuffix(a.cfg.API.BaseURL, "/")
	return base + "/health"
}

// isConflict reports whether err is a 400 response whose detail
// contains the given fragment.
func isConflict(err error, fragment string) bool {
	apiErr, ok := api.AsError(err)
	return ok && apiErr.Status == 400 && strings.Contains(apiErr.Detail, fragment)
}
