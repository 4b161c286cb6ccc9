// Package state holds the agent's in-memory view of the user's data:
// photos, favorites, pending requests, grants, trades, and transfers.
// Only the reconciler and the user-action handlers mutate it.
package state

import (
	"sync"

	"github.com/whitea-cloud/photoshare-go/internal/api"
)

// Screen identifies the surface the user currently has open.
type Screen string

const (
	ScreenMain        Screen = "main"
	ScreenUserProfile Screen = "user_profile"
	ScreenPermissions Screen = "permissions"
	ScreenTrades      Screen = "trades"
	ScreenRequests    Screen = "requests"
)

// ApprovedAccess is the grant the user holds over another profile,
// populated while that profile is open.
type ApprovedAccess struct {
	RequestID string
	TargetID  int64
	Photos    []api.Photo
}

// IncomingTransfer is a photo transfer staged for accept/reject.
type IncomingTransfer struct {
	TransferID string
	PhotoID    int64
	PhotoURL   string
	Message    string
}

// App is the mutable application state. All methods are safe for
// concurrent use; getters return copies.
type App struct {
	mu sync.RWMutex

	photos          []api.Photo
	favoriteIDs     map[int64]struct{}
	pendingRequests []api.PendingRequest
	scannedTrades   []api.ScannedTrade

	approved *ApprovedAccess
	transfer *IncomingTransfer

	screen        Screen
	viewedUserID  int64 // profile currently open
	connStatus    string
	authenticated bool
}

// NewApp creates empty application state on the main screen.
func NewApp() *App {
	return &App{
		favoriteIDs: make(map[int64]struct{}),
		screen:      ScreenMain,
	}
}

// Photos returns a copy of the photo collection.
func (a *App) Photos() []api.Photo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]api.Photo(nil), a.photos...)
}

// SetPhotos replaces the photo collection.
func (a *App) SetPhotos(photos []api.Photo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.photos = append([]api.Photo(nil), photos...)
}

// RemovePhotos drops the given ids from the collection.
func (a *App) RemovePhotos(ids []int64) {
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.photos[:0]
	for _, p := range a.photos {
		if _, gone := drop[p.ID]; !gone {
			kept = append(kept, p)
		}
	}
	a.photos = kept
	for id := range drop {
		delete(a.favoriteIDs, id)
	}
}

// FavoriteIDs returns a copy of the favorite-id set.
func (a *App) FavoriteIDs() map[int64]struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int64]struct{}, len(a.favoriteIDs))
	for id := range a.favoriteIDs {
		out[id] = struct{}{}
	}
	return out
}

// SetFavoriteIDs replaces the favorite-id set.
func (a *App) SetFavoriteIDs(ids []int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.favoriteIDs = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		a.favoriteIDs[id] = struct{}{}
	}
}

// IsFavorite reports whether a photo is in the favorite set.
func (a *App) IsFavorite(id int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.favoriteIDs[id]
	return ok
}

// AddFavorite inserts a photo id into the favorite set.
func (a *App) AddFavorite(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.favoriteIDs[id] = struct{}{}
}

// RemoveFavorite drops a photo id from the favorite set.
func (a *App) RemoveFavorite(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.favoriteIDs, id)
}

// PendingRequests returns a copy of the pending request list.
func (a *App) PendingRequests() []api.PendingRequest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]api.PendingRequest(nil), a.pendingRequests...)
}

// SetPendingRequests replaces the pending request list.
func (a *App) SetPendingRequests(reqs []api.PendingRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingRequests = append([]api.PendingRequest(nil), reqs...)
}

// RemovePendingRequest drops one request by id.
func (a *App) RemovePendingRequest(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.pendingRequests[:0]
	for _, r := range a.pendingRequests {
		if r.ID != requestID {
			kept = append(kept, r)
		}
	}
	a.pendingRequests = kept
}

// ScannedTrades returns a copy of the staged trade list.
func (a *App) ScannedTrades() []api.ScannedTrade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]api.ScannedTrade(nil), a.scannedTrades...)
}

// SetScannedTrades replaces the staged trade list.
func (a *App) SetScannedTrades(trades []api.ScannedTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scannedTrades = append([]api.ScannedTrade(nil), trades...)
}

// Approved returns the current grant, nil when none is open.
func (a *App) Approved() *ApprovedAccess {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.approved == nil {
		return nil
	}
	cp := *a.approved
	cp.Photos = append([]api.Photo(nil), a.approved.Photos...)
	return &cp
}

// SetApproved installs the grant for the profile being viewed.
func (a *App) SetApproved(access *ApprovedAccess) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approved = access
}

// ClearApproved drops the current grant.
func (a *App) ClearApproved() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approved = nil
}

// IncomingTransfer returns the staged transfer, nil when none.
func (a *App) IncomingTransfer() *IncomingTransfer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.transfer == nil {
		return nil
	}
	cp := *a.transfer
	return &cp
}

// SetIncomingTransfer stages a transfer for accept/reject.
func (a *App) SetIncomingTransfer(tr *IncomingTransfer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transfer = tr
}

// ClearIncomingTransfer drops the staged transfer.
func (a *App) ClearIncomingTransfer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transfer = nil
}

// Screen returns the current screen.
func (a *App) Screen() Screen {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.screen
}

// ViewedUserID returns the id of the profile currently open, 0 if none.
func (a *App) ViewedUserID() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.viewedUserID
}

// Navigate switches screens. Leaving a profile clears the grant and
// the viewed-user id; transient prompts do not survive navigation.
func (a *App) Navigate(screen Screen, viewedUserID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.screen == ScreenUserProfile && screen != ScreenUserProfile {
		a.approved = nil
		a.viewedUserID = 0
	}

	a.screen = screen
	if screen == ScreenUserProfile {
		a.viewedUserID = viewedUserID
	}
}

// IsViewingProfile reports whether the given user's profile is open.
func (a *App) IsViewingProfile(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.screen == ScreenUserProfile && a.viewedUserID == userID
}

// ConnStatus returns the last known push connection status.
func (a *App) ConnStatus() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connStatus
}

// SetConnStatus records the push connection status.
func (a *App) SetConnStatus(status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connStatus = status
}

// Authenticated reports whether a session is active.
func (a *App) Authenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authenticated
}

// SetAuthenticated records session liveness.
func (a *App) SetAuthenticated(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authenticated = ok
}

// Reset drops everything back to the logged-out baseline.
func (a *App) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.photos = nil
	a.favoriteIDs = make(map[int64]struct{})
	a.pendingRequests = nil
	a.scannedTrades = nil
	a.approved = nil
	a.transfer = nil
	a.screen = ScreenMain
	a.viewedUserID = 0
	a.authenticated = false
}
