// Package reconcile turns push notifications into state updates.
// Each event reduces to synchronous state changes plus asynchronous
// fetch effects; per-resource sequence numbers discard results of
// fetches that a later event superseded.
package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/whitea-cloud/photoshare-go/internal/api"
	"github.com/whitea-cloud/photoshare-go/internal/approval"
	"github.com/whitea-cloud/photoshare-go/internal/logutil"
	"github.com/whitea-cloud/photoshare-go/internal/notify"
	"github.com/whitea-cloud/photoshare-go/internal/state"
)

// Client is the REST surface the reconciler fetches from.
type Client interface {
	GetPhotos(ctx context.Context) ([]api.Photo, error)
	GetFavoriteIDs(ctx context.Context) ([]int64, error)
	GetPendingProfileRequests(ctx context.Context) ([]api.PendingRequest, error)
	GetApprovedPhotos(ctx context.Context, requestID string) ([]api.Photo, error)
}

// Compile-time check: the real client satisfies the fetch surface.
var _ Client = (*api.Client)(nil)

// Resources with guarded fetches.
const (
	resPhotos    = "photos"
	resFavorites = "favorites"
	resPending   = "pending_requests"
	resApproved  = "approved_photos"
)

// Reconciler applies push events to application state.
type Reconciler struct {
	app       *state.App
	client    Client
	notifier  notify.Notifier
	approvals *approval.Cache
	logger    *slog.Logger

	wg sync.WaitGroup

	seqMu  sync.Mutex
	issued map[string]uint64
}

// New creates a reconciler.
func New(app *state.App, client Client, notifier notify.Notifier, approvals *approval.Cache, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		app:       app,
		client:    client,
		notifier:  notifier,
		approvals: approvals,
		logger:    logutil.NoopIfNil(logger),
		issued:    make(map[string]uint64),
	}
}

// HandleMessage decodes and applies one push payload. Malformed
// payloads are dropped and logged.
func (r *Reconciler) HandleMessage(ctx context.Context, data []byte) {
	ev, err := ParseEvent(data)
	if err != nil {
		r.logger.Warn("dropping push message", "error", err)
		return
	}
	r.Apply(ctx, ev)
}

// Wait blocks until all in-flight fetch effects finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Apply dispatches one event.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) {
	r.logger.Debug("applying push event", "type", ev.Type)

	switch ev.Type {
	case TypeMaterialsUpdated:
		r.refreshPhotos(ctx)
		r.refreshFavorites(ctx)

	case TypeProfileViewRequest:
		r.refreshPendingRequests(ctx)
		r.notifier.Notify("Profile view request", ev.Message, notify.SignalWarning)

	case TypeProfileViewApproved:
		r.applyApproved(ctx, ev)

	case TypeProfileViewRejected:
		r.applyRejected(ctx, ev)

	case TypeTransferCompleted:
		r.notifier.Notify("Photo received!", ev.Message, notify.SignalSuccess)
		r.refreshPhotos(ctx)

	case TypeTransferRequest:
		r.app.SetIncomingTransfer(&state.IncomingTransfer{
			TransferID: ev.TransferID,
			PhotoID:    ev.PhotoID,
			PhotoURL:   ev.PhotoURL,
			Message:    ev.Message,
		})
		r.notifier.Notify("Incoming photo transfer", ev.Message, notify.SignalWarning)

	case TypeTransferStatus:
		r.applyTransferStatus(ctx, ev)

	default:
		r.logger.Debug("ignoring unknown push event", "type", ev.Type)
	}
}

// applyApproved handles a granted or updated profile-view permission.
func (r *Reconciler) applyApproved(ctx context.Context, ev *Event) {
	isUpdate := ev.IsUpdate || len(ev.OldPhotoIDs) > 0

	if !isUpdate {
		// First grant. A durable marker with the same request id means
		// the user already saw this announcement; refresh silently.
		if !r.approvals.Seen(ctx, ev.TargetID, ev.RequestID) {
			r.notifier.Notify("Request approved!",
				grantUserName(ev)+" shared photos with you", notify.SignalSuccess)
		}
		r.approvals.Record(ctx, ev.TargetID, ev.RequestID)
		r.refreshApprovedPhotos(ctx, ev)
		return
	}

	change := ClassifyGrantDiff(ev.OldPhotoIDs, ev.PhotoIDs)
	title, message := describeGrantChange(change, grantUserName(ev))
	r.notifier.Notify(title, message, notify.SignalSuccess)

	if change == GrantFullyRevoked {
		r.approvals.Invalidate(ctx, ev.TargetID)
	} else {
		r.approvals.Record(ctx, ev.TargetID, ev.RequestID)
	}

	r.refreshApprovedPhotos(ctx, ev)
}

// applyRejected handles a rejected or revoked profile-view request.
func (r *Reconciler) applyRejected(ctx context.Context, ev *Event) {
	wasViewing := r.app.IsViewingProfile(ev.TargetID)

	if wasViewing {
		// Navigation clears the grant and the viewed-user id.
		r.app.Navigate(state.ScreenMain, 0)
		r.notifier.Notify("Access revoked",
			grantUserName(ev)+" closed access to their photos", notify.SignalWarning)
	}

	if approved := r.app.Approved(); approved != nil && approved.TargetID == ev.TargetID {
		r.app.ClearApproved()
	}

	r.approvals.Invalidate(ctx, ev.TargetID)
}

// applyTransferStatus handles the outcome of a pending transfer.
func (r *Reconciler) applyTransferStatus(ctx context.Context, ev *Event) {
	if tr := r.app.IncomingTransfer(); tr != nil && tr.TransferID == ev.TransferID {
		r.app.ClearIncomingTransfer()
	}

	if ev.Status == "accepted" {
		r.notifier.Notify("Transfer completed", ev.Message, notify.SignalSuccess)
		r.refreshPhotos(ctx)
		return
	}
	r.notifier.Notify("Transfer rejected", ev.Message, notify.SignalWarning)
}

// refreshPhotos refetches the photo collection, guarded by sequence.
func (r *Reconciler) refreshPhotos(ctx context.Context) {
	n := r.begin(resPhotos)
	r.spawn(func() {
		photos, err := r.client.GetPhotos(ctx)
		if err != nil {
			r.logger.Warn("failed to refresh photos", "error", err)
			return
		}
		if r.commit(resPhotos, n) {
			r.app.SetPhotos(photos)
		}
	})
}

func (r *Reconciler) refreshFavorites(ctx context.Context) {
	n := r.begin(resFavorites)
	r.spawn(func() {
		ids, err := r.client.GetFavoriteIDs(ctx)
		if err != nil {
			r.logger.Warn("failed to refresh favorites", "error", err)
			return
		}
		if r.commit(resFavorites, n) {
			r.app.SetFavoriteIDs(ids)
		}
	})
}

func (r *Reconciler) refreshPendingRequests(ctx context.Context) {
	n := r.begin(resPending)
	r.spawn(func() {
		reqs, err := r.client.GetPendingProfileRequests(ctx)
		if err != nil {
			r.logger.Warn("failed to refresh pending requests", "error", err)
			return
		}
		if r.commit(resPending, n) {
			r.app.SetPendingRequests(reqs)
		}
	})
}

// refreshApprovedPhotos fetches the photos a grant exposes. An empty
// result clears the stored grant.
func (r *Reconciler) refreshApprovedPhotos(ctx context.Context, ev *Event) {
	if ev.RequestID == "" {
		return
	}

	n := r.begin(resApproved)
	r.spawn(func() {
		photos, err := r.client.GetApprovedPhotos(ctx, ev.RequestID)
		if err != nil {
			r.logger.Warn("failed to load approved photos", "request_id", ev.RequestID, "error", err)
			return
		}
		if !r.commit(resApproved, n) {
			return
		}
		if len(photos) == 0 {
			r.app.ClearApproved()
			return
		}
		r.app.SetApproved(&state.ApprovedAccess{
			RequestID: ev.RequestID,
			TargetID:  ev.TargetID,
			Photos:    photos,
		})
	})
}

// begin issues the next sequence number for a resource. It runs
// synchronously during dispatch so issuance order matches event order.
func (r *Reconciler) begin(resource string) uint64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.issued[resource]++
	return r.issued[resource]
}

// commit reports whether a fetch is still the most recently issued one
// for its resource. Stale results are discarded.
func (r *Reconciler) commit(resource string, n uint64) bool {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	return n == r.issued[resource]
}

func (r *Reconciler) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func grantUserName(ev *Event) string {
	if ev.TargetUserName != "" {
		return ev.TargetUserName
	}
	return "The user"
}

// describeGrantChange renders the notification for a grant update.
func describeGrantChange(change GrantChange, userName string) (title, message string) {
	switch change {
	case GrantFullyRevoked:
		return "Access revoked", userName + " closed access to their photos"
	case GrantPartiallyRestricted:
		return "Access restricted", userName + " withdrew some shared photos"
	case GrantExpanded:
		return "Access expanded", userName + " shared more photos"
	case GrantChanged:
		return "Permission changed", userName + " changed the shared photo selection"
	default:
		return "Permission updated", userName + " updated the photo sharing permission"
	}
}
