package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/whitea-cloud/photoshare-go/internal/api"
	"github.com/whitea-cloud/photoshare-go/internal/approval"
	"github.com/whitea-cloud/photoshare-go/internal/notify"
	"github.com/whitea-cloud/photoshare-go/internal/state"
	"github.com/whitea-cloud/photoshare-go/internal/store"
)

type fakeClient struct {
	mu sync.Mutex

	photoCalls    int
	favoriteCalls int
	pendingCalls  int
	approvedCalls []string

	photosFn   func(call int) ([]api.Photo, error)
	approvedFn func(requestID string) ([]api.Photo, error)
}

func (c *fakeClient) GetPhotos(ctx context.Context) ([]api.Photo, error) {
	c.mu.Lock()
	c.photoCalls++
	call := c.photoCalls
	fn := c.photosFn
	c.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return nil, nil
}

func (c *fakeClient) GetFavoriteIDs(ctx context.Context) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.favoriteCalls++
	return nil, nil
}

func (c *fakeClient) GetPendingProfileRequests(ctx context.Context) ([]api.PendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCalls++
	return []api.PendingRequest{{ID: "p1"}}, nil
}

func (c *fakeClient) GetApprovedPhotos(ctx context.Context, requestID string) ([]api.Photo, error) {
	c.mu.Lock()
	c.approvedCalls = append(c.approvedCalls, requestID)
	fn := c.approvedFn
	c.mu.Unlock()
	if fn != nil {
		return fn(requestID)
	}
	return []api.Photo{{ID: 1}}, nil
}

func (c *fakeClient) counts() (photos, favorites, pending int, approved []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.photoCalls, c.favoriteCalls, c.pendingCalls, append([]string(nil), c.approvedCalls...)
}

type recordedNotice struct {
	title  string
	signal notify.Signal
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (n *fakeNotifier) Notify(title, message string, signal notify.Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{title: title, signal: signal})
}

func (n *fakeNotifier) Confirm(title, message string) bool { return true }

func (n *fakeNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	for i, rec := range n.notices {
		out[i] = rec.title
	}
	return out
}

type memApprovals struct {
	mu      sync.Mutex
	markers map[int64]store.ApprovalMarker
}

func newMemApprovals() *memApprovals {
	return &memApprovals{markers: make(map[int64]store.ApprovalMarker)}
}

func (s *memApprovals) PutApproval(ctx context.Context, marker *store.ApprovalMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[marker.TargetID] = *marker
	return nil
}

func (s *memApprovals) GetApproval(ctx context.Context, targetID int64) (*store.ApprovalMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker, ok := s.markers[targetID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &marker, nil
}

func (s *memApprovals) DeleteApproval(ctx context.Context, targetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, targetID)
	return nil
}

func (s *memApprovals) ListApprovals(ctx context.Context) ([]*store.ApprovalMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.ApprovalMarker, 0, len(s.markers))
	for _, marker := range s.markers {
		m := marker
		out = append(out, &m)
	}
	return out, nil
}

func (s *memApprovals) has(targetID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[targetID]
	return ok
}

type fixture struct {
	app       *state.App
	client    *fakeClient
	notifier  *fakeNotifier
	approvals *memApprovals
	rec       *Reconciler
}

func newFixture() *fixture {
	app := state.NewApp()
	client := &fakeClient{}
	notifier := &fakeNotifier{}
	approvals := newMemApprovals()
	rec := New(app, client, notifier, approval.New(approvals, nil), nil)
	return &fixture{app: app, client: client, notifier: notifier, approvals: approvals, rec: rec}
}

func TestMaterialsUpdatedRefetchesPhotosAndFavorites(t *testing.T) {
	f := newFixture()
	f.client.photosFn = func(int) ([]api.Photo, error) {
		return []api.Photo{{ID: 10}}, nil
	}

	f.rec.Apply(context.Background(), &Event{Type: TypeMaterialsUpdated})
	f.rec.Wait()

	photos, favorites, _, _ := f.client.counts()
	if photos != 1 || favorites != 1 {
		t.Errorf("expected one photos and one favorites fetch, got %d and %d", photos, favorites)
	}
	if got := f.app.Photos(); len(got) != 1 || got[0].ID != 10 {
		t.Errorf("photo collection not applied: %+v", got)
	}
}

func TestStalePhotoFetchDiscarded(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	f.client.photosFn = func(call int) ([]api.Photo, error) {
		if call == 1 {
			<-release
			return []api.Photo{{ID: 1}}, nil
		}
		return []api.Photo{{ID: 2}}, nil
	}

	ctx := context.Background()
	f.rec.Apply(ctx, &Event{Type: TypeMaterialsUpdated})
	f.rec.Apply(ctx, &Event{Type: TypeMaterialsUpdated})

	// The second fetch returns immediately; wait for it to land.
	waitFor(t, func() bool {
		got := f.app.Photos()
		return len(got) == 1 && got[0].ID == 2
	})

	// Now let the first, superseded fetch finish.
	close(release)
	f.rec.Wait()

	if got := f.app.Photos(); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("stale fetch overwrote newer result: %+v", got)
	}
}

func TestProfileViewRequestReloadsPending(t *testing.T) {
	f := newFixture()

	f.rec.Apply(context.Background(), &Event{Type: TypeProfileViewRequest, Message: "new request"})
	f.rec.Wait()

	if _, _, pending, _ := f.client.counts(); pending != 1 {
		t.Errorf("expected one pending-requests fetch, got %d", pending)
	}
	if got := f.app.PendingRequests(); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("pending requests not applied: %+v", got)
	}
	if titles := f.notifier.titles(); len(titles) != 1 || titles[0] != "Profile view request" {
		t.Errorf("unexpected notifications: %v", titles)
	}
}

func TestFirstGrantAnnouncesAndStoresMarker(t *testing.T) {
	f := newFixture()

	f.rec.Apply(context.Background(), &Event{
		Type:      TypeProfileViewApproved,
		RequestID: "r1",
		TargetID:  5,
		PhotoIDs:  []int64{1, 2},
	})
	f.rec.Wait()

	if titles := f.notifier.titles(); len(titles) != 1 || titles[0] != "Request approved!" {
		t.Errorf("unexpected notifications: %v", titles)
	}
	if !f.approvals.has(5) {
		t.Error("approval marker not stored")
	}
	if _, _, _, approved := f.client.counts(); len(approved) != 1 || approved[0] != "r1" {
		t.Errorf("unexpected approved-photos fetches: %v", approved)
	}
	if got := f.app.Approved(); got == nil || got.RequestID != "r1" || got.TargetID != 5 {
		t.Errorf("grant not applied: %+v", got)
	}
}

func TestSeenGrantRefreshesSilently(t *testing.T) {
	f := newFixture()
	f.approvals.PutApproval(context.Background(), &store.ApprovalMarker{TargetID: 5, RequestID: "r1"})

	f.rec.Apply(context.Background(), &Event{
		Type:      TypeProfileViewApproved,
		RequestID: "r1",
		TargetID:  5,
	})
	f.rec.Wait()

	if titles := f.notifier.titles(); len(titles) != 0 {
		t.Errorf("re-announced grant must not raise a popup, got %v", titles)
	}
	if _, _, _, approved := f.client.counts(); len(approved) != 1 {
		t.Errorf("expected a silent refresh, got %v", approved)
	}
}

func TestPartialRestrictionFetchesOnce(t *testing.T) {
	f := newFixture()

	f.rec.Apply(context.Background(), &Event{
		Type:        TypeProfileViewApproved,
		IsUpdate:    true,
		RequestID:   "r1",
		TargetID:    5,
		OldPhotoIDs: []int64{1, 2},
		PhotoIDs:    []int64{1},
	})
	f.rec.Wait()

	if titles := f.notifier.titles(); len(titles) != 1 || titles[0] != "Access restricted" {
		t.Errorf("unexpected notifications: %v", titles)
	}
	if _, _, _, approved := f.client.counts(); len(approved) != 1 || approved[0] != "r1" {
		t.Errorf("expected exactly one approved-photos fetch for r1, got %v", approved)
	}
	if !f.approvals.has(5) {
		t.Error("marker must survive a partial restriction")
	}
}

func TestFullRevocationClearsGrantAndMarker(t *testing.T) {
	f := newFixture()
	f.app.SetApproved(&state.ApprovedAccess{RequestID: "r1", TargetID: 5})
	f.approvals.PutApproval(context.Background(), &store.ApprovalMarker{TargetID: 5, RequestID: "r1"})
	f.client.approvedFn = func(string) ([]api.Photo, error) { return nil, nil }

	f.rec.Apply(context.Background(), &Event{
		Type:        TypeProfileViewApproved,
		IsUpdate:    true,
		RequestID:   "r1",
		TargetID:    5,
		OldPhotoIDs: []int64{1, 2},
		PhotoIDs:    nil,
	})
	f.rec.Wait()

	if titles := f.notifier.titles(); len(titles) != 1 || titles[0] != "Access revoked" {
		t.Errorf("unexpected notifications: %v", titles)
	}
	if f.approvals.has(5) {
		t.Error("marker must be dropped on full revocation")
	}
	if f.app.Approved() != nil {
		t.Error("empty grant result must clear the stored grant")
	}
}

func TestRejectedWhileViewingNavigatesAway(t *testing.T) {
	f := newFixture()
	f.app.Navigate(state.ScreenUserProfile, 5)
	f.app.SetApproved(&state.ApprovedAccess{RequestID: "r1", TargetID: 5})
	f.approvals.PutApproval(context.Background(), &store.ApprovalMarker{TargetID: 5, RequestID: "r1"})

	f.rec.Apply(context.Background(), &Event{Type: TypeProfileViewRejected, TargetID: 5})
	f.rec.Wait()

	if f.app.Screen() != state.ScreenMain || f.app.ViewedUserID() != 0 {
		t.Error("rejection while viewing must navigate back to the collection")
	}
	if f.app.Approved() != nil {
		t.Error("grant data must be cleared")
	}
	if f.approvals.has(5) {
		t.Error("durable marker must be invalidated")
	}
	if titles := f.notifier.titles(); len(titles) != 1 || titles[0] != "Access revoked" {
		t.Errorf("unexpected notifications: %v", titles)
	}
}

func TestRejectedWhileElsewhereStaysQuiet(t *testing.T) {
	f := newFixture()
	f.approvals.PutApproval(context.Background(), &store.ApprovalMarker{TargetID: 5, RequestID: "r1"})

	f.rec.Apply(context.Background(), &Event{Type: TypeProfileViewRejected, TargetID: 5})
	f.rec.Wait()

	if titles := f.notifier.titles(); len(titles) != 0 {
		t.Errorf("rejection off-screen must not raise a popup, got %v", titles)
	}
	if f.approvals.has(5) {
		t.Error("durable marker must still be invalidated")
	}
}

func TestTransferCompletedRefetchesOnce(t *testing.T) {
	f := newFixture()

	f.rec.Apply(context.Background(), &Event{Type: TypeTransferCompleted, Message: "done"})
	f.rec.Wait()

	photos, _, _, _ := f.client.counts()
	if photos != 1 {
		t.Errorf("expected exactly one photos refetch, got %d", photos)
	}
	titles := f.notifier.titles()
	if len(titles) != 1 || titles[0] != "Photo received!" {
		t.Errorf("expected exactly one success notification, got %v", titles)
	}
}

func TestTransferRequestStagesModal(t *testing.T) {
	f := newFixture()

	f.rec.Apply(context.Background(), &Event{
		Type:       TypeTransferRequest,
		TransferID: "t1",
		PhotoID:    3,
		PhotoURL:   "https://example.test/p/3",
		Message:    "incoming",
	})
	f.rec.Wait()

	tr := f.app.IncomingTransfer()
	if tr == nil || tr.TransferID != "t1" || tr.PhotoID != 3 {
		t.Errorf("transfer not staged: %+v", tr)
	}
}

func TestTransferStatusAcceptedRefetches(t *testing.T) {
	f := newFixture()
	f.app.SetIncomingTransfer(&state.IncomingTransfer{TransferID: "t1"})

	f.rec.Apply(context.Background(), &Event{Type: TypeTransferStatus, TransferID: "t1", Status: "accepted"})
	f.rec.Wait()

	if f.app.IncomingTransfer() != nil {
		t.Error("resolved transfer must be unstaged")
	}
	if photos, _, _, _ := f.client.counts(); photos != 1 {
		t.Errorf("accepted transfer must refetch photos, got %d fetches", photos)
	}
}

func TestTransferStatusRejectedDoesNotRefetch(t *testing.T) {
	f := newFixture()

	f.rec.Apply(context.Background(), &Event{Type: TypeTransferStatus, TransferID: "t1", Status: "rejected"})
	f.rec.Wait()

	if photos, _, _, _ := f.client.counts(); photos != 0 {
		t.Errorf("rejected transfer must not refetch photos, got %d fetches", photos)
	}
}

func TestHandleMessageDropsMalformedPayload(t *testing.T) {
	f := newFixture()

	f.rec.HandleMessage(context.Background(), []byte(`{"type":`))
	f.rec.HandleMessage(context.Background(), []byte(`{"no_type":true}`))
	f.rec.Wait()

	photos, favorites, pending, approved := f.client.counts()
	if photos+favorites+pending+len(approved) != 0 {
		t.Error("malformed payloads must not trigger fetches")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
