package state

import (
	"testing"

	"github.com/whitea-cloud/photoshare-go/internal/api"
)

func TestPhotosCopySemantics(t *testing.T) {
	app := NewApp()
	app.SetPhotos([]api.Photo{{ID: 1}, {ID: 2}})

	got := app.Photos()
	got[0].ID = 99

	if app.Photos()[0].ID != 1 {
		t.Error("getter must return a copy")
	}
}

func TestRemovePhotosAlsoDropsFavorites(t *testing.T) {
	app := NewApp()
	app.SetPhotos([]api.Photo{{ID: 1}, {ID: 2}, {ID: 3}})
	app.SetFavoriteIDs([]int64{1, 3})

	app.RemovePhotos([]int64{1})

	photos := app.Photos()
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
	if app.IsFavorite(1) {
		t.Error("favorite entry for a removed photo must be dropped")
	}
	if !app.IsFavorite(3) {
		t.Error("unrelated favorite lost")
	}
}

func TestNavigateAwayFromProfileClearsGrant(t *testing.T) {
	app := NewApp()
	app.Navigate(ScreenUserProfile, 7)
	app.SetApproved(&ApprovedAccess{RequestID: "r1", TargetID: 7})

	if !app.IsViewingProfile(7) {
		t.Fatal("profile should be open")
	}

	app.Navigate(ScreenMain, 0)

	if app.Approved() != nil {
		t.Error("grant must not survive navigation away from the profile")
	}
	if app.ViewedUserID() != 0 {
		t.Error("viewed user id must be cleared")
	}
	if app.IsViewingProfile(7) {
		t.Error("profile should no longer be open")
	}
}

func TestNavigateBetweenProfiles(t *testing.T) {
	app := NewApp()
	app.Navigate(ScreenUserProfile, 7)
	app.Navigate(ScreenUserProfile, 8)

	if app.ViewedUserID() != 8 {
		t.Errorf("expected viewed user 8, got %d", app.ViewedUserID())
	}
}

func TestRemovePendingRequest(t *testing.T) {
	app := NewApp()
	app.SetPendingRequests([]api.PendingRequest{{ID: "a"}, {ID: "b"}})
	app.RemovePendingRequest("a")

	reqs := app.PendingRequests()
	if len(reqs) != 1 || reqs[0].ID != "b" {
		t.Errorf("unexpected pending requests: %+v", reqs)
	}
}

func TestReset(t *testing.T) {
	app := NewApp()
	app.SetPhotos([]api.Photo{{ID: 1}})
	app.SetFavoriteIDs([]int64{1})
	app.SetAuthenticated(true)
	app.Navigate(ScreenUserProfile, 7)
	app.SetIncomingTransfer(&IncomingTransfer{TransferID: "t1"})

	app.Reset()

	if len(app.Photos()) != 0 || app.Authenticated() || app.Screen() != ScreenMain {
		t.Error("reset did not restore the logged-out baseline")
	}
	if app.IncomingTransfer() != nil {
		t.Error("staged transfer survived reset")
	}
}
