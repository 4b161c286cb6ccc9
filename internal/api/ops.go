package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/whitea-cloud/photoshare-go/internal/auth"
	"github.com/whitea-cloud/photoshare-go/internal/cache"
)

// Login authenticates with messenger init data and installs the
// returned token pair on the session.
func (c *Client) Login(ctx context.Context, initData string) (*LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"init_data": initData})
	if err != nil {
		return nil, err
	}

	resp, raw, err := c.doOnce(ctx, http.MethodPost, "/auth/login", payload, uuid.NewString(), false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Detail: extractDetail(raw)}
	}

	var result LoginResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	c.session.SetTokens(ctx, &auth.TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
	return &result, nil
}

// ProactiveRefresh renews the token pair before the access token
// expires, without waiting for a 401.
func (c *Client) ProactiveRefresh(ctx context.Context) error {
	return c.session.Refresh(ctx, c.refreshExchange)
}

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodGet, "/health", nil)
	return err
}

// GetPhotos returns the user's collection, owned and imported.
func (c *Client) GetPhotos(ctx context.Context) ([]Photo, error) {
	return callList[Photo](c, ctx, http.MethodGet, "/api/photos/")
}

// GetFavoriteIDs returns the ids of the user's favorite photos.
func (c *Client) GetFavoriteIDs(ctx context.Context) ([]int64, error) {
	return callList[int64](c, ctx, http.MethodGet, "/api/photos/favorites/ids")
}

// GetImportedIDs returns the ids of photos imported from other users.
func (c *Client) GetImportedIDs(ctx context.Context) ([]int64, error) {
	return callList[int64](c, ctx, http.MethodGet, "/api/photos/imported/ids")
}

// AddFavorite marks a photo as favorite.
func (c *Client) AddFavorite(ctx context.Context, photoID int64) error {
	_, err := c.Call(ctx, http.MethodPost, fmt.Sprintf("/api/photos/favorite/%d", photoID), nil)
	return err
}

// RemoveFavorite unmarks a favorite photo.
func (c *Client) RemoveFavorite(ctx context.Context, photoID int64) error {
	_, err := c.Call(ctx, http.MethodDelete, fmt.Sprintf("/api/photos/favorite/%d", photoID), nil)
	return err
}

// CheckPhotoUsage reports which of the given photos are referenced by
// active requests, trades, or transfers.
func (c *Client) CheckPhotoUsage(ctx context.Context, photoIDs []int64) (*UsageReport, error) {
	raw, err := c.Call(ctx, http.MethodPost, "/api/photos/check-usage", map[string]any{"photo_ids": photoIDs})
	if err != nil {
		return nil, err
	}
	var report UsageReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to decode usage report: %w", err)
	}
	return &report, nil
}

// DeletePhotos deletes owned photos by id.
func (c *Client) DeletePhotos(ctx context.Context, photoIDs []int64) error {
	_, err := c.Call(ctx, http.MethodDelete, "/api/photos/", map[string]any{"photo_ids": photoIDs})
	return err
}

// RemoveImportedPhoto removes an imported photo from the collection.
func (c *Client) RemoveImportedPhoto(ctx context.Context, photoID int64) error {
	_, err := c.Call(ctx, http.MethodDelete, fmt.Sprintf("/api/photos/imported/%d", photoID), nil)
	return err
}

// GetPendingProfileRequests returns profile-view requests awaiting the
// user's response.
func (c *Client) GetPendingProfileRequests(ctx context.Context) ([]PendingRequest, error) {
	return callList[PendingRequest](c, ctx, http.MethodGet, "/api/profile-requests/pending")
}

// GetApprovedPhotos returns the photos an approved request exposes to
// the requester.
func (c *Client) GetApprovedPhotos(ctx context.Context, requestID string) ([]Photo, error) {
	return callList[Photo](c, ctx, http.MethodGet, "/api/profile-requests/"+requestID+"/photos")
}

// CreateProfileRequest asks for access to another user's profile.
func (c *Client) CreateProfileRequest(ctx context.Context, targetUserID int64) (*RequestStatus, error) {
	raw, err := c.Call(ctx, http.MethodPost, "/api/profile-requests/create", map[string]any{"target_user_id": targetUserID})
	if err != nil {
		return nil, err
	}
	var status RequestStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode request status: %w", err)
	}
	return &status, nil
}

// RespondToProfileRequest approves or rejects a pending request.
// Approval requires a non-empty photo selection.
func (c *Client) RespondToProfileRequest(ctx context.Context, requestID string, approved bool, photoIDs []int64) error {
	if photoIDs == nil {
		photoIDs = []int64{}
	}
	_, err := c.Call(ctx, http.MethodPost, "/api/profile-requests/"+requestID+"/respond", map[string]any{
		"approved":  approved,
		"photo_ids": photoIDs,
	})
	return err
}

// GetMyPermissions returns the approved requests where the user is the
// target, with the photos each exposes.
func (c *Client) GetMyPermissions(ctx context.Context) ([]Permission, error) {
	return callList[Permission](c, ctx, http.MethodGet, "/api/profile-requests/my-permissions")
}

// UpdatePermissionPhotos replaces the photo selection of an approved
// permission.
func (c *Client) UpdatePermissionPhotos(ctx context.Context, requestID string, photoIDs []int64) error {
	_, err := c.Call(ctx, http.MethodPut, "/api/profile-requests/"+requestID+"/update-photos", map[string]any{
		"photo_ids": photoIDs,
	})
	return err
}

// RevokePermission withdraws an approved permission entirely.
func (c *Client) RevokePermission(ctx context.Context, requestID string) error {
	_, err := c.Call(ctx, http.MethodDelete, "/api/profile-requests/"+requestID+"/revoke", nil)
	return err
}

// GetUserProfile returns another user's public profile. Results are
// cached briefly when a cache is installed.
func (c *Client) GetUserProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	key := fmt.Sprintf("user_profile:%d", userID)
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil {
			var profile UserProfile
			if json.Unmarshal(data, &profile) == nil {
				return &profile, nil
			}
		}
	}

	raw, err := c.Call(ctx, http.MethodGet, fmt.Sprintf("/api/profile-requests/user/%d", userID), nil)
	if err != nil {
		return nil, err
	}
	var profile UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode user profile: %w", err)
	}

	if c.cache != nil {
		if data, err := json.Marshal(&profile); err == nil {
			if err := c.cache.Set(ctx, key, data, cache.TTLUserInfo); err != nil {
				c.logger.Debug("failed to cache user profile", "user_id", userID, "error", err)
			}
		}
	}
	return &profile, nil
}

// GetRequestStatus returns the state of the most recent profile-view
// request toward the target user.
func (c *Client) GetRequestStatus(ctx context.Context, userID int64) (*RequestStatus, error) {
	raw, err := c.Call(ctx, http.MethodGet, fmt.Sprintf("/api/profile-requests/user/%d/request-status", userID), nil)
	if err != nil {
		return nil, err
	}
	var status RequestStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode request status: %w", err)
	}
	return &status, nil
}

// GetUserApprovedPhotos returns the photos of a user that are visible
// to the caller: all of them for a public profile, otherwise public
// plus approved ones.
func (c *Client) GetUserApprovedPhotos(ctx context.Context, userID int64) ([]Photo, error) {
	return callList[Photo](c, ctx, http.MethodGet, fmt.Sprintf("/api/profile-requests/user/%d/approved-photos", userID))
}

// GetScannedTrades returns trades initiated by the user that receivers
// have scanned and that await confirmation.
func (c *Client) GetScannedTrades(ctx context.Context) ([]ScannedTrade, error) {
	return callList[ScannedTrade](c, ctx, http.MethodGet, "/trades/scanned")
}

// ConfirmTrade confirms a scanned trade, transferring ownership.
func (c *Client) ConfirmTrade(ctx context.Context, tradeID string) error {
	_, err := c.Call(ctx, http.MethodPost, "/trades/"+tradeID+"/confirm", nil)
	return err
}

// RejectTrade rejects a scanned trade.
func (c *Client) RejectTrade(ctx context.Context, tradeID string) error {
	_, err := c.Call(ctx, http.MethodPost, "/trades/"+tradeID+"/reject", nil)
	return err
}

// ConfirmTransfer accepts or rejects a pending photo transfer.
func (c *Client) ConfirmTransfer(ctx context.Context, transferID string, accept bool) error {
	path := fmt.Sprintf("/api/transfers/confirm?transfer_id=%s&accept=%t", transferID, accept)
	_, err := c.Call(ctx, http.MethodPost, path, nil)
	return err
}

// callList performs a GET-style call and decodes a JSON array.
// A 204 response yields an empty slice.
func callList[T any](c *Client, ctx context.Context, method, path string) ([]T, error) {
	raw, err := c.Call(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []T{}, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}
