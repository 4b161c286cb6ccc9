package api

// Photo is a photo in the user's collection, owned or imported.
type Photo struct {
	ID         int64  `json:"id"`
	URL        string `json:"url"`
	FileID     string `json:"file_id"`
	OwnerID    int64  `json:"owner_id,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	IsPublic   bool   `json:"is_public"`
	IsImported bool   `json:"is_imported"`
}

// LoginResult is the response to a login or refresh exchange.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	IsNewUser    bool   `json:"is_new_user"`
}

// PendingRequest is a profile-view request awaiting the user's response.
type PendingRequest struct {
	ID          string `json:"id"`
	RequesterID int64  `json:"requester_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at"`
}

// Requester is the embedded requester info on a granted permission.
type Requester struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// Permission is an approved profile-view request where the current
// user is the target, with the photos it exposes.
type Permission struct {
	RequestID        string    `json:"request_id"`
	Requester        Requester `json:"requester"`
	SelectedPhotoIDs []int64   `json:"selected_photo_ids"`
	Photos           []Photo   `json:"photos"`
	CreatedAt        string    `json:"created_at"`
	ExpiresAt        string    `json:"expires_at"`
}

// UserInfo is the public profile of another user.
type UserInfo struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	PhotoURL        string `json:"photo_url"`
	IsPublicProfile bool   `json:"is_public_profile"`
	ContactLink     string `json:"contact_link"`
}

// UserProfile is a user's public profile with its visible photos.
type UserProfile struct {
	User    UserInfo `json:"user"`
	Photos  []Photo  `json:"photos"`
	Message string   `json:"message,omitempty"`
}

// ScannedTrade is a trade the user initiated that a receiver scanned
// and that now awaits the sender's confirmation.
type ScannedTrade struct {
	TradeID     string `json:"trade_id"`
	ArtObjectID int64  `json:"art_object_id"`
	SenderID    int64  `json:"sender_id"`
	ReceiverID  int64  `json:"receiver_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at"`
	FileID      string `json:"file_id"`
}

// PhotoUsage describes where an in-use photo is referenced.
type PhotoUsage struct {
	PhotoID              int64 `json:"photo_id"`
	InProfileRequests    bool  `json:"in_profile_requests"`
	InTrades             bool  `json:"in_trades"`
	InTransfers          bool  `json:"in_transfers"`
	ProfileRequestsCount int   `json:"profile_requests_count"`
	TradesCount          int   `json:"trades_count"`
	TransfersCount       int   `json:"transfers_count"`
}

// UsageReport is the result of a photo usage check before deletion.
type UsageReport struct {
	UsedPhotos   []PhotoUsage `json:"used_photos"`
	UnusedPhotos []int64      `json:"unused_photos"`
}

// RequestStatus is the state of an existing request toward a target.
type RequestStatus struct {
	HasRequest bool   `json:"has_request"`
	Status     string `json:"status"`
	RequestID  string `json:"request_id"`
}
