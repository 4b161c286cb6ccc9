// Package store provides persistence primitives and driver abstractions
// for durable client state.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (json, sqlite).
	Name() string
}

// CredentialStore defines operations for persisted session credentials.
type CredentialStore interface {
	PutCredentials(ctx context.Context, creds *Credentials) error
	GetCredentials(ctx context.Context, userID int64) (*Credentials, error)
	DeleteCredentials(ctx context.Context, userID int64) error
}

// ApprovalStore defines operations for durable approval markers.
type ApprovalStore interface {
	PutApproval(ctx context.Context, marker *ApprovalMarker) error
	GetApproval(ctx context.Context, targetID int64) (*ApprovalMarker, error)
	DeleteApproval(ctx context.Context, targetID int64) error
	ListApprovals(ctx context.Context) ([]*ApprovalMarker, error)
}

// ClientStore combines everything a full driver implements.
type ClientStore interface {
	Driver
	CredentialStore
	ApprovalStore
}

// Credentials is the persisted token pair for a user session.
// The access token is short-lived; the refresh token renews it.
type Credentials struct {
	UserID       int64  `json:"user_id" gorm:"primaryKey"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UpdatedAt    int64  `json:"updated_at"`
}

// ApprovalMarker records that a profile-view request for a target user
// was approved. It suppresses a repeat approval popup when the server
// re-announces a grant the user has already seen.
type ApprovalMarker struct {
	TargetID   int64  `json:"target_id" gorm:"primaryKey"`
	RequestID  string `json:"request_id"`
	ApprovedAt int64  `json:"approved_at"`
}
