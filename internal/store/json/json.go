// Package json implements a JSON file-based persistence driver.
// It uses atomic writes (temp file + fsync + rename) and in-process locking.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/whitea-cloud/photoshare-go/internal/store"
)

func init() {
	store.Register("json", NewDriver)
}

// Driver implements the store driver interface using JSON files.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	// In-memory state loaded from JSON, keyed by stringified id
	credentials map[string]*store.Credentials
	approvals   map[string]*store.ApprovalMarker
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:     cfg.DataDir,
		credentials: make(map[string]*store.Credentials),
		approvals:   make(map[string]*store.ApprovalMarker),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from JSON files.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if err := d.loadFile("credentials.json", &d.credentials); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if err := d.loadFile("approvals.json", &d.approvals); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load approvals: %w", err)
	}

	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) loadFile(filename string, target interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// saveFile atomically writes data to a JSON file.
// Pattern: write to temp file, fsync, rename.
func (d *Driver) saveFile(filename string, data interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// CredentialStore implementation

// PutCredentials inserts or replaces the credentials for a user.
func (d *Driver) PutCredentials(ctx context.Context, creds *store.Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	cp := *creds
	d.credentials[idKey(creds.UserID)] = &cp

	return d.saveFile("credentials.json", d.credentials)
}

// GetCredentials retrieves the credentials for a user.
func (d *Driver) GetCredentials(ctx context.Context, userID int64) (*store.Credentials, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	creds, ok := d.credentials[idKey(userID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *creds
	return &cp, nil
}

// DeleteCredentials removes the credentials for a user.
func (d *Driver) DeleteCredentials(ctx context.Context, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, ok := d.credentials[idKey(userID)]; !ok {
		return store.ErrNotFound
	}
	delete(d.credentials, idKey(userID))

	return d.saveFile("credentials.json", d.credentials)
}

// ApprovalStore implementation

// PutApproval inserts or replaces an approval marker.
func (d *Driver) PutApproval(ctx context.Context, marker *store.ApprovalMarker) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	cp := *marker
	d.approvals[idKey(marker.TargetID)] = &cp

	return d.saveFile("approvals.json", d.approvals)
}

// GetApproval retrieves the approval marker for a target user.
func (d *Driver) GetApproval(ctx context.Context, targetID int64) (*store.ApprovalMarker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	marker, ok := d.approvals[idKey(targetID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *marker
	return &cp, nil
}

// DeleteApproval removes the approval marker for a target user.
// Deleting a missing marker is not an error.
func (d *Driver) DeleteApproval(ctx context.Context, targetID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, ok := d.approvals[idKey(targetID)]; !ok {
		return nil
	}
	delete(d.approvals, idKey(targetID))

	return d.saveFile("approvals.json", d.approvals)
}

// ListApprovals returns all approval markers.
func (d *Driver) ListApprovals(ctx context.Context) ([]*store.ApprovalMarker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	markers := make([]*store.ApprovalMarker, 0, len(d.approvals))
	for _, m := range d.approvals {
		cp := *m
		markers = append(markers, &cp)
	}
	return markers, nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.ClientStore = (*Driver)(nil)
