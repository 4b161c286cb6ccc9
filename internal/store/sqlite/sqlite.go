// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/whitea-cloud/photoshare-go/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(d.dataDir, "photoshare.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(
		&store.Credentials{},
		&store.ApprovalMarker{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CredentialStore implementation

// PutCredentials inserts or replaces the credentials for a user.
func (d *Driver) PutCredentials(ctx context.Context, creds *store.Credentials) error {
	return d.db.WithContext(ctx).Save(creds).Error
}

// GetCredentials retrieves the credentials for a user.
func (d *Driver) GetCredentials(ctx context.Context, userID int64) (*store.Credentials, error) {
	var creds store.Credentials
	result := d.db.WithContext(ctx).First(&creds, "user_id = ?", userID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &creds, nil
}

// DeleteCredentials removes the credentials for a user.
func (d *Driver) DeleteCredentials(ctx context.Context, userID int64) error {
	result := d.db.WithContext(ctx).Delete(&store.Credentials{}, "user_id = ?", userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ApprovalStore implementation

// PutApproval inserts or replaces an approval marker.
func (d *Driver) PutApproval(ctx context.Context, marker *store.ApprovalMarker) error {
	return d.db.WithContext(ctx).Save(marker).Error
}

// GetApproval retrieves the approval marker for a target user.
func (d *Driver) GetApproval(ctx context.Context, targetID int64) (*store.ApprovalMarker, error) {
	var marker store.ApprovalMarker
	result := d.db.WithContext(ctx).First(&marker, "target_id = ?", targetID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &marker, nil
}

// DeleteApproval removes the approval marker for a target user.
// Deleting a missing marker is not an error.
func (d *Driver) DeleteApproval(ctx context.Context, targetID int64) error {
	return d.db.WithContext(ctx).Delete(&store.ApprovalMarker{}, "target_id = ?", targetID).Error
}

// ListApprovals returns all approval markers.
func (d *Driver) ListApprovals(ctx context.Context) ([]*store.ApprovalMarker, error) {
	var markers []*store.ApprovalMarker
	if err := d.db.WithContext(ctx).Find(&markers).Error; err != nil {
		return nil, err
	}
	return markers, nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.ClientStore = (*Driver)(nil)
