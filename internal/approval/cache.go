// Package approval tracks which grant announcements the user has
// already seen, so a re-announced grant does not raise a second popup.
// Markers are durable and survive restarts.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/whitea-cloud/photoshare-go/internal/logutil"
	"github.com/whitea-cloud/photoshare-go/internal/store"
)

// Cache wraps the durable approval store. It is advisory: storage
// errors degrade to "not seen" and are logged, never surfaced.
type Cache struct {
	approvals store.ApprovalStore
	logger    *slog.Logger
}

// New creates an approval cache over the given store.
func New(approvals store.ApprovalStore, logger *slog.Logger) *Cache {
	return &Cache{
		approvals: approvals,
		logger:    logutil.NoopIfNil(logger),
	}
}

// Seen reports whether this exact grant was already announced: a
// marker for the target exists and carries the same request id.
func (c *Cache) Seen(ctx context.Context, targetID int64, requestID string) bool {
	marker, err := c.approvals.GetApproval(ctx, targetID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to read approval marker", "target_id", targetID, "error", err)
		}
		return false
	}
	return marker.RequestID == requestID
}

// Record stores the marker for an announced grant.
func (c *Cache) Record(ctx context.Context, targetID int64, requestID string) {
	err := c.approvals.PutApproval(ctx, &store.ApprovalMarker{
		TargetID:   targetID,
		RequestID:  requestID,
		ApprovedAt: time.Now().Unix(),
	})
	if err != nil {
		c.logger.Warn("failed to store approval marker", "target_id", targetID, "error", err)
	}
}

// Invalidate drops the marker after a rejection or a full revocation.
func (c *Cache) Invalidate(ctx context.Context, targetID int64) {
	if err := c.approvals.DeleteApproval(ctx, targetID); err != nil {
		c.logger.Warn("failed to delete approval marker", "target_id", targetID, "error", err)
	}
}
