package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	ownershipSaveTemplateConstant   = "caching ownership for %s/%s: %w"
	ownershipSelectTemplateConstant = "reading ownership cache for %s/%s: %w"
)

// OwnershipRecord is one cached ownership-check result keyed by viewer and
// organization. The expiry is stored as an absolute timestamp so concurrent
// workers share a single authority instead of in-process memoization.
type OwnershipRecord struct {
	ViewerID       string
	OrganizationID string
	IsOwner        bool
	ExpiresAt      time.Time
}

// GetOwnership returns the cached record, reporting found=false on a miss.
// Expired records are reported as misses; expiry is evaluated by the caller's
// clock, passed in to keep the store free of time policy.
func (persistentStore *Store) GetOwnership(executionContext context.Context, viewerID string, organizationID string, currentTime time.Time) (OwnershipRecord, bool, error) {
	var record OwnershipRecord
	var isOwner int
	var expiresAt string

	selectError := persistentStore.database.QueryRowContext(executionContext,
		`SELECT is_owner, expires_at FROM ownership_cache WHERE viewer_id = ? AND organization_id = ?`,
		viewerID, organizationID).Scan(&isOwner, &expiresAt)
	if errors.Is(selectError, sql.ErrNoRows) {
		return OwnershipRecord{}, false, nil
	}
	if selectError != nil {
		return OwnershipRecord{}, false, fmt.Errorf(ownershipSelectTemplateConstant, viewerID, organizationID, selectError)
	}

	record = OwnershipRecord{
		ViewerID:       viewerID,
		OrganizationID: organizationID,
		IsOwner:        isOwner != 0,
		ExpiresAt:      decodeTime(expiresAt),
	}
	if !currentTime.Before(record.ExpiresAt) {
		return OwnershipRecord{}, false, nil
	}
	return record, true, nil
}

// SaveOwnership stores or refreshes a cached ownership-check result.
func (persistentStore *Store) SaveOwnership(executionContext context.Context, record OwnershipRecord) error {
	_, upsertError := persistentStore.database.ExecContext(executionContext, `
		INSERT INTO ownership_cache (viewer_id, organization_id, is_owner, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(viewer_id, organization_id) DO UPDATE SET
			is_owner = excluded.is_owner, expires_at = excluded.expires_at`,
		record.ViewerID, record.OrganizationID, encodeBool(record.IsOwner), encodeTime(record.ExpiresAt))
	if upsertError != nil {
		return fmt.Errorf(ownershipSaveTemplateConstant, record.ViewerID, record.OrganizationID, upsertError)
	}
	return nil
}
