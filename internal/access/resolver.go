// Package access decides how much of an audit a viewer may see. There are
// three tiers: the project owner sees everything, the audit requester sees
// full detail only below medium severity, and everyone else sees aggregates.
// Publication, manual or by disclosure deadline, escalates every viewer to
// the owner tier.
package access

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/store"
)

// Tier names a viewer's access level for one audit.
type Tier string

// Access tiers from most to least privileged.
const (
	TierOwner     Tier = "owner"
	TierRequester Tier = "requester"
	TierPublic    Tier = "public"
)

const defaultOwnershipTTLConstant = 15 * time.Minute

const (
	ownershipLookupTemplateConstant = "checking ownership of organization %s: %w"

	ownershipCachedMessageConstant     = "ownership resolved from cache"
	ownershipResolvedMessageConstant   = "ownership resolved from checker"
	ownershipCacheWriteMessageConstant = "caching ownership result failed"

	logFieldViewerIDConstant       = "viewer_id"
	logFieldOrganizationIDConstant = "organization_id"
	logFieldIsOwnerConstant        = "is_owner"
)

// OwnershipChecker answers whether a viewer belongs to an organization's
// owner group. Implementations typically call the forge's membership API.
type OwnershipChecker interface {
	IsOrganizationOwner(executionContext context.Context, viewerID string, organizationID string) (bool, error)
}

// OwnershipCache stores ownership answers with an absolute expiry.
type OwnershipCache interface {
	GetOwnership(executionContext context.Context, viewerID string, organizationID string, currentTime time.Time) (store.OwnershipRecord, bool, error)
	SaveOwnership(executionContext context.Context, record store.OwnershipRecord) error
}

// Resolver computes the tier for a viewer and audit pair.
type Resolver struct {
	checker      OwnershipChecker
	cache        OwnershipCache
	ownershipTTL time.Duration
	clock        func() time.Time
	logger       *zap.Logger
}

// NewResolver constructs a Resolver. A zero ttl falls back to fifteen
// minutes; a nil clock falls back to time.Now.
func NewResolver(checker OwnershipChecker, cache OwnershipCache, ownershipTTL time.Duration, clock func() time.Time, logger *zap.Logger) *Resolver {
	if ownershipTTL <= 0 {
		ownershipTTL = defaultOwnershipTTLConstant
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{checker: checker, cache: cache, ownershipTTL: ownershipTTL, clock: clock, logger: logger}
}

// ResolveTier returns the viewer's tier for the audit. Publication, whether
// flagged manually or reached through the disclosure deadline, grants the
// owner tier to every viewer including anonymous ones. Ownership checks fail
// closed: an errored membership lookup never grants the owner tier.
func (resolver *Resolver) ResolveTier(executionContext context.Context, audit models.Audit, viewerID string, organizationID string) (Tier, error) {
	currentTime := resolver.clock()
	if audit.IsPublic || audit.AutoPublished(currentTime) {
		return TierOwner, nil
	}
	if len(viewerID) == 0 {
		return TierPublic, nil
	}

	isOwner, ownershipError := resolver.isOwner(executionContext, viewerID, organizationID, currentTime)
	if ownershipError != nil {
		return TierPublic, ownershipError
	}
	if isOwner {
		return TierOwner, nil
	}
	if viewerID == audit.RequesterID {
		return TierRequester, nil
	}
	return TierPublic, nil
}

func (resolver *Resolver) isOwner(executionContext context.Context, viewerID string, organizationID string, currentTime time.Time) (bool, error) {
	cachedRecord, cacheHit, cacheError := resolver.cache.GetOwnership(executionContext, viewerID, organizationID, currentTime)
	if cacheError == nil && cacheHit {
		resolver.logger.Debug(ownershipCachedMessageConstant,
			zap.String(logFieldViewerIDConstant, viewerID),
			zap.String(logFieldOrganizationIDConstant, organizationID),
			zap.Bool(logFieldIsOwnerConstant, cachedRecord.IsOwner))
		return cachedRecord.IsOwner, nil
	}

	isOwner, checkError := resolver.checker.IsOrganizationOwner(executionContext, viewerID, organizationID)
	if checkError != nil {
		return false, fmt.Errorf(ownershipLookupTemplateConstant, organizationID, checkError)
	}

	saveError := resolver.cache.SaveOwnership(executionContext, store.OwnershipRecord{
		ViewerID:       viewerID,
		OrganizationID: organizationID,
		IsOwner:        isOwner,
		ExpiresAt:      currentTime.Add(resolver.ownershipTTL),
	})
	if saveError != nil {
		resolver.logger.Warn(ownershipCacheWriteMessageConstant, zap.Error(saveError))
	}

	resolver.logger.Debug(ownershipResolvedMessageConstant,
		zap.String(logFieldViewerIDConstant, viewerID),
		zap.String(logFieldOrganizationIDConstant, organizationID),
		zap.Bool(logFieldIsOwnerConstant, isOwner))
	return isOwner, nil
}
