package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/access"
	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/store"
)

type stubOwnershipChecker struct {
	owners    map[string]bool
	callCount int
	err       error
}

func (checker *stubOwnershipChecker) IsOrganizationOwner(_ context.Context, viewerID string, _ string) (bool, error) {
	checker.callCount++
	if checker.err != nil {
		return false, checker.err
	}
	return checker.owners[viewerID], nil
}

type memoryOwnershipCache struct {
	records map[string]store.OwnershipRecord
}

func newMemoryOwnershipCache() *memoryOwnershipCache {
	return &memoryOwnershipCache{records: make(map[string]store.OwnershipRecord)}
}

func (cache *memoryOwnershipCache) GetOwnership(_ context.Context, viewerID string, organizationID string, currentTime time.Time) (store.OwnershipRecord, bool, error) {
	record, recordFound := cache.records[viewerID+"|"+organizationID]
	if !recordFound || !currentTime.Before(record.ExpiresAt) {
		return store.OwnershipRecord{}, false, nil
	}
	return record, true, nil
}

func (cache *memoryOwnershipCache) SaveOwnership(_ context.Context, record store.OwnershipRecord) error {
	cache.records[record.ViewerID+"|"+record.OrganizationID] = record
	return nil
}

func fixedClock(moment time.Time) func() time.Time {
	return func() time.Time { return moment }
}

func TestResolveTier(testInstance *testing.T) {
	currentMoment := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	deadlineBefore := currentMoment.Add(-time.Second)
	deadlineAfter := currentMoment.Add(time.Second)

	testCases := []struct {
		name         string
		audit        models.Audit
		viewerID     string
		ownerIDs     map[string]bool
		expectedTier access.Tier
	}{
		{
			name:         "anonymous_viewer_gets_public",
			audit:        models.Audit{RequesterID: "user-1"},
			viewerID:     "",
			expectedTier: access.TierPublic,
		},
		{
			name:         "requester_gets_requester_tier",
			audit:        models.Audit{RequesterID: "user-1"},
			viewerID:     "user-1",
			expectedTier: access.TierRequester,
		},
		{
			name:         "organization_owner_gets_owner_tier",
			audit:        models.Audit{RequesterID: "user-1"},
			viewerID:     "owner-1",
			ownerIDs:     map[string]bool{"owner-1": true},
			expectedTier: access.TierOwner,
		},
		{
			name:         "unrelated_viewer_gets_public",
			audit:        models.Audit{RequesterID: "user-1"},
			viewerID:     "stranger-1",
			expectedTier: access.TierPublic,
		},
		{
			name:         "published_audit_escalates_everyone",
			audit:        models.Audit{RequesterID: "user-1", IsPublic: true},
			viewerID:     "stranger-1",
			expectedTier: access.TierOwner,
		},
		{
			name:         "deadline_one_second_past_escalates_anonymous_viewer",
			audit:        models.Audit{RequesterID: "user-1", OwnerNotified: true, PublishableAfter: &deadlineBefore},
			viewerID:     "",
			expectedTier: access.TierOwner,
		},
		{
			name:         "deadline_one_second_away_keeps_requester_tier",
			audit:        models.Audit{RequesterID: "user-1", OwnerNotified: true, PublishableAfter: &deadlineAfter},
			viewerID:     "user-1",
			expectedTier: access.TierRequester,
		},
		{
			name:         "deadline_without_notification_never_escalates",
			audit:        models.Audit{RequesterID: "user-1", OwnerNotified: false, PublishableAfter: &deadlineBefore},
			viewerID:     "stranger-1",
			expectedTier: access.TierPublic,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			checker := &stubOwnershipChecker{owners: testCase.ownerIDs}
			resolver := access.NewResolver(checker, newMemoryOwnershipCache(), 0, fixedClock(currentMoment), zap.NewNop())

			tier, resolveError := resolver.ResolveTier(context.Background(), testCase.audit, testCase.viewerID, "org-1")
			require.NoError(testInstance, resolveError)
			require.Equal(testInstance, testCase.expectedTier, tier)
		})
	}
}

func TestResolveTierCachesOwnership(testInstance *testing.T) {
	currentMoment := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	checker := &stubOwnershipChecker{owners: map[string]bool{"owner-1": true}}
	cache := newMemoryOwnershipCache()
	resolver := access.NewResolver(checker, cache, 15*time.Minute, fixedClock(currentMoment), zap.NewNop())

	for lookupIndex := 0; lookupIndex < 3; lookupIndex++ {
		tier, resolveError := resolver.ResolveTier(context.Background(), models.Audit{RequesterID: "user-1"}, "owner-1", "org-1")
		require.NoError(testInstance, resolveError)
		require.Equal(testInstance, access.TierOwner, tier)
	}
	require.Equal(testInstance, 1, checker.callCount)
}

func TestResolveTierFailsClosedOnCheckerError(testInstance *testing.T) {
	checker := &stubOwnershipChecker{err: errors.New("membership api unavailable")}
	resolver := access.NewResolver(checker, newMemoryOwnershipCache(), 0, nil, zap.NewNop())

	tier, resolveError := resolver.ResolveTier(context.Background(), models.Audit{RequesterID: "user-1"}, "maybe-owner", "org-1")
	require.Error(testInstance, resolveError)
	require.Equal(testInstance, access.TierPublic, tier)
}

func TestRedactFindings(testInstance *testing.T) {
	findings := []models.Finding{
		{ID: "low-1", Severity: models.SeverityLow, Status: models.FindingStatusOpen, Repository: "gateway", Title: "Verbose errors", FilePath: "api/errors.go", LineStart: 4, LineEnd: 9},
		{ID: "high-1", Severity: models.SeverityHigh, Status: models.FindingStatusOpen, Repository: "gateway", CWEID: "CWE-89", Title: "SQL injection", Description: "Raw concatenation", CodeSnippet: "query := \"SELECT\" + input", FilePath: "api/query.go", LineStart: 40, LineEnd: 44, CVSSScore: 8.6},
	}

	testInstance.Run("owner_sees_everything", func(testInstance *testing.T) {
		views := access.RedactFindings(findings, access.TierOwner)
		require.Len(testInstance, views, 2)
		require.NotNil(testInstance, views[1].Title)
		require.Equal(testInstance, "SQL injection", *views[1].Title)
		require.NotNil(testInstance, views[1].CodeSnippet)
		require.Empty(testInstance, views[1].RedactionNotice)
	})

	testInstance.Run("requester_sees_low_fully_and_high_reduced", func(testInstance *testing.T) {
		views := access.RedactFindings(findings, access.TierRequester)
		require.Len(testInstance, views, 2)

		lowView := views[0]
		require.NotNil(testInstance, lowView.Title)
		require.Equal(testInstance, "Verbose errors", *lowView.Title)

		highView := views[1]
		require.Equal(testInstance, "high-1", highView.ID)
		require.Equal(testInstance, models.SeverityHigh, highView.Severity)
		require.Equal(testInstance, "CWE-89", highView.CWEID)
		require.Equal(testInstance, "gateway", highView.Repository)
		require.Nil(testInstance, highView.Title)
		require.Nil(testInstance, highView.Description)
		require.Nil(testInstance, highView.CodeSnippet)
		require.Nil(testInstance, highView.FilePath)
		require.Nil(testInstance, highView.LineStart)
		require.Nil(testInstance, highView.LineEnd)
		require.Nil(testInstance, highView.CVSSScore)
		require.NotEmpty(testInstance, highView.RedactionNotice)
	})

	testInstance.Run("public_sees_no_findings", func(testInstance *testing.T) {
		views := access.RedactFindings(findings, access.TierPublic)
		require.NotNil(testInstance, views)
		require.Empty(testInstance, views)
	})
}

func TestRedactAudit(testInstance *testing.T) {
	audit := models.Audit{
		ID:               "audit-1",
		ProjectID:        "project-1",
		Level:            models.AuditLevelFull,
		Status:           models.AuditStatusCompleted,
		MaxSeverity:      models.SeverityHigh,
		ExecutiveSummary: "One injection issue.",
		CommitPins:       map[string]string{"gateway": "abc123"},
		EstimatedCost:    1.25,
		ActualCost:       1.10,
	}
	counts := models.SeverityCounts{High: 1}

	ownerView := access.RedactAudit(audit, counts, access.TierOwner)
	require.Equal(testInstance, counts, ownerView.SeverityCounts)
	require.Equal(testInstance, "One injection issue.", ownerView.ExecutiveSummary)
	require.NotNil(testInstance, ownerView.ActualCost)
	require.Equal(testInstance, "abc123", ownerView.CommitPins["gateway"])

	publicView := access.RedactAudit(audit, counts, access.TierPublic)
	require.Equal(testInstance, counts, publicView.SeverityCounts)
	require.Equal(testInstance, "One injection issue.", publicView.ExecutiveSummary)
	require.Nil(testInstance, publicView.ActualCost)
	require.Nil(testInstance, publicView.CommitPins)
	require.Empty(testInstance, publicView.ErrorMessage)
}
