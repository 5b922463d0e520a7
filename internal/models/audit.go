package models

import "time"

// AuditLevel names a coverage/cost tier controlling the token budget for file selection.
type AuditLevel string

// Supported audit levels.
const (
	AuditLevelFull          AuditLevel = "full"
	AuditLevelThorough      AuditLevel = "thorough"
	AuditLevelOpportunistic AuditLevel = "opportunistic"
)

// IsValid reports whether the level is one of the supported tiers.
func (level AuditLevel) IsValid() bool {
	switch level {
	case AuditLevelFull, AuditLevelThorough, AuditLevelOpportunistic:
		return true
	}
	return false
}

// AuditStatus enumerates the orchestrator's phase state machine.
type AuditStatus string

// Audit statuses in transition order. Failed is the absorbing failure state.
const (
	AuditStatusPending               AuditStatus = "pending"
	AuditStatusCloning               AuditStatus = "cloning"
	AuditStatusClassifying           AuditStatus = "classifying"
	AuditStatusPlanning              AuditStatus = "planning"
	AuditStatusAnalyzing             AuditStatus = "analyzing"
	AuditStatusSynthesizing          AuditStatus = "synthesizing"
	AuditStatusCompleted             AuditStatus = "completed"
	AuditStatusCompletedWithWarnings AuditStatus = "completed_with_warnings"
	AuditStatusFailed                AuditStatus = "failed"
)

// IsTerminal reports whether the status ends the audit lifecycle.
func (status AuditStatus) IsTerminal() bool {
	switch status {
	case AuditStatusCompleted, AuditStatusCompletedWithWarnings, AuditStatusFailed:
		return true
	}
	return false
}

var statusRankMapping = map[AuditStatus]int{
	AuditStatusPending:               0,
	AuditStatusCloning:               1,
	AuditStatusClassifying:           2,
	AuditStatusPlanning:              3,
	AuditStatusAnalyzing:             4,
	AuditStatusSynthesizing:          5,
	AuditStatusCompleted:             6,
	AuditStatusCompletedWithWarnings: 6,
	AuditStatusFailed:                6,
}

// CanTransitionTo reports whether moving from the receiver to the target status
// respects the monotonic state machine. Failed is reachable from any
// non-terminal working state; no transition leaves a terminal state.
func (status AuditStatus) CanTransitionTo(target AuditStatus) bool {
	if status.IsTerminal() {
		return false
	}
	if target == AuditStatusFailed {
		return true
	}
	currentRank, currentKnown := statusRankMapping[status]
	targetRank, targetKnown := statusRankMapping[target]
	if !currentKnown || !targetKnown {
		return false
	}
	return targetRank > currentRank
}

// Audit is one security-review run over a project's repositories at pinned commits.
type Audit struct {
	ID               string
	ProjectID        string
	RequesterID      string
	Level            AuditLevel
	Status           AuditStatus
	BaseAuditID      string
	CommitPins       map[string]string
	FileCount        int
	TokenCount       int
	EstimatedCost    float64
	ActualCost       float64
	MaxSeverity      Severity
	ExecutiveSummary string
	IsPublic         bool
	OwnerNotified    bool
	OwnerNotifiedAt  *time.Time
	PublishableAfter *time.Time
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// IsIncremental reports whether the audit reuses a base audit's findings and pins.
func (audit Audit) IsIncremental() bool {
	return len(audit.BaseAuditID) > 0
}

// AutoPublished reports whether the disclosure deadline has passed without
// manual publication, escalating every viewer to the owner tier.
func (audit Audit) AutoPublished(currentTime time.Time) bool {
	if audit.PublishableAfter == nil || !audit.OwnerNotified {
		return false
	}
	return !currentTime.Before(*audit.PublishableAfter)
}

// AuditPlanEntry is one ranked, budget-selected file persisted on the audit.
type AuditPlanEntry struct {
	Repository string
	Path       string
	Tokens     int
	Priority   int
	Reason     string
}

// ScannedFile is an ephemeral per-run record produced by the repository scanner.
type ScannedFile struct {
	Repository  string
	Path        string
	RoughTokens int
}

// RankedFile pairs a scanned path with the ranking call's priority and justification.
type RankedFile struct {
	Path     string
	Priority int
	Reason   string
}

// DiffResult categorizes file-level changes between a base and head commit.
// The four sets are disjoint; Renamed maps old path to new path.
type DiffResult struct {
	Added    []string
	Modified []string
	Deleted  []string
	Renamed  map[string]string
}

// ChangedPaths returns the paths scheduled for re-analysis: added, modified,
// and the new names of renamed files.
func (diff DiffResult) ChangedPaths() []string {
	changed := make([]string, 0, len(diff.Added)+len(diff.Modified)+len(diff.Renamed))
	changed = append(changed, diff.Added...)
	changed = append(changed, diff.Modified...)
	for _, renamedPath := range diff.Renamed {
		changed = append(changed, renamedPath)
	}
	return changed
}

// ProjectClassification captures the one-time project categorization used as
// ranking context. Persisted per project; audits after the first skip the
// classifying phase.
type ProjectClassification struct {
	ProjectID   string
	Category    string
	Description string
	ThreatModel string
	CreatedAt   time.Time
}
