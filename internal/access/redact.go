package access

import (
	"time"

	"github.com/temirov/codesentry/internal/models"
)

const redactionNoticeConstant = "details withheld until the project owner publishes this audit"

// FindingView is the tier-adjusted representation of one finding. Nullable
// fields are cleared, not zeroed, when a tier withholds them.
type FindingView struct {
	ID              string               `json:"id"`
	Severity        models.Severity      `json:"severity"`
	Status          models.FindingStatus `json:"status"`
	Repository      string               `json:"repository"`
	CWEID           string               `json:"cwe_id,omitempty"`
	Title           *string              `json:"title"`
	Description     *string              `json:"description"`
	Exploitation    *string              `json:"exploitation"`
	Recommendation  *string              `json:"recommendation"`
	CodeSnippet     *string              `json:"code_snippet"`
	FilePath        *string              `json:"file_path"`
	LineStart       *int                 `json:"line_start"`
	LineEnd         *int                 `json:"line_end"`
	CVSSScore       *float64             `json:"cvss_score"`
	Component       *string              `json:"component"`
	RedactionNotice string               `json:"redaction_notice,omitempty"`
}

// AuditView is the tier-adjusted representation of an audit. Severity counts
// and the executive summary are visible at every tier; costs, pins, and the
// failure message are owner-only.
type AuditView struct {
	ID               string                `json:"id"`
	ProjectID        string                `json:"project_id"`
	Level            models.AuditLevel     `json:"level"`
	Status           models.AuditStatus    `json:"status"`
	MaxSeverity      models.Severity       `json:"max_severity"`
	SeverityCounts   models.SeverityCounts `json:"severity_counts"`
	ExecutiveSummary string                `json:"executive_summary"`
	IsPublic         bool                  `json:"is_public"`
	CreatedAt        time.Time             `json:"created_at"`
	CompletedAt      *time.Time            `json:"completed_at,omitempty"`
	CommitPins       map[string]string     `json:"commit_pins,omitempty"`
	EstimatedCost    *float64              `json:"estimated_cost,omitempty"`
	ActualCost       *float64              `json:"actual_cost,omitempty"`
	ErrorMessage     string                `json:"error_message,omitempty"`
}

// RedactAudit shapes the audit for the viewer's tier.
func RedactAudit(audit models.Audit, counts models.SeverityCounts, tier Tier) AuditView {
	view := AuditView{
		ID:               audit.ID,
		ProjectID:        audit.ProjectID,
		Level:            audit.Level,
		Status:           audit.Status,
		MaxSeverity:      audit.MaxSeverity,
		SeverityCounts:   counts,
		ExecutiveSummary: audit.ExecutiveSummary,
		IsPublic:         audit.IsPublic,
		CreatedAt:        audit.CreatedAt,
		CompletedAt:      audit.CompletedAt,
	}
	if tier == TierOwner {
		view.CommitPins = audit.CommitPins
		view.EstimatedCost = &audit.EstimatedCost
		view.ActualCost = &audit.ActualCost
		view.ErrorMessage = audit.ErrorMessage
	}
	return view
}

// RedactFindings shapes the finding list for the viewer's tier. The public
// tier sees no findings at all; the requester tier sees full detail for
// informational and low findings and a reduced record above that; the owner
// tier sees everything.
func RedactFindings(findings []models.Finding, tier Tier) []FindingView {
	if tier == TierPublic {
		return []FindingView{}
	}

	views := make([]FindingView, 0, len(findings))
	for _, finding := range findings {
		if tier == TierRequester && finding.Severity.Rank() >= models.SeverityMedium.Rank() {
			views = append(views, redactedView(finding))
			continue
		}
		views = append(views, fullView(finding))
	}
	return views
}

func fullView(finding models.Finding) FindingView {
	return FindingView{
		ID:             finding.ID,
		Severity:       finding.Severity,
		Status:         finding.Status,
		Repository:     finding.Repository,
		CWEID:          finding.CWEID,
		Title:          stringPointer(finding.Title),
		Description:    stringPointer(finding.Description),
		Exploitation:   stringPointer(finding.Exploitation),
		Recommendation: stringPointer(finding.Recommendation),
		CodeSnippet:    stringPointer(finding.CodeSnippet),
		FilePath:       stringPointer(finding.FilePath),
		LineStart:      intPointer(finding.LineStart),
		LineEnd:        intPointer(finding.LineEnd),
		CVSSScore:      floatPointer(finding.CVSSScore),
		Component:      stringPointer(finding.Component),
	}
}

func redactedView(finding models.Finding) FindingView {
	return FindingView{
		ID:              finding.ID,
		Severity:        finding.Severity,
		Status:          finding.Status,
		Repository:      finding.Repository,
		CWEID:           finding.CWEID,
		RedactionNotice: redactionNoticeConstant,
	}
}

func stringPointer(value string) *string  { return &value }
func intPointer(value int) *int           { return &value }
func floatPointer(value float64) *float64 { return &value }
