package models

import "time"

// Severity orders findings from informational to critical.
type Severity string

// Severities in ascending order of impact.
const (
	SeverityInformational Severity = "informational"
	SeverityLow           Severity = "low"
	SeverityMedium        Severity = "medium"
	SeverityHigh          Severity = "high"
	SeverityCritical      Severity = "critical"
)

var severityRankMapping = map[Severity]int{
	SeverityInformational: 0,
	SeverityLow:           1,
	SeverityMedium:        2,
	SeverityHigh:          3,
	SeverityCritical:      4,
}

// Rank returns the severity's position in the total order; unknown severities rank lowest.
func (severity Severity) Rank() int {
	return severityRankMapping[severity]
}

// IsValid reports whether the severity is one of the five known values.
func (severity Severity) IsValid() bool {
	_, known := severityRankMapping[severity]
	return known
}

// MaxSeverity returns the highest severity present, or informational for an empty set.
func MaxSeverity(severities []Severity) Severity {
	maximum := SeverityInformational
	for _, candidate := range severities {
		if candidate.Rank() > maximum.Rank() {
			maximum = candidate
		}
	}
	return maximum
}

// FindingStatus tracks the lifecycle of one identified issue.
type FindingStatus string

// Finding statuses. Findings are never deleted, only status-transitioned.
const (
	FindingStatusOpen          FindingStatus = "open"
	FindingStatusFixed         FindingStatus = "fixed"
	FindingStatusFalsePositive FindingStatus = "false_positive"
	FindingStatusAccepted      FindingStatus = "accepted"
	FindingStatusWontFix       FindingStatus = "wont_fix"
)

// IsValid reports whether the status is one of the supported values.
func (status FindingStatus) IsValid() bool {
	switch status {
	case FindingStatusOpen, FindingStatusFixed, FindingStatusFalsePositive, FindingStatusAccepted, FindingStatusWontFix:
		return true
	}
	return false
}

// Finding is one identified security issue attached to an audit.
type Finding struct {
	ID                string
	AuditID           string
	Repository        string
	FilePath          string
	LineStart         int
	LineEnd           int
	Severity          Severity
	Fingerprint       string
	Title             string
	Description       string
	Exploitation      string
	Recommendation    string
	CodeSnippet       string
	CWEID             string
	CVSSScore         float64
	Component         string
	Status            FindingStatus
	ResolvedInAuditID string
	CreatedAt         time.Time
}

// SeverityCounts tallies findings per severity for aggregate reporting.
type SeverityCounts struct {
	Informational int `json:"informational"`
	Low           int `json:"low"`
	Medium        int `json:"medium"`
	High          int `json:"high"`
	Critical      int `json:"critical"`
}

// Total returns the sum across all severities.
func (counts SeverityCounts) Total() int {
	return counts.Informational + counts.Low + counts.Medium + counts.High + counts.Critical
}

// CountSeverities aggregates per-severity totals for a finding set.
func CountSeverities(findings []Finding) SeverityCounts {
	var counts SeverityCounts
	for _, finding := range findings {
		switch finding.Severity {
		case SeverityInformational:
			counts.Informational++
		case SeverityLow:
			counts.Low++
		case SeverityMedium:
			counts.Medium++
		case SeverityHigh:
			counts.High++
		case SeverityCritical:
			counts.Critical++
		}
	}
	return counts
}
