package inference

import (
	"context"

	"github.com/temirov/codesentry/internal/models"
)

// BatchFile carries one file's full content into an analysis call.
type BatchFile struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Content    string `json:"content"`
}

// PriorFindingNote tells the analysis call about an inherited finding on a
// file being re-analyzed, so unchanged issues are reported consistently.
type PriorFindingNote struct {
	Path     string          `json:"path"`
	Title    string          `json:"title"`
	Severity models.Severity `json:"severity"`
}

// RankingRequest asks the engine to order candidate files by security relevance.
type RankingRequest struct {
	Context string   `json:"context"`
	Files   []string `json:"files"`
}

// AnalysisRequest asks the engine to review a batch of files.
type AnalysisRequest struct {
	Files         []BatchFile        `json:"files"`
	Instructions  string             `json:"instructions"`
	PriorFindings []PriorFindingNote `json:"prior_findings,omitempty"`
}

// FindingPayload is the untrusted finding shape returned by an analysis call.
type FindingPayload struct {
	Repository     string  `json:"repository"`
	FilePath       string  `json:"file"`
	LineStart      int     `json:"line_start"`
	LineEnd        int     `json:"line_end"`
	Severity       string  `json:"severity"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Exploitation   string  `json:"exploitation"`
	Recommendation string  `json:"recommendation"`
	CodeSnippet    string  `json:"code_snippet"`
	CWEID          string  `json:"cwe_id"`
	CVSSScore      float64 `json:"cvss_score"`
	Component      string  `json:"component"`
}

// SummaryRequest asks the engine for an executive narrative over a finding set.
type SummaryRequest struct {
	ProjectDescription string                `json:"project_description"`
	FindingDigests     []FindingDigest       `json:"findings"`
	SeverityCounts     models.SeverityCounts `json:"severity_counts"`
}

// FindingDigest is the compact per-finding shape included in a summary request.
type FindingDigest struct {
	Title    string          `json:"title"`
	Severity models.Severity `json:"severity"`
	FilePath string          `json:"file"`
}

// SummaryResult is the validated output of a summarization call.
type SummaryResult struct {
	Summary     string          `json:"summary"`
	MaxSeverity models.Severity `json:"max_severity"`
}

// ClassificationRequest asks the engine to categorize a project from its file inventory.
type ClassificationRequest struct {
	ProjectID string   `json:"project_id"`
	Files     []string `json:"files"`
}

// ClassificationResult is the validated output of a classification call.
type ClassificationResult struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	ThreatModel string `json:"threat_model"`
}

// Client is the inference collaborator contract. All calls may fail
// transiently; callers wrap the client with NewRetryingClient.
type Client interface {
	RankFiles(executionContext context.Context, request RankingRequest) ([]models.RankedFile, error)
	CountTokens(executionContext context.Context, text string) (int, error)
	AnalyzeBatch(executionContext context.Context, request AnalysisRequest) ([]FindingPayload, error)
	Summarize(executionContext context.Context, request SummaryRequest) (SummaryResult, error)
	Classify(executionContext context.Context, request ClassificationRequest) (ClassificationResult, error)
}
