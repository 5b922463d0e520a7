// Package synthesis produces the executive summary and severity rollup that
// finalize a completed audit. Summarization failure is recoverable: the
// rollup is computed locally and survives even when the narrative call fails.
package synthesis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
)

const (
	listFindingsTemplateConstant = "listing findings for synthesis: %w"
	summarizeTemplateConstant    = "summarizing findings: %w"

	summaryFailedMessageConstant = "summarization failed, completing with rollup only"
)

// Summarizer is the narrative slice of the inference contract.
type Summarizer interface {
	Summarize(executionContext context.Context, request inference.SummaryRequest) (inference.SummaryResult, error)
}

// FindingLister reads the audit's complete finding set.
type FindingLister interface {
	ListFindings(executionContext context.Context, auditID string) ([]models.Finding, error)
}

// Result carries the synthesis output. MaxSeverity and Counts are computed
// locally from the persisted findings and are always valid, even when the
// summary narrative is empty because the call failed.
type Result struct {
	Summary     string
	MaxSeverity models.Severity
	Counts      models.SeverityCounts
}

// Service performs synthesis.
type Service struct {
	summarizer   Summarizer
	findingStore FindingLister
	logger       *zap.Logger
}

// NewService constructs a synthesis Service.
func NewService(summarizer Summarizer, findingStore FindingLister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{summarizer: summarizer, findingStore: findingStore, logger: logger}
}

// Synthesize computes the severity rollup and requests the executive summary.
// The returned Result is usable even when the error is non-nil: a failed
// summarization downgrades the audit, it never discards findings.
func (service *Service) Synthesize(executionContext context.Context, audit models.Audit, projectDescription string) (Result, error) {
	findings, listError := service.findingStore.ListFindings(executionContext, audit.ID)
	if listError != nil {
		return Result{MaxSeverity: models.SeverityInformational}, fmt.Errorf(listFindingsTemplateConstant, listError)
	}

	severities := make([]models.Severity, 0, len(findings))
	digests := make([]inference.FindingDigest, 0, len(findings))
	for _, finding := range findings {
		severities = append(severities, finding.Severity)
		digests = append(digests, inference.FindingDigest{
			Title:    finding.Title,
			Severity: finding.Severity,
			FilePath: finding.FilePath,
		})
	}

	result := Result{
		MaxSeverity: models.MaxSeverity(severities),
		Counts:      models.CountSeverities(findings),
	}

	summaryResult, summarizeError := service.summarizer.Summarize(executionContext, inference.SummaryRequest{
		ProjectDescription: projectDescription,
		FindingDigests:     digests,
		SeverityCounts:     result.Counts,
	})
	if summarizeError != nil {
		service.logger.Warn(summaryFailedMessageConstant, zap.Error(summarizeError))
		return result, fmt.Errorf(summarizeTemplateConstant, summarizeError)
	}

	result.Summary = summaryResult.Summary
	return result, nil
}
