// Package analysis submits verified batches to the inference service, parses
// the structured findings, and persists them with fingerprint deduplication.
// Findings are inserted only after the batch call fully succeeds and parses;
// any batch failure propagates so the orchestrator can fail the whole audit.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/batcher"
	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
)

const (
	analyzeBatchTemplateConstant   = "analyzing batch: %w"
	persistFindingTemplateConstant = "persisting finding %s: %w"

	batchAnalyzedMessageConstant = "batch analyzed"
	logFieldProducedConstant     = "produced"
	logFieldInsertedConstant     = "inserted"
	logFieldSkippedConstant      = "skipped_duplicates"

	fullLevelInstructionsConstant          = "Review every file exhaustively. Report all weaknesses regardless of exploitability."
	thoroughLevelInstructionsConstant      = "Review the files for exploitable weaknesses. Prioritize depth over breadth."
	opportunisticLevelInstructionsConstant = "Review the files for high-impact, readily exploitable weaknesses only."
)

// BatchAnalyzer is the analysis slice of the inference contract.
type BatchAnalyzer interface {
	AnalyzeBatch(executionContext context.Context, request inference.AnalysisRequest) ([]inference.FindingPayload, error)
}

// FindingStore persists findings with per-audit fingerprint uniqueness.
type FindingStore interface {
	InsertFindingIfAbsent(executionContext context.Context, finding models.Finding) (bool, error)
}

// BatchOutcome reports what one batch produced.
type BatchOutcome struct {
	Produced          int
	Inserted          int
	SkippedDuplicates int
}

// Runner executes analysis batches sequentially on behalf of the orchestrator.
type Runner struct {
	analyzer     BatchAnalyzer
	findingStore FindingStore
	logger       *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(analyzer BatchAnalyzer, findingStore FindingStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{analyzer: analyzer, findingStore: findingStore, logger: logger}
}

// InstructionsForLevel returns the level-specific instruction set for analysis calls.
func InstructionsForLevel(level models.AuditLevel) string {
	switch level {
	case models.AuditLevelFull:
		return fullLevelInstructionsConstant
	case models.AuditLevelOpportunistic:
		return opportunisticLevelInstructionsConstant
	default:
		return thoroughLevelInstructionsConstant
	}
}

// RunBatch analyzes one batch and persists its findings. priorFindings are the
// audit's inherited findings; those on files in this batch are passed along as
// notes, and any newly produced finding whose fingerprint already exists for
// the audit is silently skipped.
func (runner *Runner) RunBatch(executionContext context.Context, audit models.Audit, batch batcher.Batch, priorFindings []models.Finding) (BatchOutcome, error) {
	request := inference.AnalysisRequest{
		Files:         batch.Files,
		Instructions:  InstructionsForLevel(audit.Level),
		PriorFindings: priorNotesForBatch(batch, priorFindings),
	}

	payloads, analyzeError := runner.analyzer.AnalyzeBatch(executionContext, request)
	if analyzeError != nil {
		return BatchOutcome{}, fmt.Errorf(analyzeBatchTemplateConstant, analyzeError)
	}

	outcome := BatchOutcome{Produced: len(payloads)}
	for _, payload := range payloads {
		finding := findingFromPayload(audit, batch, payload)
		inserted, insertError := runner.findingStore.InsertFindingIfAbsent(executionContext, finding)
		if insertError != nil {
			return BatchOutcome{}, fmt.Errorf(persistFindingTemplateConstant, finding.Fingerprint, insertError)
		}
		if inserted {
			outcome.Inserted++
		} else {
			outcome.SkippedDuplicates++
		}
	}

	runner.logger.Debug(batchAnalyzedMessageConstant,
		zap.Int(logFieldProducedConstant, outcome.Produced),
		zap.Int(logFieldInsertedConstant, outcome.Inserted),
		zap.Int(logFieldSkippedConstant, outcome.SkippedDuplicates),
	)
	return outcome, nil
}

func priorNotesForBatch(batch batcher.Batch, priorFindings []models.Finding) []inference.PriorFindingNote {
	batchPaths := make(map[string]bool, len(batch.Files))
	for _, batchFile := range batch.Files {
		batchPaths[batchFile.Path] = true
	}

	notes := make([]inference.PriorFindingNote, 0, len(priorFindings))
	for _, priorFinding := range priorFindings {
		if batchPaths[priorFinding.FilePath] {
			notes = append(notes, inference.PriorFindingNote{
				Path:     priorFinding.FilePath,
				Title:    priorFinding.Title,
				Severity: priorFinding.Severity,
			})
		}
	}
	return notes
}

func findingFromPayload(audit models.Audit, batch batcher.Batch, payload inference.FindingPayload) models.Finding {
	repository := payload.Repository
	if len(repository) == 0 {
		for _, batchFile := range batch.Files {
			if batchFile.Path == payload.FilePath {
				repository = batchFile.Repository
				break
			}
		}
	}

	return models.Finding{
		ID:             uuid.NewString(),
		AuditID:        audit.ID,
		Repository:     repository,
		FilePath:       payload.FilePath,
		LineStart:      payload.LineStart,
		LineEnd:        payload.LineEnd,
		Severity:       models.Severity(payload.Severity),
		Fingerprint:    models.ComputeFingerprint(payload.FilePath, payload.LineStart, payload.LineEnd, payload.Title, payload.CodeSnippet),
		Title:          payload.Title,
		Description:    payload.Description,
		Exploitation:   payload.Exploitation,
		Recommendation: payload.Recommendation,
		CodeSnippet:    payload.CodeSnippet,
		CWEID:          payload.CWEID,
		CVSSScore:      payload.CVSSScore,
		Component:      payload.Component,
		Status:         models.FindingStatusOpen,
		CreatedAt:      time.Now().UTC(),
	}
}
