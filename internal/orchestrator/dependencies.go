package orchestrator

import (
	"context"
	"time"

	"github.com/temirov/codesentry/internal/analysis"
	"github.com/temirov/codesentry/internal/batcher"
	"github.com/temirov/codesentry/internal/gitrepo"
	"github.com/temirov/codesentry/internal/grepscan"
	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/planner"
	"github.com/temirov/codesentry/internal/store"
	"github.com/temirov/codesentry/internal/synthesis"
	"go.uber.org/zap"
)

// AuditStore is the persistence surface the orchestrator drives. Every phase
// boundary is a durable status transition recorded through this interface.
type AuditStore interface {
	GetAudit(executionContext context.Context, auditID string) (models.Audit, error)
	TransitionAuditStatus(executionContext context.Context, auditID string, target models.AuditStatus, mutate func(audit *models.Audit)) error
	GetProject(executionContext context.Context, projectID string) (store.Project, error)
	SavePlan(executionContext context.Context, auditID string, entries []models.AuditPlanEntry) error
	GetClassification(executionContext context.Context, projectID string) (models.ProjectClassification, bool, error)
	SaveClassification(executionContext context.Context, classification models.ProjectClassification) error
	ListOpenFindings(executionContext context.Context, auditID string) ([]models.Finding, error)
	InsertFindingIfAbsent(executionContext context.Context, finding models.Finding) (bool, error)
	DeleteFindingsForAudit(executionContext context.Context, auditID string) error
}

// RepositoryManager materializes and inspects the audited repositories.
type RepositoryManager interface {
	CloneOrUpdate(executionContext context.Context, repository gitrepo.RepositorySpec) (gitrepo.Handle, string, error)
	Diff(executionContext context.Context, handle gitrepo.Handle, baseCommit string, headCommit string) (models.DiffResult, error)
	ScanFiles(executionContext context.Context, handle gitrepo.Handle) ([]models.ScannedFile, error)
	ReadFile(executionContext context.Context, handle gitrepo.Handle, relativePath string, maxLines int) (string, error)
}

// ProjectClassifier is the classification slice of the inference contract.
type ProjectClassifier interface {
	Classify(executionContext context.Context, request inference.ClassificationRequest) (inference.ClassificationResult, error)
}

// PlanBuilder ranks and budget-selects the files to analyze.
type PlanBuilder interface {
	BuildPlan(executionContext context.Context, input planner.PlanningInput) ([]models.AuditPlanEntry, error)
}

// SignalScanner surfaces heuristic security signals from file contents.
type SignalScanner interface {
	Scan(executionContext context.Context, files []models.ScannedFile) ([]grepscan.FileSignal, error)
}

// BatchBuilder groups planned files into token-verified analysis batches.
type BatchBuilder interface {
	BuildBatches(executionContext context.Context, entries []models.AuditPlanEntry) ([]batcher.Batch, error)
}

// BatchRunner executes one analysis batch and persists its findings.
type BatchRunner interface {
	RunBatch(executionContext context.Context, audit models.Audit, batch batcher.Batch, priorFindings []models.Finding) (analysis.BatchOutcome, error)
}

// SummarySynthesizer finalizes the audit with a rollup and narrative.
type SummarySynthesizer interface {
	Synthesize(executionContext context.Context, audit models.Audit, projectDescription string) (synthesis.Result, error)
}

// Dependencies aggregates the orchestrator's collaborators. The scanner and
// batcher need a per-audit content reader, so they arrive as factories that
// receive the audit's workspace.
type Dependencies struct {
	Store             AuditStore
	Repositories      RepositoryManager
	Classifier        ProjectClassifier
	Planner           PlanBuilder
	ScannerFactory    func(reader grepscan.FileContentReader) SignalScanner
	BatcherFactory    func(loader batcher.ContentLoader) BatchBuilder
	Runner            BatchRunner
	Synthesizer       SummarySynthesizer
	ComponentProfiles []planner.ComponentProfile
	Logger            *zap.Logger
	Clock             func() time.Time
}
