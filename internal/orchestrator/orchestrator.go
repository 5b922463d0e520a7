// Package orchestrator drives an audit through its phase state machine:
// cloning, optional classification, planning, analysis, and synthesis. Every
// phase boundary is persisted before the phase runs, so a crashed process
// leaves a truthful status behind. Phases and batches run sequentially.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/budget"
	"github.com/temirov/codesentry/internal/gitrepo"
	"github.com/temirov/codesentry/internal/incremental"
	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/planner"
)

const (
	incrementalPlanReasonConstant   = "changed since base audit"
	incrementalPlanPriorityConstant = 5

	// Analysis output is far smaller than the audited input; one fifth is
	// the working ratio used for both estimated and actual cost.
	outputTokenDivisorConstant = 5

	auditStartedMessageConstant         = "audit started"
	auditCompletedMessageConstant       = "audit completed"
	auditFailedMessageConstant          = "audit failed"
	classificationCachedMessageConstant = "reusing cached project classification"
	planPersistedMessageConstant        = "plan persisted"
	batchAnalyzedMessageConstant        = "batch analyzed"
	findingsMigratedMessageConstant     = "base audit findings migrated"
	summaryDowngradedMessageConstant    = "summary unavailable, completing with warnings"
	cleanupFailedMessageConstant        = "removing findings of failed audit"

	logFieldAuditIDConstant     = "audit_id"
	logFieldProjectIDConstant   = "project_id"
	logFieldPlanSizeConstant    = "plan_size"
	logFieldBatchIndexConstant  = "batch_index"
	logFieldBatchCountConstant  = "batch_count"
	logFieldInsertedConstant    = "inserted"
	logFieldDuplicatesConstant  = "duplicates"
	logFieldInheritedConstant   = "inherited"
	logFieldMarkedFixedConstant = "marked_fixed"
	logFieldStatusConstant      = "status"
	logFieldErrorConstant       = "error"

	loadAuditTemplateConstant         = "loading audit %s: %w"
	loadProjectTemplateConstant       = "loading project %s: %w"
	loadBaseAuditTemplateConstant     = "loading base audit %s: %w"
	transitionTemplateConstant        = "transitioning audit %s to %s: %w"
	cloneTemplateConstant             = "cloning repository %s: %w"
	scanTemplateConstant              = "scanning repository %s: %w"
	diffTemplateConstant              = "diffing repository %s: %w"
	classifyTemplateConstant          = "classifying project %s: %w"
	planTemplateConstant              = "building plan: %w"
	savePlanTemplateConstant          = "persisting plan: %w"
	migrateTemplateConstant           = "migrating base audit findings: %w"
	batchBuildTemplateConstant        = "building analysis batches: %w"
	batchRunTemplateConstant          = "analyzing batch %d of %d: %w"
	listPriorFindingsTemplateConstant = "listing prior findings: %w"
)

// Orchestrator executes audits end to end.
type Orchestrator struct {
	dependencies Dependencies
	logger       *zap.Logger
	clock        func() time.Time
}

// New constructs an Orchestrator from its collaborators.
func New(dependencies Dependencies) *Orchestrator {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{dependencies: dependencies, logger: logger, clock: clock}
}

// ProcessAudit runs one audit from its pending state to a terminal state. Any
// phase error marks the audit failed with the error message recorded; batch
// failures additionally discard the partial finding set so a failed audit
// never exposes partial results.
func (orchestrator *Orchestrator) ProcessAudit(executionContext context.Context, auditID string) error {
	audit, loadError := orchestrator.dependencies.Store.GetAudit(executionContext, auditID)
	if loadError != nil {
		return fmt.Errorf(loadAuditTemplateConstant, auditID, loadError)
	}

	orchestrator.logger.Info(auditStartedMessageConstant,
		zap.String(logFieldAuditIDConstant, audit.ID),
		zap.String(logFieldProjectIDConstant, audit.ProjectID))

	processError := orchestrator.process(executionContext, audit)
	if processError != nil {
		orchestrator.markFailed(executionContext, audit.ID, processError)
		return processError
	}
	return nil
}

func (orchestrator *Orchestrator) process(executionContext context.Context, audit models.Audit) error {
	workspace, cloneError := orchestrator.clonePhase(executionContext, &audit)
	if cloneError != nil {
		return cloneError
	}

	scannedFiles, scanError := orchestrator.scanWorkspace(executionContext, workspace)
	if scanError != nil {
		return scanError
	}

	classification, classifyError := orchestrator.classifyPhase(executionContext, audit, scannedFiles)
	if classifyError != nil {
		return classifyError
	}

	planEntries, priorFindings, planError := orchestrator.planPhase(executionContext, &audit, workspace, scannedFiles, classification)
	if planError != nil {
		return planError
	}

	analyzeError := orchestrator.analyzePhase(executionContext, &audit, workspace, planEntries, priorFindings)
	if analyzeError != nil {
		return analyzeError
	}

	return orchestrator.synthesizePhase(executionContext, audit, classification)
}

// clonePhase materializes every project repository and records the resolved
// head commits on the audit.
func (orchestrator *Orchestrator) clonePhase(executionContext context.Context, audit *models.Audit) (*Workspace, error) {
	transitionError := orchestrator.transition(executionContext, audit.ID, models.AuditStatusCloning, nil)
	if transitionError != nil {
		return nil, transitionError
	}

	project, projectError := orchestrator.dependencies.Store.GetProject(executionContext, audit.ProjectID)
	if projectError != nil {
		return nil, fmt.Errorf(loadProjectTemplateConstant, audit.ProjectID, projectError)
	}

	workspace := NewWorkspace(orchestrator.dependencies.Repositories)
	commitPins := make(map[string]string, len(project.Repositories))
	for _, repository := range project.Repositories {
		handle, headCommit, cloneError := orchestrator.dependencies.Repositories.CloneOrUpdate(executionContext, gitrepo.RepositorySpec{
			Name:      repository.Name,
			RemoteURL: repository.RemoteURL,
			Reference: repository.Reference,
		})
		if cloneError != nil {
			return nil, fmt.Errorf(cloneTemplateConstant, repository.Name, cloneError)
		}
		workspace.Register(handle)
		commitPins[repository.Name] = headCommit
	}
	audit.CommitPins = commitPins
	return workspace, nil
}

func (orchestrator *Orchestrator) scanWorkspace(executionContext context.Context, workspace *Workspace) ([]models.ScannedFile, error) {
	scannedFiles := make([]models.ScannedFile, 0)
	for repositoryName, handle := range workspace.Handles() {
		repositoryFiles, scanError := orchestrator.dependencies.Repositories.ScanFiles(executionContext, handle)
		if scanError != nil {
			return nil, fmt.Errorf(scanTemplateConstant, repositoryName, scanError)
		}
		scannedFiles = append(scannedFiles, repositoryFiles...)
	}
	return scannedFiles, nil
}

// classifyPhase resolves the project classification. A cached classification
// is reused without entering the classifying state; incremental audits never
// classify fresh. A brand-new project gets classified from its file inventory.
func (orchestrator *Orchestrator) classifyPhase(executionContext context.Context, audit models.Audit, scannedFiles []models.ScannedFile) (models.ProjectClassification, error) {
	cached, cachedFound, cacheError := orchestrator.dependencies.Store.GetClassification(executionContext, audit.ProjectID)
	if cacheError != nil {
		return models.ProjectClassification{}, fmt.Errorf(classifyTemplateConstant, audit.ProjectID, cacheError)
	}
	if cachedFound {
		orchestrator.logger.Info(classificationCachedMessageConstant, zap.String(logFieldProjectIDConstant, audit.ProjectID))
		return cached, nil
	}
	if audit.IsIncremental() {
		return models.ProjectClassification{ProjectID: audit.ProjectID}, nil
	}

	transitionError := orchestrator.transition(executionContext, audit.ID, models.AuditStatusClassifying, nil)
	if transitionError != nil {
		return models.ProjectClassification{}, transitionError
	}

	fileInventory := make([]string, 0, len(scannedFiles))
	for _, scannedFile := range scannedFiles {
		fileInventory = append(fileInventory, scannedFile.Repository+"/"+scannedFile.Path)
	}

	classificationResult, classifyError := orchestrator.dependencies.Classifier.Classify(executionContext, inference.ClassificationRequest{
		ProjectID: audit.ProjectID,
		Files:     fileInventory,
	})
	if classifyError != nil {
		return models.ProjectClassification{}, fmt.Errorf(classifyTemplateConstant, audit.ProjectID, classifyError)
	}

	classification := models.ProjectClassification{
		ProjectID:   audit.ProjectID,
		Category:    classificationResult.Category,
		Description: classificationResult.Description,
		ThreatModel: classificationResult.ThreatModel,
		CreatedAt:   orchestrator.clock(),
	}
	saveError := orchestrator.dependencies.Store.SaveClassification(executionContext, classification)
	if saveError != nil {
		return models.ProjectClassification{}, fmt.Errorf(classifyTemplateConstant, audit.ProjectID, saveError)
	}
	return classification, nil
}

// planPhase builds the persisted plan. A full audit ranks the complete file
// inventory; an incremental audit skips ranking entirely, migrates the base
// audit's findings, and plans exactly the changed files.
func (orchestrator *Orchestrator) planPhase(executionContext context.Context, audit *models.Audit, workspace *Workspace, scannedFiles []models.ScannedFile, classification models.ProjectClassification) ([]models.AuditPlanEntry, []models.Finding, error) {
	var planEntries []models.AuditPlanEntry
	var priorFindings []models.Finding

	if audit.IsIncremental() {
		// Incremental audits skip the planning state: the diff is the plan.
		incrementalEntries, migratedFindings, incrementalError := orchestrator.planIncremental(executionContext, *audit, workspace, scannedFiles)
		if incrementalError != nil {
			return nil, nil, incrementalError
		}
		planEntries = incrementalEntries
		priorFindings = migratedFindings
	} else {
		transitionError := orchestrator.transition(executionContext, audit.ID, models.AuditStatusPlanning, nil)
		if transitionError != nil {
			return nil, nil, transitionError
		}

		scanner := orchestrator.dependencies.ScannerFactory(workspace)
		grepSignals, grepError := scanner.Scan(executionContext, scannedFiles)
		if grepError != nil {
			return nil, nil, fmt.Errorf(planTemplateConstant, grepError)
		}

		builtEntries, buildError := orchestrator.dependencies.Planner.BuildPlan(executionContext, planner.PlanningInput{
			Level:             audit.Level,
			ScannedFiles:      scannedFiles,
			GrepSignals:       grepSignals,
			Classification:    classification,
			ComponentProfiles: orchestrator.dependencies.ComponentProfiles,
		})
		if buildError != nil {
			return nil, nil, fmt.Errorf(planTemplateConstant, buildError)
		}
		planEntries = builtEntries
	}

	savePlanError := orchestrator.dependencies.Store.SavePlan(executionContext, audit.ID, planEntries)
	if savePlanError != nil {
		return nil, nil, fmt.Errorf(savePlanTemplateConstant, savePlanError)
	}

	planTokens := 0
	for _, planEntry := range planEntries {
		planTokens += planEntry.Tokens
	}
	commitPins := audit.CommitPins
	recordError := orchestrator.transition(executionContext, audit.ID, models.AuditStatusAnalyzing, func(auditRecord *models.Audit) {
		auditRecord.CommitPins = commitPins
		auditRecord.FileCount = len(planEntries)
		auditRecord.TokenCount = planTokens
		auditRecord.EstimatedCost = budget.EstimateCost(planTokens, planTokens/outputTokenDivisorConstant)
	})
	if recordError != nil {
		return nil, nil, recordError
	}
	audit.FileCount = len(planEntries)
	audit.TokenCount = planTokens

	orchestrator.logger.Info(planPersistedMessageConstant,
		zap.String(logFieldAuditIDConstant, audit.ID),
		zap.Int(logFieldPlanSizeConstant, len(planEntries)))
	return planEntries, priorFindings, nil
}

// planIncremental diffs every repository between the base audit's pins and the
// fresh clone, migrates the base findings onto this audit, and returns the
// changed files as the plan.
func (orchestrator *Orchestrator) planIncremental(executionContext context.Context, audit models.Audit, workspace *Workspace, scannedFiles []models.ScannedFile) ([]models.AuditPlanEntry, []models.Finding, error) {
	baseAudit, baseError := orchestrator.dependencies.Store.GetAudit(executionContext, audit.BaseAuditID)
	if baseError != nil {
		return nil, nil, fmt.Errorf(loadBaseAuditTemplateConstant, audit.BaseAuditID, baseError)
	}

	diffsByRepository := make(map[string]models.DiffResult, len(workspace.Handles()))
	for repositoryName, handle := range workspace.Handles() {
		baseCommit := baseAudit.CommitPins[repositoryName]
		headCommit := audit.CommitPins[repositoryName]
		diffResult, diffError := orchestrator.dependencies.Repositories.Diff(executionContext, handle, baseCommit, headCommit)
		if diffError != nil {
			return nil, nil, fmt.Errorf(diffTemplateConstant, repositoryName, diffError)
		}
		diffsByRepository[repositoryName] = diffResult
	}

	migrationSummary, migrateError := incremental.MigrateFindings(executionContext, orchestrator.dependencies.Store, audit.BaseAuditID, audit.ID, diffsByRepository)
	if migrateError != nil {
		return nil, nil, fmt.Errorf(migrateTemplateConstant, migrateError)
	}
	orchestrator.logger.Info(findingsMigratedMessageConstant,
		zap.String(logFieldAuditIDConstant, audit.ID),
		zap.Int(logFieldInheritedConstant, migrationSummary.Inherited),
		zap.Int(logFieldMarkedFixedConstant, migrationSummary.MarkedFixed))

	changedFiles := incremental.SelectChangedFiles(scannedFiles, diffsByRepository)
	planEntries := make([]models.AuditPlanEntry, 0, len(changedFiles))
	for _, changedFile := range changedFiles {
		planEntries = append(planEntries, models.AuditPlanEntry{
			Repository: changedFile.Repository,
			Path:       changedFile.Path,
			Tokens:     changedFile.RoughTokens,
			Priority:   incrementalPlanPriorityConstant,
			Reason:     incrementalPlanReasonConstant,
		})
	}

	priorFindings, priorError := orchestrator.dependencies.Store.ListOpenFindings(executionContext, audit.ID)
	if priorError != nil {
		return nil, nil, fmt.Errorf(listPriorFindingsTemplateConstant, priorError)
	}
	return planEntries, priorFindings, nil
}

// analyzePhase runs the verified batches strictly in order. A batch failure
// aborts the audit: partial findings are removed before the failed status is
// recorded so no half-analyzed result set survives.
func (orchestrator *Orchestrator) analyzePhase(executionContext context.Context, audit *models.Audit, workspace *Workspace, planEntries []models.AuditPlanEntry, priorFindings []models.Finding) error {
	batchBuilder := orchestrator.dependencies.BatcherFactory(workspace)
	batches, buildError := batchBuilder.BuildBatches(executionContext, planEntries)
	if buildError != nil {
		return fmt.Errorf(batchBuildTemplateConstant, buildError)
	}

	totalExactTokens := 0
	for batchIndex, batch := range batches {
		outcome, runError := orchestrator.dependencies.Runner.RunBatch(executionContext, *audit, batch, priorFindings)
		if runError != nil {
			orchestrator.cleanupFailedAnalysis(executionContext, audit.ID)
			return fmt.Errorf(batchRunTemplateConstant, batchIndex+1, len(batches), runError)
		}
		totalExactTokens += batch.ExactTokens
		orchestrator.logger.Info(batchAnalyzedMessageConstant,
			zap.String(logFieldAuditIDConstant, audit.ID),
			zap.Int(logFieldBatchIndexConstant, batchIndex+1),
			zap.Int(logFieldBatchCountConstant, len(batches)),
			zap.Int(logFieldInsertedConstant, outcome.Inserted),
			zap.Int(logFieldDuplicatesConstant, outcome.SkippedDuplicates))
	}

	actualCost := budget.EstimateCost(totalExactTokens, totalExactTokens/outputTokenDivisorConstant)
	transitionError := orchestrator.transition(executionContext, audit.ID, models.AuditStatusSynthesizing, func(auditRecord *models.Audit) {
		auditRecord.ActualCost = actualCost
	})
	if transitionError != nil {
		return transitionError
	}
	audit.ActualCost = actualCost
	return nil
}

// synthesizePhase writes the rollup and summary. A failed summarization still
// completes the audit, downgraded to completed_with_warnings, because the
// findings themselves are already durable.
func (orchestrator *Orchestrator) synthesizePhase(executionContext context.Context, audit models.Audit, classification models.ProjectClassification) error {
	synthesisResult, synthesizeError := orchestrator.dependencies.Synthesizer.Synthesize(executionContext, audit, classification.Description)

	finalStatus := models.AuditStatusCompleted
	if synthesizeError != nil {
		finalStatus = models.AuditStatusCompletedWithWarnings
		orchestrator.logger.Warn(summaryDowngradedMessageConstant,
			zap.String(logFieldAuditIDConstant, audit.ID),
			zap.Error(synthesizeError))
	}

	transitionError := orchestrator.transition(executionContext, audit.ID, finalStatus, func(auditRecord *models.Audit) {
		auditRecord.MaxSeverity = synthesisResult.MaxSeverity
		auditRecord.ExecutiveSummary = synthesisResult.Summary
	})
	if transitionError != nil {
		return transitionError
	}

	orchestrator.logger.Info(auditCompletedMessageConstant,
		zap.String(logFieldAuditIDConstant, audit.ID),
		zap.String(logFieldStatusConstant, string(finalStatus)))
	return nil
}

func (orchestrator *Orchestrator) transition(executionContext context.Context, auditID string, target models.AuditStatus, mutate func(audit *models.Audit)) error {
	transitionError := orchestrator.dependencies.Store.TransitionAuditStatus(executionContext, auditID, target, mutate)
	if transitionError != nil {
		return fmt.Errorf(transitionTemplateConstant, auditID, target, transitionError)
	}
	return nil
}

func (orchestrator *Orchestrator) cleanupFailedAnalysis(executionContext context.Context, auditID string) {
	cleanupError := orchestrator.dependencies.Store.DeleteFindingsForAudit(executionContext, auditID)
	if cleanupError != nil {
		orchestrator.logger.Error(cleanupFailedMessageConstant,
			zap.String(logFieldAuditIDConstant, auditID),
			zap.Error(cleanupError))
	}
}

// markFailed records the failure reason on the audit. Transition errors here
// are logged, not returned, because the original phase error takes precedence.
func (orchestrator *Orchestrator) markFailed(executionContext context.Context, auditID string, phaseError error) {
	failureMessage := phaseError.Error()
	transitionError := orchestrator.dependencies.Store.TransitionAuditStatus(executionContext, auditID, models.AuditStatusFailed, func(auditRecord *models.Audit) {
		auditRecord.ErrorMessage = failureMessage
	})
	if transitionError != nil {
		orchestrator.logger.Error(auditFailedMessageConstant,
			zap.String(logFieldAuditIDConstant, auditID),
			zap.Error(transitionError))
		return
	}
	orchestrator.logger.Warn(auditFailedMessageConstant,
		zap.String(logFieldAuditIDConstant, auditID),
		zap.String(logFieldErrorConstant, failureMessage))
}
