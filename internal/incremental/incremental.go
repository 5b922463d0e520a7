// Package incremental implements diff-driven file selection and finding
// migration for audits that build on a prior base audit. The file-level diff
// replaces the planner: only added, modified, and renamed-to paths are
// re-analyzed, and the base audit's open findings are carried forward.
package incremental

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/temirov/codesentry/internal/models"
)

const (
	listFindingsTemplateConstant  = "listing open findings of base audit %s: %w"
	insertFindingTemplateConstant = "inheriting finding %s: %w"
)

// FindingStore is the persistence slice migration requires.
type FindingStore interface {
	ListOpenFindings(executionContext context.Context, auditID string) ([]models.Finding, error)
	InsertFindingIfAbsent(executionContext context.Context, finding models.Finding) (bool, error)
}

// SelectChangedFiles filters the scanned inventory down to the files the
// per-repository diffs schedule for re-analysis.
func SelectChangedFiles(scannedFiles []models.ScannedFile, diffsByRepository map[string]models.DiffResult) []models.ScannedFile {
	changedByRepository := make(map[string]map[string]bool, len(diffsByRepository))
	for repository, diff := range diffsByRepository {
		changedPaths := make(map[string]bool)
		for _, path := range diff.ChangedPaths() {
			changedPaths[path] = true
		}
		changedByRepository[repository] = changedPaths
	}

	selected := make([]models.ScannedFile, 0, len(scannedFiles))
	for _, scannedFile := range scannedFiles {
		if changedByRepository[scannedFile.Repository][scannedFile.Path] {
			selected = append(selected, scannedFile)
		}
	}
	return selected
}

// MigrationSummary reports what migration carried over.
type MigrationSummary struct {
	Inherited   int
	MarkedFixed int
	Renamed     int
}

// MigrateFindings copies every open finding from the base audit onto the new
// audit. Findings on deleted files become fixed on the copy (never on the
// original); findings on renamed files have their path rewritten and their
// fingerprint recomputed so re-analysis of the renamed file deduplicates
// against the inherited copy.
func MigrateFindings(executionContext context.Context, findingStore FindingStore, baseAuditID string, newAuditID string, diffsByRepository map[string]models.DiffResult) (MigrationSummary, error) {
	openFindings, listError := findingStore.ListOpenFindings(executionContext, baseAuditID)
	if listError != nil {
		return MigrationSummary{}, fmt.Errorf(listFindingsTemplateConstant, baseAuditID, listError)
	}

	var summary MigrationSummary
	for _, baseFinding := range openFindings {
		inheritedFinding := baseFinding
		inheritedFinding.ID = uuid.NewString()
		inheritedFinding.AuditID = newAuditID
		inheritedFinding.CreatedAt = time.Now().UTC()

		diff := diffsByRepository[baseFinding.Repository]
		fileDeleted := pathDeleted(diff, baseFinding.FilePath)
		fileRenamed := pathRenamed(diff, baseFinding.FilePath)
		switch {
		case fileDeleted:
			inheritedFinding.Status = models.FindingStatusFixed
			inheritedFinding.ResolvedInAuditID = newAuditID
		case fileRenamed:
			newPath := diff.Renamed[baseFinding.FilePath]
			inheritedFinding.FilePath = newPath
			inheritedFinding.Fingerprint = models.ComputeFingerprint(newPath, inheritedFinding.LineStart, inheritedFinding.LineEnd, inheritedFinding.Title, inheritedFinding.CodeSnippet)
		}

		inserted, insertError := findingStore.InsertFindingIfAbsent(executionContext, inheritedFinding)
		if insertError != nil {
			return MigrationSummary{}, fmt.Errorf(insertFindingTemplateConstant, baseFinding.Fingerprint, insertError)
		}
		if !inserted {
			continue
		}
		summary.Inherited++
		switch {
		case fileDeleted:
			summary.MarkedFixed++
		case fileRenamed:
			summary.Renamed++
		}
	}
	return summary, nil
}

func pathDeleted(diff models.DiffResult, path string) bool {
	for _, deletedPath := range diff.Deleted {
		if deletedPath == path {
			return true
		}
	}
	return false
}

func pathRenamed(diff models.DiffResult, path string) bool {
	_, renamed := diff.Renamed[path]
	return renamed
}
