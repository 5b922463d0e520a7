package store

import (
	"context"
	"fmt"

	"github.com/temirov/codesentry/internal/models"
)

const (
	findingColumnsConstant = `id, audit_id, repository, file_path, line_start, line_end, severity,
		fingerprint, title, description, exploitation, recommendation, code_snippet,
		cwe_id, cvss_score, component, status, resolved_in_audit_id, created_at`

	findingInsertTemplateConstant = "inserting finding %s: %w"
	findingSelectTemplateConstant = "listing findings for audit %s: %w"
	findingUpdateTemplateConstant = "updating finding %s: %w"
)

// InsertFindingIfAbsent atomically inserts the finding unless its fingerprint
// already exists for the audit. The uniqueness decision is made by the
// database at insert time, so concurrent workers cannot race a stale snapshot.
// Returns true when the row was inserted, false on a duplicate fingerprint.
func (persistentStore *Store) InsertFindingIfAbsent(executionContext context.Context, finding models.Finding) (bool, error) {
	insertResult, insertError := persistentStore.database.ExecContext(executionContext, `
		INSERT OR IGNORE INTO findings (`+findingColumnsConstant+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		finding.ID, finding.AuditID, finding.Repository, finding.FilePath,
		finding.LineStart, finding.LineEnd, string(finding.Severity), finding.Fingerprint,
		finding.Title, finding.Description, finding.Exploitation, finding.Recommendation,
		finding.CodeSnippet, finding.CWEID, finding.CVSSScore, finding.Component,
		string(finding.Status), finding.ResolvedInAuditID, encodeTime(finding.CreatedAt),
	)
	if insertError != nil {
		return false, fmt.Errorf(findingInsertTemplateConstant, finding.ID, insertError)
	}

	affectedRows, affectedError := insertResult.RowsAffected()
	if affectedError != nil {
		return false, fmt.Errorf(findingInsertTemplateConstant, finding.ID, affectedError)
	}
	return affectedRows > 0, nil
}

// ListFindings returns every finding on the audit, ordered by severity rank
// descending then file path.
func (persistentStore *Store) ListFindings(executionContext context.Context, auditID string) ([]models.Finding, error) {
	rows, queryError := persistentStore.database.QueryContext(executionContext,
		`SELECT `+findingColumnsConstant+` FROM findings WHERE audit_id = ? ORDER BY file_path, line_start`, auditID)
	if queryError != nil {
		return nil, fmt.Errorf(findingSelectTemplateConstant, auditID, queryError)
	}
	defer rows.Close()

	findings := make([]models.Finding, 0, 16)
	for rows.Next() {
		finding, scanError := scanFinding(rows)
		if scanError != nil {
			return nil, fmt.Errorf(findingSelectTemplateConstant, auditID, scanError)
		}
		findings = append(findings, finding)
	}
	return findings, rows.Err()
}

// ListOpenFindings returns the audit's findings still in the open status.
func (persistentStore *Store) ListOpenFindings(executionContext context.Context, auditID string) ([]models.Finding, error) {
	rows, queryError := persistentStore.database.QueryContext(executionContext,
		`SELECT `+findingColumnsConstant+` FROM findings WHERE audit_id = ? AND status = ? ORDER BY file_path, line_start`,
		auditID, string(models.FindingStatusOpen))
	if queryError != nil {
		return nil, fmt.Errorf(findingSelectTemplateConstant, auditID, queryError)
	}
	defer rows.Close()

	findings := make([]models.Finding, 0, 16)
	for rows.Next() {
		finding, scanError := scanFinding(rows)
		if scanError != nil {
			return nil, fmt.Errorf(findingSelectTemplateConstant, auditID, scanError)
		}
		findings = append(findings, finding)
	}
	return findings, rows.Err()
}

func scanFinding(row rowScanner) (models.Finding, error) {
	var finding models.Finding
	var severity, status, createdAt string

	scanError := row.Scan(
		&finding.ID, &finding.AuditID, &finding.Repository, &finding.FilePath,
		&finding.LineStart, &finding.LineEnd, &severity, &finding.Fingerprint,
		&finding.Title, &finding.Description, &finding.Exploitation, &finding.Recommendation,
		&finding.CodeSnippet, &finding.CWEID, &finding.CVSSScore, &finding.Component,
		&status, &finding.ResolvedInAuditID, &createdAt,
	)
	if scanError != nil {
		return models.Finding{}, scanError
	}

	finding.Severity = models.Severity(severity)
	finding.Status = models.FindingStatus(status)
	finding.CreatedAt = decodeTime(createdAt)
	return finding, nil
}

// UpdateFindingStatus applies an owner-triggered status change, optionally
// recording the audit in which the finding was resolved.
func (persistentStore *Store) UpdateFindingStatus(executionContext context.Context, findingID string, status models.FindingStatus, resolvedInAuditID string) error {
	_, updateError := persistentStore.database.ExecContext(executionContext,
		`UPDATE findings SET status = ?, resolved_in_audit_id = ? WHERE id = ?`,
		string(status), resolvedInAuditID, findingID)
	if updateError != nil {
		return fmt.Errorf(findingUpdateTemplateConstant, findingID, updateError)
	}
	return nil
}

// FindingBelongsToAudit reports whether the finding row exists on the audit.
func (persistentStore *Store) FindingBelongsToAudit(executionContext context.Context, findingID string, auditID string) (bool, error) {
	var count int
	queryError := persistentStore.database.QueryRowContext(executionContext,
		`SELECT COUNT(1) FROM findings WHERE id = ? AND audit_id = ?`, findingID, auditID).Scan(&count)
	if queryError != nil {
		return false, fmt.Errorf(findingUpdateTemplateConstant, findingID, queryError)
	}
	return count > 0, nil
}

// DeleteFindingsForAudit removes every finding inserted for the audit. Used
// when an analysis batch fails so a failed audit never carries partial,
// untrusted coverage.
func (persistentStore *Store) DeleteFindingsForAudit(executionContext context.Context, auditID string) error {
	_, deleteError := persistentStore.database.ExecContext(executionContext,
		`DELETE FROM findings WHERE audit_id = ?`, auditID)
	if deleteError != nil {
		return fmt.Errorf(findingSelectTemplateConstant, auditID, deleteError)
	}
	return nil
}
