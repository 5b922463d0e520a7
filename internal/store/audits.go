package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/temirov/codesentry/internal/models"
)

const (
	auditColumnsConstant = `id, project_id, requester_id, level, status, base_audit_id, commit_pins,
		file_count, token_count, estimated_cost, actual_cost, max_severity, executive_summary,
		is_public, owner_notified, owner_notified_at, publishable_after, error_message,
		created_at, updated_at, completed_at`

	auditInsertTemplateConstant = "inserting audit %s: %w"
	auditSelectTemplateConstant = "loading audit %s: %w"
	auditUpdateTemplateConstant = "updating audit %s: %w"

	transitionConflictTemplateConstant = "audit %s cannot transition from %s to %s"
)

// ErrAuditNotFound indicates a lookup for an unknown audit identifier.
var ErrAuditNotFound = errors.New("audit not found")

// CreateAudit persists a freshly created audit record.
func (persistentStore *Store) CreateAudit(executionContext context.Context, audit models.Audit) error {
	encodedPins, encodeError := json.Marshal(audit.CommitPins)
	if encodeError != nil {
		return fmt.Errorf(auditInsertTemplateConstant, audit.ID, encodeError)
	}

	_, insertError := persistentStore.database.ExecContext(executionContext, `
		INSERT INTO audits (`+auditColumnsConstant+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.ProjectID, audit.RequesterID, string(audit.Level), string(audit.Status),
		audit.BaseAuditID, string(encodedPins), audit.FileCount, audit.TokenCount,
		audit.EstimatedCost, audit.ActualCost, string(audit.MaxSeverity), audit.ExecutiveSummary,
		encodeBool(audit.IsPublic), encodeBool(audit.OwnerNotified),
		encodeOptionalTime(audit.OwnerNotifiedAt), encodeOptionalTime(audit.PublishableAfter),
		audit.ErrorMessage, encodeTime(audit.CreatedAt), encodeTime(audit.UpdatedAt),
		encodeOptionalTime(audit.CompletedAt),
	)
	if insertError != nil {
		return fmt.Errorf(auditInsertTemplateConstant, audit.ID, insertError)
	}
	return nil
}

// GetAudit loads one audit by identifier.
func (persistentStore *Store) GetAudit(executionContext context.Context, auditID string) (models.Audit, error) {
	row := persistentStore.database.QueryRowContext(executionContext,
		`SELECT `+auditColumnsConstant+` FROM audits WHERE id = ?`, auditID)

	audit, scanError := scanAudit(row)
	if errors.Is(scanError, sql.ErrNoRows) {
		return models.Audit{}, ErrAuditNotFound
	}
	if scanError != nil {
		return models.Audit{}, fmt.Errorf(auditSelectTemplateConstant, auditID, scanError)
	}
	return audit, nil
}

type rowScanner interface {
	Scan(destinations ...any) error
}

func scanAudit(row rowScanner) (models.Audit, error) {
	var audit models.Audit
	var level, status string
	var encodedPins string
	var maxSeverity string
	var isPublic, ownerNotified int
	var ownerNotifiedAt, publishableAfter, completedAt sql.NullString
	var createdAt, updatedAt string

	scanError := row.Scan(
		&audit.ID, &audit.ProjectID, &audit.RequesterID, &level, &status, &audit.BaseAuditID,
		&encodedPins, &audit.FileCount, &audit.TokenCount, &audit.EstimatedCost, &audit.ActualCost,
		&maxSeverity, &audit.ExecutiveSummary, &isPublic, &ownerNotified,
		&ownerNotifiedAt, &publishableAfter, &audit.ErrorMessage, &createdAt, &updatedAt, &completedAt,
	)
	if scanError != nil {
		return models.Audit{}, scanError
	}

	audit.Level = models.AuditLevel(level)
	audit.Status = models.AuditStatus(status)
	audit.MaxSeverity = models.Severity(maxSeverity)
	audit.IsPublic = isPublic != 0
	audit.OwnerNotified = ownerNotified != 0
	audit.OwnerNotifiedAt = decodeOptionalTime(ownerNotifiedAt)
	audit.PublishableAfter = decodeOptionalTime(publishableAfter)
	audit.CreatedAt = decodeTime(createdAt)
	audit.UpdatedAt = decodeTime(updatedAt)
	audit.CompletedAt = decodeOptionalTime(completedAt)

	if decodeError := json.Unmarshal([]byte(encodedPins), &audit.CommitPins); decodeError != nil {
		return models.Audit{}, decodeError
	}
	return audit, nil
}

// TransitionAuditStatus durably moves an audit to the target status, enforcing
// the monotonic state machine against the persisted row inside a transaction.
// The optional mutate callback adjusts other columns within the same commit so
// a poller never observes a phase without its companion data.
func (persistentStore *Store) TransitionAuditStatus(executionContext context.Context, auditID string, target models.AuditStatus, mutate func(audit *models.Audit)) error {
	transaction, beginError := persistentStore.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return fmt.Errorf(auditUpdateTemplateConstant, auditID, beginError)
	}
	defer func() { _ = transaction.Rollback() }()

	row := transaction.QueryRowContext(executionContext,
		`SELECT `+auditColumnsConstant+` FROM audits WHERE id = ?`, auditID)
	audit, scanError := scanAudit(row)
	if errors.Is(scanError, sql.ErrNoRows) {
		return ErrAuditNotFound
	}
	if scanError != nil {
		return fmt.Errorf(auditSelectTemplateConstant, auditID, scanError)
	}

	if !audit.Status.CanTransitionTo(target) {
		return fmt.Errorf(transitionConflictTemplateConstant, auditID, audit.Status, target)
	}

	audit.Status = target
	audit.UpdatedAt = time.Now().UTC()
	if target.IsTerminal() {
		completedAt := audit.UpdatedAt
		audit.CompletedAt = &completedAt
	}
	if mutate != nil {
		mutate(&audit)
	}

	if updateError := updateAuditRow(executionContext, transaction, audit); updateError != nil {
		return fmt.Errorf(auditUpdateTemplateConstant, auditID, updateError)
	}
	return transaction.Commit()
}

// UpdateAuditPublication persists the owner-controlled publication fields
// without touching the status machine.
func (persistentStore *Store) UpdateAuditPublication(executionContext context.Context, audit models.Audit) error {
	_, updateError := persistentStore.database.ExecContext(executionContext, `
		UPDATE audits SET is_public = ?, owner_notified = ?, owner_notified_at = ?, publishable_after = ?, updated_at = ?
		WHERE id = ?`,
		encodeBool(audit.IsPublic), encodeBool(audit.OwnerNotified),
		encodeOptionalTime(audit.OwnerNotifiedAt), encodeOptionalTime(audit.PublishableAfter),
		encodeTime(time.Now().UTC()), audit.ID,
	)
	if updateError != nil {
		return fmt.Errorf(auditUpdateTemplateConstant, audit.ID, updateError)
	}
	return nil
}

type execer interface {
	ExecContext(executionContext context.Context, query string, arguments ...any) (sql.Result, error)
}

func updateAuditRow(executionContext context.Context, database execer, audit models.Audit) error {
	encodedPins, encodeError := json.Marshal(audit.CommitPins)
	if encodeError != nil {
		return encodeError
	}

	_, updateError := database.ExecContext(executionContext, `
		UPDATE audits SET
			status = ?, commit_pins = ?, file_count = ?, token_count = ?,
			estimated_cost = ?, actual_cost = ?, max_severity = ?, executive_summary = ?,
			is_public = ?, owner_notified = ?, owner_notified_at = ?, publishable_after = ?,
			error_message = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(audit.Status), string(encodedPins), audit.FileCount, audit.TokenCount,
		audit.EstimatedCost, audit.ActualCost, string(audit.MaxSeverity), audit.ExecutiveSummary,
		encodeBool(audit.IsPublic), encodeBool(audit.OwnerNotified),
		encodeOptionalTime(audit.OwnerNotifiedAt), encodeOptionalTime(audit.PublishableAfter),
		audit.ErrorMessage, encodeTime(audit.UpdatedAt), encodeOptionalTime(audit.CompletedAt),
		audit.ID,
	)
	return updateError
}
