package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/temirov/codesentry/internal/models"
)

const (
	planSaveTemplateConstant   = "saving plan for audit %s: %w"
	planSelectTemplateConstant = "loading plan for audit %s: %w"

	projectSaveTemplateConstant   = "saving project %s: %w"
	projectSelectTemplateConstant = "loading project %s: %w"

	classificationSaveTemplateConstant   = "saving classification for project %s: %w"
	classificationSelectTemplateConstant = "loading classification for project %s: %w"
)

// SavePlan persists the ranked, budget-selected file plan verbatim for later
// inspection and cost accounting.
func (persistentStore *Store) SavePlan(executionContext context.Context, auditID string, entries []models.AuditPlanEntry) error {
	transaction, beginError := persistentStore.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return fmt.Errorf(planSaveTemplateConstant, auditID, beginError)
	}
	defer func() { _ = transaction.Rollback() }()

	if _, deleteError := transaction.ExecContext(executionContext, `DELETE FROM plan_entries WHERE audit_id = ?`, auditID); deleteError != nil {
		return fmt.Errorf(planSaveTemplateConstant, auditID, deleteError)
	}

	for position, entry := range entries {
		_, insertError := transaction.ExecContext(executionContext, `
			INSERT INTO plan_entries (audit_id, position, repository, path, tokens, priority, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			auditID, position, entry.Repository, entry.Path, entry.Tokens, entry.Priority, entry.Reason)
		if insertError != nil {
			return fmt.Errorf(planSaveTemplateConstant, auditID, insertError)
		}
	}
	return transaction.Commit()
}

// GetPlan returns the persisted plan entries in selection order.
func (persistentStore *Store) GetPlan(executionContext context.Context, auditID string) ([]models.AuditPlanEntry, error) {
	rows, queryError := persistentStore.database.QueryContext(executionContext,
		`SELECT repository, path, tokens, priority, reason FROM plan_entries WHERE audit_id = ? ORDER BY position`, auditID)
	if queryError != nil {
		return nil, fmt.Errorf(planSelectTemplateConstant, auditID, queryError)
	}
	defer rows.Close()

	entries := make([]models.AuditPlanEntry, 0, 32)
	for rows.Next() {
		var entry models.AuditPlanEntry
		if scanError := rows.Scan(&entry.Repository, &entry.Path, &entry.Tokens, &entry.Priority, &entry.Reason); scanError != nil {
			return nil, fmt.Errorf(planSelectTemplateConstant, auditID, scanError)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Project describes a registered project and its audited repositories.
type Project struct {
	ID             string
	Name           string
	OrganizationID string
	Repositories   []ProjectRepository
}

// ProjectRepository is one repository belonging to a project.
type ProjectRepository struct {
	Name      string
	RemoteURL string
	Reference string
}

// SaveProject registers a project and its repository list.
func (persistentStore *Store) SaveProject(executionContext context.Context, project Project) error {
	transaction, beginError := persistentStore.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return fmt.Errorf(projectSaveTemplateConstant, project.ID, beginError)
	}
	defer func() { _ = transaction.Rollback() }()

	_, upsertError := transaction.ExecContext(executionContext, `
		INSERT INTO projects (id, name, organization_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, organization_id = excluded.organization_id`,
		project.ID, project.Name, project.OrganizationID, encodeTime(time.Now().UTC()))
	if upsertError != nil {
		return fmt.Errorf(projectSaveTemplateConstant, project.ID, upsertError)
	}

	if _, deleteError := transaction.ExecContext(executionContext, `DELETE FROM project_repositories WHERE project_id = ?`, project.ID); deleteError != nil {
		return fmt.Errorf(projectSaveTemplateConstant, project.ID, deleteError)
	}
	for _, repository := range project.Repositories {
		_, insertError := transaction.ExecContext(executionContext, `
			INSERT INTO project_repositories (project_id, name, remote_url, reference) VALUES (?, ?, ?, ?)`,
			project.ID, repository.Name, repository.RemoteURL, repository.Reference)
		if insertError != nil {
			return fmt.Errorf(projectSaveTemplateConstant, project.ID, insertError)
		}
	}
	return transaction.Commit()
}

// GetProject loads a project and its repositories.
func (persistentStore *Store) GetProject(executionContext context.Context, projectID string) (Project, error) {
	project := Project{ID: projectID}
	selectError := persistentStore.database.QueryRowContext(executionContext,
		`SELECT name, organization_id FROM projects WHERE id = ?`, projectID).
		Scan(&project.Name, &project.OrganizationID)
	if selectError != nil {
		return Project{}, fmt.Errorf(projectSelectTemplateConstant, projectID, selectError)
	}

	rows, queryError := persistentStore.database.QueryContext(executionContext,
		`SELECT name, remote_url, reference FROM project_repositories WHERE project_id = ? ORDER BY name`, projectID)
	if queryError != nil {
		return Project{}, fmt.Errorf(projectSelectTemplateConstant, projectID, queryError)
	}
	defer rows.Close()

	for rows.Next() {
		var repository ProjectRepository
		if scanError := rows.Scan(&repository.Name, &repository.RemoteURL, &repository.Reference); scanError != nil {
			return Project{}, fmt.Errorf(projectSelectTemplateConstant, projectID, scanError)
		}
		project.Repositories = append(project.Repositories, repository)
	}
	return project, rows.Err()
}

// GetClassification returns the project's persisted classification, reporting
// found=false when no classification exists yet.
func (persistentStore *Store) GetClassification(executionContext context.Context, projectID string) (models.ProjectClassification, bool, error) {
	var classification models.ProjectClassification
	var createdAt string
	classification.ProjectID = projectID

	selectError := persistentStore.database.QueryRowContext(executionContext,
		`SELECT category, description, threat_model, created_at FROM project_classifications WHERE project_id = ?`, projectID).
		Scan(&classification.Category, &classification.Description, &classification.ThreatModel, &createdAt)
	if errors.Is(selectError, sql.ErrNoRows) {
		return models.ProjectClassification{}, false, nil
	}
	if selectError != nil {
		return models.ProjectClassification{}, false, fmt.Errorf(classificationSelectTemplateConstant, projectID, selectError)
	}

	classification.CreatedAt = decodeTime(createdAt)
	return classification, true, nil
}

// SaveClassification persists a project classification.
func (persistentStore *Store) SaveClassification(executionContext context.Context, classification models.ProjectClassification) error {
	_, upsertError := persistentStore.database.ExecContext(executionContext, `
		INSERT INTO project_classifications (project_id, category, description, threat_model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			category = excluded.category, description = excluded.description, threat_model = excluded.threat_model`,
		classification.ProjectID, classification.Category, classification.Description,
		classification.ThreatModel, encodeTime(time.Now().UTC()))
	if upsertError != nil {
		return fmt.Errorf(classificationSaveTemplateConstant, classification.ProjectID, upsertError)
	}
	return nil
}
