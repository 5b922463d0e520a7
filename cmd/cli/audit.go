package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/models"
)

const (
	auditCommandUseConstant   = "audit"
	auditCommandShortConstant = "Run one audit to completion from the command line"
	auditCommandLongConstant  = "audit creates an audit for the given project, runs the full pipeline synchronously, and reports the terminal status."

	auditProjectFlagNameConstant    = "project"
	auditProjectFlagUsageConstant   = "Identifier of the registered project to audit."
	auditLevelFlagNameConstant      = "level"
	auditLevelFlagUsageConstant     = "Audit level: full, thorough, or opportunistic."
	auditBaseFlagNameConstant       = "base-audit"
	auditBaseFlagUsageConstant      = "Optional completed audit to run an incremental audit against."
	auditRequesterFlagNameConstant  = "requester"
	auditRequesterFlagUsageConstant = "Identifier recorded as the audit requester."

	missingProjectMessageConstant    = "a project identifier is required"
	invalidLevelTemplateConstant     = "unsupported audit level %q"
	loadBaseAuditTemplateConstant    = "unable to load base audit %s: %w"
	baseAuditProjectTemplateConstant = "base audit %s belongs to project %s, not %s"
	baseAuditStatusTemplateConstant  = "base audit %s is not completed (status %s)"
	createAuditTemplateConstant      = "unable to create audit: %w"
	reloadAuditTemplateConstant      = "unable to reload audit %s: %w"

	auditResultTemplateConstant = "audit %s finished with status %s (max severity %s)\n"

	auditFailedLogMessageConstant = "audit processing failed"
	auditIDLogFieldConstant       = "audit_id"
)

func (application *Application) buildAuditCommand() *cobra.Command {
	var projectID string
	var levelValue string
	var baseAuditID string
	var requesterID string

	auditCommand := &cobra.Command{
		Use:   auditCommandUseConstant,
		Short: auditCommandShortConstant,
		Long:  auditCommandLongConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			logger, loggerError := application.requireLogger()
			if loggerError != nil {
				return loggerError
			}

			if len(projectID) == 0 {
				return errors.New(missingProjectMessageConstant)
			}
			auditLevel := models.AuditLevel(levelValue)
			if !auditLevel.IsValid() {
				return fmt.Errorf(invalidLevelTemplateConstant, levelValue)
			}

			auditPipeline, pipelineError := application.buildPipeline(logger)
			if pipelineError != nil {
				return pipelineError
			}
			defer func() { _ = auditPipeline.persistentStore.Close() }()

			if len(baseAuditID) > 0 {
				baseAudit, baseError := auditPipeline.persistentStore.GetAudit(command.Context(), baseAuditID)
				if baseError != nil {
					return fmt.Errorf(loadBaseAuditTemplateConstant, baseAuditID, baseError)
				}
				if baseAudit.ProjectID != projectID {
					return fmt.Errorf(baseAuditProjectTemplateConstant, baseAuditID, baseAudit.ProjectID, projectID)
				}
				if baseAudit.Status != models.AuditStatusCompleted && baseAudit.Status != models.AuditStatusCompletedWithWarnings {
					return fmt.Errorf(baseAuditStatusTemplateConstant, baseAuditID, baseAudit.Status)
				}
			}

			creationTime := time.Now().UTC()
			audit := models.Audit{
				ID:          uuid.NewString(),
				ProjectID:   projectID,
				RequesterID: requesterID,
				Level:       auditLevel,
				Status:      models.AuditStatusPending,
				BaseAuditID: baseAuditID,
				CreatedAt:   creationTime,
				UpdatedAt:   creationTime,
			}
			if createError := auditPipeline.persistentStore.CreateAudit(command.Context(), audit); createError != nil {
				return fmt.Errorf(createAuditTemplateConstant, createError)
			}

			processError := auditPipeline.orchestrator.ProcessAudit(command.Context(), audit.ID)
			if processError != nil {
				logger.Error(auditFailedLogMessageConstant, zap.String(auditIDLogFieldConstant, audit.ID), zap.Error(processError))
			}

			finishedAudit, reloadError := auditPipeline.persistentStore.GetAudit(command.Context(), audit.ID)
			if reloadError != nil {
				return fmt.Errorf(reloadAuditTemplateConstant, audit.ID, reloadError)
			}

			fmt.Fprintf(command.OutOrStdout(), auditResultTemplateConstant, finishedAudit.ID, finishedAudit.Status, finishedAudit.MaxSeverity)
			return processError
		},
	}

	auditCommand.Flags().StringVar(&projectID, auditProjectFlagNameConstant, "", auditProjectFlagUsageConstant)
	auditCommand.Flags().StringVar(&levelValue, auditLevelFlagNameConstant, string(models.AuditLevelThorough), auditLevelFlagUsageConstant)
	auditCommand.Flags().StringVar(&baseAuditID, auditBaseFlagNameConstant, "", auditBaseFlagUsageConstant)
	auditCommand.Flags().StringVar(&requesterID, auditRequesterFlagNameConstant, "", auditRequesterFlagUsageConstant)
	return auditCommand
}
