// Package server exposes the audit pipeline over HTTP. Starting an audit is
// cheap and synchronous up to validation; the pipeline itself runs in a
// background goroutine and clients poll the audit resource for progress.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/access"
	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/store"
)

const (
	viewerHeaderConstant = "X-Viewer-ID"

	auditIDParameterConstant   = "auditID"
	findingIDParameterConstant = "findingID"

	invalidBodyMessageConstant           = "invalid json body"
	invalidLevelMessageConstant          = "level must be one of full, thorough, opportunistic"
	invalidStatusMessageConstant         = "unknown finding status"
	invalidResolvedAuditMessageConstant  = "resolved_in_audit_id must reference an audit of the same project"
	unknownProjectMessageConstant        = "project not found"
	unknownAuditMessageConstant          = "audit not found"
	unknownFindingMessageConstant        = "finding not found in this audit"
	ownerRequiredMessageConstant         = "only the project owner may perform this action"
	baseAuditIncompleteMessageConstant   = "base audit is not completed"
	baseAuditWrongProjectMessageConstant = "base audit belongs to a different project"

	auditAcceptedMessageConstant    = "audit accepted"
	backgroundFailedMessageConstant = "background audit processing failed"

	logFieldAuditIDConstant = "audit_id"

	errorFieldConstant = "error"
)

// AuditLauncher runs an accepted audit to a terminal state.
type AuditLauncher interface {
	ProcessAudit(executionContext context.Context, auditID string) error
}

// ServerStore is the persistence surface the HTTP layer reads and writes.
type ServerStore interface {
	CreateAudit(executionContext context.Context, audit models.Audit) error
	GetAudit(executionContext context.Context, auditID string) (models.Audit, error)
	GetProject(executionContext context.Context, projectID string) (store.Project, error)
	ListFindings(executionContext context.Context, auditID string) ([]models.Finding, error)
	UpdateFindingStatus(executionContext context.Context, findingID string, status models.FindingStatus, resolvedInAuditID string) error
	FindingBelongsToAudit(executionContext context.Context, findingID string, auditID string) (bool, error)
	UpdateAuditPublication(executionContext context.Context, audit models.Audit) error
}

// TierResolver computes the viewer's access tier for an audit.
type TierResolver interface {
	ResolveTier(executionContext context.Context, audit models.Audit, viewerID string, organizationID string) (access.Tier, error)
}

// Server wires the HTTP routes to the pipeline.
type Server struct {
	persistentStore ServerStore
	resolver        TierResolver
	launcher        AuditLauncher
	logger          *zap.Logger
	clock           func() time.Time
}

// New constructs a Server.
func New(persistentStore ServerStore, resolver TierResolver, launcher AuditLauncher, logger *zap.Logger, clock func() time.Time) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Server{persistentStore: persistentStore, resolver: resolver, launcher: launcher, logger: logger, clock: clock}
}

// Router builds the HTTP route tree.
func (server *Server) Router() chi.Router {
	router := chi.NewRouter()
	router.Route("/api/v1", func(apiRouter chi.Router) {
		apiRouter.Post("/audits", server.handleStartAudit)
		apiRouter.Route("/audits/{auditID}", func(auditRouter chi.Router) {
			auditRouter.Get("/", server.handleGetAudit)
			auditRouter.Get("/findings", server.handleListFindings)
			auditRouter.Post("/publish", server.handlePublish)
			auditRouter.Post("/unpublish", server.handleUnpublish)
			auditRouter.Patch("/findings/{findingID}", server.handleUpdateFinding)
		})
	})
	return router
}

type startAuditRequest struct {
	ProjectID   string `json:"project_id"`
	Level       string `json:"level"`
	BaseAuditID string `json:"base_audit_id"`
}

type startAuditResponse struct {
	AuditID string `json:"audit_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (server *Server) handleStartAudit(responseWriter http.ResponseWriter, request *http.Request) {
	var body startAuditRequest
	if decodeError := render.DecodeJSON(request.Body, &body); decodeError != nil {
		writeError(responseWriter, request, http.StatusBadRequest, invalidBodyMessageConstant)
		return
	}

	auditLevel := models.AuditLevel(body.Level)
	if !auditLevel.IsValid() {
		writeError(responseWriter, request, http.StatusBadRequest, invalidLevelMessageConstant)
		return
	}

	if _, projectError := server.persistentStore.GetProject(request.Context(), body.ProjectID); projectError != nil {
		writeError(responseWriter, request, http.StatusNotFound, unknownProjectMessageConstant)
		return
	}

	if len(body.BaseAuditID) > 0 {
		baseAudit, baseError := server.persistentStore.GetAudit(request.Context(), body.BaseAuditID)
		if baseError != nil {
			writeError(responseWriter, request, http.StatusNotFound, unknownAuditMessageConstant)
			return
		}
		if baseAudit.ProjectID != body.ProjectID {
			writeError(responseWriter, request, http.StatusConflict, baseAuditWrongProjectMessageConstant)
			return
		}
		if baseAudit.Status != models.AuditStatusCompleted && baseAudit.Status != models.AuditStatusCompletedWithWarnings {
			writeError(responseWriter, request, http.StatusConflict, baseAuditIncompleteMessageConstant)
			return
		}
	}

	audit := models.Audit{
		ID:          uuid.NewString(),
		ProjectID:   body.ProjectID,
		RequesterID: request.Header.Get(viewerHeaderConstant),
		Level:       auditLevel,
		Status:      models.AuditStatusPending,
		BaseAuditID: body.BaseAuditID,
		CreatedAt:   server.clock(),
		UpdatedAt:   server.clock(),
	}
	if createError := server.persistentStore.CreateAudit(request.Context(), audit); createError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, createError.Error())
		return
	}

	go func(auditID string) {
		if processError := server.launcher.ProcessAudit(context.Background(), auditID); processError != nil {
			server.logger.Error(backgroundFailedMessageConstant,
				zap.String(logFieldAuditIDConstant, auditID),
				zap.Error(processError))
		}
	}(audit.ID)

	render.Status(request, http.StatusAccepted)
	render.JSON(responseWriter, request, startAuditResponse{
		AuditID: audit.ID,
		Status:  string(audit.Status),
		Message: auditAcceptedMessageConstant,
	})
}

func (server *Server) handleGetAudit(responseWriter http.ResponseWriter, request *http.Request) {
	audit, tier, resolved := server.resolveAuditTier(responseWriter, request)
	if !resolved {
		return
	}

	findings, listError := server.persistentStore.ListFindings(request.Context(), audit.ID)
	if listError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, listError.Error())
		return
	}

	render.JSON(responseWriter, request, access.RedactAudit(audit, models.CountSeverities(findings), tier))
}

func (server *Server) handleListFindings(responseWriter http.ResponseWriter, request *http.Request) {
	audit, tier, resolved := server.resolveAuditTier(responseWriter, request)
	if !resolved {
		return
	}

	findings, listError := server.persistentStore.ListFindings(request.Context(), audit.ID)
	if listError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, listError.Error())
		return
	}

	render.JSON(responseWriter, request, access.RedactFindings(findings, tier))
}

type updateFindingRequest struct {
	Status            string `json:"status"`
	ResolvedInAuditID string `json:"resolved_in_audit_id"`
}

func (server *Server) handleUpdateFinding(responseWriter http.ResponseWriter, request *http.Request) {
	audit, tier, resolved := server.resolveAuditTier(responseWriter, request)
	if !resolved {
		return
	}
	if tier != access.TierOwner {
		writeError(responseWriter, request, http.StatusForbidden, ownerRequiredMessageConstant)
		return
	}

	var body updateFindingRequest
	if decodeError := render.DecodeJSON(request.Body, &body); decodeError != nil {
		writeError(responseWriter, request, http.StatusBadRequest, invalidBodyMessageConstant)
		return
	}
	findingStatus := models.FindingStatus(body.Status)
	if !findingStatus.IsValid() {
		writeError(responseWriter, request, http.StatusBadRequest, invalidStatusMessageConstant)
		return
	}

	findingID := chi.URLParam(request, findingIDParameterConstant)
	belongs, belongsError := server.persistentStore.FindingBelongsToAudit(request.Context(), findingID, audit.ID)
	if belongsError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, belongsError.Error())
		return
	}
	if !belongs {
		writeError(responseWriter, request, http.StatusNotFound, unknownFindingMessageConstant)
		return
	}

	resolvedInAuditID := ""
	if findingStatus == models.FindingStatusFixed && len(body.ResolvedInAuditID) > 0 {
		resolvingAudit, resolvingError := server.persistentStore.GetAudit(request.Context(), body.ResolvedInAuditID)
		if resolvingError != nil || resolvingAudit.ProjectID != audit.ProjectID {
			writeError(responseWriter, request, http.StatusBadRequest, invalidResolvedAuditMessageConstant)
			return
		}
		resolvedInAuditID = body.ResolvedInAuditID
	}
	if updateError := server.persistentStore.UpdateFindingStatus(request.Context(), findingID, findingStatus, resolvedInAuditID); updateError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, updateError.Error())
		return
	}
	render.JSON(responseWriter, request, map[string]string{"id": findingID, "status": string(findingStatus)})
}

func (server *Server) handlePublish(responseWriter http.ResponseWriter, request *http.Request) {
	server.setPublication(responseWriter, request, true)
}

func (server *Server) handleUnpublish(responseWriter http.ResponseWriter, request *http.Request) {
	server.setPublication(responseWriter, request, false)
}

func (server *Server) setPublication(responseWriter http.ResponseWriter, request *http.Request, published bool) {
	audit, tier, resolved := server.resolveAuditTier(responseWriter, request)
	if !resolved {
		return
	}
	if tier != access.TierOwner {
		writeError(responseWriter, request, http.StatusForbidden, ownerRequiredMessageConstant)
		return
	}

	audit.IsPublic = published
	if updateError := server.persistentStore.UpdateAuditPublication(request.Context(), audit); updateError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, updateError.Error())
		return
	}
	render.JSON(responseWriter, request, map[string]any{"id": audit.ID, "is_public": audit.IsPublic})
}

// resolveAuditTier loads the audit, resolves the project's organization, and
// computes the viewer's tier. It writes the error response itself and returns
// resolved=false when the request cannot proceed.
func (server *Server) resolveAuditTier(responseWriter http.ResponseWriter, request *http.Request) (models.Audit, access.Tier, bool) {
	auditID := chi.URLParam(request, auditIDParameterConstant)
	audit, auditError := server.persistentStore.GetAudit(request.Context(), auditID)
	if auditError != nil {
		writeError(responseWriter, request, http.StatusNotFound, unknownAuditMessageConstant)
		return models.Audit{}, access.TierPublic, false
	}

	project, projectError := server.persistentStore.GetProject(request.Context(), audit.ProjectID)
	if projectError != nil {
		writeError(responseWriter, request, http.StatusNotFound, unknownProjectMessageConstant)
		return models.Audit{}, access.TierPublic, false
	}

	viewerID := request.Header.Get(viewerHeaderConstant)
	tier, tierError := server.resolver.ResolveTier(request.Context(), audit, viewerID, project.OrganizationID)
	if tierError != nil {
		writeError(responseWriter, request, http.StatusInternalServerError, tierError.Error())
		return models.Audit{}, access.TierPublic, false
	}
	return audit, tier, true
}

func writeError(responseWriter http.ResponseWriter, request *http.Request, statusCode int, message string) {
	render.Status(request, statusCode)
	render.JSON(responseWriter, request, map[string]string{errorFieldConstant: message})
}
