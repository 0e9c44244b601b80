package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// Handler provides HTTP handlers for tenant, project, and API key management.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a tenant Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// AdminRoutes returns routes for tenant/project administration, intended to
// be mounted outside the tenant-scoped API router (callers must already be
// restricted to admin role via auth.RequireMinRole).
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/tenants", h.handleCreateTenant)
	r.Get("/tenants/{tenantID}", h.handleGetTenant)
	r.Post("/tenants/{tenantID}/projects", h.handleCreateProject)
	r.Get("/tenants/{tenantID}/projects", h.handleListProjects)
	return r
}

// APIKeyRoutes returns routes for API key management, scoped to the caller's
// current (tenant_id, project_id) via tenantctx.
func (h *Handler) APIKeyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreateAPIKey)
	r.Get("/", h.handleListAPIKeys)
	r.Delete("/{id}", h.handleRevokeAPIKey)
	return r
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.service.CreateTenant(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("creating tenant", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create tenant")
		return
	}

	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid tenant ID")
		return
	}

	t, err := h.service.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "tenant not found")
			return
		}
		h.logger.Error("getting tenant", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to get tenant")
		return
	}

	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid tenant ID")
		return
	}

	var req CreateProjectRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.service.CreateProject(r.Context(), tenantID, req.Name, req.Slug)
	if err != nil {
		h.logger.Error("creating project", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create project")
		return
	}

	httpserver.Respond(w, http.StatusCreated, p)
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid tenant ID")
		return
	}

	items, err := h.service.ListProjects(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("listing projects", "error", err, "tenant_id", tenantID)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list projects")
		return
	}

	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	created, err := h.service.CreateAPIKey(r.Context(), scope.TenantID, scope.ProjectID, req)
	if err != nil {
		h.logger.Error("creating API key", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create API key")
		return
	}

	httpserver.Respond(w, http.StatusCreated, created)
}

func (h *Handler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	scope := tenantctx.FromContext(r.Context())
	items, err := h.service.ListAPIKeys(r.Context(), scope.TenantID, scope.ProjectID)
	if err != nil {
		h.logger.Error("listing API keys", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list API keys")
		return
	}

	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid API key ID")
		return
	}

	scope := tenantctx.FromContext(r.Context())
	if err := h.service.RevokeAPIKey(r.Context(), scope.TenantID, scope.ProjectID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "API key not found")
			return
		}
		h.logger.Error("revoking API key", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to revoke API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
