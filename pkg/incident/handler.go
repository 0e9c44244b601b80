package incident

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/auth"
	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// Handler provides HTTP handlers for the incidents API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an incident Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with all incident routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/search", h.handleSearch)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Patch("/state", h.handleUpdateState)
		r.Patch("/severity", h.handleUpdateSeverity)
		r.Post("/merge", h.handleMerge)
		r.Get("/activities", h.handleListActivities)
		r.Get("/steps", h.handleListSteps)
	})
	return r
}

func callerID(r *http.Request) *uuid.UUID {
	id := auth.FromContext(r.Context())
	if id != nil && id.UserID != nil {
		return id.UserID
	}
	return nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	inc, err := h.service.Create(r.Context(), scope, req)
	if err != nil {
		h.logger.Error("creating incident", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create incident")
		return
	}

	httpserver.Respond(w, http.StatusCreated, inc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, err.Error())
		return
	}

	filters := ListFilters{
		State:    State(r.URL.Query().Get("state")),
		Severity: Severity(r.URL.Query().Get("severity")),
		Service:  r.URL.Query().Get("service"),
	}

	scope := tenantctx.FromContext(r.Context())
	items, total, err := h.service.List(r.Context(), scope, filters, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing incidents", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list incidents")
		return
	}

	page := httpserver.NewOffsetPage(items, params, total)
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	scope := tenantctx.FromContext(r.Context())
	inc, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "incident not found")
			return
		}
		h.logger.Error("getting incident", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to get incident")
		return
	}

	httpserver.Respond(w, http.StatusOK, inc)
}

func (h *Handler) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	var req UpdateStateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	inc, err := h.service.UpdateState(r.Context(), scope, id, callerID(r), req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "incident not found")
			return
		}
		var transErr ErrInvalidTransition
		if errors.As(err, &transErr) {
			httpserver.RespondError(w, http.StatusUnprocessableEntity, httpserver.ErrValidationError, transErr.Error())
			return
		}
		h.logger.Error("updating incident state", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to update incident state")
		return
	}

	httpserver.Respond(w, http.StatusOK, inc)
}

func (h *Handler) handleUpdateSeverity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	var req UpdateSeverityRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	inc, err := h.service.UpdateSeverity(r.Context(), scope, id, callerID(r), req)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "incident not found")
			return
		}
		h.logger.Error("updating incident severity", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to update incident severity")
		return
	}

	httpserver.Respond(w, http.StatusOK, inc)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	scope := tenantctx.FromContext(r.Context())
	if err := h.service.Delete(r.Context(), scope, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "incident not found")
			return
		}
		h.logger.Error("deleting incident", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to delete incident")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "query parameter 'q' is required")
		return
	}

	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "limit must be a positive integer")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	scope := tenantctx.FromContext(r.Context())
	results, err := h.service.Search(r.Context(), scope, q, limit)
	if err != nil {
		h.logger.Error("searching incidents", "error", err, "query", q)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to search incidents")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"query":   q,
		"results": results,
		"count":   len(results),
	})
}

func (h *Handler) handleListActivities(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	items, err := h.service.ListActivities(r.Context(), id)
	if err != nil {
		h.logger.Error("listing incident activities", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list incident activities")
		return
	}

	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleListSteps(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	items, err := h.service.ListSteps(r.Context(), id)
	if err != nil {
		h.logger.Error("listing analysis steps", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list analysis steps")
		return
	}

	httpserver.Respond(w, http.StatusOK, items)
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid target incident ID")
		return
	}

	var req MergeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid source_id")
		return
	}

	scope := tenantctx.FromContext(r.Context())
	inc, err := h.service.Merge(r.Context(), scope, targetID, sourceID, callerID(r))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "incident not found")
			return
		}
		httpserver.RespondError(w, http.StatusUnprocessableEntity, httpserver.ErrValidationError, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, inc)
}
