package ai

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// Handler provides HTTP handlers triggering AI hypothesis generation.
// Incident creation never auto-invokes generation; it is always an explicit
// caller action.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an ai Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router mounted under /incidents.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// Mount registers the hypothesis-generation routes directly onto an existing
// router, so they can share the /incidents prefix with incident.Handler's
// own routes instead of needing a second top-level mount at that prefix.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/{id}/hypotheses", h.handleGenerate)
	r.Post("/hypotheses/batch", h.handleGenerateBatch)
}

// BatchRequest asks for hypothesis generation across up to 10 incidents.
type BatchRequest struct {
	IncidentIDs []uuid.UUID `json:"incident_ids" validate:"required,min=1,max=10"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrInvalidUUID, "invalid incident ID")
		return
	}

	scope := tenantctx.FromContext(r.Context())
	hypotheses, err := h.service.GenerateHypotheses(r.Context(), scope, id)
	if err != nil {
		if errors.Is(err, ErrAlreadyGenerating) {
			httpserver.RespondError(w, http.StatusConflict, httpserver.ErrConflict, err.Error())
			return
		}
		h.logger.Error("generating hypotheses", "incident_id", id, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to generate hypotheses")
		return
	}

	httpserver.Respond(w, http.StatusOK, hypotheses)
}

func (h *Handler) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	results, errs := h.service.GenerateBatch(r.Context(), scope, req.IncidentIDs)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"hypotheses": results,
		"errors":     toErrorStrings(errs),
	})
}

func toErrorStrings(errs map[uuid.UUID]error) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(errs))
	for id, err := range errs {
		out[id] = err.Error()
	}
	return out
}
