package alert

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// Handler provides HTTP handlers for alert policy/condition/channel/muting
// rule management.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an alert Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with all alert-configuration routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/policies", h.handleCreatePolicy)
	r.Post("/conditions", h.handleCreateCondition)
	r.Post("/channels", h.handleCreateChannel)
	r.Post("/muting-rules", h.handleCreateMutingRule)
	return r
}

func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	p, err := h.service.CreatePolicy(r.Context(), scope.TenantID, scope.ProjectID, req)
	if err != nil {
		h.logger.Error("creating alert policy", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create alert policy")
		return
	}

	httpserver.Respond(w, http.StatusCreated, p)
}

func (h *Handler) handleCreateCondition(w http.ResponseWriter, r *http.Request) {
	var req CreateConditionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	c, err := h.service.CreateCondition(r.Context(), scope.TenantID, scope.ProjectID, req)
	if err != nil {
		h.logger.Error("creating alert condition", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create alert condition")
		return
	}

	httpserver.Respond(w, http.StatusCreated, c)
}

func (h *Handler) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	c, err := h.service.CreateChannel(r.Context(), scope.TenantID, scope.ProjectID, req)
	if err != nil {
		h.logger.Error("creating notification channel", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create notification channel")
		return
	}

	httpserver.Respond(w, http.StatusCreated, c)
}

func (h *Handler) handleCreateMutingRule(w http.ResponseWriter, r *http.Request) {
	var req CreateMutingRuleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	scope := tenantctx.FromContext(r.Context())
	m, err := h.service.CreateMutingRule(r.Context(), scope.TenantID, scope.ProjectID, req)
	if err != nil {
		h.logger.Error("creating muting rule", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to create muting rule")
		return
	}

	httpserver.Respond(w, http.StatusCreated, m)
}
