package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/dbx"
	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// LogRow is a single persisted audit log entry, as returned by the list API.
type LogRow struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	APIKeyID   *uuid.UUID `json:"api_key_id,omitempty"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
	Detail     []byte     `json:"detail,omitempty"`
	IPAddress  *string    `json:"ip_address,omitempty"`
	UserAgent  *string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	db     dbx.DBTX
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(db dbx.DBTX, logger *slog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, err.Error())
		return
	}

	scope := tenantctx.FromContext(r.Context())

	rows, err := h.db.Query(r.Context(), `
		SELECT id, user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log
		WHERE tenant_id = $1 AND project_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		scope.TenantID, scope.ProjectID, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list audit log")
		return
	}
	defer rows.Close()

	var entries []LogRow
	for rows.Next() {
		var e LogRow
		var ip *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.APIKeyID, &e.Action, &e.Resource, &e.ResourceID, &e.Detail, &ip, &e.UserAgent, &e.CreatedAt); err != nil {
			h.logger.Error("scanning audit log row", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to list audit log")
			return
		}
		e.IPAddress = ip
		entries = append(entries, e)
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(entries, params, len(entries)))
}
