package webhookintake

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/pulsegrid/controlplane/internal/cryptoseal"
	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/webhooksig"
)

// maxWebhookBody mirrors the teacher's lenient webhook body reader limit.
const maxWebhookBody = 1 << 20

// Handler serves the CI/CD webhook intake endpoints.
type Handler struct {
	store  *Store
	sealer *cryptoseal.Sealer
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(store *Store, sealer *cryptoseal.Sealer, logger *slog.Logger) *Handler {
	return &Handler{store: store, sealer: sealer, logger: logger}
}

// Routes mounts the webhook intake endpoints under /{connection_id}/....
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{connection_id}/github", h.handleGitHub)
	r.Post("/{connection_id}/azure-devops", h.handleAzureDevOps)
	return r
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
}

func (h *Handler) resolveSecret(c *Connection) (string, error) {
	plaintext, err := h.sealer.Open(c.SealedSecret)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (h *Handler) persistDeployment(w http.ResponseWriter, r *http.Request, conn *Connection, provider string, f deploymentFields) {
	d := Deployment{
		TenantID:     conn.TenantID,
		ProjectID:    conn.ProjectID,
		ConnectionID: conn.ConnectionID,
		Provider:     provider,
		Ref:          f.Ref,
		SHA:          f.SHA,
		Environment:  f.Environment,
		Status:       f.Status,
		TriggeredBy:  f.TriggeredBy,
	}

	if err := h.store.CreateDeployment(r.Context(), d); err != nil {
		h.logger.Error("recording deployment from webhook", "connection_id", conn.ConnectionID, "provider", provider, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "recording deployment")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]bool{"accepted": true})
}

// handleGitHub verifies X-Hub-Signature-256 and, for deployment/workflow_run/
// push events, creates a Deployment row.
func (h *Handler) handleGitHub(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connection_id")

	conn, err := h.store.GetConnection(r.Context(), connectionID, "github")
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "unknown webhook connection")
		return
	}

	body, err := readBody(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "reading request body")
		return
	}

	secret, err := h.resolveSecret(conn)
	if err != nil {
		h.logger.Error("opening sealed webhook secret", "connection_id", connectionID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "could not verify signature")
		return
	}

	if err := webhooksig.VerifyGitHub(secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, httpserver.ErrUnauthorized, "invalid webhook signature")
		return
	}

	if !gjson.ValidBytes(body) {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "invalid JSON body")
		return
	}

	fields, accepted := parseGitHubEvent(r.Header.Get("X-GitHub-Event"), body)
	if !accepted {
		httpserver.Respond(w, http.StatusOK, map[string]bool{"accepted": false})
		return
	}

	h.persistDeployment(w, r, conn, "github", fields)
}

// handleAzureDevOps verifies X-Webhook-Secret and, for build.complete events,
// creates a Deployment row.
func (h *Handler) handleAzureDevOps(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connection_id")

	conn, err := h.store.GetConnection(r.Context(), connectionID, "azure-devops")
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, httpserver.ErrResourceNotFound, "unknown webhook connection")
		return
	}

	secret, err := h.resolveSecret(conn)
	if err != nil {
		h.logger.Error("opening sealed webhook secret", "connection_id", connectionID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "could not verify signature")
		return
	}

	if err := webhooksig.VerifyAzureDevOps(secret, r.Header.Get("X-Webhook-Secret")); err != nil {
		httpserver.RespondError(w, http.StatusUnauthorized, httpserver.ErrUnauthorized, "invalid webhook secret")
		return
	}

	body, err := readBody(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "reading request body")
		return
	}
	if !gjson.ValidBytes(body) {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "invalid JSON body")
		return
	}

	fields, accepted := parseAzureDevOpsEvent(body)
	if !accepted {
		httpserver.Respond(w, http.StatusOK, map[string]bool{"accepted": false})
		return
	}

	h.persistDeployment(w, r, conn, "azure-devops", fields)
}
