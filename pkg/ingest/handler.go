package ingest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pulsegrid/controlplane/internal/auth"
	"github.com/pulsegrid/controlplane/internal/httpserver"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
	"github.com/pulsegrid/controlplane/pkg/errorgroup"
	"github.com/pulsegrid/controlplane/pkg/metricstore"
	"github.com/pulsegrid/controlplane/pkg/tracing"
)

// Handler provides the single POST /ingest/{domain} entry point.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an ingest Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

var validDomains = map[string]bool{
	string(DomainMetrics):         true,
	string(DomainTraces):          true,
	string(DomainErrors):          true,
	string(DomainLogs):            true,
	string(DomainInfrastructure):  true,
	string(DomainBrowser):         true,
	string(DomainVulnerabilities): true,
}

// Routes returns a chi.Router mounting POST /{domain}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{domain}", h.handleIngest)
	return r
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if !validDomains[domain] {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, "unknown ingest domain")
		return
	}

	id := auth.FromContext(r.Context())
	if id != nil && id.Method == auth.MethodAPIKey && !id.HasScope(domain) {
		httpserver.RespondError(w, http.StatusForbidden, httpserver.ErrForbidden, "API key is not scoped for this domain")
		return
	}

	scope := tenantctx.FromContext(r.Context())
	ctx := r.Context()

	var (
		count int
		err   error
	)

	switch Domain(domain) {
	case DomainMetrics:
		var items []metricstore.IngestMetricRequest
		if !decodeValidatedBatch(w, r, &items) {
			return
		}
		count, err = h.service.IngestMetrics(ctx, scope.TenantID, scope.ProjectID, items)
	case DomainTraces:
		var items []tracing.IngestTraceRequest
		if !decodeValidatedBatch(w, r, &items) {
			return
		}
		count, err = h.service.IngestTraces(ctx, scope.TenantID, scope.ProjectID, items)
	case DomainErrors:
		var items []errorgroup.IngestErrorRequest
		if !decodeValidatedBatch(w, r, &items) {
			return
		}
		count, err = h.service.IngestErrors(ctx, scope.TenantID, scope.ProjectID, items)
	case DomainInfrastructure:
		var items []metricstore.IngestHostSampleRequest
		if !decodeValidatedBatch(w, r, &items) {
			return
		}
		count, err = h.service.IngestHostSamples(ctx, scope.TenantID, scope.ProjectID, items)
	case DomainLogs, DomainBrowser, DomainVulnerabilities:
		var items []map[string]any
		if !decodeBatch(w, r, &items) {
			return
		}
		serviceName, _ := items0ServiceName(items)
		count, err = h.service.IngestRaw(ctx, scope.TenantID, scope.ProjectID, Domain(domain), serviceName, items)
	}

	if err != nil {
		h.logger.Error("ingesting batch", "error", err, "domain", domain)
		httpserver.RespondError(w, http.StatusInternalServerError, httpserver.ErrInternal, "failed to ingest batch")
		return
	}

	httpserver.Respond(w, http.StatusOK, Result{Ingested: count})
}

// decodeBatch decodes a JSON array body without struct-tag validation, for
// domains whose items are untyped maps.
func decodeBatch[T any](w http.ResponseWriter, r *http.Request, dst *[]T) bool {
	if err := httpserver.Decode(r, dst); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, httpserver.ErrValidationError, err.Error())
		return false
	}
	return true
}

// decodeValidatedBatch decodes a JSON array body and runs struct-tag
// validation on every element.
func decodeValidatedBatch[T any](w http.ResponseWriter, r *http.Request, dst *[]T) bool {
	if !decodeBatch(w, r, dst) {
		return false
	}
	for i := range *dst {
		if errs := httpserver.Validate(&(*dst)[i]); len(errs) > 0 {
			httpserver.RespondValidationError(w, errs)
			return false
		}
	}
	return true
}

// items0ServiceName extracts "service_name" from the first item in a raw
// batch, used as the service_name of every raw event stored for the batch.
func items0ServiceName(items []map[string]any) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	name, ok := items[0]["service_name"].(string)
	return name, ok
}
