package incident

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulsegrid/controlplane/internal/dbx"
	"github.com/pulsegrid/controlplane/internal/tenantctx"
)

// Store provides database operations for incidents and their children. Every
// query is scoped by (tenant_id, project_id); scope is carried explicitly
// rather than via a connection-level search_path.
type Store struct {
	db dbx.DBTX
}

// NewStore creates an incident Store backed by the given connection or
// transaction.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

const incidentColumns = `id, tenant_id, project_id, title, description, service, severity, state,
	merged_into_id, detected_at, acknowledged_at, resolved_at, created_at, updated_at`

func scanIncident(row pgx.Row) (Incident, error) {
	var i Incident
	err := row.Scan(
		&i.ID, &i.TenantID, &i.ProjectID, &i.Title, &i.Description, &i.Service, &i.Severity, &i.State,
		&i.MergedIntoID, &i.DetectedAt, &i.AcknowledgedAt, &i.ResolvedAt, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

func scanIncidents(rows pgx.Rows) ([]Incident, error) {
	defer rows.Close()
	var items []Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incident row: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incident rows: %w", err)
	}
	return items, nil
}

// Create inserts a new incident in the investigating state, with detected_at
// set to now.
func (s *Store) Create(ctx context.Context, scope tenantctx.Scope, req CreateRequest) (Incident, error) {
	query := `INSERT INTO incidents (
		tenant_id, project_id, title, description, service, severity, state, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	RETURNING ` + incidentColumns
	row := s.db.QueryRow(ctx, query,
		scope.TenantID, scope.ProjectID, req.Title, req.Description, req.Service, req.Severity, StateInvestigating,
	)
	return scanIncident(row)
}

// Get returns a single incident scoped to the tenant/project.
func (s *Store) Get(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) (Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 AND tenant_id = $2 AND project_id = $3`
	row := s.db.QueryRow(ctx, query, id, scope.TenantID, scope.ProjectID)
	return scanIncident(row)
}

// ListFiltered returns incidents matching the given filters, newest first.
func (s *Store) ListFiltered(ctx context.Context, scope tenantctx.Scope, filters ListFilters, limit, offset int) ([]Incident, error) {
	where, args := buildFilterClauses(scope, filters)
	argN := len(args) + 1
	query := fmt.Sprintf(
		`SELECT %s FROM incidents WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		incidentColumns, strings.Join(where, " AND "), argN, argN+1,
	)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	return scanIncidents(rows)
}

// CountFiltered returns the count of incidents matching the given filters.
func (s *Store) CountFiltered(ctx context.Context, scope tenantctx.Scope, filters ListFilters) (int, error) {
	where, args := buildFilterClauses(scope, filters)
	query := fmt.Sprintf(`SELECT count(*) FROM incidents WHERE %s`, strings.Join(where, " AND "))
	var count int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting incidents: %w", err)
	}
	return count, nil
}

func buildFilterClauses(scope tenantctx.Scope, filters ListFilters) ([]string, []any) {
	where := []string{"merged_into_id IS NULL"}
	args := []any{scope.TenantID, scope.ProjectID}
	where = append(where, "tenant_id = $1", "project_id = $2")
	argN := 3

	if filters.State != "" {
		where = append(where, fmt.Sprintf("state = $%d", argN))
		args = append(args, filters.State)
		argN++
	}
	if filters.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, filters.Severity)
		argN++
	}
	if filters.Service != "" {
		where = append(where, fmt.Sprintf("service = $%d", argN))
		args = append(args, filters.Service)
		argN++
	}

	return where, args
}

// Search performs a full-text search over title/description with ranking and
// highlighting, scoped to the tenant/project.
func (s *Store) Search(ctx context.Context, scope tenantctx.Scope, query string, limit int) ([]SearchResult, error) {
	sql := `SELECT i.id, i.title, i.service, i.severity, i.state,
		ts_rank(i.search_vector, q) AS rank,
		ts_headline('english', COALESCE(i.title, ''), q,
			'StartSel=<mark>, StopSel=</mark>, MaxWords=50, MinWords=10') AS title_highlight,
		ts_headline('english', COALESCE(i.description, ''), q,
			'StartSel=<mark>, StopSel=</mark>, MaxWords=80, MinWords=15') AS description_highlight,
		i.created_at
	FROM incidents i, plainto_tsquery('english', $1) q
	WHERE i.search_vector @@ q
	  AND i.tenant_id = $2 AND i.project_id = $3
	  AND i.merged_into_id IS NULL
	ORDER BY rank DESC
	LIMIT $4`

	rows, err := s.db.Query(ctx, sql, query, scope.TenantID, scope.ProjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("searching incidents: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Service, &r.Severity, &r.State,
			&r.Rank, &r.TitleHighlight, &r.DescriptionHighlight, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return results, nil
}

// UpdateState writes the new lifecycle state without checking the
// transition (Service.UpdateState does that), stamping
// acknowledged_at/resolved_at as appropriate.
func (s *Store) UpdateState(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, to State) (Incident, error) {
	query := `UPDATE incidents SET
		state = $1,
		acknowledged_at = CASE WHEN $1 = 'acknowledged' AND acknowledged_at IS NULL THEN now() ELSE acknowledged_at END,
		resolved_at = CASE WHEN $1 = 'resolved' THEN now() ELSE resolved_at END,
		updated_at = now()
	WHERE id = $2 AND tenant_id = $3 AND project_id = $4
	RETURNING ` + incidentColumns
	row := s.db.QueryRow(ctx, query, to, id, scope.TenantID, scope.ProjectID)
	return scanIncident(row)
}

// UpdateSeverity updates an incident's severity unconditionally.
func (s *Store) UpdateSeverity(ctx context.Context, scope tenantctx.Scope, id uuid.UUID, to Severity) (Incident, error) {
	query := `UPDATE incidents SET severity = $1, updated_at = now()
	WHERE id = $2 AND tenant_id = $3 AND project_id = $4
	RETURNING ` + incidentColumns
	row := s.db.QueryRow(ctx, query, to, id, scope.TenantID, scope.ProjectID)
	return scanIncident(row)
}

// Delete removes an incident and, via ON DELETE CASCADE, its Hypotheses,
// AnalysisSteps, AIRequests, and Activities.
func (s *Store) Delete(ctx context.Context, scope tenantctx.Scope, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM incidents WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID)
	if err != nil {
		return fmt.Errorf("deleting incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetMergedInto marks the source incident as merged into the target.
func (s *Store) SetMergedInto(ctx context.Context, scope tenantctx.Scope, sourceID, targetID uuid.UUID) error {
	query := `UPDATE incidents SET merged_into_id = $1, state = 'closed', updated_at = now()
	WHERE id = $2 AND tenant_id = $3 AND project_id = $4 AND merged_into_id IS NULL`
	tag, err := s.db.Exec(ctx, query, targetID, sourceID, scope.TenantID, scope.ProjectID)
	if err != nil {
		return fmt.Errorf("setting merged_into_id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// --- Activities ---

// CreateActivity inserts an Activity row recording a single field transition.
func (s *Store) CreateActivity(ctx context.Context, incidentID uuid.UUID, actorID *uuid.UUID, field, oldValue, newValue, comment string) error {
	query := `INSERT INTO incident_activities (incident_id, actor_id, field, old_value, new_value, comment)
	VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(ctx, query, incidentID, actorID, field, oldValue, newValue, comment)
	if err != nil {
		return fmt.Errorf("creating incident activity: %w", err)
	}
	return nil
}

// ListActivities returns all Activity rows for an incident, newest first.
func (s *Store) ListActivities(ctx context.Context, incidentID uuid.UUID) ([]Activity, error) {
	query := `SELECT id, incident_id, actor_id, field, old_value, new_value, comment, created_at
	FROM incident_activities WHERE incident_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("listing incident activities: %w", err)
	}
	defer rows.Close()

	var items []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.ActorID, &a.Field, &a.OldValue, &a.NewValue, &a.Comment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning incident activity: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incident activities: %w", err)
	}
	return items, nil
}

// --- Analysis steps ---

// CreateSteps seeds the five-step analysis workflow for a newly created
// incident.
func (s *Store) CreateSteps(ctx context.Context, steps []AnalysisStep) error {
	for _, step := range steps {
		query := `INSERT INTO incident_analysis_steps (
			id, incident_id, step_type, step_number, status, started_at, completed_at,
			input, output, input_tokens, output_tokens, cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		_, err := s.db.Exec(ctx, query,
			step.ID, step.IncidentID, step.StepType, step.StepNumber, step.Status, step.StartedAt, step.CompletedAt,
			step.Input, step.Output, step.InputTokens, step.OutputTokens, step.Cost,
		)
		if err != nil {
			return fmt.Errorf("creating analysis step %s: %w", step.StepType, err)
		}
	}
	return nil
}

// ListSteps returns all analysis steps for an incident, ordered by step number.
func (s *Store) ListSteps(ctx context.Context, incidentID uuid.UUID) ([]AnalysisStep, error) {
	query := `SELECT id, incident_id, step_type, step_number, status, started_at, completed_at,
		input, output, input_tokens, output_tokens, cost
	FROM incident_analysis_steps WHERE incident_id = $1 ORDER BY step_number ASC`
	rows, err := s.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("listing analysis steps: %w", err)
	}
	defer rows.Close()

	var items []AnalysisStep
	for rows.Next() {
		var st AnalysisStep
		if err := rows.Scan(
			&st.ID, &st.IncidentID, &st.StepType, &st.StepNumber, &st.Status, &st.StartedAt, &st.CompletedAt,
			&st.Input, &st.Output, &st.InputTokens, &st.OutputTokens, &st.Cost,
		); err != nil {
			return nil, fmt.Errorf("scanning analysis step: %w", err)
		}
		items = append(items, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analysis steps: %w", err)
	}
	return items, nil
}

// CompleteStep transitions a step to a terminal status, stamping
// completed_at and token/cost attribution.
func (s *Store) CompleteStep(ctx context.Context, incidentID uuid.UUID, stepType AnalysisStepType, status AnalysisStepStatus, output string, inputTokens, outputTokens int, cost float64) error {
	query := `UPDATE incident_analysis_steps SET
		status = $1, output = $2, input_tokens = $3, output_tokens = $4, cost = $5, completed_at = now()
	WHERE incident_id = $6 AND step_type = $7`
	_, err := s.db.Exec(ctx, query, status, output, inputTokens, outputTokens, cost, incidentID, stepType)
	if err != nil {
		return fmt.Errorf("completing analysis step %s: %w", stepType, err)
	}
	return nil
}

// --- Hypotheses ---

// ListHypotheses returns the persisted hypothesis set for an incident,
// ordered by rank.
func (s *Store) ListHypotheses(ctx context.Context, incidentID uuid.UUID) ([]Hypothesis, error) {
	query := `SELECT id, incident_id, claim, description, confidence_score, rank, evidence_list, created_at
	FROM incident_hypotheses WHERE incident_id = $1 ORDER BY rank ASC`
	rows, err := s.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("listing hypotheses: %w", err)
	}
	defer rows.Close()

	var items []Hypothesis
	for rows.Next() {
		var h Hypothesis
		if err := rows.Scan(&h.ID, &h.IncidentID, &h.Claim, &h.Description, &h.ConfidenceScore, &h.Rank, &h.EvidenceList, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning hypothesis: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hypotheses: %w", err)
	}
	return items, nil
}

// ReplaceHypotheses deletes any existing hypothesis set for the incident and
// inserts the given one. At most one set per incident is ever persisted.
func (s *Store) ReplaceHypotheses(ctx context.Context, incidentID uuid.UUID, hypotheses []Hypothesis) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM incident_hypotheses WHERE incident_id = $1`, incidentID); err != nil {
		return fmt.Errorf("clearing existing hypotheses: %w", err)
	}
	for _, h := range hypotheses {
		query := `INSERT INTO incident_hypotheses (id, incident_id, claim, description, confidence_score, rank, evidence_list)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := s.db.Exec(ctx, query, h.ID, incidentID, h.Claim, h.Description, h.ConfidenceScore, h.Rank, h.EvidenceList)
		if err != nil {
			return fmt.Errorf("inserting hypothesis rank %d: %w", h.Rank, err)
		}
	}
	return nil
}

// --- AI requests ---

// AIRequest is the audit record of a single LLM call made on behalf of an
// incident.
type AIRequest struct {
	ID           uuid.UUID
	IncidentID   uuid.UUID
	Kind         string
	InputTokens  int
	OutputTokens int
	Cost         float64
	DurationMs   int
	Model        string
	Summary      string
}

// CreateAIRequest inserts an AIRequest audit row.
func (s *Store) CreateAIRequest(ctx context.Context, req AIRequest) error {
	query := `INSERT INTO incident_ai_requests (
		id, incident_id, kind, input_tokens, output_tokens, cost, duration_ms, model, summary
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.Exec(ctx, query, req.ID, req.IncidentID, req.Kind, req.InputTokens, req.OutputTokens, req.Cost, req.DurationMs, req.Model, req.Summary)
	if err != nil {
		return fmt.Errorf("creating AI request: %w", err)
	}
	return nil
}

// SearchResult is a ranked, highlighted search hit.
type SearchResult struct {
	ID                   uuid.UUID
	Title                string
	Service              string
	Severity             Severity
	State                State
	Rank                 float64
	TitleHighlight       string
	DescriptionHighlight string
	CreatedAt            time.Time
}
