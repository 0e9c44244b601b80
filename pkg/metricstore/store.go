package metricstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsegrid/controlplane/internal/dbx"
)

// Store persists raw telemetry and computes derived SLIs on read.
type Store struct {
	db dbx.DBTX
}

// NewStore creates a metricstore Store.
func NewStore(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// InsertMetricPoint persists a single raw metric sample.
func (s *Store) InsertMetricPoint(ctx context.Context, tenantID, projectID uuid.UUID, p MetricPoint) error {
	query := `INSERT INTO metric_points (tenant_id, project_id, service_name, metric_name, value, kind, tags, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, query, tenantID, projectID, p.ServiceName, p.MetricName, p.Value, p.Kind, p.Tags, p.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting metric point: %w", err)
	}
	return nil
}

// InsertTransaction persists a single completed transaction.
func (s *Store) InsertTransaction(ctx context.Context, tenantID, projectID uuid.UUID, tx Transaction) error {
	query := `INSERT INTO transactions
		(tenant_id, project_id, service_name, endpoint, method, status_code, duration_ms, db_duration_ms, external_duration_ms, error, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.Exec(ctx, query, tenantID, projectID, tx.ServiceName, tx.Endpoint, tx.Method, tx.StatusCode,
		tx.DurationMS, tx.DBDurationMS, tx.ExternalDurationMS, tx.Error, tx.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// InsertHostSample persists a single infrastructure resource reading.
func (s *Store) InsertHostSample(ctx context.Context, tenantID, projectID uuid.UUID, hs HostSample) error {
	query := `INSERT INTO host_samples (tenant_id, project_id, service_name, cpu_percent, memory_percent, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(ctx, query, tenantID, projectID, hs.ServiceName, hs.CPUPercent, hs.MemoryPercent, hs.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting host sample: %w", err)
	}
	return nil
}

// AvgMetric returns the average value of metric_name for service over the
// trailing window, used for the SLIRawMetric derivation rule.
func (s *Store) AvgMetric(ctx context.Context, projectID uuid.UUID, service, metricName string, window time.Duration) (float64, bool, error) {
	query := `SELECT avg(value) FROM metric_points
		WHERE project_id = $1 AND service_name = $2 AND metric_name = $3 AND "timestamp" >= now() - $4::interval`
	var avg *float64
	err := s.db.QueryRow(ctx, query, projectID, service, metricName, intervalSeconds(window)).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("averaging metric: %w", err)
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

// ErrorRate returns the fraction of erroring transactions for service over
// the trailing window, used for the SLIErrorRate derivation rule.
func (s *Store) ErrorRate(ctx context.Context, projectID uuid.UUID, service string, window time.Duration) (float64, bool, error) {
	query := `SELECT count(*) FILTER (WHERE error), count(*) FROM transactions
		WHERE project_id = $1 AND service_name = $2 AND "timestamp" >= now() - $3::interval`
	var errCount, total int64
	err := s.db.QueryRow(ctx, query, projectID, service, intervalSeconds(window)).Scan(&errCount, &total)
	if err != nil {
		return 0, false, fmt.Errorf("computing error rate: %w", err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(errCount) / float64(total), true, nil
}

// LatencyPercentile returns the requested percentile (e.g. 0.5, 0.95, 0.99)
// of transaction duration_ms for service over the trailing window, used for
// the SLILatency derivation rule.
func (s *Store) LatencyPercentile(ctx context.Context, projectID uuid.UUID, service string, percentile float64, window time.Duration) (float64, bool, error) {
	query := `SELECT percentile_cont($1) WITHIN GROUP (ORDER BY duration_ms) FROM transactions
		WHERE project_id = $2 AND service_name = $3 AND "timestamp" >= now() - $4::interval`
	var p *float64
	err := s.db.QueryRow(ctx, query, percentile, projectID, service, intervalSeconds(window)).Scan(&p)
	if err != nil {
		return 0, false, fmt.Errorf("computing latency percentile: %w", err)
	}
	if p == nil {
		return 0, false, nil
	}
	return *p, true, nil
}

// ResourceAvg returns the average CPU or memory percentage for service over
// the trailing window, used for the SLIResource derivation rule.
func (s *Store) ResourceAvg(ctx context.Context, projectID uuid.UUID, service, resource string, window time.Duration) (float64, bool, error) {
	col := "cpu_percent"
	if resource == "memory" {
		col = "memory_percent"
	}
	query := `SELECT avg(` + col + `) FROM host_samples
		WHERE project_id = $1 AND service_name = $2 AND "timestamp" >= now() - $3::interval`
	var avg *float64
	err := s.db.QueryRow(ctx, query, projectID, service, intervalSeconds(window)).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("averaging resource: %w", err)
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

// ListRecentTransactions returns the most recent transactions for a service,
// used by dashboards and incident context panels.
func (s *Store) ListRecentTransactions(ctx context.Context, projectID uuid.UUID, service string, limit int) ([]Transaction, error) {
	query := `SELECT id, tenant_id, project_id, service_name, endpoint, method, status_code, duration_ms, db_duration_ms, external_duration_ms, error, "timestamp"
		FROM transactions WHERE project_id = $1 AND service_name = $2 ORDER BY "timestamp" DESC LIMIT $3`
	rows, err := s.db.Query(ctx, query, projectID, service, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.TenantID, &tx.ProjectID, &tx.ServiceName, &tx.Endpoint, &tx.Method,
			&tx.StatusCode, &tx.DurationMS, &tx.DBDurationMS, &tx.ExternalDurationMS, &tx.Error, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		items = append(items, tx)
	}
	return items, rows.Err()
}
