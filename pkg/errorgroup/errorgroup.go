// Package errorgroup deduplicates application errors into stable fingerprint
// groups so repeated occurrences of the same underlying fault accumulate
// under one record instead of flooding the incident stream.
package errorgroup

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorGroup is a deduplicated class of error, keyed by a normalized
// fingerprint unique within its project.
type ErrorGroup struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	ProjectID         uuid.UUID `json:"project_id"`
	ServiceName       string    `json:"service_name"`
	Class             string    `json:"class"`
	NormalizedMessage string    `json:"normalized_message"`
	Fingerprint       string    `json:"fingerprint"`
	OccurrenceCount   int       `json:"occurrence_count"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// Occurrence is a single raw report that was folded into an ErrorGroup.
type Occurrence struct {
	ID           int64     `json:"id"`
	ErrorGroupID uuid.UUID `json:"error_group_id"`
	Message      string    `json:"message"`
	StackTrace   string    `json:"stack_trace"`
	Timestamp    time.Time `json:"timestamp"`
}

// IngestErrorRequest is the payload for POST /ingest/errors.
type IngestErrorRequest struct {
	ServiceName string     `json:"service_name" validate:"required"`
	Class       string     `json:"class" validate:"required"`
	Message     string     `json:"message" validate:"required"`
	StackTrace  string     `json:"stack_trace"`
	Timestamp   *time.Time `json:"timestamp"`
}

var (
	uuidPattern   = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	ipPattern     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	longHexPattern = regexp.MustCompile(`(?i)\b0x[0-9a-f]{6,}\b`)
	digitPattern  = regexp.MustCompile(`\d+`)
)

// Normalize collapses variable substrings (UUIDs, IPs, long hex addresses,
// bare digit runs) into stable tokens so the same underlying fault produces
// the same normalized message across occurrences.
func Normalize(message string) string {
	m := uuidPattern.ReplaceAllString(message, "<uuid>")
	m = ipPattern.ReplaceAllString(m, "<ip>")
	m = longHexPattern.ReplaceAllString(m, "<hex>")
	m = digitPattern.ReplaceAllString(m, "<n>")
	return strings.TrimSpace(m)
}

// Fingerprint derives a stable, idempotent hash identifying an error's
// dedup group: same service+class+normalized message always yields the same
// fingerprint, regardless of occurrence order or timestamp.
func Fingerprint(serviceName, class, normalizedMessage string) string {
	sum := sha256.Sum256([]byte(serviceName + "\x00" + class + "\x00" + normalizedMessage))
	return hex.EncodeToString(sum[:])
}
