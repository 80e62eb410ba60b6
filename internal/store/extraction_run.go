package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clinichire.app/scout/core/db"
	"clinichire.app/scout/internal/extract"
)

// ExtractionRunStore persists run outcomes. It never stores the extracted
// record itself.
type ExtractionRunStore interface {
	extract.Recorder
	Get(ctx context.Context, extractionID int64) (*extract.Event, error)
	CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error)
}

type extractionRunStore struct {
	q db.Querier
}

func NewExtractionRunStore(q db.Querier) ExtractionRunStore {
	return &extractionRunStore{q: q}
}

const insertRunSQL = `
INSERT INTO extraction_runs (
    extraction_id, schema_kind, schema_version, source_host, outcome, error_kind,
    stage, upstream_status, demo, truncated, model, duration_ms, occurred_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (extraction_id) DO NOTHING`

// Record inserts the run. Redelivered events for the same extraction are
// ignored.
func (s *extractionRunStore) Record(ctx context.Context, ev extract.Event) error {
	_, err := s.q.Exec(ctx, insertRunSQL,
		ev.ExtractionID,
		string(ev.Schema),
		ev.SchemaVersion,
		ev.SourceHost,
		ev.Outcome,
		nullString(string(ev.Kind)),
		string(ev.Stage),
		nullInt(ev.UpstreamStatus),
		ev.Demo,
		ev.Truncated,
		nullString(ev.Model),
		ev.Duration.Milliseconds(),
		ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting extraction run %d: %w", ev.ExtractionID, err)
	}
	return nil
}

const getRunSQL = `
SELECT extraction_id, schema_kind, schema_version, source_host, outcome, error_kind,
       stage, upstream_status, demo, truncated, model, duration_ms, occurred_at
FROM extraction_runs
WHERE extraction_id = $1`

func (s *extractionRunStore) Get(ctx context.Context, extractionID int64) (*extract.Event, error) {
	var (
		ev             extract.Event
		schema, stage  string
		kind, model    *string
		upstreamStatus *int32
		durationMS     int64
	)
	err := s.q.QueryRow(ctx, getRunSQL, extractionID).Scan(
		&ev.ExtractionID,
		&schema,
		&ev.SchemaVersion,
		&ev.SourceHost,
		&ev.Outcome,
		&kind,
		&stage,
		&upstreamStatus,
		&ev.Demo,
		&ev.Truncated,
		&model,
		&durationMS,
		&ev.OccurredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting extraction run %d: %w", extractionID, err)
	}

	ev.Schema = extract.SchemaKind(schema)
	ev.Stage = extract.Stage(stage)
	ev.Duration = time.Duration(durationMS) * time.Millisecond
	if kind != nil {
		ev.Kind = extract.Kind(*kind)
	}
	if model != nil {
		ev.Model = *model
	}
	if upstreamStatus != nil {
		ev.UpstreamStatus = int(*upstreamStatus)
	}
	return &ev, nil
}

const countByOutcomeSQL = `
SELECT outcome || COALESCE(':' || error_kind, ''), COUNT(*)
FROM extraction_runs
WHERE occurred_at >= $1
GROUP BY 1`

// CountByOutcome returns run counts keyed by "success" or "failed:<Kind>".
func (s *extractionRunStore) CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.q.Query(ctx, countByOutcomeSQL, since)
	if err != nil {
		return nil, fmt.Errorf("counting extraction runs: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scanning extraction run count: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating extraction run counts: %w", err)
	}
	return counts, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int32 {
	if n == 0 {
		return nil
	}
	v := int32(n)
	return &v
}
