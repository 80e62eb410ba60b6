package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Event is the observability record of one pipeline run. It carries outcome
// metadata only, never the extracted record.
type Event struct {
	ExtractionID   int64
	Schema         SchemaKind
	SchemaVersion  string
	SourceHost     string
	Outcome        string
	Kind           Kind  // empty on success
	Stage          Stage // last stage reached
	UpstreamStatus int
	Demo           bool
	Truncated      bool
	Model          string
	Duration       time.Duration
	OccurredAt     time.Time
}

// Recorder receives exactly one Event per run. Its errors are logged and
// never change the pipeline result.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// LogRecorder writes events as structured log lines.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, ev Event) error {
	attrs := []any{
		"extraction_id", ev.ExtractionID,
		"schema_version", ev.SchemaVersion,
		"source_host", ev.SourceHost,
		"stage", ev.Stage,
		"demo", ev.Demo,
		"truncated", ev.Truncated,
		"model", ev.Model,
		"duration_ms", ev.Duration.Milliseconds(),
	}

	if ev.Outcome == OutcomeSuccess {
		slog.InfoContext(ctx, "extraction completed", attrs...)
		return nil
	}

	attrs = append(attrs, "kind", ev.Kind)
	if ev.UpstreamStatus != 0 {
		attrs = append(attrs, "upstream_status", ev.UpstreamStatus)
	}
	slog.WarnContext(ctx, "extraction failed", attrs...)
	return nil
}

// MultiRecorder fans an event out to every recorder and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
