package queue

import (
	"fmt"
	"strconv"
	"time"

	"clinichire.app/scout/internal/extract"
)

// EventValues flattens an extraction event into stream fields. Empty
// optional fields are omitted.
func EventValues(ev extract.Event) map[string]any {
	values := map[string]any{
		"extraction_id":  ev.ExtractionID,
		"schema":         string(ev.Schema),
		"schema_version": ev.SchemaVersion,
		"outcome":        ev.Outcome,
		"stage":          string(ev.Stage),
		"demo":           ev.Demo,
		"truncated":      ev.Truncated,
		"duration_ms":    ev.Duration.Milliseconds(),
		"occurred_at":    ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}

	if ev.SourceHost != "" {
		values["source_host"] = ev.SourceHost
	}
	if ev.Kind != "" {
		values["kind"] = string(ev.Kind)
	}
	if ev.UpstreamStatus != 0 {
		values["upstream_status"] = ev.UpstreamStatus
	}
	if ev.Model != "" {
		values["model"] = ev.Model
	}
	return values
}

// ParseEvent is the inverse of EventValues. Redis returns every field as a
// string, so values are parsed from their printed form.
func ParseEvent(values map[string]any) (extract.Event, error) {
	extractionID, err := parseInt64(values, "extraction_id")
	if err != nil {
		return extract.Event{}, err
	}
	schema, err := parseString(values, "schema")
	if err != nil {
		return extract.Event{}, err
	}
	outcome, err := parseString(values, "outcome")
	if err != nil {
		return extract.Event{}, err
	}
	if outcome != extract.OutcomeSuccess && outcome != extract.OutcomeFailed {
		return extract.Event{}, fmt.Errorf("unknown outcome %q", outcome)
	}
	occurredAtStr, err := parseString(values, "occurred_at")
	if err != nil {
		return extract.Event{}, err
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, occurredAtStr)
	if err != nil {
		return extract.Event{}, fmt.Errorf("parsing occurred_at: %w", err)
	}

	durationMS, err := parseOptionalInt64(values, "duration_ms")
	if err != nil {
		return extract.Event{}, err
	}
	upstreamStatus, err := parseOptionalInt(values, "upstream_status")
	if err != nil {
		return extract.Event{}, err
	}
	demo, err := parseOptionalBool(values, "demo")
	if err != nil {
		return extract.Event{}, err
	}
	truncated, err := parseOptionalBool(values, "truncated")
	if err != nil {
		return extract.Event{}, err
	}

	ev := extract.Event{
		ExtractionID:   extractionID,
		Schema:         extract.SchemaKind(schema),
		SchemaVersion:  parseOptionalString(values, "schema_version"),
		SourceHost:     parseOptionalString(values, "source_host"),
		Outcome:        outcome,
		Kind:           extract.Kind(parseOptionalString(values, "kind")),
		Stage:          extract.Stage(parseOptionalString(values, "stage")),
		UpstreamStatus: upstreamStatus,
		Demo:           demo,
		Truncated:      truncated,
		Model:          parseOptionalString(values, "model"),
		OccurredAt:     occurredAt,
	}
	if durationMS != nil {
		ev.Duration = time.Duration(*durationMS) * time.Millisecond
	}
	return ev, nil
}

func parseInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt64(values map[string]any, key string) (*int64, error) {
	raw, ok := values[key]
	if !ok {
		return nil, nil
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

// go-redis writes bools as "1" and "0".
func parseOptionalBool(values map[string]any, key string) (bool, error) {
	raw, ok := values[key]
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(fmt.Sprint(raw))
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}
