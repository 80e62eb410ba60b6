package dto

import (
	"strconv"
	"time"

	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/service"
)

// RunResponse is one run log entry. Extraction IDs are strings so browsers
// keep all 64 bits.
type RunResponse struct {
	ExtractionID   string    `json:"extractionId"`
	Schema         string    `json:"schema"`
	SchemaVersion  string    `json:"schemaVersion"`
	SourceHost     string    `json:"sourceHost,omitempty"`
	Outcome        string    `json:"outcome"`
	Kind           string    `json:"kind,omitempty"`
	Stage          string    `json:"stage"`
	UpstreamStatus int       `json:"upstreamStatus,omitempty"`
	Demo           bool      `json:"demo"`
	Truncated      bool      `json:"truncated"`
	Model          string    `json:"model,omitempty"`
	DurationMS     int64     `json:"durationMs"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type RunStatsResponse struct {
	Since  time.Time        `json:"since"`
	Total  int64            `json:"total"`
	Counts map[string]int64 `json:"counts"`
}

func FromEvent(ev *extract.Event) RunResponse {
	return RunResponse{
		ExtractionID:   strconv.FormatInt(ev.ExtractionID, 10),
		Schema:         string(ev.Schema),
		SchemaVersion:  ev.SchemaVersion,
		SourceHost:     ev.SourceHost,
		Outcome:        ev.Outcome,
		Kind:           string(ev.Kind),
		Stage:          string(ev.Stage),
		UpstreamStatus: ev.UpstreamStatus,
		Demo:           ev.Demo,
		Truncated:      ev.Truncated,
		Model:          ev.Model,
		DurationMS:     ev.Duration.Milliseconds(),
		OccurredAt:     ev.OccurredAt,
	}
}

func FromRunStats(stats *service.RunStats) RunStatsResponse {
	counts := stats.Counts
	if counts == nil {
		counts = map[string]int64{}
	}
	return RunStatsResponse{Since: stats.Since, Total: stats.Total, Counts: counts}
}
