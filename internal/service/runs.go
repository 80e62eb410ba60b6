package service

import (
	"context"
	"fmt"
	"time"

	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/store"
)

// MaxStatsWindow bounds how far back run counts may be requested.
const MaxStatsWindow = 30 * 24 * time.Hour

// RunStats is a count of recorded runs keyed by "success" or "failed:<Kind>".
type RunStats struct {
	Since  time.Time
	Total  int64
	Counts map[string]int64
}

// RunService reads the run log. It only exists when a database is configured.
type RunService interface {
	Get(ctx context.Context, extractionID int64) (*extract.Event, error)
	Stats(ctx context.Context, window time.Duration) (*RunStats, error)
}

type runService struct {
	runs store.ExtractionRunStore
	now  func() time.Time
}

func NewRunService(runs store.ExtractionRunStore) RunService {
	return &runService{runs: runs, now: time.Now}
}

func (s *runService) Get(ctx context.Context, extractionID int64) (*extract.Event, error) {
	return s.runs.Get(ctx, extractionID)
}

func (s *runService) Stats(ctx context.Context, window time.Duration) (*RunStats, error) {
	if window <= 0 || window > MaxStatsWindow {
		return nil, fmt.Errorf("stats window must be between 0 and %s", MaxStatsWindow)
	}

	since := s.now().Add(-window).UTC()
	counts, err := s.runs.CountByOutcome(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &RunStats{Since: since, Counts: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
