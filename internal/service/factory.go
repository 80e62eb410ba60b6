package service

import (
	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/store"
)

type Services struct {
	pipeline *extract.Pipeline
	runs     store.ExtractionRunStore
}

type Option func(*Services)

// WithRunStore exposes the run log through Runs.
func WithRunStore(runs store.ExtractionRunStore) Option {
	return func(s *Services) { s.runs = runs }
}

func NewServices(pipeline *extract.Pipeline, opts ...Option) *Services {
	s := &Services{pipeline: pipeline}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Services) Extraction() ExtractionService {
	return NewExtractionService(s.pipeline)
}

// Runs returns nil when no run store is configured.
func (s *Services) Runs() RunService {
	if s.runs == nil {
		return nil
	}
	return NewRunService(s.runs)
}
