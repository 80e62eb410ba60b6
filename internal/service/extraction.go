package service

import (
	"context"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"clinichire.app/scout/common/id"
	"clinichire.app/scout/common/logger"
	"clinichire.app/scout/internal/extract"
)

// Extractor is the pipeline as seen by the service.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
	Schemas() extract.Schemas
}

type ExtractionService interface {
	Extract(ctx context.Context, rawURL string, schema extract.SchemaKind) (*extract.Result, error)
	Schema(kind extract.SchemaKind) (extract.Schema, error)
}

type extractionService struct {
	pipeline Extractor
}

func NewExtractionService(pipeline Extractor) ExtractionService {
	return &extractionService{pipeline: pipeline}
}

// Extract assigns the run an ID and tags every log line and span under it.
func (s *extractionService) Extract(ctx context.Context, rawURL string, schema extract.SchemaKind) (*extract.Result, error) {
	extractionID := id.New()

	fields := logger.LogFields{
		ExtractionID: logger.Ptr(extractionID),
		Schema:       logger.Ptr(string(schema)),
		Component:    "scout.extract.pipeline",
	}
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		fields.SourceHost = logger.Ptr(u.Hostname())
	}
	ctx = logger.WithLogFields(ctx, fields)

	sc := logger.StartSpan(ctx, "service.extract")
	defer sc.End()
	sc.SetAttributes(
		attribute.Int64("extraction.id", extractionID),
		attribute.String("extraction.schema", string(schema)),
	)

	res, err := s.pipeline.Extract(sc.Context(), extract.Request{
		SourceURL:    rawURL,
		Schema:       schema,
		ExtractionID: extractionID,
	})
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	sc.SetAttributes(attribute.Bool("extraction.demo", res.Demo))
	return res, nil
}

func (s *extractionService) Schema(kind extract.SchemaKind) (extract.Schema, error) {
	return s.pipeline.Schemas().Get(kind)
}
