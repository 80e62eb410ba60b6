package extract

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"clinichire.app/scout/common/logger"
)

// Stage is a pipeline state. Transitions only move forward.
type Stage string

const (
	StageStart        Stage = "start"
	StageURLValidated Stage = "url_validated"
	StageFetched      Stage = "fetched"
	StageSanitized    Stage = "sanitized"
	StagePromptBuilt  Stage = "prompt_built"
	StageInferred     Stage = "inferred"
	StageParsed       Stage = "parsed"
	StageDone         Stage = "done"
)

const recordTimeout = 2 * time.Second

type Request struct {
	SourceURL    string
	Schema       SchemaKind
	ExtractionID int64
}

type Result struct {
	ExtractionID int64
	Record       Record
	SourceURL    string
	Schema       SchemaKind
	Demo         bool
	Truncated    bool
	Model        string
}

// Pipeline is the only entry point into extraction. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	fetcher   Fetcher
	inference InferenceClient
	schemas   Schemas
	recorder  Recorder
}

type Option func(*Pipeline)

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

func NewPipeline(fetcher Fetcher, inference InferenceClient, schemas Schemas, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:   fetcher,
		inference: inference,
		schemas:   schemas,
		recorder:  LogRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Schemas() Schemas {
	return p.schemas
}

// Extract runs one request to a complete record or a single *Error, never
// both. An unknown schema is a programming error and is returned as
// ErrUnknownSchema without an event.
func (p *Pipeline) Extract(ctx context.Context, req Request) (*Result, error) {
	schema, err := p.schemas.Get(req.Schema)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, stage, err := p.run(ctx, schema, req)

	ev := Event{
		ExtractionID:  req.ExtractionID,
		Schema:        schema.Kind,
		SchemaVersion: schema.Version,
		SourceHost:    hostOf(req.SourceURL),
		Stage:         stage,
		Duration:      time.Since(start),
		OccurredAt:    time.Now().UTC(),
	}

	if err != nil {
		perr := asError(err, KindFetchFailed)
		perr.Stage = stage
		ev.Outcome = OutcomeFailed
		ev.Kind = perr.Kind
		ev.UpstreamStatus = perr.UpstreamStatus
		p.record(ctx, ev)
		return nil, perr
	}

	res.ExtractionID = req.ExtractionID
	ev.Outcome = OutcomeSuccess
	ev.Demo = res.Demo
	ev.Truncated = res.Truncated
	ev.Model = res.Model
	p.record(ctx, ev)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, schema Schema, req Request) (*Result, Stage, error) {
	u, err := ValidateURL(req.SourceURL)
	if err != nil {
		return nil, StageStart, err
	}
	sourceURL := u.String()

	if p.inference.Demo() {
		inf, err := p.inference.Infer(ctx, schema, "")
		if err != nil {
			return nil, StageURLValidated, asError(err, KindInferenceFailed)
		}
		record, err := Parse(schema, inf.Reply)
		if err != nil {
			return nil, StageInferred, err
		}
		return &Result{
			Record:    record,
			SourceURL: sourceURL,
			Schema:    schema.Kind,
			Demo:      true,
			Model:     inf.Model,
		}, StageDone, nil
	}

	page, err := p.fetch(ctx, sourceURL)
	if err != nil {
		return nil, StageURLValidated, asError(err, KindFetchFailed)
	}

	doc := Sanitize(page.Body)
	if !doc.Usable() {
		slog.DebugContext(ctx, "page has too little text",
			"chars", doc.OriginalLength,
			"min_chars", MinUsableChars)
		return nil, StageFetched, errInsufficientContent()
	}
	doc = doc.Truncate(schema.MaxChars)

	prompt := BuildPrompt(schema, doc)

	inf, err := p.infer(ctx, schema, prompt)
	if err != nil {
		return nil, StagePromptBuilt, asError(err, KindInferenceFailed)
	}

	record, err := Parse(schema, inf.Reply)
	if err != nil {
		slog.DebugContext(ctx, "unparsable model reply",
			"reply", logger.Truncate(inf.Reply, 500))
		return nil, StageInferred, err
	}

	return &Result{
		Record:    record,
		SourceURL: sourceURL,
		Schema:    schema.Kind,
		Demo:      inf.Demo,
		Truncated: doc.Truncated && !inf.Demo, // a degraded reply never saw the page text
		Model:     inf.Model,
	}, StageDone, nil
}

func (p *Pipeline) fetch(ctx context.Context, sourceURL string) (*RawPage, error) {
	sc := logger.StartSpan(ctx, "extract.fetch")
	defer sc.End()

	page, err := p.fetcher.Fetch(sc.Context(), sourceURL)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	sc.SetAttributes(
		attribute.Int("http.status_code", page.StatusCode),
		attribute.Bool("fetch.truncated", page.Truncated),
	)
	return page, nil
}

func (p *Pipeline) infer(ctx context.Context, schema Schema, prompt string) (*Inference, error) {
	sc := logger.StartSpan(ctx, "extract.infer")
	defer sc.End()

	inf, err := p.inference.Infer(sc.Context(), schema, prompt)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	sc.SetAttributes(
		attribute.String("llm.model", inf.Model),
		attribute.Bool("llm.demo", inf.Demo),
		attribute.Int("llm.prompt_tokens", inf.PromptTokens),
		attribute.Int("llm.completion_tokens", inf.CompletionTokens),
	)
	return inf, nil
}

// record runs detached from caller cancellation but bounded, so an aborted
// request still produces its event.
func (p *Pipeline) record(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := p.recorder.Record(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to record extraction event",
			"error", err,
			"kind", ev.Kind)
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
