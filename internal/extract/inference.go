package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clinichire.app/scout/common/llm"
	"clinichire.app/scout/core/config"
)

const DefaultInferenceTimeout = 60 * time.Second

// Inference is the raw model reply plus where it came from.
type Inference struct {
	Reply            string
	Model            string
	Demo             bool
	PromptTokens     int
	CompletionTokens int
}

// InferenceClient is chosen once at construction; the pipeline never checks
// credentials itself.
type InferenceClient interface {
	Infer(ctx context.Context, schema Schema, prompt string) (*Inference, error)
	// Demo reports whether this client never calls a backend. The pipeline
	// skips fetching for such clients.
	Demo() bool
}

type LiveClient struct {
	llm              llm.Client
	timeout          time.Duration
	degradeOnFailure bool
}

type LiveOption func(*LiveClient)

// WithDegradeOnFailure makes transport-level backend failures return the
// demo reply instead of InferenceFailed.
func WithDegradeOnFailure(enabled bool) LiveOption {
	return func(c *LiveClient) {
		c.degradeOnFailure = enabled
	}
}

func NewLiveClient(client llm.Client, timeout time.Duration, opts ...LiveOption) *LiveClient {
	if timeout <= 0 {
		timeout = DefaultInferenceTimeout
	}
	c := &LiveClient{llm: client, timeout: timeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LiveClient) Demo() bool { return false }

func (c *LiveClient) Infer(ctx context.Context, schema Schema, prompt string) (*Inference, error) {
	inferCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(inferCtx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    schema.MaxTokens,
		Temperature:  llm.Temp(0),
		JSON:         true,
	})
	if err != nil {
		if c.shouldDegrade(ctx, inferCtx, err) {
			slog.WarnContext(ctx, "inference backend unavailable, returning demo record",
				"model", c.llm.Model(),
				"error", err)
			return demoInference(schema), nil
		}
		return nil, errInferenceFailed(err)
	}

	return &Inference{
		Reply:            resp.Content,
		Model:            c.llm.Model(),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

// shouldDegrade is true for outages (network, 429, 5xx, our own deadline) but
// never for caller cancellation or request errors such as a bad key.
func (c *LiveClient) shouldDegrade(parent, inferCtx context.Context, err error) bool {
	if !c.degradeOnFailure || parent.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(inferCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	return llm.IsRetryable(parent, err)
}

type DemoClient struct{}

func NewDemoClient() *DemoClient {
	return &DemoClient{}
}

func (*DemoClient) Demo() bool { return true }

func (*DemoClient) Infer(_ context.Context, schema Schema, _ string) (*Inference, error) {
	return demoInference(schema), nil
}

func demoInference(schema Schema) *Inference {
	return &Inference{
		Reply: schema.DemoReply(),
		Model: "demo",
		Demo:  true,
	}
}

// NewInferenceClient returns a demo client when no credential is configured.
func NewInferenceClient(cfg config.ExtractConfig) (InferenceClient, error) {
	if !cfg.LLM.Enabled() {
		return NewDemoClient(), nil
	}

	client, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return nil, err
	}

	return NewLiveClient(client, cfg.LLM.Timeout, WithDegradeOnFailure(cfg.DegradeOnFailure)), nil
}
