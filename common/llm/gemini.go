package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type geminiClient struct {
	llm   llms.Model
	model string
}

func newGeminiClient(ctx context.Context, cfg Config) (Client, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	g, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiClient{llm: g, model: model}, nil
}

func (c *geminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt))

	opts := []llms.CallOption{
		llms.WithMaxTokens(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", geminiStatus(err))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"stop_reason", choice.StopReason)

	return &Response{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
	}, nil
}

func (c *geminiClient) Model() string {
	return c.model
}

// geminiStatus attaches the upstream HTTP status to err so IsRetryable can
// tell request errors apart from outages. The genai SDK surfaces either REST
// (googleapi) or gRPC (apierror/status) errors depending on transport.
func geminiStatus(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code > 0 {
		return &StatusError{StatusCode: gerr.Code, Err: err}
	}

	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if code := aerr.HTTPCode(); code > 0 {
			return &StatusError{StatusCode: code, Err: err}
		}
		if st := aerr.GRPCStatus(); st != nil {
			return &StatusError{StatusCode: grpcToHTTP(st.Code()), Err: err}
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return &StatusError{StatusCode: grpcToHTTP(st.Code()), Err: err}
	}
	return err
}

// grpcToHTTP follows the google.rpc.Code mapping to HTTP.
func grpcToHTTP(code codes.Code) int {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
