package logger

import (
	"context"
	"unicode/utf8"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so that every log line written during an
// extraction carries its ID, schema and source host without threading them by hand.
type LogFields struct {
	ExtractionID *int64  // Snowflake ID assigned to one pipeline run
	RequestID    *string // X-Request-ID of the inbound HTTP request
	Schema       *string // "position" or "competitor"
	SourceHost   *string // host of the page being extracted
	Component    string  // Component name (OTel semantic convention style, e.g., "scout.extract.fetcher")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ExtractionID != nil {
		result.ExtractionID = new.ExtractionID
	}
	if new.RequestID != nil {
		result.RequestID = new.RequestID
	}
	if new.Schema != nil {
		result.Schema = new.Schema
	}
	if new.SourceHost != nil {
		result.SourceHost = new.SourceHost
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Schema: logger.Ptr("position")})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen runes, appending "..." if truncated.
// Useful for logging potentially long strings like model replies or page text.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
