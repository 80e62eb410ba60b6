package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"

	"clinichire.app/scout/common/llm"
)

type SchemaKind string

const (
	SchemaPosition   SchemaKind = "position"
	SchemaCompetitor SchemaKind = "competitor"
)

var ErrUnknownSchema = errors.New("unknown schema")

// ParseSchemaKind accepts "position" or "competitor", case-insensitively.
func ParseSchemaKind(s string) (SchemaKind, error) {
	switch SchemaKind(strings.ToLower(strings.TrimSpace(s))) {
	case SchemaPosition:
		return SchemaPosition, nil
	case SchemaCompetitor:
		return SchemaCompetitor, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSchema, s)
	}
}

const (
	DefaultPositionMaxChars   = 8000
	DefaultCompetitorMaxChars = 10000
)

// Schema is everything that differs between entity types. The pipeline
// itself never branches on Kind.
type Schema struct {
	Kind      SchemaKind
	Version   string
	MaxChars  int // sanitized text cap, in characters
	MaxTokens int // reply length bound for the inference backend
	Template  string

	demoReply string
	conform   func(v any) (Record, error)
	reflect   func() *jsonschema.Schema
}

// JSONSchema describes the record shape for form builders.
func (s Schema) JSONSchema() *jsonschema.Schema {
	return s.reflect()
}

// DemoReply is the fixed model reply used when no backend is configured.
func (s Schema) DemoReply() string {
	return s.demoReply
}

func PositionSchema(maxChars int) Schema {
	if maxChars <= 0 {
		maxChars = DefaultPositionMaxChars
	}
	return Schema{
		Kind:      SchemaPosition,
		Version:   "position/v2",
		MaxChars:  maxChars,
		MaxTokens: 2000,
		Template:  positionTemplate,
		demoReply: positionDemoReply,
		conform:   conformPosition,
		reflect:   llm.GenerateSchema[PositionRecord],
	}
}

func CompetitorSchema(maxChars int) Schema {
	if maxChars <= 0 {
		maxChars = DefaultCompetitorMaxChars
	}
	return Schema{
		Kind:      SchemaCompetitor,
		Version:   "competitor/v2",
		MaxChars:  maxChars,
		MaxTokens: 4000,
		Template:  competitorTemplate,
		demoReply: competitorDemoReply,
		conform:   conformCompetitor,
		reflect:   llm.GenerateSchema[CompetitorRecord],
	}
}

// Schemas is the immutable registry shared by all pipeline runs.
type Schemas struct {
	position   Schema
	competitor Schema
}

func NewSchemas(positionMaxChars, competitorMaxChars int) Schemas {
	return Schemas{
		position:   PositionSchema(positionMaxChars),
		competitor: CompetitorSchema(competitorMaxChars),
	}
}

func DefaultSchemas() Schemas {
	return NewSchemas(DefaultPositionMaxChars, DefaultCompetitorMaxChars)
}

func (s Schemas) Get(kind SchemaKind) (Schema, error) {
	switch kind {
	case SchemaPosition:
		return s.position, nil
	case SchemaCompetitor:
		return s.competitor, nil
	default:
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownSchema, kind)
	}
}

// ResourceAttributes describes the registry for telemetry resources so traces
// can be split by record version.
func (s Schemas) ResourceAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	for _, schema := range []Schema{s.position, s.competitor} {
		prefix := "scout.schema." + string(schema.Kind)
		attrs = append(attrs,
			attribute.String(prefix+".version", schema.Version),
			attribute.Int(prefix+".max_chars", schema.MaxChars),
		)
	}
	return attrs
}
