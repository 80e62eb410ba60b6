package dto

import (
	"errors"
	"net/http"
	"strconv"

	"clinichire.app/scout/internal/extract"
)

// MaxURLLength matches the url binding rule on ExtractRequest.
const MaxURLLength = 2048

// ExtractRequest is the body of POST /api/v1/extract. The per-entity routes
// ignore Schema.
type ExtractRequest struct {
	URL    string `json:"url" binding:"required,max=2048"`
	Schema string `json:"schema"`
}

// ExtractResponse wraps a record for review before the caller decides to save it.
type ExtractResponse struct {
	ExtractedData any    `json:"extractedData"`
	SourceURL     string `json:"sourceUrl"`
	Demo          bool   `json:"demo,omitempty"`
	ExtractionID  string `json:"extractionId,omitempty"` // run log key, when one was assigned
}

// ErrorResponse is every failure body. Retryable tells the caller that
// re-sending the same request may succeed.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type SchemaResponse struct {
	Schema     string `json:"schema"`
	Version    string `json:"version"`
	MaxChars   int    `json:"maxChars"`
	JSONSchema any    `json:"jsonSchema"`
}

func FromResult(res *extract.Result) ExtractResponse {
	return ExtractResponse{
		ExtractedData: res.Record,
		SourceURL:     res.SourceURL,
		Demo:          res.Demo,
		ExtractionID:  extractionID(res.ExtractionID),
	}
}

func extractionID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// FromError maps an extraction error to its status and body. Unclassified
// errors are reported as a retriable 500 without internal detail.
func FromError(err error) (int, ErrorResponse) {
	var perr *extract.Error
	switch {
	case errors.As(err, &perr):
		return perr.Kind.HTTPStatus(), ErrorResponse{
			Error:     perr.Message,
			Kind:      string(perr.Kind),
			Retryable: perr.Kind.Retryable(),
		}
	case errors.Is(err, extract.ErrUnknownSchema):
		return http.StatusBadRequest, ErrorResponse{Error: "schema must be position or competitor"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "extraction failed, please try again", Retryable: true}
	}
}
