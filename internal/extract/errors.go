package extract

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed extraction. The string values are part of the
// HTTP error body.
type Kind string

const (
	KindInvalidURL          Kind = "InvalidUrl"
	KindFetchTimeout        Kind = "FetchTimeout"
	KindFetchFailed         Kind = "FetchFailed"
	KindInsufficientContent Kind = "InsufficientContent"
	KindInferenceFailed     Kind = "InferenceFailed"
	KindUnparsableResponse  Kind = "UnparsableResponse"
)

// HTTPStatus maps a kind to the status returned by the transport.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidURL:
		return http.StatusBadRequest
	case KindFetchTimeout, KindFetchFailed, KindInsufficientContent:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether re-running the same request may succeed because
// the failure came from backend non-determinism rather than caller input.
func (k Kind) Retryable() bool {
	return k == KindInferenceFailed || k == KindUnparsableResponse
}

// Error is the single error type that leaves the pipeline.
type Error struct {
	Kind           Kind
	Stage          Stage // last stage reached before the failure
	UpstreamStatus int   // HTTP status of the target page, FetchFailed only
	Message        string
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func errInvalidURL(msg string, err error) *Error {
	return newError(KindInvalidURL, msg, err)
}

func errInsufficientContent() *Error {
	return newError(KindInsufficientContent, "the page has too little readable text to extract from", nil)
}

func errInferenceFailed(err error) *Error {
	return newError(KindInferenceFailed, "extraction failed, please try again", err)
}

func errUnparsable(err error) *Error {
	return newError(KindUnparsableResponse, "could not read the extraction result, please try again", err)
}

// asError converts any error crossing a component boundary into an *Error,
// using fallback when the component did not classify it.
func asError(err error, fallback Kind) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch fallback {
	case KindFetchFailed:
		return newError(KindFetchFailed, "could not fetch the page", err)
	case KindInferenceFailed:
		return errInferenceFailed(err)
	case KindUnparsableResponse:
		return errUnparsable(err)
	default:
		return newError(fallback, string(fallback), err)
	}
}
