// Package errs defines the failure kinds the proxy and the discovery scraper report to
// their callers. Raw transport errors never leave those components; they are wrapped in
// an *Error carrying an HTTP status and a message that is safe to show to a user.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindBadRequest       Kind = "BadRequest"
	KindNotFound         Kind = "NotFound"
	KindUpstream         Kind = "UpstreamError"
	KindStructureChanged Kind = "StructureChanged"
	KindInternal         Kind = "InternalError"
)

// Error is a typed, user-safe failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Hint    string
	Err     error // underlying cause, logged but never serialised
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Body is the JSON error payload.
type Body struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// Body returns the payload written to clients.
func (e *Error) Body() Body {
	return Body{Error: e.Message, Hint: e.Hint}
}

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

// Upstream reports a failed or unsuccessful upstream fetch. status is the code returned
// to the client, normally the upstream's own; 0 (no response at all) becomes 502.
func Upstream(status int, msg string, cause error) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &Error{Kind: KindUpstream, Status: status, Message: msg, Err: cause}
}

// StructureChanged signals that upstream markup no longer matches the expected patterns.
// It maps to 404 with a hint so operators can tell it apart from transient outages.
func StructureChanged(msg, hint string) *Error {
	return &Error{Kind: KindStructureChanged, Status: http.StatusNotFound, Message: msg, Hint: hint}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msg, Err: cause}
}

// As normalises any error into an *Error. Unknown errors become a generic InternalError.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("Internal Server Error", err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
