package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class
type Kind string

const (
	// No response from the server at all (timeout, DNS, connection refused).
	// Callers decide whether to retry.
	KindUnreachable Kind = "UNREACHABLE"

	// The stored credential expired and refresh failed or was impossible.
	// The caller is expected to force re-authentication.
	KindSessionExpired Kind = "SESSION_EXPIRED"

	// The server rejected the request with a non-success status.
	KindAPIError Kind = "API_ERROR"

	// Client-side input was malformed and the request was never sent.
	KindValidation Kind = "VALIDATION_ERROR"

	// The upload call failed; all queued items were marked as errored.
	KindUpload Kind = "UPLOAD_ERROR"

	// Upload succeeded but summarization failed. Surfaced distinctly so
	// partial success remains visible.
	KindSummarize Kind = "SUMMARIZE_ERROR"
)

// Error is a structured failure carried across the client engine.
type Error struct {
	Kind    Kind   `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Unreachable(cause error) *Error {
	return &Error{Kind: KindUnreachable, Message: "server unreachable", cause: cause}
}

func SessionExpired() *Error {
	return New(KindSessionExpired, "session expired, please log in again")
}

func API(status int, detail string) *Error {
	return &Error{Kind: KindAPIError, Status: status, Message: detail}
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func Upload(cause error) *Error {
	return &Error{Kind: KindUpload, Message: "upload failed", cause: cause}
}

func Summarize(cause error) *Error {
	return &Error{Kind: KindSummarize, Message: "summarization failed", cause: cause}
}

// As converts err to *Error if possible
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the failure kind, or "" for foreign errors
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
