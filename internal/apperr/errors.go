// Package apperr implements the error taxonomy shared by every edge handler:
// validation, authorization, the billing gate, conflicts, and internal
// invariant violations each map to one HTTP status and one machine-readable
// code, rendered as the {"detail": {"code": ..., "message": ...}} body the
// auth handlers also use.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindAuthorization    Kind = "authorization"
	KindBillingRequired  Kind = "billing_required"
	KindConflict         Kind = "conflict"
	KindDependencyFailed Kind = "dependency_failed"
	KindInternal         Kind = "internal"
	KindNotFound         Kind = "not_found"
)

// Error is the concrete error type returned across package boundaries so
// that internal/api can map it to a status code and machine-readable code
// without string-matching.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the given kind, machine-readable code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches kind/code/message to an underlying error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Validation is shorthand for the most common error kind.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// BillingRequired is the specific 403 the edge turns into a purchase prompt.
func BillingRequired(message string) *Error {
	return New(KindBillingRequired, "BILLING_REQUIRED", message)
}

// Conflict reports a unique-constraint violation.
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// NotFound reports a missing entity.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Internal wraps an invariant violation or unexpected failure.
func Internal(code string, err error) *Error {
	return Wrap(KindInternal, code, "internal error", err)
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the HTTP status conventions in the external
// interfaces section: 400 validation, 401 authorization, 403 billing
// gate, 404 missing entity, 409 conflicting write, 500 internal. The billing
// gate is the only kind mapped to 403; authorization errors are always 401.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindBillingRequired:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindDependencyFailed:
		return http.StatusOK // swallowed at the collaborator boundary, never surfaced as a failure
	default:
		return http.StatusInternalServerError
	}
}
