// Package apperr defines the error taxonomy shared by the scheduling and
// reconciliation core: validation, conflict, not-found, and external-service
// failures. Handlers translate these into HTTP status codes; batch pipelines
// aggregate per-item failures instead of raising them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed input, e.g. a time window whose start is
// not before its end.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a booking overlap detected at write time.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ExternalServiceError reports an unreachable or misbehaving external system
// (RIS or PACS) after retry exhaustion.
type ExternalServiceError struct {
	System string // "ris" or "pacs"
	Op     string
	Err    error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.System, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func External(system, op string, err error) error {
	return &ExternalServiceError{System: system, Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsExternal(err error) bool {
	var x *ExternalServiceError
	return errors.As(err, &x)
}

// HTTPStatus maps an error to the status code handlers should return.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
