package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced in the HTTP error envelope.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnknownTrigger     = "UNKNOWN_TRIGGER"
	CodeTransitionRejected = "TRANSITION_REJECTED"
	CodeTransitionFailed   = "TRANSITION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInconsistentState  = "INCONSISTENT_STATE"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewUnknownTrigger reports a trigger name that does not parse.
func NewUnknownTrigger(trigger string) error {
	return NewDomainError(CodeUnknownTrigger, "unknown trigger", http.StatusBadRequest,
		map[string]any{"trigger": trigger})
}

// NewTransitionRejected reports a trigger that is not permitted from the
// current status or whose guard failed.
func NewTransitionRejected(message string, details map[string]any) error {
	return NewDomainError(CodeTransitionRejected, message, http.StatusBadRequest, details)
}

// NewTransitionFailed reports a transition that failed after it was
// reported as permitted.
func NewTransitionFailed(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodeTransitionFailed,
		Message:    "transition failed",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
		Err:        err,
	}
}

// NewInconsistentState reports stored state that contradicts itself, such as
// a receipt that points at a missing ticket.
func NewInconsistentState(message string, err error) error {
	return &DomainError{
		Code:       CodeInconsistentState,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts err to a DomainError while keeping the error interface.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
