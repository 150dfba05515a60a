// Package apperr defines the error taxonomy emitted by the core components
// and the HTTP status each kind maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error kinds from the error handling design.
type Kind int

const (
	KindInternal Kind = iota
	KindMalformedInput
	KindUnsupportedGeometry
	KindSchemaViolation
	KindActionPrecondition
	KindVersionMismatch
	KindKeyConflict
	KindNotFound
	KindForbidden
	KindForbiddenForce
	KindSandboxViolation
)

var statusByKind = map[Kind]int{
	KindInternal:            http.StatusInternalServerError,
	KindMalformedInput:      http.StatusBadRequest,
	KindUnsupportedGeometry: http.StatusBadRequest,
	KindSchemaViolation:     http.StatusBadRequest,
	KindActionPrecondition:  http.StatusBadRequest,
	KindVersionMismatch:     http.StatusConflict,
	KindKeyConflict:         http.StatusConflict,
	KindNotFound:            http.StatusNotFound,
	KindForbidden:           http.StatusForbidden,
	KindForbiddenForce:      http.StatusForbidden,
	KindSandboxViolation:    http.StatusBadRequest,
}

var nameByKind = map[Kind]string{
	KindInternal:            "internal",
	KindMalformedInput:      "malformed-input",
	KindUnsupportedGeometry: "unsupported-geometry",
	KindSchemaViolation:     "schema-violation",
	KindActionPrecondition:  "action-precondition",
	KindVersionMismatch:     "version-mismatch",
	KindKeyConflict:         "key-conflict",
	KindNotFound:            "not-found",
	KindForbidden:           "forbidden",
	KindForbiddenForce:      "forbidden-force",
	KindSandboxViolation:    "sandbox-violation",
}

// Error is the concrete error type carried through the core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", nameByKind[e.Kind], e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", nameByKind[e.Kind], e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status code this error kind maps to.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Name returns the wire-visible kind name, e.g. "version-mismatch".
func (e *Error) Name() string {
	return nameByKind[e.Kind]
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As unwraps err looking for an *Error, mirroring errors.As without importing
// it at every call site that only cares about the kind.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
