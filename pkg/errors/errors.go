// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed error taxonomy used across the bridge.
package errors

import (
	"fmt"
)

// Error types
const (
	// ErrEndpointNotFound is returned when no MCP endpoint matches a tenant/server pair
	ErrEndpointNotFound = "endpoint_not_found"

	// ErrTransportInit is returned when a transport adapter fails to construct
	ErrTransportInit = "transport_init"

	// ErrAccessDenied is returned when a caller presents no valid credential for an endpoint
	ErrAccessDenied = "access_denied"

	// ErrToolNotFound is returned when an invoked tool is not registered on the endpoint
	ErrToolNotFound = "tool_not_found"

	// ErrInvalidArguments is returned when tool arguments fail schema validation
	ErrInvalidArguments = "invalid_arguments"

	// ErrJobSubmissionFailed is returned when the orchestrator rejects a job start
	ErrJobSubmissionFailed = "job_submission_failed"

	// ErrJobAuthExpired is returned when the orchestrator rejects a call with an auth failure
	ErrJobAuthExpired = "job_auth_expired"

	// ErrJobTimedOut is returned when job monitoring exhausts its polling budget
	ErrJobTimedOut = "job_timed_out"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewEndpointNotFoundError creates a new endpoint not found error
func NewEndpointNotFoundError(message string, cause error) *Error {
	return NewError(ErrEndpointNotFound, message, cause)
}

// NewTransportInitError creates a new transport init error
func NewTransportInitError(message string, cause error) *Error {
	return NewError(ErrTransportInit, message, cause)
}

// NewAccessDeniedError creates a new access denied error
func NewAccessDeniedError(message string, cause error) *Error {
	return NewError(ErrAccessDenied, message, cause)
}

// NewToolNotFoundError creates a new tool not found error
func NewToolNotFoundError(message string, cause error) *Error {
	return NewError(ErrToolNotFound, message, cause)
}

// NewInvalidArgumentsError creates a new invalid arguments error
func NewInvalidArgumentsError(message string, cause error) *Error {
	return NewError(ErrInvalidArguments, message, cause)
}

// NewJobSubmissionFailedError creates a new job submission failed error
func NewJobSubmissionFailedError(message string, cause error) *Error {
	return NewError(ErrJobSubmissionFailed, message, cause)
}

// NewJobAuthExpiredError creates a new job auth expired error
func NewJobAuthExpiredError(message string, cause error) *Error {
	return NewError(ErrJobAuthExpired, message, cause)
}

// NewJobTimedOutError creates a new job timed out error
func NewJobTimedOutError(message string, cause error) *Error {
	return NewError(ErrJobTimedOut, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsEndpointNotFound checks if the error is an endpoint not found error
func IsEndpointNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrEndpointNotFound
}

// IsTransportInit checks if the error is a transport init error
func IsTransportInit(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrTransportInit
}

// IsAccessDenied checks if the error is an access denied error
func IsAccessDenied(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrAccessDenied
}

// IsToolNotFound checks if the error is a tool not found error
func IsToolNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrToolNotFound
}

// IsInvalidArguments checks if the error is an invalid arguments error
func IsInvalidArguments(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInvalidArguments
}

// IsJobSubmissionFailed checks if the error is a job submission failed error
func IsJobSubmissionFailed(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrJobSubmissionFailed
}

// IsJobAuthExpired checks if the error is a job auth expired error
func IsJobAuthExpired(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrJobAuthExpired
}

// IsJobTimedOut checks if the error is a job timed out error
func IsJobTimedOut(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrJobTimedOut
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Type == ErrInternal
}
