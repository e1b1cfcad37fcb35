package rbac

import (
	"errors"
	"fmt"
)

// ErrorCode is the shared error vocabulary returned to API callers.
// Handlers map these codes to HTTP statuses; new codes must be added here,
// never invented at a call site.
type ErrorCode string

const (
	CodeAuthRequired     ErrorCode = "AUTH_REQUIRED"
	CodeTenantMismatch   ErrorCode = "TENANT_MISMATCH"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// Error is a domain error carrying one of the shared error codes.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewAuthRequired returns the error raised when no valid session exists.
func NewAuthRequired() *Error {
	return &Error{Code: CodeAuthRequired, Message: "authentication required"}
}

// NewPermissionDenied returns the error raised when the effective permission
// set lacks the required code.
func NewPermissionDenied(code string) *Error {
	return &Error{Code: CodePermissionDenied, Message: fmt.Sprintf("permission %q denied", code)}
}

// NewTenantMismatch returns the error raised when a session bound to one
// tenant is presented under a different ambient tenant.
func NewTenantMismatch(bound, ambient int64) *Error {
	return &Error{
		Code:    CodeTenantMismatch,
		Message: fmt.Sprintf("session bound to tenant %d, request scoped to tenant %d", bound, ambient),
	}
}

// NewNotFound returns the error raised when a referenced user, role, or
// permission does not exist.
func NewNotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

// NewValidation returns the error raised on malformed input.
func NewValidation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NewConflict returns the error raised on duplicate assignments where
// uniqueness is required.
func NewConflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// NewInternal wraps a storage or infrastructure failure. Checks that hit an
// internal error always fail closed.
func NewInternal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf extracts the error code from err, defaulting to CodeInternal for
// unrecognized errors so that ambiguity always maps to deny.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsAuthRequired reports whether err carries CodeAuthRequired.
func IsAuthRequired(err error) bool { return CodeOf(err) == CodeAuthRequired }

// IsPermissionDenied reports whether err carries CodePermissionDenied.
func IsPermissionDenied(err error) bool { return CodeOf(err) == CodePermissionDenied }

// IsTenantMismatch reports whether err carries CodeTenantMismatch.
func IsTenantMismatch(err error) bool { return CodeOf(err) == CodeTenantMismatch }

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound
	}
	return false
}

// IsValidation reports whether err carries CodeValidation.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeValidation
	}
	return false
}

// IsConflict reports whether err carries CodeConflict.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeConflict
	}
	return false
}
