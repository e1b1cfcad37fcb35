// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// ErrorResponse is the wire form of every error the API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteDomainError maps an error to its wire representation. Errors
// without a recognized code are reported as INTERNAL_ERROR with a
// generic message so internals never leak to clients.
func WriteDomainError(w http.ResponseWriter, err error) {
	code := rbac.CodeOf(err)
	message := ""
	var domainErr *rbac.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if code == rbac.CodeInternal {
		message = "internal error"
	}
	WriteErrorCode(w, statusForCode(code), code, message)
}

// WriteErrorCode writes a JSON error response with an explicit code.
func WriteErrorCode(w http.ResponseWriter, status int, code rbac.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   string(code),
		Message: message,
	})
}

// WriteValidationError writes a VALIDATION_ERROR response (400).
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, rbac.CodeValidation, message)
}

// WriteAuthRequired writes an AUTH_REQUIRED response (401).
func WriteAuthRequired(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusUnauthorized, rbac.CodeAuthRequired, "authentication required")
}

// WriteNotFound writes a NOT_FOUND response (404).
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusNotFound, rbac.CodeNotFound, message)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func statusForCode(code rbac.ErrorCode) int {
	switch code {
	case rbac.CodeAuthRequired:
		return http.StatusUnauthorized
	case rbac.CodeTenantMismatch, rbac.CodePermissionDenied:
		return http.StatusForbidden
	case rbac.CodeNotFound:
		return http.StatusNotFound
	case rbac.CodeValidation:
		return http.StatusBadRequest
	case rbac.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
