package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"auth required", rbac.NewAuthRequired(), http.StatusUnauthorized, "AUTH_REQUIRED"},
		{"tenant mismatch", rbac.NewTenantMismatch(1, 2), http.StatusForbidden, "TENANT_MISMATCH"},
		{"permission denied", rbac.NewPermissionDenied("users:delete"), http.StatusForbidden, "PERMISSION_DENIED"},
		{"not found", rbac.NewNotFound("role"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", rbac.NewValidation("bad input"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", rbac.NewConflict("duplicate"), http.StatusConflict, "CONFLICT"},
		{"internal", rbac.NewInternal(errors.New("store down")), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("plain"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteDomainError(rec, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteDomainErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, rbac.NewInternal(errors.New("redis connection refused at 10.0.0.5")))

	resp := decodeError(t, rec)
	assert.Equal(t, "internal error", resp.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]string{"status": "ok"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
