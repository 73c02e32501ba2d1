package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membersync/internal/types"
)

func TestJSON_WritesBodyAndContentType(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)

	JSON(w, r, http.StatusCreated, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hello":"world"}`, w.Body.String())
}

func TestError_AppErrorMapsStatusFromCode(t *testing.T) {
	tests := []struct {
		name       string
		code       types.ErrorCode
		wantStatus int
	}{
		{"signature invalid", types.ErrCodeSignatureInvalid, http.StatusBadRequest},
		{"origin untrusted", types.ErrCodeOriginUntrusted, http.StatusForbidden},
		{"rate limited", types.ErrCodeRateLimited, http.StatusTooManyRequests},
		{"alert not found", types.ErrCodeNotFoundAlert, http.StatusNotFound},
		{"secret missing", types.ErrCodeConfigMissingSecret, http.StatusInternalServerError},
		{"billing down", types.ErrCodeUpstreamBilling, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/internal/alerts", nil)
			r = r.WithContext(types.WithRequestID(r.Context(), "req_test"))

			Error(w, r, types.NewAppError(tt.code, "nope", nil))

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp APIErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, "nope", resp.Error.Message)
			assert.Equal(t, "req_test", resp.Error.RequestID)
		})
	}
}

func TestError_WrappedAppErrorIsUnwrapped(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/internal/alerts", nil)

	inner := types.NewAppError(types.ErrCodeNotFoundUser, "no such user", nil)
	Error(w, r, errors.Join(errors.New("lookup failed"), inner))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeNotFoundUser))
}

func TestError_GenericErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/internal/alerts", nil)

	Error(w, r, errors.New("pq: connection reset by peer"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeInternalUnexpected))
	assert.NotContains(t, w.Body.String(), "connection reset", "internal detail must not leak")
}

func TestError_AppErrorCarriesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/internal/alerts", nil)

	Error(w, r, types.NewAppErrorWithDetails(
		types.ErrCodePayloadInvalid, "bad payload", nil,
		map[string]any{"field": "id"},
	))

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "id", resp.Error.Details["field"])
}
