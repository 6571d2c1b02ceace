package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/flowengine/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{name: "simple object", data: map[string]string{"message": "hello"}, wantStatus: http.StatusOK},
		{name: "array", data: []int{1, 2, 3}, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-1")

	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteStatus(w, http.StatusAccepted, map[string]string{"executionId": "e1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "invalid input",
			err:            types.NewError(types.ErrInvalidInput, "name is required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_INPUT",
		},
		{
			name:           "workflow not found",
			err:            types.NewError(types.ErrWorkflowNotFound, "workflow not found"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   "WORKFLOW_NOT_FOUND",
		},
		{
			name:           "unauthorized",
			err:            types.NewError(types.ErrUnauthorized, "role cannot trigger workflow"),
			expectedStatus: http.StatusForbidden,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "rate limited",
			err:            types.NewError(types.ErrRateLimited, "rate limit exceeded"),
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   "RATE_LIMITED",
		},
		{
			name:           "timeout",
			err:            types.NewError(types.ErrTimeout, "step timed out"),
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   "TIMEOUT",
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrInvalidInput, "bad media").WithHTTPStatus(http.StatusUnsupportedMediaType),
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedCode:   "INVALID_INPUT",
		},
		{
			name:           "plain error",
			err:            errors.New("disk on fire"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
		})
	}
}

func TestWriteError_PlainErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("pq: connection reset"), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq: connection reset")
}

func TestWriteError_MasksDetails(t *testing.T) {
	err := types.NewError(types.ErrInvalidInput, "bad request").
		WithDetail("email", "tenant@example.com").
		WithDetail("field", "priority")

	w := httptest.NewRecorder()
	WriteError(w, err, nil)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.MaskedValue, resp.Error.Details["email"])
	assert.Equal(t, "priority", resp.Error.Details["field"])
}

func TestWriteError_LogLevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	WriteError(httptest.NewRecorder(), types.NewError(types.ErrInvalidInput, "bad"), logger)
	WriteError(httptest.NewRecorder(), errors.New("boom"), logger)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrInternalError, "metrics disabled", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "metrics disabled", resp.Error.Message)
}

// =============================================================================
// 🧪 请求验证测试
// =============================================================================

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid JSON", body: `{"name":"test","value":123}`},
		{name: "empty body", body: "", wantErr: true},
		{name: "invalid JSON", body: `{"name":"test",`, wantErr: true},
		{name: "unknown field", body: `{"name":"test","unknown":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == "" {
				req = httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			}
			w := httptest.NewRecorder()

			var dst payload
			err := DecodeJSONBody(w, req, &dst, zap.NewNop())

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrInvalidInput))
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dst.Name)
			assert.Equal(t, 123, dst.Value)
		})
	}
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	big := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader([]byte(big)))
	w := httptest.NewRecorder()

	var dst map[string]any
	err := DecodeJSONBody(w, req, &dst, nil)

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "request body too large")
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{name: "plain json", contentType: "application/json", want: true},
		{name: "charset", contentType: "application/json; charset=utf-8", want: true},
		{name: "upper case charset", contentType: "application/json; charset=UTF-8", want: true},
		{name: "mixed case type", contentType: "Application/JSON", want: true},
		{name: "extra whitespace", contentType: "application/json ;  charset=utf-8", want: true},
		{name: "text plain", contentType: "text/plain", want: false},
		{name: "missing", contentType: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()

			assert.Equal(t, tt.want, ValidateContentType(w, req, nil))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

// =============================================================================
// 🧪 ResponseWriter 测试
// =============================================================================

func TestResponseWriter(t *testing.T) {
	t.Run("captures status once", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := NewResponseWriter(rec)

		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusOK)

		assert.Equal(t, http.StatusNotFound, rw.StatusCode)
		assert.True(t, rw.Written)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("write implies 200", func(t *testing.T) {
		rw := NewResponseWriter(httptest.NewRecorder())
		n, err := rw.Write([]byte("ok"))

		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, http.StatusOK, rw.StatusCode)
		assert.True(t, rw.Written)
	})

	t.Run("unwrap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := NewResponseWriter(rec)
		assert.Same(t, rec, rw.Unwrap())
	})

	t.Run("hijack unsupported", func(t *testing.T) {
		rw := NewResponseWriter(httptest.NewRecorder())
		_, _, err := rw.Hijack()
		assert.Error(t, err)
	})

	t.Run("flush", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := NewResponseWriter(rec)
		rw.Flush()
		assert.True(t, rec.Flushed)
	})
}
