package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.NotEmpty(t, captured)
	assert.Equal(t, captured, w.Header().Get(RequestIDHeader))
}

func TestRequestIDPreservedWhenPresent(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "fixed-id", captured)
}

func TestAdminAuth(t *testing.T) {
	handler := AdminAuth("secret")(okHandler())

	// No key
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong key
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminKeyHeader, "nope")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Right key
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminKeyHeader, "secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuthDisabledWithoutKey(t *testing.T) {
	handler := AdminAuth("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminKeyHeader, "")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetLoggerFallsBackToNop(t *testing.T) {
	logger := GetLogger(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.NotNil(t, logger)
}
