package http

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/config"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewRouter_Endpoints(t *testing.T) {
	var ready atomic.Bool
	r := NewRouter(&config.ServerConfig{}, config.MonitoringConfig{Enabled: true}, ready.Load, zap.NewNop())

	rec := get(r, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get(r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", rec.Body.String())

	ready.Store(true)
	rec = get(r, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	rec = get(r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewRouter_MetricsDisabled(t *testing.T) {
	r := NewRouter(&config.ServerConfig{}, config.MonitoringConfig{}, nil, zap.NewNop())

	assert.Equal(t, http.StatusNotFound, get(r, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ready").Code)
}
