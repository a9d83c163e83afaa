package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	up := PingFunc(func(ctx context.Context) error { return nil })
	down := PingFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") })

	t.Run("no dependencies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil, nil).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("all up", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(map[string]Pinger{"postgres": up, "redis": up}, nil).
			HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, body.Checks)
	})

	t.Run("one down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(map[string]Pinger{"postgres": up, "redis": down}, nil).
			HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "unavailable", body.Checks["redis"])
	})
}
