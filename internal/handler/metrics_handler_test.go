package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/service"
)

func TestMetricsHandlerReadiness(t *testing.T) {
	handler := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, rec := testContext(http.MethodGet, "/ready", "", nil)

	handler.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	healthy := NewMetricsHandler(nil, nil)
	c, rec = testContext(http.MethodGet, "/ready", "", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsHandlerServesRegistryAndSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordTransition("quote", "quoted")
	handler := NewMetricsHandler(metrics, nil)

	c, rec := testContext(http.MethodGet, "/metrics", "", nil)
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "project_transitions_total"))

	c, rec = testContext(http.MethodGet, "/metrics/summary", "", nil)
	handler.Summary(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot struct {
		TransitionsTotal uint64 `json:"transitionsTotal"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &snapshot))
	assert.Equal(t, uint64(1), snapshot.TransitionsTotal)

	unavailable := NewMetricsHandler(nil, nil)
	c, rec = testContext(http.MethodGet, "/metrics", "", nil)
	unavailable.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
