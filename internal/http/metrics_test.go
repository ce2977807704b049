package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/bestyec/DevFlowCheck/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	board := orchestrator.NewBoard("run-1", "", startedAt)
	server, err := NewServer(board, zap.NewNop(), nil, WithHTTPMetrics(NewHTTPMetrics(mp.Meter(InstrumentationName), nil)))
	require.NoError(t, err)

	get(t, server, "/health")
	get(t, server, "/status")
	assert.Equal(t, http.StatusNotFound, get(t, server, "/missing").Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m
		}
	}

	requests, ok := found["devflow.http.requests_total"]
	require.True(t, ok, "requests counter not recorded")
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)

	duration, ok := found["devflow.http.request_duration_seconds"]
	require.True(t, ok, "duration histogram not recorded")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	assert.Contains(t, found, "devflow.http.response_size_bytes")
	assert.Contains(t, found, "devflow.http.active_requests")
}

func TestNewHTTPMetrics_NilMeter(t *testing.T) {
	m := NewHTTPMetrics(nil, nil)
	require.NotNil(t, m)

	server, err := NewServer(orchestrator.NewBoard("r", "", startedAt), zap.NewNop(), nil, WithHTTPMetrics(m))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, server, "/health").Code)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "/", endpoint(""))
	assert.Equal(t, "/status", endpoint("/status"))
}
