package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// InstrumentationName is the meter scope for status server metrics.
const InstrumentationName = "github.com/bestyec/DevFlowCheck/internal/http"

// HTTPMetrics records OTel request metrics for the status server.
type HTTPMetrics struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	responseSize metric.Int64Histogram
	inFlight     metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTP metrics on meter. A nil meter records nothing.
// Instruments that fail to register are logged and skipped.
func NewHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}

	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &HTTPMetrics{}
	var err error

	m.requests, err = meter.Int64Counter(
		"devflow.http.requests_total",
		metric.WithDescription("Status server requests by method, endpoint and status code"),
		metric.WithUnit("{request}"),
	)
	warn("requests_total", err)

	m.duration, err = meter.Float64Histogram(
		"devflow.http.request_duration_seconds",
		metric.WithDescription("Status server request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	warn("request_duration_seconds", err)

	m.responseSize, err = meter.Int64Histogram(
		"devflow.http.response_size_bytes",
		metric.WithDescription("Status server response body size in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000),
	)
	warn("response_size_bytes", err)

	m.inFlight, err = meter.Int64UpDownCounter(
		"devflow.http.active_requests",
		metric.WithDescription("Status server requests in flight"),
		metric.WithUnit("{request}"),
	)
	warn("active_requests", err)

	return m
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", endpoint(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.responseSize != nil {
				m.responseSize.Record(ctx, c.Response().Size, attrs)
			}
			return err
		}
	}
}

// endpoint is the metric label for a matched route. Routes are fixed, so the
// only folding needed is for requests that matched nothing.
func endpoint(route string) string {
	if route == "" {
		return "/"
	}
	return route
}
