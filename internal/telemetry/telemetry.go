package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers for one devflow process.
// Exporter failures degrade the instance; callers always get usable
// (possibly no-op) tracers and meters.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	mu       sync.Mutex
	degraded []string
}

// New creates a Telemetry instance. A disabled config yields a no-op instance.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res := newResource(cfg)
	spanExp, metricExp, err := o.exporters(ctx, cfg)
	if err != nil {
		t.setDegraded(err.Error())
	}

	if spanExp != nil {
		t.tracerProvider = newTracerProvider(cfg, res, spanExp)
		otel.SetTracerProvider(t.tracerProvider)
	}
	if metricExp != nil {
		t.meterProvider = newMeterProvider(cfg, res, metricExp)
		otel.SetMeterProvider(t.meterProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the provider for the zap OTel bridge, or nil when disabled.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if !t.IsEnabled() {
		return nil
	}
	return global.GetLoggerProvider()
}

// IsEnabled reports whether telemetry was enabled in config.
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.config != nil && t.config.Enabled
}

// Degraded returns the reasons telemetry is running without some exporters.
func (t *Telemetry) Degraded() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.degraded...)
}

// Shutdown stops both providers after exporting what they hold. Without a
// deadline on ctx it waits at most the configured shutdown timeout.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) setDegraded(reason string) {
	t.mu.Lock()
	t.degraded = append(t.degraded, reason)
	t.mu.Unlock()
}
