package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bestyec/DevFlowCheck/internal/config"
	"github.com/bestyec/DevFlowCheck/internal/gateway"
	"github.com/bestyec/DevFlowCheck/internal/logging"
	"github.com/bestyec/DevFlowCheck/internal/telemetry"
	"github.com/bestyec/DevFlowCheck/internal/tracker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const gatewayScope = "github.com/bestyec/DevFlowCheck/internal/gateway"

// app holds what every command needs: resolved config, logger and telemetry.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}

	cfg, err := config.LoadWithFile(opts.configPath, dir)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	tel, err := telemetry.New(cmd.Context(), telemetry.ConfigFrom(cfg.Telemetry, version))
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.ConfigFrom(cfg.Log, tel.IsEnabled())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLoggerTo(logCfg, tel.LoggerProvider(), zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	for _, reason := range tel.Degraded() {
		logger.Warn(cmd.Context(), "telemetry degraded", zap.String("reason", reason))
	}

	return &app{cfg: cfg, logger: logger, tel: tel}, nil
}

// close flushes logs and telemetry.
func (a *app) close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// gatewayOptions instruments every gateway with the app's logger and telemetry.
func (a *app) gatewayOptions() []gateway.Option {
	return []gateway.Option{
		gateway.WithTracer(a.tel.Tracer(gatewayScope)),
		gateway.WithMeter(a.tel.Meter(gatewayScope)),
	}
}

func (a *app) trackerClient() (*tracker.Client, error) {
	zl := a.logger.Underlying()
	gw, err := gateway.New(gateway.Config{
		Binary:    a.cfg.Tracker.Binary,
		BaseArgs:  a.cfg.Tracker.Args,
		Dir:       a.cfg.Tracker.WorkDir,
		Timeout:   a.cfg.Tracker.Timeout.Duration(),
		RateLimit: a.cfg.Tracker.RateLimit,
		Burst:     a.cfg.Tracker.Burst,
	}, append([]gateway.Option{gateway.WithLogger(zl.Named("gateway"))}, a.gatewayOptions()...)...)
	if err != nil {
		return nil, fmt.Errorf("creating tracker gateway: %w", err)
	}
	return tracker.NewClient(gw,
		tracker.WithResearch(a.cfg.Tracker.Research),
		tracker.WithClientLogger(zl.Named("tracker")),
	), nil
}

// workPath resolves p against the tracker working directory.
func (a *app) workPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.cfg.Tracker.WorkDir, p)
}
