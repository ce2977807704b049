// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug) for full tracker output and prompts
//   - Console output on stderr, optionally bridged to OpenTelemetry logs
//   - Automatic context field injection (trace_id, run.id, iteration.id, task.id)
//   - Secret redaction at the encoder
//
// # Usage
//
//	cfg, err := logging.ConfigFrom(appCfg.Log, false)
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithTaskID(ctx, "10.2")
//	logger.Info(ctx, "task committed", zap.Duration("elapsed", d))
//
// Packages that do not carry a context take logger.Underlying().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "task committed", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "task committed")
//	tl.AssertField(t, "task committed", "key", "value")
package logging
