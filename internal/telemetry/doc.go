// Package telemetry provides OpenTelemetry tracing and metrics for devflow.
//
// Telemetry is off by default. When enabled, spans and gateway metrics are
// exported over OTLP (grpc or http/protobuf). Exporter failures degrade the
// instance instead of failing the run.
package telemetry
