package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/config"
)

// Protocols supported by the OTLP exporters.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled         bool
	Endpoint        string
	Protocol        string
	Insecure        bool // plaintext connection, local endpoints only
	TLSSkipVerify   bool
	ServiceName     string
	ServiceVersion  string
	SampleRate      float64
	MetricsEnabled  bool
	ExportInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns disabled telemetry pointed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "devflow",
		ServiceVersion:  "dev",
		SampleRate:      1.0,
		MetricsEnabled:  true,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ConfigFrom builds a telemetry config from the user-facing telemetry section.
func ConfigFrom(tc config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = tc.Enabled
	if tc.Endpoint != "" {
		cfg.Endpoint = tc.Endpoint
	}
	if tc.Protocol != "" {
		cfg.Protocol = tc.Protocol
	}
	cfg.Insecure = tc.Insecure
	cfg.SampleRate = tc.SampleRate
	if tc.ServiceName != "" {
		cfg.ServiceName = tc.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.MetricsEnabled && c.ExportInterval <= 0 {
		return fmt.Errorf("export interval must be positive when metrics enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint host is a loopback address.
func (c *Config) isLocalEndpoint() bool {
	hostport := stripScheme(c.Endpoint)
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = strings.Trim(hostport, "[]")
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
