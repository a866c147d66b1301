// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for ingestion runs. Providers are no-op unless an OTLP
// endpoint or the Prometheus bridge is configured, so offline runs pay no
// export overhead.
package observability

import (
	"log/slog"
	"strings"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "sdc"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export; providers become no-op.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// EnablePrometheus attaches a Prometheus bridge to the meter provider and
	// exposes the scrape endpoint on [Providers.MetricsHandler].
	EnablePrometheus bool

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// ParseLevel maps a configuration log level string (DEBUG, INFO, WARN, ERROR)
// to its slog severity. Unknown values fall back to Info; configuration
// validation rejects them before this is reached.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
