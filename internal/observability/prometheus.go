package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// buildPrometheusBridge creates a Prometheus exporter on a fresh registry and
// returns it as an OTel metric reader together with the /metrics scrape
// handler. The reader is attached to the shared meter provider in Init, so
// instruments created from [Providers.Meter] serve both OTLP export and the
// scrape endpoint. A fresh registry per call avoids collector conflicts when
// observability is initialized more than once in a process.
func buildPrometheusBridge() (sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
