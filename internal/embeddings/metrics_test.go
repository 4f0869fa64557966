package embeddings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// withPrometheusMeter installs a prometheus-backed meter provider for the
// duration of the test, mirroring the daemon's metrics wiring.
func withPrometheusMeter(t *testing.T) *prometheus.Registry {
	t.Helper()

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	require.NoError(t, err)

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	return registry
}

func TestMetrics_ExportThroughPrometheus(t *testing.T) {
	registry := withPrometheusMeter(t)

	m := NewMetrics(nil)
	m.RecordGeneration(context.Background(), "term-hash-v1", "embed_query", 5*time.Millisecond, 1, nil)
	m.RecordGeneration(context.Background(), "term-hash-v1", "embed_query", time.Millisecond, 1, errors.New("backend hiccup"))

	families, err := registry.Gather()
	require.NoError(t, err)

	// Instruments created off the global meter land in the registry once a
	// real meter provider is installed.
	var names []string
	found := false
	for _, family := range families {
		names = append(names, family.GetName())
		if strings.HasPrefix(family.GetName(), "hydrochat_embedding") {
			found = true
		}
	}
	assert.True(t, found, "expected hydrochat_embedding_* metric families, got %v", names)
}
