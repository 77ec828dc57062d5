package metric

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func gathered(t *testing.T, registry *MetricsRegistry, name string) bool {
	t.Helper()
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-service", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()
	assert.True(t, gathered(t, registry, "test_counter"),
		"Counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterGaugeVec(t *testing.T) {
	registry := NewMetricsRegistry()

	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "test_gauge_vec",
		Help: "A test gauge vector",
	}, []string{"label"})

	err := registry.RegisterGaugeVec("test-service", "test_gauge_vec", gaugeVec)
	require.NoError(t, err)

	gaugeVec.WithLabelValues("a").Set(1)
	assert.True(t, gathered(t, registry, "test_gauge_vec"))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "A counter",
	})

	require.NoError(t, registry.RegisterCounter("svc", "dup_counter", counter))

	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "A counter",
	})
	err := registry.RegisterCounter("svc", "dup_counter", other)
	assert.Error(t, err, "duplicate registration should fail")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "removable_gauge",
		Help: "A gauge",
	})

	require.NoError(t, registry.RegisterGauge("svc", "removable_gauge", gauge))
	assert.True(t, registry.Unregister("svc", "removable_gauge"))
	assert.False(t, registry.Unregister("svc", "removable_gauge"),
		"second unregister should report missing")
}

func TestCoreMetrics_Recorders(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	// Exercise every recorder; Gather must not error afterwards.
	core.RecordPipelinesRegistered(3)
	core.RecordPipelineProcessed("face-a", "success")
	core.RecordPipelineProcessed("face-a", "failure")
	core.RecordProcessingDuration("face-a", 42*time.Millisecond)
	core.RecordBreakerState("face-a", 1)
	core.RecordSelection("performance_first")
	core.RecordFallbackDepth(2)
	core.RecordComposition("parallel", "success")
	core.RecordCompositionDuration("parallel", 100*time.Millisecond)
	core.RecordHealthStatus("face-a", true)
	core.RecordResultPublished("percept.results.face")

	_, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	core.RemoveBreakerState("face-a")
	_, err = registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", n),
				Help: "A counter",
			})
			done <- registry.RegisterCounter("svc", fmt.Sprintf("concurrent_counter_%d", n), counter)
		}(i)
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
}
