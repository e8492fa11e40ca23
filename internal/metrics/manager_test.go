package metrics

import (
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	manager := NewManager(nil, nil, nil)

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.registry)
	assert.NotNil(t, manager.collector)
}

func TestManagerGetRegistry(t *testing.T) {
	manager := NewManager(nil, nil, nil)

	registry := manager.GetRegistry()
	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	foundGoMetrics := false
	foundProcessMetrics := false
	for _, mf := range metricFamilies {
		name := mf.GetName()
		if strings.HasPrefix(name, "go_") {
			foundGoMetrics = true
		}
		if strings.HasPrefix(name, "process_") {
			foundProcessMetrics = true
		}
	}

	assert.True(t, foundGoMetrics, "Go runtime metrics should be registered")
	if runtime.GOOS != "darwin" {
		assert.True(t, foundProcessMetrics, "process metrics should be registered on Linux/Windows")
	}
}

func TestManagerRegistryIsolation(t *testing.T) {
	manager1 := NewManager(nil, nil, nil)
	manager2 := NewManager(nil, nil, nil)

	assert.NotSame(t, manager1.registry, manager2.registry)
	assert.NotSame(t, manager1.collector, manager2.collector)
}

func TestManagerMetricsCanBeScraped(t *testing.T) {
	manager := NewManager(nil, nil, nil)

	metricCount := testutil.CollectAndCount(manager.GetRegistry())
	assert.Greater(t, metricCount, 0)
}
