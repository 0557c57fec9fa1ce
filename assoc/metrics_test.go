package assoc

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.pduSent()
		m.pduReceived()
		m.associationOpened()
		m.associationClosed()
		m.operationStarted()
		m.operationFinished()
	})
}

func TestNewMetricsIncrementsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.pduSent()
	m.pduSent()
	m.pduReceived()
	m.associationOpened()
	m.operationStarted()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.pdusSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pdusReceived))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeAssociations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operationsInFlight))

	m.associationClosed()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.activeAssociations))

	m.operationFinished()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.operationsInFlight))
}

func TestNewMetricsPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}
