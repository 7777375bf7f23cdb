package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntakeMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)

	m.ObserveSession("opened")
	m.ObserveTransition("next", true)
	m.ObserveTransition("next", false)
	m.ObserveTransition("next", false)
	m.ObserveDraft("save", "ok")
	m.ObserveGeneration("success", 0.25)
	m.SetActiveSessions(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsTotal.WithLabelValues("opened")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("next", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.draftOpsTotal.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationsTotal.WithLabelValues("success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.activeSessions))
}

func TestIntakeMetricsGenerationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)

	m.ObserveGeneration("success", 0.2)
	m.ObserveGeneration("failure", 0.4)

	families, err := reg.Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "cardio_intake_generation_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.6, hist.GetSampleSum(), 1e-9)
}

func TestIntakeMetricsDefaultRegistry(t *testing.T) {
	m := NewIntakeMetrics(nil)
	m.ObserveSession("opened")
}

func TestIntakeMetricsNilSafe(t *testing.T) {
	var m *IntakeMetrics
	m.ObserveSession("opened")
	m.SetActiveSessions(1)
	m.ObserveTransition("previous", true)
	m.ObserveDraft("load", "corrupt")
	m.ObserveGeneration("failure", 0.1)
}
