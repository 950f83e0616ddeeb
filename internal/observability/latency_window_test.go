package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.observe(StageSynthesis, 500)
	w.observe(StageSynthesis, 700)
	w.observe(StageSynthesis, 1900)
	w.observe(StageCompletion, 100)
	w.observe("", 10)
	w.observe(StageCompletion, -1)

	snap := w.snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 2)
	assert.Equal(t, StageCompletion, snap.Stages[0].Stage, "stages sort by name")

	s, ok := snap.Stage(StageSynthesis)
	require.True(t, ok)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 1900.0, s.LastMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Equal(t, 1900.0, s.MaxMS)
	assert.Greater(t, s.P95MS, 700.0)
	assert.LessOrEqual(t, s.P95MS, 1900.0)
	assert.Equal(t, 1500.0, s.BudgetP95MS)
	assert.Equal(t, 1, s.OverBudget)
}

func TestLatencyWindowEvictsOldest(t *testing.T) {
	w := newLatencyWindow(2)
	w.observe(StageCompletion, 100)
	w.observe(StageCompletion, 200)
	w.observe(StageCompletion, 300)

	s, ok := w.snapshot().Stage(StageCompletion)
	require.True(t, ok)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 250.0, s.AvgMS)
	assert.Equal(t, 300.0, s.LastMS)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.5))
	assert.Equal(t, 1.0, percentile([]float64{1, 2, 3}, 0))
	assert.Equal(t, 3.0, percentile([]float64{1, 2, 3}, 1))
	assert.Equal(t, 2.5, percentile([]float64{1, 2, 3, 4}, 0.5))
}

func TestMetricsHelpers(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")
	m.TurnOutcome("ok")
	m.TurnOutcome("ok")
	m.CallActivated()
	m.ObserveTurnStage(StageTurnTotal, 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnOutcomes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveCalls))
	s, ok := m.TurnStageSnapshot().Stage(StageTurnTotal)
	require.True(t, ok)
	assert.Equal(t, 1500.0, s.LastMS)

	var nilMetrics *Metrics
	nilMetrics.TurnOutcome("ok")
	nilMetrics.CallActivated()
	assert.Empty(t, nilMetrics.TurnStageSnapshot().Stages)
}
