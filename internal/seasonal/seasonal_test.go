package seasonal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_ShorterThanOnePeriodIsAllZero(t *testing.T) {
	series := make([]int64, 50)
	for i := range series {
		series[i] = 100
	}
	residual := Decompose(series, DefaultPeriod)
	require.Len(t, residual, 50)
	for _, r := range residual {
		assert.Equal(t, 0.0, r)
	}
}

func TestDecompose_ReturnsSameLengthAsInput(t *testing.T) {
	series := syntheticWeeklySeries(3, DefaultPeriod, 0)
	residual := Decompose(series, DefaultPeriod)
	assert.Len(t, residual, len(series))
}

func TestDecompose_DiscardedLeadingSamplesAreZero(t *testing.T) {
	period := 24
	series := syntheticWeeklySeries(4, period, 0)
	extra := append([]int64{9999, 8888, 7777}, series...)

	residual := Decompose(extra, period)
	require.Len(t, residual, len(extra))
	assert.Equal(t, 0.0, residual[0])
	assert.Equal(t, 0.0, residual[1])
	assert.Equal(t, 0.0, residual[2])
}

func TestDecompose_FlagsADroppedHour(t *testing.T) {
	period := 24
	series := syntheticWeeklySeries(6, period, 0)
	dropHour := len(series) - 1
	series[dropHour] = 1 // collapse from the usual ~100 baseline

	residual := Decompose(series, period)
	assert.Less(t, residual[dropHour], -5.0, "a collapsed final hour should show a strongly negative residual")
}

func TestDetect_ReportsAnomalyOnFinalHourDrop(t *testing.T) {
	period := 24
	series := syntheticWeeklySeries(6, period, 0)
	series[len(series)-1] = 0

	anomalous, residual := Detect(series, period, -10)
	assert.True(t, anomalous)
	assert.Less(t, residual, -10.0)
}

func TestDetect_NoAnomalyOnStableSeries(t *testing.T) {
	period := 24
	series := syntheticWeeklySeries(6, period, 0)

	anomalous, _ := Detect(series, period, -10)
	assert.False(t, anomalous)
}

// syntheticWeeklySeries builds weeks full periods of a repeating daily
// pattern plus a small deterministic ripple, so the seasonal component is
// non-trivial without relying on randomness.
func syntheticWeeklySeries(weeks, period, offset int) []int64 {
	series := make([]int64, weeks*period)
	for i := range series {
		phase := i % period
		base := 100 + 10*(phase%7)
		series[i] = int64(base + offset)
	}
	return series
}
