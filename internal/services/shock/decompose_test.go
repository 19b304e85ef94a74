package shock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSignal(t *testing.T) {
	got := BuildSignal([]float64{1, -1}, []float64{1, 3})
	assert.InDeltaSlice(t, []float64{0, 2}, got, 1e-12)
}

func TestBuildSignal_ZeroVarianceKeepsRaw(t *testing.T) {
	got := BuildSignal(constant(4, 0.5), constant(4, 0.2))
	assert.InDeltaSlice(t, constant(4, 0.6), got, 1e-12)
}

func TestEffectivePeriod(t *testing.T) {
	tests := []struct {
		n, period, want int
	}{
		{20, 0, 5},
		{100, 0, 10},
		{500, 0, 20},
		{30, 7, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectivePeriod(tt.n, tt.period), "n=%d period=%d", tt.n, tt.period)
	}
}

func TestDecompose_ShortSeriesMeanDetrend(t *testing.T) {
	signal := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	got := Decompose(signal, 8)
	require.Len(t, got, len(signal))
	for i, v := range signal {
		assert.InDelta(t, v-6.5, got[i], 1e-12)
	}
}

func TestDecompose_Constant(t *testing.T) {
	assert.Equal(t, make([]float64, 25), Decompose(constant(25, 1.7), 0))
	assert.Equal(t, []float64{}, Decompose(nil, 0))
}

func TestDecompose_RemovesTrendAndSeason(t *testing.T) {
	const period = 10
	signal := make([]float64, 120)
	for i := range signal {
		signal[i] = 0.05*float64(i) + math.Sin(2*math.Pi*float64(i)/period)
	}
	got := Decompose(signal, period)
	require.Len(t, got, len(signal))
	for i, v := range got {
		assert.InDelta(t, 0, v, 1e-6, "index %d", i)
	}
}

func TestDecompose_IsolatesSpike(t *testing.T) {
	signal := flatWithSpike(40, 20, 1, 6)
	got := Decompose(signal, 0)
	require.Len(t, got, 40)

	maxIdx := 0
	for i, v := range got {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		if math.Abs(v) > math.Abs(got[maxIdx]) {
			maxIdx = i
		}
	}
	assert.Equal(t, 20, maxIdx)
}

func TestDecompose_ExactFitLeavesNoResidue(t *testing.T) {
	linear := make([]float64, 120)
	seasonal := make([]float64, 120)
	for i := range linear {
		linear[i] = 0.05 * float64(i)
		seasonal[i] = linear[i] + math.Sin(2*math.Pi*float64(i)/10)
	}

	for name, signal := range map[string][]float64{"linear": linear, "seasonal": seasonal} {
		got := Decompose(signal, 10)
		assert.Equal(t, make([]float64, len(signal)), got, name)
		assert.Empty(t, GeneralizedESD(got, 0.05, 10), name)
		assert.Empty(t, RobustZScore(got, 3.5), name)
	}
}

func TestRobustnessWeights_SkipsRoundingNoise(t *testing.T) {
	y := []float64{1, 2, 3, 4, 5, 6}
	trend := []float64{1 + 1e-13, 2 + 1e-13, 3 - 1e-13, 4 + 1e-13, 5 - 1e-13, 6 + 1e-13}
	season := make([]float64, len(y))
	rw := []float64{7, 7, 7, 7, 7, 7}

	assert.False(t, robustnessWeights(y, season, trend, rw))
	assert.Equal(t, []float64{7, 7, 7, 7, 7, 7}, rw)

	trend = []float64{1.1, 2.5, 2.8, 3.5, 5.2, 6}
	require.True(t, robustnessWeights(y, season, trend, rw))
	assert.Equal(t, 1.0, rw[5])
	assert.Less(t, rw[1], 1.0)
	assert.Greater(t, rw[1], 0.0)
}

func TestDecompose_FallsBackWhenSTLOverflows(t *testing.T) {
	// extrapolating the first cycle-subseries past 1.5e308 overflows to Inf
	signal := make([]float64, 10)
	signal[0] = 1.5e308

	_, err := robustResidual(signal, 5)
	require.ErrorIs(t, err, errDecomposition)

	got := Decompose(signal, 5)
	require.Len(t, got, len(signal))
	assert.Equal(t, detrendMean(signal), got)
	assert.InDelta(t, 1.35e308, got[0], 1e294)
	assert.InDelta(t, -1.5e307, got[1], 1e293)
}
