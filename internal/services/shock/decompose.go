package shock

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

const (
	minPeriod = 5
	maxPeriod = 20
)

// EffectivePeriod returns period when set, otherwise n/10 clamped to [5, 20].
func EffectivePeriod(n, period int) int {
	if period > 0 {
		return period
	}
	return min(max(n/10, minPeriod), maxPeriod)
}

// Decompose strips trend and seasonality from signal and returns what is
// left. Series shorter than two periods, and any series the STL pass cannot
// handle, are detrended by their mean instead. A residual that is rounding
// noise next to signal comes back as zeros. It never fails.
func Decompose(signal []float64, period int) []float64 {
	n := len(signal)
	if n == 0 {
		return []float64{}
	}
	if isConstant(signal) {
		return make([]float64, n)
	}

	p := EffectivePeriod(n, period)
	if n < 2*p {
		return detrendMean(signal)
	}
	resid, err := robustResidual(signal, p)
	if err != nil || len(resid) != n {
		return detrendMean(signal)
	}
	if negligible(absMax(resid), absMax(signal)) {
		// exact fit: what is left is rounding noise
		return make([]float64, n)
	}
	return resid
}

func robustResidual(signal []float64, period int) (resid []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			resid, err = nil, fmt.Errorf("%w: %v", errDecomposition, r)
		}
	}()
	return newSTL(period).residual(signal)
}

func detrendMean(x []float64) []float64 {
	mean := stat.Mean(x, nil)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - mean
	}
	return out
}
