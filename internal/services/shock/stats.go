package shock

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// relTol separates real dispersion from floating-point residue. A spread
// smaller than relTol times the series magnitude is treated as zero.
const relTol = 1e-9

// isConstant reports whether every value in x is identical. The mean of a
// constant series is not always bit-equal to its elements, so constancy is
// checked directly rather than through the standard deviation.
func isConstant(x []float64) bool {
	if len(x) == 0 {
		return true
	}
	return floats.Max(x) == floats.Min(x)
}

// meanStd returns the population mean and standard deviation of x, with ok
// false when x has no usable spread.
func meanStd(x []float64) (mean, std float64, ok bool) {
	if isConstant(x) {
		return 0, 0, false
	}
	mean, std = stat.PopMeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		return mean, 0, false
	}
	return mean, std, true
}

// spread is the population standard deviation of x, exactly zero for a
// constant series.
func spread(x []float64) float64 {
	_, std, ok := meanStd(x)
	if !ok {
		return 0
	}
	return std
}

// median averages the two middle order statistics for even lengths.
func median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, x)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// negligible reports whether v is rounding noise relative to scale.
func negligible(v, scale float64) bool {
	return v <= relTol*math.Abs(scale)
}

// absMax is the largest magnitude in x.
func absMax(x []float64) float64 {
	return math.Max(math.Abs(floats.Max(x)), math.Abs(floats.Min(x)))
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
