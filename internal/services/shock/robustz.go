package shock

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// madScale converts the median absolute deviation into a standard deviation
// estimate under normality.
const madScale = 0.6745

// RobustZScore flags points whose modified z-score (Iglewicz and Hoaglin)
// exceeds threshold in absolute value. Indices are returned ascending.
func RobustZScore(residual []float64, threshold float64) []int {
	if len(residual) < 3 {
		return []int{}
	}
	m := median(residual)
	dev := make([]float64, len(residual))
	for i, v := range residual {
		dev[i] = math.Abs(v - m)
	}
	mad := median(dev)
	if mad == 0 || negligible(mad, floats.Max(dev)) {
		return []int{}
	}

	out := []int{}
	for i, v := range residual {
		if math.Abs(madScale*(v-m)/mad) > threshold {
			out = append(out, i)
		}
	}
	return out
}
