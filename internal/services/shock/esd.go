package shock

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

type point struct {
	index int
	z     float64
}

// GeneralizedESD runs Rosner's generalized extreme Studentized deviate test
// on residual and returns the original indices of the outliers in the order
// they were found. At most maxOutliers indices are returned.
func GeneralizedESD(residual []float64, alpha float64, maxOutliers int) []int {
	n := len(residual)
	if n < 3 || maxOutliers <= 0 {
		return []int{}
	}
	mean, std, ok := meanStd(residual)
	if !ok {
		return []int{}
	}

	working := make([]point, n)
	for i, v := range residual {
		working[i] = point{index: i, z: (v - mean) / std}
	}
	return esdScan(working, maxOutliers, func(i int) (float64, bool) {
		return esdCritical(n, i, alpha)
	})
}

// esdCritical is the i-th critical value for a sample of n points.
// ok is false once the t distribution runs out of degrees of freedom.
func esdCritical(n, i int, alpha float64) (float64, bool) {
	df := n - i - 2
	if df < 1 {
		return 0, false
	}
	p := 1 - alpha/(2*float64(n-i))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(p)
	return float64(n-i-1) * t / math.Sqrt(float64(df)*(1+t*t)), true
}

// esdScan repeatedly removes the most extreme remaining point while it
// exceeds the critical value for that round.
func esdScan(working []point, maxOutliers int, critical func(i int) (float64, bool)) []int {
	out := make([]int, 0, min(maxOutliers, len(working)))
	for i := 0; i < maxOutliers && len(working) > 0; i++ {
		best := working[0]
		for _, p := range working[1:] {
			if math.Abs(p.z) > math.Abs(best.z) {
				best = p
			}
		}
		lambda, ok := critical(i)
		if !ok || math.Abs(best.z) <= lambda {
			break
		}
		out = append(out, best.index)
		working = slices.DeleteFunc(working, func(p point) bool { return p.index == best.index })
	}
	return out
}
