package shock

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var errDecomposition = errors.New("stl: decomposition failed")

// stl is a robust Seasonal-Trend decomposition using Loess (Cleveland et al.,
// 1990) with degree-1 smoothers and a jump of one. Spans follow the
// conventional defaults derived from the period.
type stl struct {
	period   int
	seasonal int
	trend    int
	lowPass  int
	inner    int
	outer    int
}

func newSTL(period int) stl {
	const seasonal = 7
	trend := int(math.Ceil(1.5 * float64(period) / (1 - 1.5/float64(seasonal))))
	if trend%2 == 0 {
		trend++
	}
	lowPass := period + 1
	if lowPass%2 == 0 {
		lowPass++
	}
	return stl{
		period:   period,
		seasonal: seasonal,
		trend:    trend,
		lowPass:  lowPass,
		inner:    2,
		outer:    15,
	}
}

// residual returns y - seasonal - trend.
func (s stl) residual(y []float64) ([]float64, error) {
	n := len(y)
	if s.period < 2 || n < 2*s.period {
		return nil, fmt.Errorf("%w: period %d for %d points", errDecomposition, s.period, n)
	}

	trend := make([]float64, n)
	season := make([]float64, n)
	var rw []float64
	for k := 0; ; k++ {
		s.innerLoop(y, rw, season, trend)
		if k >= s.outer {
			break
		}
		if rw == nil {
			rw = make([]float64, n)
		}
		if !robustnessWeights(y, season, trend, rw) {
			break
		}
	}

	out := make([]float64, n)
	for i := range y {
		out[i] = y[i] - season[i] - trend[i]
	}
	if !allFinite(out) {
		return nil, fmt.Errorf("%w: non-finite residual", errDecomposition)
	}
	return out, nil
}

func (s stl) innerLoop(y, rw, season, trend []float64) {
	n := len(y)
	np := s.period
	detrended := make([]float64, n)
	cycle := make([]float64, n+2*np)
	work := make([]float64, n+2*np)

	for it := 0; it < s.inner; it++ {
		for i := range y {
			detrended[i] = y[i] - trend[i]
		}
		s.cycleSubseries(detrended, rw, cycle, work)

		low := s.lowPassFilter(cycle, work)
		for i := 0; i < n; i++ {
			season[i] = cycle[np+i] - low[i]
			detrended[i] = y[i] - season[i]
		}
		loess(detrended, s.trend, rw, trend, work)
	}
}

// cycleSubseries smooths each cycle-subseries and extends it by one point on
// both ends, writing the result into c (length n+2*period).
func (s stl) cycleSubseries(y, rw, c, work []float64) {
	n := len(y)
	np := s.period
	for j := 0; j < np; j++ {
		k := (n-1-j)/np + 1
		sub := make([]float64, k)
		var subw []float64
		if rw != nil {
			subw = make([]float64, k)
		}
		for i := 0; i < k; i++ {
			sub[i] = y[i*np+j]
			if subw != nil {
				subw[i] = rw[i*np+j]
			}
		}

		smooth := make([]float64, k+2)
		loess(sub, s.seasonal, subw, smooth[1:k+1], work)

		right := min(s.seasonal, k) - 1
		v, ok := loessAt(sub, s.seasonal, -1, 0, right, subw, work)
		if !ok {
			v = smooth[1]
		}
		smooth[0] = v

		left := max(0, k-s.seasonal)
		v, ok = loessAt(sub, s.seasonal, float64(k), left, k-1, subw, work)
		if !ok {
			v = smooth[k]
		}
		smooth[k+1] = v

		for m := range smooth {
			c[m*np+j] = smooth[m]
		}
	}
}

func (s stl) lowPassFilter(c, work []float64) []float64 {
	ma := movingAverage(c, s.period)
	ma = movingAverage(ma, s.period)
	ma = movingAverage(ma, 3)
	out := make([]float64, len(ma))
	loess(ma, s.lowPass, nil, out, work)
	return out
}

func movingAverage(x []float64, span int) []float64 {
	n := len(x) - span + 1
	out := make([]float64, n)
	var sum float64
	for i := 0; i < span; i++ {
		sum += x[i]
	}
	out[0] = sum / float64(span)
	for i := 1; i < n; i++ {
		sum += x[i+span-1] - x[i-1]
		out[i] = sum / float64(span)
	}
	return out
}

// loess smooths y with a window of span points, evaluating at every index.
// Points whose window carries no weight keep their raw value.
func loess(y []float64, span int, rw, out, work []float64) {
	n := len(y)
	if n == 1 {
		out[0] = y[0]
		return
	}
	if span >= n {
		for i := 0; i < n; i++ {
			v, ok := loessAt(y, span, float64(i), 0, n-1, rw, work)
			if !ok {
				v = y[i]
			}
			out[i] = v
		}
		return
	}

	half := (span + 1) / 2
	left, right := 0, span-1
	for i := 0; i < n; i++ {
		if i+1 > half && right != n-1 {
			left++
			right++
		}
		v, ok := loessAt(y, span, float64(i), left, right, rw, work)
		if !ok {
			v = y[i]
		}
		out[i] = v
	}
}

// loessAt fits a tricube-weighted local linear regression over y[left..right]
// and evaluates it at position xs. ok is false when every weight vanishes.
func loessAt(y []float64, span int, xs float64, left, right int, rw, w []float64) (float64, bool) {
	n := len(y)
	h := math.Max(xs-float64(left), float64(right)-xs)
	if span > n {
		h += float64((span - n) / 2)
	}
	h9, h1 := 0.999*h, 0.001*h

	var a float64
	for j := left; j <= right; j++ {
		w[j] = 0
		r := math.Abs(float64(j) - xs)
		if r > h9 {
			continue
		}
		if r <= h1 {
			w[j] = 1
		} else {
			q := r / h
			q = 1 - q*q*q
			w[j] = q * q * q
		}
		if rw != nil {
			w[j] *= rw[j]
		}
		a += w[j]
	}
	if a <= 0 {
		return 0, false
	}
	for j := left; j <= right; j++ {
		w[j] /= a
	}

	if h > 0 {
		var center float64
		for j := left; j <= right; j++ {
			center += w[j] * float64(j)
		}
		b := xs - center
		var c float64
		for j := left; j <= right; j++ {
			d := float64(j) - center
			c += w[j] * d * d
		}
		if math.Sqrt(c) > 0.001*float64(n-1) {
			b /= c
			for j := left; j <= right; j++ {
				w[j] *= b*(float64(j)-center) + 1
			}
		}
	}

	var ys float64
	for j := left; j <= right; j++ {
		ys += w[j] * y[j]
	}
	return ys, true
}

// robustnessWeights applies bisquare weights to the residuals of the current
// fit, scaled by six times their median absolute value. It returns false,
// leaving rw alone, when that scale is rounding noise next to y.
func robustnessWeights(y, season, trend, rw []float64) bool {
	n := len(y)
	r := make([]float64, n)
	for i := range y {
		r[i] = math.Abs(y[i] - season[i] - trend[i])
	}
	sorted := make([]float64, n)
	copy(sorted, r)
	sort.Float64s(sorted)

	cmad := 3 * (sorted[n/2] + sorted[n-n/2-1])
	if negligible(cmad, absMax(y)) {
		return false
	}
	c9, c1 := 0.999*cmad, 0.001*cmad
	for i, v := range r {
		switch {
		case v <= c1:
			rw[i] = 1
		case v <= c9:
			u := v / cmad
			u = 1 - u*u
			rw[i] = u * u
		default:
			rw[i] = 0
		}
	}
	return true
}
