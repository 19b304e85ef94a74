package shock

import "math"

// standardize rescales x to zero mean and unit variance. A series with no
// spread is returned unchanged.
func standardize(x []float64) []float64 {
	out := make([]float64, len(x))
	mean, std, ok := meanStd(x)
	if !ok {
		copy(out, x)
		return out
	}
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}

// BuildSignal combines returns and volatility into one shock series:
// shock[i] = |r_norm[i]| * (1 + v_norm[i]). Large moves that coincide with
// elevated volatility score highest. Inputs must have equal length.
func BuildSignal(returns, vols []float64) []float64 {
	rn := standardize(returns)
	vn := standardize(vols)
	out := make([]float64, len(rn))
	for i := range rn {
		out[i] = math.Abs(rn[i]) * (1 + vn[i])
	}
	return out
}
