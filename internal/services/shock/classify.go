package shock

import (
	"math"
	"sort"
)

// Type labels a flagged point.
type Type string

const (
	TypePriceShock      Type = "price_shock"
	TypeVolatilitySpike Type = "volatility_spike"
	TypeAnomaly         Type = "anomaly"
)

// Record is one flagged point of the input series.
type Record struct {
	TSIndex  int     `json:"ts_index"`
	Type     Type    `json:"type"`
	Severity float64 `json:"severity"`
}

const (
	flagSigmas     = 2.0
	severitySigmas = 3.0
	// anomalySeverity is assigned when neither series explains the flag.
	anomalySeverity = 0.5
)

// Classify labels every index in indices using the raw returns and vols.
// A large return wins over a large volatility. Indices outside the series
// are skipped and the result is ordered by TSIndex.
func Classify(indices []int, returns, vols []float64) []Record {
	sigmaR := spread(returns)
	sigmaV := spread(vols)

	out := make([]Record, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(returns) || idx >= len(vols) {
			continue
		}
		r, v := returns[idx], vols[idx]
		rec := Record{TSIndex: idx, Type: TypeAnomaly, Severity: anomalySeverity}
		switch {
		case math.Abs(r) > flagSigmas*sigmaR:
			rec.Type = TypePriceShock
			rec.Severity = capSeverity(math.Abs(r), sigmaR)
		case v > flagSigmas*sigmaV:
			rec.Type = TypeVolatilitySpike
			rec.Severity = capSeverity(v, sigmaV)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TSIndex < out[j].TSIndex })
	return out
}

// capSeverity maps a deviation onto [0, 1], saturating at three sigma.
func capSeverity(x, sigma float64) float64 {
	if sigma == 0 {
		return 1
	}
	return math.Min(1, x/(severitySigmas*sigma))
}

// union merges index sets, dropping duplicates, ascending.
func union(sets ...[]int) []int {
	seen := make(map[int]struct{})
	out := []int{}
	for _, set := range sets {
		for _, idx := range set {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}
