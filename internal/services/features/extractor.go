package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinShock/internal/domain/models"
)

// DefaultVolWindow is the rolling window used for realized volatility.
const DefaultVolWindow = 60

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
// Non-positive closes yield a zero return.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility of the last
// window returns, using the sample variance.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	variance := stat.Variance(logReturns[len(logReturns)-window:], nil)
	if variance < 0 || math.IsNaN(variance) {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// RollingVolatility returns a volatility series aligned with logReturns. Point
// i uses up to window returns ending at i, so early points see a shorter
// history; the first point is always 0.
func RollingVolatility(logReturns []float64, window int, barsPerYear float64) []float64 {
	out := make([]float64, len(logReturns))
	for i := range logReturns {
		w := min(window, i+1)
		out[i] = RealizedVolatility(logReturns[:i+1], w, barsPerYear)
	}
	return out
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1s":
		return 365 * 24 * 60 * 60
	case "1m":
		return 365 * 24 * 60
	case "5m":
		return 365 * 24 * 12
	default:
		return 365 * 24 * 60
	}
}

// Resample folds ascending candles into buckets of step, aligned to the
// epoch. Open comes from the first bar of a bucket and close from the last;
// high, low and volume aggregate over the bucket.
func Resample(candles []models.Candle, step time.Duration) []models.Candle {
	if step <= 0 || len(candles) == 0 {
		return candles
	}
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		b := c.Bucket.Truncate(step)
		if n := len(out); n > 0 && out[n-1].Bucket.Equal(b) {
			last := &out[n-1]
			last.High = math.Max(last.High, c.High)
			last.Low = math.Min(last.Low, c.Low)
			last.Close = c.Close
			last.Volume += c.Volume
			continue
		}
		c.Bucket = b
		out = append(out, c)
	}
	return out
}
