package shock

import "fmt"

// Analysis keeps every intermediate stage of one detection run.
type Analysis struct {
	Signal   []float64
	Residual []float64
	ESD      []int
	Robust   []int
	Records  []Record
}

// Detect flags shocks in a paired return/volatility series. It errors only on
// malformed input; fewer than MinPoints observations yield no records.
// Detect keeps no state between calls and is safe for concurrent use.
func Detect(returns, vols []float64, params Params) ([]Record, error) {
	a, err := Analyze(returns, vols, params)
	if err != nil {
		return nil, err
	}
	return a.Records, nil
}

// Analyze runs the same pipeline as Detect and returns the intermediate series
// alongside the records.
func Analyze(returns, vols []float64, params Params) (*Analysis, error) {
	if err := ValidateSeries(returns, vols); err != nil {
		return nil, err
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(returns) < MinPoints {
		return &Analysis{Records: []Record{}}, nil
	}

	a := &Analysis{}
	a.Signal = BuildSignal(returns, vols)
	a.Residual = Decompose(a.Signal, params.Period)
	a.ESD = GeneralizedESD(a.Residual, params.Alpha, params.MaxOutliers)
	a.Robust = RobustZScore(a.Residual, params.ZScoreThreshold)
	a.Records = Classify(union(a.ESD, a.Robust), returns, vols)
	return a, nil
}

// ValidateSeries checks the shape of a detection request.
func ValidateSeries(returns, vols []float64) error {
	if len(returns) == 0 || len(vols) == 0 {
		return ErrEmptySeries
	}
	if len(returns) != len(vols) {
		return fmt.Errorf("%w: returns=%d vols=%d", ErrLengthMismatch, len(returns), len(vols))
	}
	if !allFinite(returns) || !allFinite(vols) {
		return ErrNonFinite
	}
	return nil
}
