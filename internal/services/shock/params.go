package shock

import (
	"errors"
	"fmt"
)

const (
	// DefaultAlpha is the significance level of the generalized ESD test.
	DefaultAlpha = 0.05
	// DefaultMaxOutliers caps the number of ESD iterations.
	DefaultMaxOutliers = 10
	// DefaultZScoreThreshold is the modified z-score cutoff used by the pipeline.
	DefaultZScoreThreshold = 3.5
	// GeneralZScoreThreshold is the conventional modified z-score cutoff.
	GeneralZScoreThreshold = 3.0
	// MinPoints is the shortest series the pipeline will analyze.
	MinPoints = 10
)

var (
	ErrEmptySeries    = errors.New("shock: returns and vols must be non-empty")
	ErrLengthMismatch = errors.New("shock: returns and vols must have the same length")
	ErrNonFinite      = errors.New("shock: series contains NaN or Inf")
	ErrInvalidParams  = errors.New("shock: invalid parameters")
)

// Params tunes a single detection run. Zero fields take the package defaults.
type Params struct {
	Alpha           float64 `json:"alpha" yaml:"alpha"`
	MaxOutliers     int     `json:"max_outliers" yaml:"max_outliers"`
	ZScoreThreshold float64 `json:"zscore_threshold" yaml:"zscore_threshold"`
	// Period is the seasonal period handed to the decomposer; 0 selects it
	// from the series length.
	Period int `json:"period,omitempty" yaml:"period"`
}

// DefaultParams returns the stock detection parameters.
func DefaultParams() Params {
	return Params{
		Alpha:           DefaultAlpha,
		MaxOutliers:     DefaultMaxOutliers,
		ZScoreThreshold: DefaultZScoreThreshold,
	}
}

// WithDefaults fills unset fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.Alpha == 0 {
		p.Alpha = d.Alpha
	}
	if p.MaxOutliers == 0 {
		p.MaxOutliers = d.MaxOutliers
	}
	if p.ZScoreThreshold == 0 {
		p.ZScoreThreshold = d.ZScoreThreshold
	}
	return p
}

// Validate reports parameters no detection run can use.
func (p Params) Validate() error {
	switch {
	case p.Alpha <= 0 || p.Alpha >= 1:
		return fmt.Errorf("%w: alpha must be in (0,1), got %v", ErrInvalidParams, p.Alpha)
	case p.MaxOutliers < 0:
		return fmt.Errorf("%w: max_outliers must be >= 0, got %d", ErrInvalidParams, p.MaxOutliers)
	case p.ZScoreThreshold <= 0:
		return fmt.Errorf("%w: zscore_threshold must be > 0, got %v", ErrInvalidParams, p.ZScoreThreshold)
	case p.Period != 0 && p.Period < 2:
		return fmt.Errorf("%w: period must be >= 2, got %d", ErrInvalidParams, p.Period)
	}
	return nil
}
