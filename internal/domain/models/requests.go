package models

// Requests for the detection endpoints and the request topic. Defined in
// domain so HTTP and Kafka share one schema.

// DetectParams overrides the configured detector parameters. Nil fields keep
// the configured value.
type DetectParams struct {
	Alpha           *float64 `json:"alpha,omitempty" validate:"omitempty,gt=0,lt=1"`
	MaxOutliers     *int     `json:"max_outliers,omitempty" validate:"omitempty,gte=1,lte=1000"`
	ZScoreThreshold *float64 `json:"zscore_threshold,omitempty" validate:"omitempty,gt=0"`
}

// DetectRequest carries one aligned returns/vols pair. Emptiness and length
// agreement are checked by the detector so the error names both lengths.
type DetectRequest struct {
	RequestID string    `json:"request_id,omitempty" validate:"omitempty,max=128"`
	Symbol    string    `json:"symbol" validate:"required,max=32"`
	Returns   []float64 `json:"returns"`
	Vols      []float64 `json:"vols"`
	DetectParams
}

type DetectResponse struct {
	Anomalies []Anomaly `json:"anomalies"`
}

type BatchRequest struct {
	Items []DetectRequest `json:"items" validate:"required,min=1"`
}

type BatchItemResult struct {
	Symbol    string    `json:"symbol"`
	Anomalies []Anomaly `json:"anomalies"`
	Error     string    `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []BatchItemResult `json:"results"`
}

// AnomalyQuery selects the latest N candles of a symbol, or the candles
// between From and To (RFC3339 or unix seconds) capped at the last N.
type AnomalyQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"300" validate:"gte=11,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From   string `query:"from" json:"from,omitempty"`
	To     string `query:"to" json:"to,omitempty"`
}

// HistoryQuery lists stored anomalies of a symbol.
type HistoryQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
