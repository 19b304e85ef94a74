package models

import "time"

// Anomaly kinds as they appear on the wire.
const (
	AnomalyPriceShock      = "price_shock"
	AnomalyVolatilitySpike = "volatility_spike"
	AnomalyGeneric         = "anomaly"
)

// Anomaly is one flagged point of a series.
type Anomaly struct {
	TSIndex  int     `json:"ts_index"`
	Type     string  `json:"type"`
	Severity float64 `json:"severity"`
}

// MarketAnomaly is an Anomaly placed back on the candle it came from.
type MarketAnomaly struct {
	Symbol     string    `json:"symbol"`
	TSIndex    int       `json:"ts_index"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Severity   float64   `json:"severity"`
	Return     float64   `json:"return"`
	Volatility float64   `json:"volatility"`
}

// Detection sources.
const (
	SourceHTTP   = "http"
	SourceBatch  = "batch"
	SourceKafka  = "kafka"
	SourceCandle = "candles"
)

// Detection is the outcome of one detector run. Records of the same run share
// an ID across the store, the result topic and the live feed.
type Detection struct {
	ID         string    `json:"detection_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Symbol     string    `json:"symbol"`
	Source     string    `json:"source"`
	Points     int       `json:"points"`
	Anomalies  []Anomaly `json:"anomalies"`
	DetectedAt time.Time `json:"detected_at"`
	Cached     bool      `json:"cached,omitempty"`
}

// StoredAnomaly is one persisted anomaly row.
type StoredAnomaly struct {
	DetectionID string    `json:"detection_id"`
	Symbol      string    `json:"symbol"`
	TSIndex     int       `json:"ts_index"`
	Type        string    `json:"type"`
	Severity    float64   `json:"severity"`
	Source      string    `json:"source"`
	DetectedAt  time.Time `json:"detected_at"`
}
