package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	domsvc "FinShock/internal/domain/service"
	"FinShock/internal/services/features"
	"FinShock/pkg/cache"
	applogger "FinShock/pkg/logger"
	"FinShock/pkg/util"
)

var (
	ErrFeaturesUnavailable = errors.New("feature store is not configured")
	ErrBatchTooLarge       = errors.New("batch exceeds the item limit")
	ErrBadRange            = errors.New("invalid time range")
)

// AnomalyDeps are the collaborators of AnomalyUseCase. Cache, Features and
// Feed may be nil.
type AnomalyDeps struct {
	Detector domsvc.AnomalyDetector
	Cache    domrepo.ResultCache
	Store    domrepo.AnomalyStore
	Feed     domrepo.Broadcaster
	Features domrepo.FeatureStore
	Metrics  domrepo.Metrics
	Logger   *applogger.Logger
}

// AnomalyOptions bound the work a single call may do.
type AnomalyOptions struct {
	Timeout       time.Duration
	VolWindow     int
	MaxBars       int
	BatchWorkers  int
	BatchMaxItems int
}

// AnomalyUseCase runs detections and fans the results out to the cache, the
// anomaly store and the live feed.
type AnomalyUseCase struct {
	AnomalyDeps
	opts AnomalyOptions

	newID func() string
	now   func() time.Time
}

func NewAnomalyUseCase(deps AnomalyDeps, opts AnomalyOptions) *AnomalyUseCase {
	if deps.Logger == nil {
		deps.Logger = applogger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if opts.VolWindow <= 1 {
		opts.VolWindow = features.DefaultVolWindow
	}
	if opts.BatchWorkers < 1 {
		opts.BatchWorkers = 1
	}
	return &AnomalyUseCase{
		AnomalyDeps: deps,
		opts:        opts,
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Detect runs one detection. Errors wrapping domsvc.ErrInvalidSeries are the
// caller's fault; any other error is the detector's.
func (uc *AnomalyUseCase) Detect(ctx context.Context, req models.DetectRequest, source string) (models.Detection, error) {
	start := time.Now()
	req.Symbol = util.NormalizeSymbol(req.Symbol)

	key, cacheable := cacheKey(req)
	anomalies, hit := uc.cached(ctx, key, cacheable)
	if !hit {
		var err error
		anomalies, err = uc.run(ctx, req)
		if err != nil {
			if errors.Is(err, domsvc.ErrInvalidSeries) {
				uc.Metrics.RecordError("invalid_input")
			} else {
				uc.Metrics.RecordError("detector")
				uc.Logger.Error("detector failed",
					applogger.String("symbol", req.Symbol),
					applogger.String("source", source),
					applogger.Error(err),
				)
			}
			return models.Detection{}, err
		}
		if cacheable && uc.Cache != nil {
			uc.Cache.Set(ctx, key, anomalies)
		}
	}

	d := models.Detection{
		ID:         uc.newID(),
		RequestID:  req.RequestID,
		Symbol:     req.Symbol,
		Source:     source,
		Points:     len(req.Returns),
		Anomalies:  anomalies,
		DetectedAt: uc.now(),
		Cached:     hit,
	}
	uc.emit(ctx, d)

	uc.Metrics.RecordLatency("detect", time.Since(start))
	uc.Metrics.RecordDetection(source, anomalyTypes(anomalies))
	return d, nil
}

func (uc *AnomalyUseCase) run(ctx context.Context, req models.DetectRequest) ([]models.Anomaly, error) {
	if uc.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.Timeout)
		defer cancel()
	}
	return uc.Detector.Detect(ctx, req)
}

func (uc *AnomalyUseCase) cached(ctx context.Context, key string, cacheable bool) ([]models.Anomaly, bool) {
	if !cacheable || uc.Cache == nil {
		return nil, false
	}
	anomalies, ok := uc.Cache.Get(ctx, key)
	uc.Metrics.RecordCache(ok)
	return anomalies, ok
}

// emit persists and broadcasts d. Store failures are logged, not returned:
// the caller already has a valid result.
func (uc *AnomalyUseCase) emit(ctx context.Context, d models.Detection) {
	if uc.Store != nil {
		if err := uc.Store.SaveDetection(ctx, d); err != nil {
			uc.Metrics.RecordError("store")
			uc.Logger.Warn("save detection failed",
				applogger.String("detection_id", d.ID),
				applogger.Error(err),
			)
		}
	}
	if uc.Feed != nil {
		uc.Feed.Broadcast(d)
	}
}

// FromCandles derives log returns and rolling volatility from the latest
// q.N candles and maps every anomaly back onto its candle.
func (uc *AnomalyUseCase) FromCandles(ctx context.Context, q models.AnomalyQuery) ([]models.MarketAnomaly, error) {
	if uc.Features == nil {
		return nil, ErrFeaturesUnavailable
	}
	symbol := util.NormalizeSymbol(q.Symbol)
	n := q.N
	if uc.opts.MaxBars > 0 && n > uc.opts.MaxBars {
		n = uc.opts.MaxBars
	}
	tf := domrepo.NormalizeTimeframe(q.TF)

	candles, err := uc.candles(ctx, symbol, n, tf, q.From, q.To)
	if err != nil {
		return nil, err
	}
	returns := features.ComputeLogReturns(candles)
	if len(returns) == 0 {
		return []models.MarketAnomaly{}, nil
	}
	vols := features.RollingVolatility(returns, uc.opts.VolWindow, features.BarsPerYearForTF(string(tf)))

	d, err := uc.Detect(ctx, models.DetectRequest{Symbol: symbol, Returns: returns, Vols: vols}, models.SourceCandle)
	if err != nil {
		return nil, err
	}

	out := make([]models.MarketAnomaly, 0, len(d.Anomalies))
	for _, a := range d.Anomalies {
		// return i spans candles i and i+1
		out = append(out, models.MarketAnomaly{
			Symbol:     symbol,
			TSIndex:    a.TSIndex,
			Timestamp:  candles[a.TSIndex+1].Bucket,
			Type:       a.Type,
			Severity:   a.Severity,
			Return:     returns[a.TSIndex],
			Volatility: vols[a.TSIndex],
		})
	}
	return out, nil
}

func (uc *AnomalyUseCase) candles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe, rawFrom, rawTo string) ([]models.Candle, error) {
	if rawFrom == "" {
		candles, err := uc.Features.GetLatestNCandles(ctx, symbol, n, tf)
		if err != nil {
			uc.Metrics.RecordError("features")
			return nil, fmt.Errorf("latest candles: %w", err)
		}
		return candles, nil
	}

	from, ok := util.ParseTime(rawFrom)
	if !ok {
		return nil, fmt.Errorf("%w: from=%q", ErrBadRange, rawFrom)
	}
	to := util.ParseTimeDefault(rawTo, uc.now())
	from, to = util.AlignFromTo(from, to, string(tf))
	if !to.After(from) {
		return nil, fmt.Errorf("%w: from must be before to", ErrBadRange)
	}

	candles, err := uc.Features.GetCandles(ctx, symbol, from, to, tf)
	if err != nil {
		uc.Metrics.RecordError("features")
		return nil, fmt.Errorf("candles: %w", err)
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles, nil
}

// Recent lists stored anomalies of symbol, newest first.
func (uc *AnomalyUseCase) Recent(ctx context.Context, symbol string, limit int) ([]models.StoredAnomaly, error) {
	if uc.Store == nil {
		return []models.StoredAnomaly{}, nil
	}
	return uc.Store.RecentBySymbol(ctx, util.NormalizeSymbol(symbol), limit)
}

// cacheKey is anomaly:<symbol>:<sha256 of params and series>. Series with
// NaN or Inf cannot be encoded and are not cached.
func cacheKey(req models.DetectRequest) (string, bool) {
	payload, err := json.Marshal(struct {
		Params  models.DetectParams `json:"p"`
		Returns []float64           `json:"r"`
		Vols    []float64           `json:"v"`
	}{req.DetectParams, req.Returns, req.Vols})
	if err != nil {
		return "", false
	}
	return cache.GenerateKeyWithParams("anomaly", req.Symbol, cache.HashKey(payload)), true
}

func anomalyTypes(as []models.Anomaly) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Type
	}
	return out
}

type noopMetrics struct{}

func (noopMetrics) RecordDetection(string, []string)    {}
func (noopMetrics) RecordError(string)                  {}
func (noopMetrics) RecordLatency(string, time.Duration) {}
func (noopMetrics) RecordCache(bool)                    {}
