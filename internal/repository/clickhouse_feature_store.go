package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	"FinShock/internal/services/features"
	pkgch "FinShock/pkg/clickhouse"
	applogger "FinShock/pkg/logger"
)

// CHFeatureStore implements FeatureStore over the realtime candle tables.
type CHFeatureStore struct {
	db      *sql.DB
	table1s string
	table1m string
	l       *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, table1s, table1m string, l *applogger.Logger) *CHFeatureStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHFeatureStore{
		db:      ch.DB(),
		table1s: qualify(ch.Database(), table1s),
		table1m: qualify(ch.Database(), table1m),
		l:       l,
	}
}

const candleColumns = "bucket, symbol, open, high, low, close, vol"

func (s *CHFeatureStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	src, err := s.sourceFor(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `, candleColumns, src.table)
	out, err := s.query(ctx, "get_candles", src.table, q, symbol, from, to)
	if err != nil {
		return nil, err
	}
	return features.Resample(out, src.step), nil
}

// GetLatestNCandles returns up to n bars of tf, oldest first. For 5m the
// newest bucket may still be filling.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	src, err := s.sourceFor(tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, candleColumns, src.table)
	out, err := s.query(ctx, "latest_candles", src.table, q, symbol, n*src.perBar)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	out = features.Resample(out, src.step)
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *CHFeatureStore) query(ctx context.Context, op, table, q string, args ...any) ([]models.Candle, error) {
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("op", op),
		applogger.String("table", table),
		applogger.Any("args", args),
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse candle query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse candle scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse candle rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse candle query ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)),
	)...)
	return out, nil
}

// candleSource is where bars of one timeframe come from. step is zero when
// the table already holds that resolution; otherwise perBar source rows make
// one bar.
type candleSource struct {
	table  string
	step   time.Duration
	perBar int
}

// sourceFor maps tf onto its table. There is no 5m table, so 5m bars are
// resampled from the 1m one.
func (s *CHFeatureStore) sourceFor(tf domrepo.Timeframe) (candleSource, error) {
	switch tf {
	case domrepo.TF1s:
		return candleSource{table: s.table1s, perBar: 1}, nil
	case domrepo.TF1m:
		return candleSource{table: s.table1m, perBar: 1}, nil
	case domrepo.TF5m:
		return candleSource{table: s.table1m, step: 5 * time.Minute, perBar: 5}, nil
	default:
		return candleSource{}, fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

func qualify(db, table string) string {
	if db == "" || strings.Contains(table, ".") {
		return table
	}
	return db + "." + table
}

var _ domrepo.FeatureStore = (*CHFeatureStore)(nil)
