package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	pkgch "FinShock/pkg/clickhouse"
	applogger "FinShock/pkg/logger"
)

// CHAnomalyStore persists detections into <db>.anomalies, one row per anomaly.
type CHAnomalyStore struct {
	ch    *pkgch.Client
	db    string
	table string
	l     *applogger.Logger
}

func NewCHAnomalyStore(ch *pkgch.Client, l *applogger.Logger) *CHAnomalyStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHAnomalyStore{ch: ch, db: ch.Database(), table: qualify(ch.Database(), "anomalies"), l: l}
}

// anomalySchema returns the idempotent DDL for the anomaly table.
func anomalySchema(db, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            detection_id String,
            symbol String,
            ts_index UInt32,
            type LowCardinality(String),
            severity Float64,
            detected_at DateTime64(3),
            source LowCardinality(String)
        ) ENGINE = MergeTree
        ORDER BY (symbol, detected_at)`, table),
	}
}

func (s *CHAnomalyStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, anomalySchema(s.db, s.table))
}

// SaveDetection writes all records of d in one transaction.
func (s *CHAnomalyStore) SaveDetection(ctx context.Context, d models.Detection) error {
	if len(d.Anomalies) == 0 {
		return nil
	}
	start := time.Now()
	q := fmt.Sprintf("INSERT INTO %s (detection_id, symbol, ts_index, type, severity, detected_at, source) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)

	err := s.ch.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, a := range d.Anomalies {
			if _, err := stmt.ExecContext(ctx, d.ID, d.Symbol, uint32(a.TSIndex), a.Type, a.Severity, d.DetectedAt, d.Source); err != nil {
				return fmt.Errorf("append row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.l.Error("clickhouse save detection failed",
			applogger.String("detection_id", d.ID),
			applogger.String("symbol", d.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("save detection: %w", err)
	}
	s.l.Debug("clickhouse save detection ok",
		applogger.String("detection_id", d.ID),
		applogger.Int("rows", len(d.Anomalies)),
		applogger.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *CHAnomalyStore) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]models.StoredAnomaly, error) {
	q := fmt.Sprintf(`
        SELECT detection_id, symbol, ts_index, type, severity, source, detected_at
        FROM %s
        WHERE symbol = ?
        ORDER BY detected_at DESC, ts_index ASC
        LIMIT ?
    `, s.table)
	rows, err := s.ch.DB().QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent anomalies: %w", err)
	}
	defer rows.Close()

	out := make([]models.StoredAnomaly, 0, limit)
	for rows.Next() {
		var a models.StoredAnomaly
		var idx uint32
		if err := rows.Scan(&a.DetectionID, &a.Symbol, &idx, &a.Type, &a.Severity, &a.Source, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.TSIndex = int(idx)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close is a no-op; the client is owned by the application.
func (s *CHAnomalyStore) Close() error { return nil }

var _ domrepo.AnomalyStore = (*CHAnomalyStore)(nil)
