package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	"FinShock/pkg/cache"
)

type captured struct {
	topic string
	key   []byte
	value any
}

type fakeProducer struct{ got []captured }

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value any) error {
	f.got = append(f.got, captured{topic, key, value})
	return nil
}

func TestKafkaResultPublisher_KeysBySymbol(t *testing.T) {
	p := &fakeProducer{}
	d := models.Detection{ID: "id-1", Symbol: "AAPL", Anomalies: []models.Anomaly{{TSIndex: 3, Type: "anomaly", Severity: 0.5}}}
	require.NoError(t, NewKafkaResultPublisher(p, "results").PublishDetection(context.Background(), d))

	require.Len(t, p.got, 1)
	assert.Equal(t, "results", p.got[0].topic)
	assert.Equal(t, []byte("AAPL"), p.got[0].key)

	b, err := json.Marshal(p.got[0].value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"detection_id":"id-1"`)
	assert.Contains(t, string(b), `"ts_index":3`)
}

func TestCachedResults(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	r := NewCachedResults(mc, time.Minute, nil)

	_, ok := r.Get(ctx, "anomaly:AAPL:x")
	assert.False(t, ok)

	r.Set(ctx, "anomaly:AAPL:x", []models.Anomaly{{TSIndex: 1, Type: "price_shock", Severity: 1}})
	got, ok := r.Get(ctx, "anomaly:AAPL:x")
	require.True(t, ok)
	assert.Equal(t, []models.Anomaly{{TSIndex: 1, Type: "price_shock", Severity: 1}}, got)

	// an empty result is a hit, not a miss
	r.Set(ctx, "anomaly:AAPL:y", []models.Anomaly{})
	got, ok = r.Get(ctx, "anomaly:AAPL:y")
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestAnomalySchema(t *testing.T) {
	stmts := anomalySchema("finshock", qualify("finshock", "anomalies"))
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS finshock", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS finshock.anomalies")
	assert.Contains(t, stmts[1], "ORDER BY (symbol, detected_at)")
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "db.rt_candles_1m", qualify("db", "rt_candles_1m"))
	assert.Equal(t, "other.t", qualify("db", "other.t"))
	assert.Equal(t, "t", qualify("", "t"))
}

func TestNoopStore(t *testing.T) {
	var s NoopAnomalyStore
	require.NoError(t, s.SaveDetection(context.Background(), models.Detection{}))
	rows, err := s.RecentBySymbol(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCHFeatureStore_SourceFor(t *testing.T) {
	s := &CHFeatureStore{table1s: "db.rt_candles_1s", table1m: "db.rt_candles_1m"}

	src, err := s.sourceFor(domrepo.TF1m)
	require.NoError(t, err)
	assert.Equal(t, candleSource{table: "db.rt_candles_1m", perBar: 1}, src)

	src, err = s.sourceFor(domrepo.TF5m)
	require.NoError(t, err)
	assert.Equal(t, "db.rt_candles_1m", src.table)
	assert.Equal(t, 5*time.Minute, src.step)
	assert.Equal(t, 5, src.perBar)

	_, err = s.sourceFor("1h")
	assert.Error(t, err)
}
