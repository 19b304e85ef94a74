package repository

import (
	"context"
	"errors"
	"time"

	"FinShock/internal/domain/models"
	domrepo "FinShock/internal/domain/repository"
	"FinShock/pkg/cache"
	applogger "FinShock/pkg/logger"
)

// CachedResults stores detector output in a cache.Service. Cache failures are
// logged and treated as misses.
type CachedResults struct {
	c   cache.Service
	ttl time.Duration
	l   *applogger.Logger
}

func NewCachedResults(c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedResults {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedResults{c: c, ttl: ttl, l: l}
}

func (r *CachedResults) Get(ctx context.Context, key string) ([]models.Anomaly, bool) {
	out, err := cache.GetTyped[[]models.Anomaly](ctx, r.c, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.l.Warn("result cache get failed", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	if out == nil {
		out = []models.Anomaly{}
	}
	return out, true
}

func (r *CachedResults) Set(ctx context.Context, key string, anomalies []models.Anomaly) {
	if err := r.c.Set(ctx, key, anomalies, r.ttl); err != nil {
		r.l.Warn("result cache set failed", applogger.String("key", key), applogger.Error(err))
	}
}

var _ domrepo.ResultCache = (*CachedResults)(nil)
