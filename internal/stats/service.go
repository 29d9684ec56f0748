package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/cache"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type Source interface {
	Compute(ctx context.Context, now time.Time) (*Statistics, error)
	SellerDashboard(ctx context.Context, sellerID string, days int, now time.Time) (*SellerDashboard, error)
}

const (
	DefaultDashboardDays = 30
	maxDashboardDays     = 365
)

// Service serves admin order statistics, reading through the cache when one
// is configured. Cache failures fall back to the database.
type Service struct {
	source Source
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewService(source Source, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		source: source,
		cache:  c,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (s *Service) Statistics(ctx context.Context, caller auth.Caller) (*Statistics, error) {
	if !auth.Authorize(caller, auth.ActionViewStatistics, auth.Resource{}) {
		return nil, domain.ErrForbidden
	}

	if s.cache == nil || s.ttl <= 0 {
		return s.source.Compute(ctx, s.now())
	}

	key := cacheKey(s.cache)
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("statistics cache read failed", "error", err, "key", key)
	}
	if cached != "" {
		var stats Statistics
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return &stats, nil
		}
		s.logger.Warn("discarding corrupt statistics cache entry", "key", key)
	}

	stats, err := s.source.Compute(ctx, s.now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("statistics cache write failed", "error", err, "key", key)
	}

	return stats, nil
}

// SellerDashboard reports the calling seller's own catalog and sales over
// the last days days. Zero selects DefaultDashboardDays. It is computed on
// every call.
func (s *Service) SellerDashboard(ctx context.Context, caller auth.Caller, days int) (*SellerDashboard, error) {
	if !auth.Authorize(caller, auth.ActionViewSellerSales, auth.Resource{OwnerID: caller.ID}) {
		return nil, domain.ErrForbidden
	}
	if days == 0 {
		days = DefaultDashboardDays
	}
	if days < 1 || days > maxDashboardDays {
		return nil, domain.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", maxDashboardDays))
	}

	return s.source.SellerDashboard(ctx, caller.ID, days, s.now())
}

func cacheKey(c cache.Cache) string {
	return c.GenerateKey("statistics", "orders")
}

// InvalidateCache drops cached statistics so the next read recomputes them.
func InvalidateCache(ctx context.Context, c cache.Cache) error {
	return c.Delete(ctx, cacheKey(c))
}
