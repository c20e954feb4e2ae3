package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/security/audit"
	"github.com/herdsphere/herdsphere/pkg/cache"
)

// stockCacheTTL bounds how stale a cached ledger read may be. Writes
// invalidate the entry, so the TTL only matters across processes.
const stockCacheTTL = 5 * time.Second

// snapshotHistoryLimit caps one history page.
const snapshotHistoryLimit = 100

// StockPublisher receives every ledger change for fan-out to live
// subscribers. Implementations must not block the caller.
type StockPublisher interface {
	PublishStock(farmID string, ledger *domain.StockLedger)
}

// StockService owns the farm-level aggregate counters. All mutations go
// through atomic increments or explicit overrides; it never reconstructs
// the counters from per-animal data.
type StockService struct {
	meta      domain.MetaRepository
	cache     *cache.Cache
	publisher StockPublisher
	audit     *audit.Logger
	logger    *slog.Logger
	now       func() time.Time
}

func NewStockService(
	meta domain.MetaRepository,
	c *cache.Cache,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *StockService {
	return &StockService{
		meta:   meta,
		cache:  c,
		audit:  auditLog,
		logger: logger,
		now:    time.Now,
	}
}

// SetPublisher attaches the live-feed publisher. Optional; without one,
// ledger changes are only visible on the next read.
func (s *StockService) SetPublisher(p StockPublisher) {
	s.publisher = p
}

// ApplyRecordDelta applies one signed contribution to the farm counters.
// Feed consumption arrives as a negative feedDelta, milk produced as a
// positive milkDelta. The increment is atomic at the store, so concurrent
// deltas from different animals never lose updates.
func (s *StockService) ApplyRecordDelta(ctx context.Context, farmID string, feedDelta, milkDelta float64) error {
	if err := s.meta.ApplyDelta(ctx, farmID, feedDelta, milkDelta); err != nil {
		metrics.ObserveStockDelta("error")
		return err
	}
	metrics.ObserveStockDelta("ok")
	s.invalidateAndPublish(ctx, farmID)
	return nil
}

// GetStock returns the current counters, serving repeat reads from a short
// TTL cache.
func (s *StockService) GetStock(ctx context.Context, farmID string) (*domain.StockLedger, error) {
	key := stockCacheKey(farmID)
	if v, ok := s.cache.Get(key); ok {
		if ledger, ok := v.(domain.StockLedger); ok {
			return &ledger, nil
		}
	}
	ledger, err := s.meta.GetLedger(ctx, farmID)
	if err != nil {
		return nil, err
	}
	// Cached by value; every caller gets a copy it may mutate freely.
	s.cache.Set(key, *ledger, stockCacheTTL)
	return ledger, nil
}

// SetAbsoluteStock overwrites one counter to an operator-supplied value,
// for example after a physical inventory count. Kind must be "totalFeed" or
// "totalMilk". Overrides are audited.
func (s *StockService) SetAbsoluteStock(ctx context.Context, farmID, userID, kind string, value float64) error {
	if kind != "totalFeed" && kind != "totalMilk" {
		return fmt.Errorf("%w: unknown stock counter %q", domain.ErrConflict, kind)
	}
	if err := s.meta.SetAbsolute(ctx, farmID, kind, value); err != nil {
		metrics.ObserveStockDelta("error")
		return err
	}
	metrics.ObserveStockDelta("override")
	s.audit.LogStockOverride(ctx, farmID, userID, kind)
	s.invalidateAndPublish(ctx, farmID)
	return nil
}

// TakeSnapshot appends the current counters to the stock history.
func (s *StockService) TakeSnapshot(ctx context.Context, farmID string) error {
	ledger, err := s.meta.GetLedger(ctx, farmID)
	if err != nil {
		return err
	}
	return s.meta.AppendSnapshot(ctx, farmID, &domain.StockSnapshot{
		TotalFeed: ledger.TotalFeed,
		TotalMilk: ledger.TotalMilk,
		TakenAt:   s.now(),
	})
}

// ListHistory returns up to limit recent snapshots, newest first.
func (s *StockService) ListHistory(ctx context.Context, farmID string, limit int) ([]*domain.StockSnapshot, error) {
	if limit <= 0 || limit > snapshotHistoryLimit {
		limit = snapshotHistoryLimit
	}
	return s.meta.ListSnapshots(ctx, farmID, limit)
}

func (s *StockService) invalidateAndPublish(ctx context.Context, farmID string) {
	s.cache.Delete(stockCacheKey(farmID))
	if s.publisher == nil {
		return
	}
	ledger, err := s.meta.GetLedger(ctx, farmID)
	if err != nil {
		s.logger.Warn("stock publish skipped, ledger read failed",
			slog.String("farm_id", farmID),
			slog.Any("error", err))
		return
	}
	s.publisher.PublishStock(farmID, ledger)
}

func stockCacheKey(farmID string) string {
	return "stock:" + farmID
}
