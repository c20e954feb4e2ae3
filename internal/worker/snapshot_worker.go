package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/service"
)

// SnapshotWorker periodically appends the current stock counters of every
// live farm to its stock history. History exists for trend display only;
// missing a tick loses a data point, never correctness.
type SnapshotWorker struct {
	farms    domain.FarmRepository
	stock    *service.StockService
	logger   *slog.Logger
	interval time.Duration
}

func NewSnapshotWorker(
	farms domain.FarmRepository,
	stock *service.StockService,
	logger *slog.Logger,
	interval time.Duration,
) *SnapshotWorker {
	return &SnapshotWorker{farms: farms, stock: stock, logger: logger, interval: interval}
}

// Start runs the snapshot loop until ctx is cancelled.
func (w *SnapshotWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("snapshot worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("snapshot worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce snapshots every live farm.
func (w *SnapshotWorker) RunOnce(ctx context.Context) {
	ids, err := w.farms.ListIDs(ctx)
	if err != nil {
		w.logger.Error("failed to list farms for snapshots", slog.Any("error", err))
		return
	}
	for _, farmID := range ids {
		if err := w.stock.TakeSnapshot(ctx, farmID); err != nil {
			w.logger.Warn("stock snapshot failed",
				slog.String("farm_id", farmID),
				slog.Any("error", err))
		}
	}
}
