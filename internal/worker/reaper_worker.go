package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/service"
)

// ReaperWorker periodically finishes interrupted farm deletions and repairs
// dangling user references. A cascade that died mid-flight leaves either a
// root flagged deleting or users still pointing at a vanished farm; each
// pass converges the store back to a consistent state.
type ReaperWorker struct {
	farms    domain.FarmRepository
	users    domain.UserRepository
	purge    *service.PurgeService
	logger   *slog.Logger
	interval time.Duration
}

func NewReaperWorker(
	farms domain.FarmRepository,
	users domain.UserRepository,
	purge *service.PurgeService,
	logger *slog.Logger,
	interval time.Duration,
) *ReaperWorker {
	return &ReaperWorker{
		farms:    farms,
		users:    users,
		purge:    purge,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the reaper loop until ctx is cancelled.
func (w *ReaperWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reaper worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reaper worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reaper pass. Exported so operators and tests
// can trigger a pass outside the ticker.
func (w *ReaperWorker) RunOnce(ctx context.Context) {
	w.resumeCascades(ctx)
	w.repairDanglingUsers(ctx)
	w.updateActiveGauge(ctx)
}

func (w *ReaperWorker) resumeCascades(ctx context.Context) {
	ids, err := w.farms.ListDeleting(ctx)
	if err != nil {
		w.logger.Error("failed to list interrupted deletions", slog.Any("error", err))
		return
	}
	for _, farmID := range ids {
		logger := w.logger.With(slog.String("farm_id", farmID))
		logger.Info("resuming interrupted farm deletion")
		if err := w.purge.Cascade(ctx, farmID); err != nil {
			logger.Error("resumed cascade failed, will retry next pass", slog.Any("error", err))
			continue
		}
		metrics.ObserveReaperRepair("cascade_resumed")
	}
}

// repairDanglingUsers finds users whose farm list or current-farm pointer
// names a farm with no root document and runs the repair step for each such
// farm. This covers cascades that died after root deletion but before the
// user-repair step.
func (w *ReaperWorker) repairDanglingUsers(ctx context.Context) {
	users, err := w.users.ListAll(ctx)
	if err != nil {
		w.logger.Error("failed to list users", slog.Any("error", err))
		return
	}

	dangling := map[string]bool{}
	for _, u := range users {
		for _, farmID := range u.Farms {
			if dangling[farmID] {
				continue
			}
			_, err := w.farms.Get(ctx, farmID)
			if errors.Is(err, domain.ErrNotFound) {
				dangling[farmID] = true
			}
		}
	}

	for farmID := range dangling {
		repaired, err := w.purge.RepairUsers(ctx, farmID)
		if err != nil {
			w.logger.Error("user repair failed",
				slog.String("farm_id", farmID),
				slog.Any("error", err))
			continue
		}
		if repaired > 0 {
			w.logger.Info("repaired dangling farm references",
				slog.String("farm_id", farmID),
				slog.Int("users_repaired", repaired))
			metrics.ObserveReaperRepair("user_reference")
		}
	}
}

func (w *ReaperWorker) updateActiveGauge(ctx context.Context) {
	ids, err := w.farms.ListIDs(ctx)
	if err != nil {
		return
	}
	metrics.SetActiveFarms(len(ids))
}
