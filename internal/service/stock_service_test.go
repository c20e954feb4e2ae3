package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
)

type capturingPublisher struct {
	mu      sync.Mutex
	ledgers []*domain.StockLedger
}

func (p *capturingPublisher) PublishStock(farmID string, ledger *domain.StockLedger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledgers = append(p.ledgers, ledger)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ledgers)
}

func TestStockOverrideThenRecordDelta(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if err := e.stock.SetAbsoluteStock(ctx, id, "u1", "totalFeed", 100); err != nil {
		t.Fatalf("override feed: %v", err)
	}
	if err := e.stock.SetAbsoluteStock(ctx, id, "u1", "totalMilk", 50); err != nil {
		t.Fatalf("override milk: %v", err)
	}

	// One daily record: 17 feed consumed, 11 milk produced.
	if err := e.stock.ApplyRecordDelta(ctx, id, -17, 11); err != nil {
		t.Fatalf("delta: %v", err)
	}

	ledger, err := e.stock.GetStock(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ledger.TotalFeed != 83 || ledger.TotalMilk != 61 {
		t.Errorf("ledger = %.1f/%.1f, want 83/61", ledger.TotalFeed, ledger.TotalMilk)
	}
}

func TestStockOverrideRejectsUnknownKind(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	err := e.stock.SetAbsoluteStock(ctx, id, "u1", "totalHay", 10)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestStockDeltasAreAdditiveUnderConcurrency(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	const workers = 10
	const perWorker = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := e.stock.ApplyRecordDelta(ctx, id, -2, 3); err != nil {
					t.Errorf("delta: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	ledger, err := e.metaRepo.GetLedger(ctx, id)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	wantFeed := float64(-2 * workers * perWorker)
	wantMilk := float64(3 * workers * perWorker)
	if ledger.TotalFeed != wantFeed || ledger.TotalMilk != wantMilk {
		t.Errorf("ledger = %.1f/%.1f, want %.1f/%.1f",
			ledger.TotalFeed, ledger.TotalMilk, wantFeed, wantMilk)
	}
}

func TestResubmittedRecordContributesAgain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")
	animal, err := e.animals.CreateAnimal(ctx, id, "u1", &domain.Animal{Name: "Bessie", Type: domain.AnimalDairy})
	if err != nil {
		t.Fatalf("animal: %v", err)
	}

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e.mustSubmitRecord(t, id, "u1", animal.ID, date, 10, ptr(4))
	e.mustSubmitRecord(t, id, "u1", animal.ID, date, 12, ptr(5))

	// The stored record is overwritten, but the ledger takes every
	// submission at face value. Corrections go through overrides.
	rec, err := e.animals.GetDailyRecord(ctx, id, "u1", animal.ID, date)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Feed != 12 {
		t.Errorf("stored feed = %.1f, want 12", rec.Feed)
	}

	ledger, _ := e.metaRepo.GetLedger(ctx, id)
	if ledger.TotalFeed != -22 || ledger.TotalMilk != 9 {
		t.Errorf("ledger = %.1f/%.1f, want -22/9", ledger.TotalFeed, ledger.TotalMilk)
	}
}

func TestGetStockServesFromCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	first, err := e.stock.GetStock(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Mutate the store behind the service's back. A cached read does not
	// see it; an invalidating write does.
	if err := e.metaRepo.ApplyDelta(ctx, id, -5, 5); err != nil {
		t.Fatalf("raw delta: %v", err)
	}
	cached, _ := e.stock.GetStock(ctx, id)
	if cached.TotalFeed != first.TotalFeed {
		t.Errorf("cache missed: %.1f vs %.1f", cached.TotalFeed, first.TotalFeed)
	}

	if err := e.stock.ApplyRecordDelta(ctx, id, -1, 1); err != nil {
		t.Fatalf("delta: %v", err)
	}
	fresh, _ := e.stock.GetStock(ctx, id)
	if fresh.TotalFeed != -6 || fresh.TotalMilk != 6 {
		t.Errorf("ledger after invalidation = %.1f/%.1f, want -6/6", fresh.TotalFeed, fresh.TotalMilk)
	}
}

func TestGetStockReturnsPrivateCopies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if err := e.stock.SetAbsoluteStock(ctx, id, "u1", "totalFeed", 100); err != nil {
		t.Fatalf("override: %v", err)
	}

	first, err := e.stock.GetStock(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.TotalFeed = -999
	first.TotalMilk = -999

	// A mutating caller must not poison the cached entry for others.
	second, err := e.stock.GetStock(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.TotalFeed != 100 || second.TotalMilk != 0 {
		t.Errorf("ledger = %.1f/%.1f, want 100/0", second.TotalFeed, second.TotalMilk)
	}

	second.TotalFeed = -999
	third, _ := e.stock.GetStock(ctx, id)
	if third.TotalFeed != 100 {
		t.Errorf("cached read leaked a shared pointer: %.1f", third.TotalFeed)
	}
}

func TestSnapshotHistoryNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Hour)
		e.stock.now = func() time.Time { return tick }
		if err := e.stock.SetAbsoluteStock(ctx, id, "u1", "totalMilk", float64(i*10)); err != nil {
			t.Fatalf("override: %v", err)
		}
		if err := e.stock.TakeSnapshot(ctx, id); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
	}

	hist, err := e.stock.ListHistory(ctx, id, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if !hist[0].TakenAt.After(hist[1].TakenAt) || !hist[1].TakenAt.After(hist[2].TakenAt) {
		t.Errorf("history not newest first: %v, %v, %v", hist[0].TakenAt, hist[1].TakenAt, hist[2].TakenAt)
	}
	if hist[0].TotalMilk != 20 {
		t.Errorf("latest snapshot milk = %.1f, want 20", hist[0].TotalMilk)
	}

	limited, _ := e.stock.ListHistory(ctx, id, 2)
	if len(limited) != 2 || limited[0].TotalMilk != 20 {
		t.Errorf("limited history = %+v", limited)
	}
}

func TestLedgerChangesReachPublisher(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	pub := &capturingPublisher{}
	e.stock.SetPublisher(pub)

	if err := e.stock.ApplyRecordDelta(ctx, id, -3, 2); err != nil {
		t.Fatalf("delta: %v", err)
	}
	if err := e.stock.SetAbsoluteStock(ctx, id, "u1", "totalFeed", 40); err != nil {
		t.Fatalf("override: %v", err)
	}

	if pub.count() != 2 {
		t.Fatalf("publishes = %d, want 2", pub.count())
	}
	pub.mu.Lock()
	last := pub.ledgers[len(pub.ledgers)-1]
	pub.mu.Unlock()
	if last.TotalFeed != 40 || last.TotalMilk != 2 {
		t.Errorf("published ledger = %.1f/%.1f, want 40/2", last.TotalFeed, last.TotalMilk)
	}
}
