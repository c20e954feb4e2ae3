package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/repository"
	"github.com/herdsphere/herdsphere/internal/security/audit"
	"github.com/herdsphere/herdsphere/pkg/cache"
)

// env wires the full service stack over an in-memory store.
type env struct {
	store      docstore.Store
	raw        *docstore.MemoryStore
	farms      *FarmService
	membership *MembershipService
	stock      *StockService
	animals    *AnimalService
	purge      *PurgeService

	farmRepo   *repository.FarmRepository
	userRepo   *repository.UserRepository
	metaRepo   *repository.MetaRepository
	animalRepo *repository.AnimalRepository
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	raw := docstore.NewMemoryStore()
	return newEnvWithStore(t, raw, raw)
}

// newEnvWithStore lets tests interpose a fault-injecting store.
func newEnvWithStore(t *testing.T, store docstore.Store, raw *docstore.MemoryStore) *env {
	t.Helper()
	log := quietLogger()
	auditLog := audit.NewLogger(log)

	farmRepo := repository.NewFarmRepository(store, log)
	userRepo := repository.NewUserRepository(store, log)
	metaRepo := repository.NewMetaRepository(store, log)
	animalRepo := repository.NewAnimalRepository(store, log)

	purge := NewPurgeService(farmRepo, userRepo, metaRepo, animalRepo, log)
	farms := NewFarmService(farmRepo, userRepo, metaRepo, purge, auditLog, log)
	membership := NewMembershipService(farmRepo, userRepo, auditLog, log)
	stock := NewStockService(metaRepo, cache.New(), auditLog, log)
	animals := NewAnimalService(animalRepo, farms, stock, log)

	return &env{
		store:      store,
		raw:        raw,
		farms:      farms,
		membership: membership,
		stock:      stock,
		animals:    animals,
		purge:      purge,
		farmRepo:   farmRepo,
		userRepo:   userRepo,
		metaRepo:   metaRepo,
		animalRepo: animalRepo,
	}
}

// faultingStore wraps a Store and lets tests fail chosen calls.
type faultingStore struct {
	docstore.Store
	// failApply, when set, is consulted before every Apply.
	failApply func(collection, key string) error
	// failDelete, when set, is consulted before every Delete.
	failDelete func(collection, key string) error
}

func (f *faultingStore) Apply(ctx context.Context, collection, key string, ops ...docstore.FieldOp) error {
	if f.failApply != nil {
		if err := f.failApply(collection, key); err != nil {
			return err
		}
	}
	return f.Store.Apply(ctx, collection, key, ops...)
}

func (f *faultingStore) Delete(ctx context.Context, collection, key string) error {
	if f.failDelete != nil {
		if err := f.failDelete(collection, key); err != nil {
			return err
		}
	}
	return f.Store.Delete(ctx, collection, key)
}

// mustCreateFarm creates a farm and fails the test on error.
func (e *env) mustCreateFarm(t *testing.T, owner, name string) string {
	t.Helper()
	farm, err := e.farms.CreateFarm(context.Background(), owner, name, "")
	if err != nil {
		t.Fatalf("create farm: %v", err)
	}
	return farm.ID
}

// mustSubmitRecord writes one daily record.
func (e *env) mustSubmitRecord(t *testing.T, farmID, userID, animalID string, date time.Time, feed float64, milk *float64) {
	t.Helper()
	rec := &domain.DailyRecord{Date: date, Feed: feed, Milk: milk}
	if err := e.animals.SubmitDailyRecord(context.Background(), farmID, userID, animalID, rec); err != nil {
		t.Fatalf("submit record: %v", err)
	}
}

func ptr(f float64) *float64 { return &f }
