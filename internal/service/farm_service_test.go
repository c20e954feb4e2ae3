package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/idgen"
)

func TestCreateFarm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	farm, err := e.farms.CreateFarm(ctx, "u1", "North Pasture", "Vermont")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if farm.ID != "farm-001" {
		t.Errorf("id = %q, want farm-001", farm.ID)
	}
	if farm.Owner != "u1" || !farm.IsMember("u1") {
		t.Errorf("owner not a member: %+v", farm)
	}
	if len(farm.JoinCode) != idgen.JoinCodeLength {
		t.Errorf("join code %q has wrong length", farm.JoinCode)
	}

	p, err := e.metaRepo.GetProfile(ctx, farm.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.FarmName != "North Pasture" || p.Location != "Vermont" || p.JoinCode != farm.JoinCode {
		t.Errorf("profile = %+v", p)
	}

	ledger, err := e.metaRepo.GetLedger(ctx, farm.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if ledger.TotalFeed != 0 || ledger.TotalMilk != 0 {
		t.Errorf("ledger not zeroed: %+v", ledger)
	}

	u, err := e.userRepo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if !u.HasFarm(farm.ID) || u.CurrentFarm != farm.ID {
		t.Errorf("user not attached: %+v", u)
	}
}

func TestCreateFarmSequentialIDs(t *testing.T) {
	e := newEnv(t)
	id1 := e.mustCreateFarm(t, "u1", "First")
	id2 := e.mustCreateFarm(t, "u2", "Second")
	if id1 != "farm-001" || id2 != "farm-002" {
		t.Errorf("ids = %q, %q", id1, id2)
	}
}

// racingStore claims each farm id with a rival root right before the root
// write, forcing the create flow to reallocate.
type racingStore struct {
	docstore.Store
	raw   *docstore.MemoryStore
	races int
}

func (s *racingStore) Create(ctx context.Context, collection, key string, doc docstore.Document) error {
	if collection == "farms" && s.races > 0 {
		s.races--
		rival := docstore.Document{
			"farmId":   key,
			"farmName": "Rival",
			"owner":    "rival",
			"members":  []string{"rival"},
			"joinCode": "RIVAL-" + key,
		}
		if err := s.raw.Create(ctx, collection, key, rival); err != nil {
			return err
		}
	}
	return s.Store.Create(ctx, collection, key, doc)
}

func TestCreateFarmReallocatesRacedID(t *testing.T) {
	raw := docstore.NewMemoryStore()
	rs := &racingStore{Store: raw, raw: raw, races: 1}
	e := newEnvWithStore(t, rs, raw)
	ctx := context.Background()

	farm, err := e.farms.CreateFarm(ctx, "u1", "North", "")
	if err != nil {
		t.Fatalf("create after raced id: %v", err)
	}
	if farm.ID != "farm-002" {
		t.Errorf("id = %q, want farm-002", farm.ID)
	}

	got, err := e.farmRepo.GetByJoinCode(ctx, farm.JoinCode)
	if err != nil {
		t.Fatalf("join code lookup: %v", err)
	}
	if got.ID != farm.ID {
		t.Errorf("join code resolves to %q, want %q", got.ID, farm.ID)
	}

	// The reservation followed the reallocated id.
	doc, err := e.raw.Get(ctx, "join_codes", farm.JoinCode)
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if doc["farmId"] != farm.ID {
		t.Errorf("reservation points at %v, want %q", doc["farmId"], farm.ID)
	}
}

func TestCreateFarmReleasesCodeWhenIDsExhausted(t *testing.T) {
	raw := docstore.NewMemoryStore()
	rs := &racingStore{Store: raw, raw: raw, races: farmIDReallocAttempts}
	e := newEnvWithStore(t, rs, raw)
	ctx := context.Background()

	if _, err := e.farms.CreateFarm(ctx, "u1", "North", ""); err == nil {
		t.Fatal("expected create to fail with every id raced")
	}
	keys, err := e.raw.Keys(ctx, "join_codes", 0)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("join code reservations leaked: %v", keys)
	}
}

func TestCreateFarmPartialFailure(t *testing.T) {
	raw := docstore.NewMemoryStore()
	fs := &faultingStore{Store: raw}
	e := newEnvWithStore(t, fs, raw)
	ctx := context.Background()

	// Fail the owner's user update, after root, profile and ledger exist.
	fs.failApply = func(collection, key string) error {
		if collection == "users" {
			return docstore.ErrUnavailable
		}
		return nil
	}

	_, err := e.farms.CreateFarm(ctx, "u1", "North", "")
	var partial *domain.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if partial.Op != "create_farm" || partial.Step != "update_owner_user" {
		t.Errorf("partial = %+v", partial)
	}

	// The root and its derived documents survive the partial failure.
	if _, err := e.farmRepo.Get(ctx, "farm-001"); err != nil {
		t.Errorf("root missing after partial failure: %v", err)
	}
	if _, err := e.metaRepo.GetLedger(ctx, "farm-001"); err != nil {
		t.Errorf("ledger missing after partial failure: %v", err)
	}
}

func TestGetFarmHidesDeleting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if err := e.farmRepo.MarkDeleting(ctx, id); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := e.farms.GetFarm(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound for deleting farm, got %v", err)
	}
}

func TestDeleteFarmRequiresOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	err := e.farms.DeleteFarm(ctx, id, "u2")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if _, err := e.farmRepo.Get(ctx, id); err != nil {
		t.Errorf("farm should survive a denied delete: %v", err)
	}
}

func TestDeleteFarmCascade(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	farm, _ := e.farmRepo.Get(ctx, id)
	joinCode := farm.JoinCode

	// A second member whose pointer targets this farm.
	if _, err := e.membership.JoinFarm(ctx, "u2", joinCode); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Two animals with deep subtrees: 30 daily records, health and
	// vaccination entries each, plus farm-level breeds and snapshots.
	for a := 0; a < 2; a++ {
		animal, err := e.animals.CreateAnimal(ctx, id, "u1", &domain.Animal{Name: fmt.Sprintf("Bessie %d", a), Type: domain.AnimalDairy})
		if err != nil {
			t.Fatalf("create animal: %v", err)
		}
		for d := 0; d < 30; d++ {
			date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
			e.mustSubmitRecord(t, id, "u1", animal.ID, date, 10, ptr(5))
		}
		if _, err := e.animals.RecordHealthEvent(ctx, id, "u1", animal.ID, &domain.HealthEvent{
			EventType: "checkup", EventDate: time.Now(),
		}); err != nil {
			t.Fatalf("health event: %v", err)
		}
		if _, err := e.animals.RecordVaccination(ctx, id, "u1", animal.ID, &domain.VaccinationRecord{
			VaccineName: "BVD", VaccinationDate: time.Now(),
		}); err != nil {
			t.Fatalf("vaccination: %v", err)
		}
	}
	if _, err := e.farms.AddBreed(ctx, id, "u1", "Holstein", ""); err != nil {
		t.Fatalf("breed: %v", err)
	}
	if err := e.stock.TakeSnapshot(ctx, id); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if err := e.farms.DeleteFarm(ctx, id, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Root, reservation and every owned document are gone.
	if _, err := e.farmRepo.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("root survived: %v", err)
	}
	if taken, _ := e.farmRepo.JoinCodeExists(ctx, joinCode); taken {
		t.Errorf("join code reservation survived")
	}
	for _, col := range []string{
		"farms/" + id + "/meta",
		"farms/" + id + "/breeds",
		"farms/" + id + "/stock_history",
		"farms/" + id + "/animals",
		"farms/" + id + "/animals/cow-001/records",
		"farms/" + id + "/animals/cow-002/records",
		"farms/" + id + "/animals/cow-001/health_events",
		"farms/" + id + "/animals/cow-001/vaccinations",
	} {
		keys, err := e.raw.Keys(ctx, col, 0)
		if err != nil {
			t.Fatalf("keys %s: %v", col, err)
		}
		if len(keys) != 0 {
			t.Errorf("collection %s not purged: %v", col, keys)
		}
	}

	// Both users lost the reference; their pointers no longer target it.
	for _, uid := range []string{"u1", "u2"} {
		u, err := e.userRepo.Get(ctx, uid)
		if err != nil {
			t.Fatalf("user %s: %v", uid, err)
		}
		if u.HasFarm(id) || u.CurrentFarm == id {
			t.Errorf("user %s still references deleted farm: %+v", uid, u)
		}
	}
}

func TestDeleteFarmTwiceIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if err := e.farms.DeleteFarm(ctx, id, "u1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := e.farms.DeleteFarm(ctx, id, "u1"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestDeleteFarmResumesAfterFailure(t *testing.T) {
	raw := docstore.NewMemoryStore()
	fs := &faultingStore{Store: raw}
	e := newEnvWithStore(t, fs, raw)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if _, err := e.animals.CreateAnimal(ctx, id, "u1", &domain.Animal{Name: "Bessie", Type: domain.AnimalDairy}); err != nil {
		t.Fatalf("animal: %v", err)
	}

	// First attempt dies deleting the farm root.
	fs.failDelete = func(collection, key string) error {
		if collection == "farms" {
			return docstore.ErrUnavailable
		}
		return nil
	}
	err := e.farms.DeleteFarm(ctx, id, "u1")
	var partial *domain.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if partial.Step != "delete_farm_root" {
		t.Errorf("step = %q", partial.Step)
	}

	// Retry with the fault cleared finishes the cascade.
	fs.failDelete = nil
	if err := e.farms.DeleteFarm(ctx, id, "u1"); err != nil {
		t.Fatalf("resumed delete: %v", err)
	}
	if _, err := e.farmRepo.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("root survived resumed cascade: %v", err)
	}
	u, _ := e.userRepo.Get(ctx, "u1")
	if u.HasFarm(id) {
		t.Errorf("user still references farm after resumed cascade")
	}
}

func TestUpdateProfilePreservesJoinCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	before, _ := e.farms.GetProfile(ctx, id, "u1")
	p, err := e.farms.UpdateProfile(ctx, id, "u1", "Renamed", "Maine")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.FarmName != "Renamed" || p.Location != "Maine" {
		t.Errorf("profile = %+v", p)
	}

	after, _ := e.farms.GetProfile(ctx, id, "u1")
	if after.JoinCode != before.JoinCode {
		t.Errorf("join code changed on profile update")
	}
}

func TestProfileRequiresMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if _, err := e.farms.GetProfile(ctx, id, "outsider"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if _, err := e.farms.UpdateProfile(ctx, id, "outsider", "X", ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestBreedCatalog(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	b1, err := e.farms.AddBreed(ctx, id, "u1", "Holstein", "dairy")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := e.farms.AddBreed(ctx, id, "u1", "Angus", "beef"); err != nil {
		t.Fatalf("add: %v", err)
	}

	breeds, err := e.farms.ListBreeds(ctx, id, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(breeds) != 2 {
		t.Fatalf("breeds = %d, want 2", len(breeds))
	}

	if err := e.farms.RemoveBreed(ctx, id, "u1", b1.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	breeds, _ = e.farms.ListBreeds(ctx, id, "u1")
	if len(breeds) != 1 || breeds[0].Name != "Angus" {
		t.Errorf("breeds after remove = %+v", breeds)
	}
}
