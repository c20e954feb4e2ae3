package service

import (
	"context"
	"errors"
	"testing"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
)

func TestJoinFarmByCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	farm, _ := e.farmRepo.Get(ctx, id)
	joined, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != id {
		t.Errorf("joined %q, want %q", joined.ID, id)
	}
	if !joined.IsMember("u1") || !joined.IsMember("u2") {
		t.Errorf("members = %v", joined.Members)
	}

	u, err := e.userRepo.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if !u.HasFarm(id) || u.CurrentFarm != id {
		t.Errorf("joiner not attached: %+v", u)
	}
}

func TestJoinFarmTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")
	farm, _ := e.farmRepo.Get(ctx, id)

	if _, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Fatalf("expected AlreadyMember, got %v", err)
	}
}

func TestJoinFarmRetryCompletesInterruptedAttach(t *testing.T) {
	raw := docstore.NewMemoryStore()
	fs := &faultingStore{Store: raw}
	e := newEnvWithStore(t, fs, raw)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")
	farm, _ := e.farmRepo.Get(ctx, id)

	// The first join dies after the member list gained u2 but before the
	// user document did.
	fs.failApply = func(collection, key string) error {
		if collection == "users" && key == "u2" {
			return docstore.ErrUnavailable
		}
		return nil
	}
	_, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode)
	var partial *domain.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if partial.Op != "join_farm" || partial.Step != "attach_user" {
		t.Errorf("partial = %+v", partial)
	}

	// The retry reports the membership conflict but finishes the attach.
	fs.failApply = nil
	if _, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Fatalf("expected AlreadyMember on retry, got %v", err)
	}
	u, err := e.userRepo.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if !u.HasFarm(id) || u.CurrentFarm != id {
		t.Errorf("retry left user unattached: %+v", u)
	}
}

func TestJoinFarmUnknownCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.mustCreateFarm(t, "u1", "North")

	if _, err := e.membership.JoinFarm(ctx, "u2", "NOSUCHCD"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestJoinFarmBeingDeleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")
	farm, _ := e.farmRepo.Get(ctx, id)

	if err := e.farmRepo.MarkDeleting(ctx, id); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound for deleting farm, got %v", err)
	}
}

func TestOwnerCannotLeave(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if err := e.membership.LeaveFarm(ctx, id, "u1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestLeaveFarm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")
	farm, _ := e.farmRepo.Get(ctx, id)

	if _, err := e.membership.JoinFarm(ctx, "u2", farm.JoinCode); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.membership.LeaveFarm(ctx, id, "u2"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	after, _ := e.farmRepo.Get(ctx, id)
	if after.IsMember("u2") || len(after.Members) != 1 {
		t.Errorf("members after leave = %v", after.Members)
	}

	u, _ := e.userRepo.Get(ctx, "u2")
	if u.HasFarm(id) {
		t.Errorf("user still lists farm after leave: %+v", u)
	}
	if u.CurrentFarm == id {
		t.Errorf("current farm still points at left farm")
	}
}

func TestLeaveFarmNotAMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")

	if err := e.membership.LeaveFarm(ctx, id, "u2"); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected NotAMember, got %v", err)
	}
}

func TestSwitchCurrentFarm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id1 := e.mustCreateFarm(t, "u1", "North")
	id2 := e.mustCreateFarm(t, "u1", "South")

	// Creating South moved the pointer there; switch back to North.
	if err := e.membership.SwitchCurrentFarm(ctx, "u1", id1); err != nil {
		t.Fatalf("switch: %v", err)
	}
	u, _ := e.userRepo.Get(ctx, "u1")
	if u.CurrentFarm != id1 {
		t.Errorf("current farm = %q, want %q", u.CurrentFarm, id1)
	}

	if err := e.membership.SwitchCurrentFarm(ctx, "u1", id2); err != nil {
		t.Fatalf("switch back: %v", err)
	}
}

func TestSwitchCurrentFarmNotAMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.mustCreateFarm(t, "u1", "North")
	e.mustCreateFarm(t, "u2", "South")

	if err := e.membership.SwitchCurrentFarm(ctx, "u2", id); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected NotAMember, got %v", err)
	}
}

func TestListFarmsSkipsDeleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id1 := e.mustCreateFarm(t, "u1", "North")
	id2 := e.mustCreateFarm(t, "u1", "South")

	// Simulate a cascade that died before user repair: the root is gone
	// but u1's list still names the farm.
	if err := e.farmRepo.Delete(ctx, id2); err != nil {
		t.Fatalf("delete root: %v", err)
	}

	farms, err := e.membership.ListFarms(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(farms) != 1 || farms[0].ID != id1 {
		t.Errorf("farms = %+v", farms)
	}
}
