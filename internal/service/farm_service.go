package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/idgen"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/security/audit"
)

// farmIDReallocAttempts bounds the retry loop when two concurrent creates
// race for the same max+1 farm id.
const farmIDReallocAttempts = 5

// FarmService implements the farm lifecycle: creation with all its derived
// documents, profile and breed management, and deletion as a full cascade.
type FarmService struct {
	farms  domain.FarmRepository
	users  domain.UserRepository
	meta   domain.MetaRepository
	purge  *PurgeService
	audit  *audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

func NewFarmService(
	farms domain.FarmRepository,
	users domain.UserRepository,
	meta domain.MetaRepository,
	purge *PurgeService,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *FarmService {
	return &FarmService{
		farms:  farms,
		users:  users,
		meta:   meta,
		purge:  purge,
		audit:  auditLog,
		logger: logger,
		now:    time.Now,
	}
}

// CreateFarm creates a farm owned by ownerID. The root document is written
// first; every later step wraps its failure in a PartialFailureError naming
// the step, so operators can tell "nothing happened" from "the root exists
// but its derived documents do not".
func (s *FarmService) CreateFarm(ctx context.Context, ownerID, name, location string) (*domain.Farm, error) {
	attempts := 0
	code, err := idgen.EnsureUniqueJoinCode(ctx, func(ctx context.Context, c string) (bool, error) {
		attempts++
		return s.farms.JoinCodeExists(ctx, c)
	})
	metrics.ObserveJoinCodeAttempts(attempts)
	if err != nil {
		metrics.ObserveLifecycle("create_farm", "error")
		return nil, fmt.Errorf("allocate join code: %w", err)
	}

	farm, err := s.createRoot(ctx, ownerID, name, code)
	if err != nil {
		metrics.ObserveLifecycle("create_farm", "error")
		return nil, err
	}

	if err := s.meta.CreateProfile(ctx, farm.ID, &domain.Profile{
		FarmName:  name,
		Location:  location,
		JoinCode:  code,
		CreatedAt: farm.CreatedAt,
	}); err != nil {
		return farm, s.createPartial(farm, "create_profile", err)
	}
	if err := s.meta.InitLedger(ctx, farm.ID); err != nil {
		return farm, s.createPartial(farm, "init_ledger", err)
	}
	if err := s.users.AttachFarm(ctx, ownerID, farm.ID); err != nil {
		return farm, s.createPartial(farm, "update_owner_user", err)
	}

	metrics.ObserveLifecycle("create_farm", "ok")
	s.audit.LogFarmCreated(ctx, farm.ID, ownerID)
	s.logger.Info("farm created",
		slog.String("farm_id", farm.ID),
		slog.String("owner", ownerID))
	return farm, nil
}

// createRoot reserves the join code and writes the farm root, reallocating
// the id when a concurrent create claimed the same one. The reservation is
// claimed once per create and rebound to each candidate id, then released
// when no root write ever succeeds.
func (s *FarmService) createRoot(ctx context.Context, ownerID, name, code string) (*domain.Farm, error) {
	reserved := false
	release := func() {
		if !reserved {
			return
		}
		if err := s.farms.ReleaseJoinCode(ctx, code); err != nil {
			s.logger.Warn("join code reservation left behind",
				slog.String("join_code", code),
				slog.Any("error", err))
		}
	}
	var lastErr error
	for attempt := 0; attempt < farmIDReallocAttempts; attempt++ {
		ids, err := s.farms.ListIDs(ctx)
		if err != nil {
			release()
			return nil, fmt.Errorf("list farm ids: %w", err)
		}
		farm := &domain.Farm{
			ID:        idgen.NextFarmID(ids),
			Name:      name,
			Owner:     ownerID,
			Members:   []string{ownerID},
			JoinCode:  code,
			CreatedAt: s.now(),
		}
		if !reserved {
			if err := s.farms.ReserveJoinCode(ctx, code, farm.ID); err != nil {
				return nil, fmt.Errorf("reserve join code: %w", err)
			}
			reserved = true
		} else if err := s.farms.BindJoinCode(ctx, code, farm.ID); err != nil {
			release()
			return nil, fmt.Errorf("rebind join code: %w", err)
		}
		err = s.farms.Create(ctx, farm)
		if err == nil {
			return farm, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			release()
			return nil, fmt.Errorf("create farm root: %w", err)
		}
		lastErr = err
	}
	release()
	return nil, fmt.Errorf("allocate farm id: %w", lastErr)
}

func (s *FarmService) createPartial(farm *domain.Farm, step string, err error) error {
	s.logger.Error("farm creation left incomplete",
		slog.String("farm_id", farm.ID),
		slog.String("step", step),
		slog.Any("error", err))
	metrics.ObserveLifecycle("create_farm", "partial")
	return &domain.PartialFailureError{Op: "create_farm", Step: step, Err: err}
}

// GetFarm returns the farm root. Farms mid-deletion read as gone.
func (s *FarmService) GetFarm(ctx context.Context, farmID string) (*domain.Farm, error) {
	farm, err := s.farms.Get(ctx, farmID)
	if err != nil {
		return nil, err
	}
	if farm.Deleting {
		return nil, domain.ErrNotFound
	}
	return farm, nil
}

// DeleteFarm runs the full cascade for farmID. Only the owner may delete.
// Deleting a farm that is already gone is not an error: the call degenerates
// to a user-repair pass, which makes retrying an interrupted deletion safe.
func (s *FarmService) DeleteFarm(ctx context.Context, farmID, requestedBy string) error {
	farm, err := s.farms.Get(ctx, farmID)
	if errors.Is(err, domain.ErrNotFound) {
		if _, rerr := s.purge.RepairUsers(ctx, farmID); rerr != nil {
			return rerr
		}
		metrics.ObserveLifecycle("delete_farm", "ok")
		return nil
	}
	if err != nil {
		return err
	}

	if !farm.Deleting && farm.Owner != requestedBy {
		s.audit.LogDenied(ctx, farmID, requestedBy, "delete requires farm owner")
		metrics.ObserveLifecycle("delete_farm", "denied")
		return domain.ErrForbidden
	}

	if err := s.farms.MarkDeleting(ctx, farmID); err != nil {
		return err
	}
	if err := s.purge.Cascade(ctx, farmID); err != nil {
		s.audit.LogFarmDeleted(ctx, farmID, requestedBy, "partial", err.Error())
		metrics.ObserveLifecycle("delete_farm", "partial")
		return err
	}

	s.audit.LogFarmDeleted(ctx, farmID, requestedBy, "ok", "")
	metrics.ObserveLifecycle("delete_farm", "ok")
	return nil
}

// GetProfile returns the farm profile for members only.
func (s *FarmService) GetProfile(ctx context.Context, farmID, userID string) (*domain.Profile, error) {
	if err := s.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.meta.GetProfile(ctx, farmID)
}

// UpdateProfile overwrites the mutable profile fields. The join code and
// creation time are owned by the lifecycle and never change here.
func (s *FarmService) UpdateProfile(ctx context.Context, farmID, userID, name, location string) (*domain.Profile, error) {
	if err := s.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	p, err := s.meta.GetProfile(ctx, farmID)
	if err != nil {
		return nil, err
	}
	p.FarmName = name
	p.Location = location
	if err := s.meta.SaveProfile(ctx, farmID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddBreed adds a catalog entry and returns it with its assigned id.
func (s *FarmService) AddBreed(ctx context.Context, farmID, userID, name, description string) (*domain.Breed, error) {
	if err := s.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	b := &domain.Breed{
		ID:          fmt.Sprintf("breed-%d", s.now().UnixNano()),
		Name:        name,
		Description: description,
	}
	if err := s.meta.AddBreed(ctx, farmID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *FarmService) ListBreeds(ctx context.Context, farmID, userID string) ([]*domain.Breed, error) {
	if err := s.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.meta.ListBreeds(ctx, farmID)
}

func (s *FarmService) RemoveBreed(ctx context.Context, farmID, userID, breedID string) error {
	if err := s.RequireMember(ctx, farmID, userID); err != nil {
		return err
	}
	return s.meta.RemoveBreed(ctx, farmID, breedID)
}

// RequireMember resolves the farm and rejects non-members. Every
// farm-scoped read and mutation outside the lifecycle itself goes through
// this check.
func (s *FarmService) RequireMember(ctx context.Context, farmID, userID string) error {
	farm, err := s.GetFarm(ctx, farmID)
	if err != nil {
		return err
	}
	if !farm.IsMember(userID) {
		s.audit.LogDenied(ctx, farmID, userID, "not a farm member")
		return domain.ErrForbidden
	}
	return nil
}
