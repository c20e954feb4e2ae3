package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/security/audit"
)

// MembershipService manages who belongs to a farm and which farm a user is
// currently viewing. The farm member list is the authority; per-user farm
// lists and current-farm pointers are derived references kept in step here.
type MembershipService struct {
	farms  domain.FarmRepository
	users  domain.UserRepository
	audit  *audit.Logger
	logger *slog.Logger
}

func NewMembershipService(
	farms domain.FarmRepository,
	users domain.UserRepository,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *MembershipService {
	return &MembershipService{farms: farms, users: users, audit: auditLog, logger: logger}
}

// JoinFarm adds userID to the farm identified by joinCode and makes it
// their current farm. An unknown or mid-deletion code reads as NotFound so
// callers cannot probe which codes exist.
func (s *MembershipService) JoinFarm(ctx context.Context, userID, joinCode string) (*domain.Farm, error) {
	farm, err := s.farms.GetByJoinCode(ctx, joinCode)
	if err != nil {
		metrics.ObserveLifecycle("join_farm", "error")
		return nil, err
	}
	if farm.Deleting {
		metrics.ObserveLifecycle("join_farm", "error")
		return nil, domain.ErrNotFound
	}
	if farm.IsMember(userID) {
		// The member list is authoritative. An interrupted join can leave
		// the user document without the reference; finish that half before
		// reporting the conflict.
		user, uerr := s.users.Get(ctx, userID)
		if errors.Is(uerr, domain.ErrNotFound) || (uerr == nil && !user.HasFarm(farm.ID)) {
			if aerr := s.users.AttachFarm(ctx, userID, farm.ID); aerr != nil {
				metrics.ObserveLifecycle("join_farm", "partial")
				return nil, &domain.PartialFailureError{Op: "join_farm", Step: "attach_user", Err: aerr}
			}
			s.logger.Info("completed interrupted join",
				slog.String("farm_id", farm.ID),
				slog.String("user_id", userID))
		}
		s.audit.LogJoin(ctx, farm.ID, userID, "already_member")
		metrics.ObserveLifecycle("join_farm", "conflict")
		return nil, domain.ErrAlreadyMember
	}

	if err := s.farms.AddMember(ctx, farm.ID, userID); err != nil {
		metrics.ObserveLifecycle("join_farm", "error")
		return nil, err
	}
	if err := s.users.AttachFarm(ctx, userID, farm.ID); err != nil {
		s.logger.Error("join left user document behind",
			slog.String("farm_id", farm.ID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		metrics.ObserveLifecycle("join_farm", "partial")
		return nil, &domain.PartialFailureError{Op: "join_farm", Step: "attach_user", Err: err}
	}

	s.audit.LogJoin(ctx, farm.ID, userID, "ok")
	metrics.ObserveLifecycle("join_farm", "ok")
	return s.farms.Get(ctx, farm.ID)
}

// LeaveFarm removes userID from the farm. The owner cannot leave; they must
// delete the farm instead, so a farm never exists without its owner.
func (s *MembershipService) LeaveFarm(ctx context.Context, farmID, userID string) error {
	farm, err := s.farms.Get(ctx, farmID)
	if err != nil {
		return err
	}
	if farm.Owner == userID {
		s.audit.LogLeave(ctx, farmID, userID, "denied")
		metrics.ObserveLifecycle("leave_farm", "denied")
		return domain.ErrForbidden
	}
	if !farm.IsMember(userID) {
		metrics.ObserveLifecycle("leave_farm", "error")
		return domain.ErrNotAMember
	}

	if err := s.farms.RemoveMember(ctx, farmID, userID); err != nil {
		metrics.ObserveLifecycle("leave_farm", "error")
		return err
	}
	if err := s.users.DetachFarm(ctx, userID, farmID); err != nil {
		metrics.ObserveLifecycle("leave_farm", "partial")
		return &domain.PartialFailureError{Op: "leave_farm", Step: "detach_user", Err: err}
	}

	s.audit.LogLeave(ctx, farmID, userID, "ok")
	metrics.ObserveLifecycle("leave_farm", "ok")
	return nil
}

// SwitchCurrentFarm points the user's current-farm reference at farmID,
// which must be a farm they belong to.
func (s *MembershipService) SwitchCurrentFarm(ctx context.Context, userID, farmID string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasFarm(farmID) {
		return domain.ErrNotAMember
	}
	return s.users.SetCurrentFarm(ctx, userID, farmID)
}

// ListFarms returns the farm roots the user belongs to. Farms whose root
// has been cascaded away are skipped; the reaper repairs the stale
// references.
func (s *MembershipService) ListFarms(ctx context.Context, userID string) ([]*domain.Farm, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	farms := make([]*domain.Farm, 0, len(user.Farms))
	for _, id := range user.Farms {
		farm, err := s.farms.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if farm.Deleting {
			continue
		}
		farms = append(farms, farm)
	}
	return farms, nil
}
