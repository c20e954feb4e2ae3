package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/observability/metrics"
	"github.com/herdsphere/herdsphere/internal/repository"
)

// purgeBatchSize bounds each delete batch; subtrees can be arbitrarily
// large, so every deletion loops batched queries until empty.
const purgeBatchSize = 200

// PurgeService is the cascading deletion engine. It removes everything a
// farm transitively owns, child data before parents, and repairs user
// back-references last. Every step is idempotent: an interrupted cascade is
// finished by re-running it, never by compensating.
type PurgeService struct {
	farms   domain.FarmRepository
	users   domain.UserRepository
	meta    domain.MetaRepository
	animals domain.AnimalRepository
	logger  *slog.Logger
}

// NewPurgeService creates the cascade engine.
func NewPurgeService(
	farms domain.FarmRepository,
	users domain.UserRepository,
	meta domain.MetaRepository,
	animals domain.AnimalRepository,
	logger *slog.Logger,
) *PurgeService {
	return &PurgeService{farms: farms, users: users, meta: meta, animals: animals, logger: logger}
}

// Cascade purges farmID. Safe to call on an already-deleted farm: the purge
// loops find nothing and only the user-repair step does work (a second
// repair pass matches nobody).
//
// Order matters: animal subtrees, then animals, then metadata, then the
// farm root, then user repair. Children go before parents so a crash never
// leaves reachable-but-invalid leaf data, and users are repaired last so a
// retried cascade converges on "no user references the farm" exactly when
// the data is gone.
func (s *PurgeService) Cascade(ctx context.Context, farmID string) error {
	logger := s.logger.With(slog.String("farm_id", farmID))

	joinCode := ""
	farm, err := s.farms.Get(ctx, farmID)
	switch {
	case err == nil:
		joinCode = farm.JoinCode
	case errors.Is(err, domain.ErrNotFound):
		// Root already gone: resume at the repair step.
	default:
		return s.partial("load_farm", err)
	}

	if err := s.purgeAnimals(ctx, farmID); err != nil {
		return err
	}

	for {
		n, err := s.meta.Purge(ctx, farmID, purgeBatchSize)
		if err != nil {
			return s.partial("purge_metadata", err)
		}
		if n == 0 {
			break
		}
		metrics.ObserveCascadeBatch("metadata", n)
	}

	if joinCode != "" {
		if err := s.farms.ReleaseJoinCode(ctx, joinCode); err != nil {
			return s.partial("release_join_code", err)
		}
	}
	if err := s.farms.Delete(ctx, farmID); err != nil {
		return s.partial("delete_farm_root", err)
	}

	repaired, err := s.users.RepairAfterDelete(ctx, farmID)
	if err != nil {
		return s.partial("repair_users", err)
	}

	logger.Info("farm cascade completed", slog.Int("users_repaired", repaired))
	return nil
}

// RepairUsers re-runs the user-repair step alone. Callers hitting a farm
// that reads NotFound while a user still points at it are seeing a cascade
// that died between root deletion and repair; this finishes it.
func (s *PurgeService) RepairUsers(ctx context.Context, farmID string) (int, error) {
	return s.users.RepairAfterDelete(ctx, farmID)
}

func (s *PurgeService) purgeAnimals(ctx context.Context, farmID string) error {
	ids, err := s.animals.ListIDs(ctx, farmID)
	if err != nil {
		return s.partial("list_animals", err)
	}
	subtrees := []string{
		repository.SubtreeRecords,
		repository.SubtreeHealthEvents,
		repository.SubtreeVaccinations,
	}
	for _, animalID := range ids {
		for _, subtree := range subtrees {
			for {
				if err := ctx.Err(); err != nil {
					return s.partial("purge_animal_subtrees", err)
				}
				n, err := s.animals.PurgeSubtree(ctx, farmID, animalID, subtree, purgeBatchSize)
				if err != nil {
					return s.partial("purge_animal_subtrees", err)
				}
				if n == 0 {
					break
				}
				metrics.ObserveCascadeBatch(subtree, n)
			}
		}
		if err := s.animals.Delete(ctx, farmID, animalID); err != nil {
			return s.partial("delete_animal", err)
		}
		metrics.ObserveCascadeBatch("animals", 1)
	}
	return nil
}

// partial wraps a step failure so callers know the cascade stopped in a
// well-defined, resumable state rather than continuing best-effort.
func (s *PurgeService) partial(step string, err error) error {
	return &domain.PartialFailureError{
		Op:   "delete_farm_cascade",
		Step: step,
		Err:  fmt.Errorf("cascade step %s: %w", step, err),
	}
}
