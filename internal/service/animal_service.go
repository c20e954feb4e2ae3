package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/herdsphere/herdsphere/internal/domain"
	"github.com/herdsphere/herdsphere/internal/idgen"
	"github.com/herdsphere/herdsphere/internal/repository"
)

// AnimalService manages the animal registry and its per-animal subtrees:
// daily records, health events and vaccinations. Daily records are where
// the stock ledger gets its deltas.
type AnimalService struct {
	animals domain.AnimalRepository
	farms   *FarmService
	stock   *StockService
	logger  *slog.Logger
	now     func() time.Time
}

func NewAnimalService(
	animals domain.AnimalRepository,
	farms *FarmService,
	stock *StockService,
	logger *slog.Logger,
) *AnimalService {
	return &AnimalService{
		animals: animals,
		farms:   farms,
		stock:   stock,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateAnimal registers an animal under the lowest free cow id.
func (s *AnimalService) CreateAnimal(ctx context.Context, farmID, userID string, a *domain.Animal) (*domain.Animal, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	if a.Type != domain.AnimalDairy && a.Type != domain.AnimalBeef {
		return nil, fmt.Errorf("%w: unknown animal type %q", domain.ErrConflict, a.Type)
	}
	ids, err := s.animals.ListIDs(ctx, farmID)
	if err != nil {
		return nil, err
	}
	a.ID = idgen.NextAnimalID(ids)
	if len(a.Status) == 0 {
		a.Status = []string{domain.StatusHealthy}
	}
	if err := s.animals.Create(ctx, farmID, a); err != nil {
		return nil, err
	}
	s.logger.Info("animal registered",
		slog.String("farm_id", farmID),
		slog.String("animal_id", a.ID))
	return a, nil
}

func (s *AnimalService) GetAnimal(ctx context.Context, farmID, userID, animalID string) (*domain.Animal, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.animals.Get(ctx, farmID, animalID)
}

func (s *AnimalService) ListAnimals(ctx context.Context, farmID, userID string) ([]*domain.Animal, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.animals.List(ctx, farmID)
}

// SetStatus replaces the animal's status tags.
func (s *AnimalService) SetStatus(ctx context.Context, farmID, userID, animalID string, status []string) error {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return err
	}
	if _, err := s.animals.Get(ctx, farmID, animalID); err != nil {
		return err
	}
	return s.animals.SetStatus(ctx, farmID, animalID, status)
}

// DeleteAnimal removes one animal and everything under it. Subtrees go
// first so an interrupted delete never strands unreachable records. The
// farm counters are left untouched: removing an animal does not undo the
// consumption and production it already reported.
func (s *AnimalService) DeleteAnimal(ctx context.Context, farmID, userID, animalID string) error {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return err
	}
	if _, err := s.animals.Get(ctx, farmID, animalID); err != nil {
		return err
	}
	subtrees := []string{
		repository.SubtreeRecords,
		repository.SubtreeHealthEvents,
		repository.SubtreeVaccinations,
	}
	for _, subtree := range subtrees {
		for {
			n, err := s.animals.PurgeSubtree(ctx, farmID, animalID, subtree, purgeBatchSize)
			if err != nil {
				return &domain.PartialFailureError{Op: "delete_animal", Step: "purge_" + subtree, Err: err}
			}
			if n == 0 {
				break
			}
		}
	}
	return s.animals.Delete(ctx, farmID, animalID)
}

// SubmitDailyRecord stores the record under its date and feeds its full
// contribution into the farm counters: feed consumed decrements, milk
// produced increments. Resubmitting a date overwrites the stored record
// but contributes again in full; earlier contributions are not backed out.
func (s *AnimalService) SubmitDailyRecord(ctx context.Context, farmID, userID, animalID string, r *domain.DailyRecord) error {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return err
	}
	if _, err := s.animals.Get(ctx, farmID, animalID); err != nil {
		return err
	}
	if err := s.animals.UpsertRecord(ctx, farmID, animalID, r); err != nil {
		return err
	}

	milk := 0.0
	if r.Milk != nil {
		milk = *r.Milk
	}
	if err := s.stock.ApplyRecordDelta(ctx, farmID, -r.Feed, milk); err != nil {
		return &domain.PartialFailureError{Op: "submit_daily_record", Step: "apply_stock_delta", Err: err}
	}
	return nil
}

func (s *AnimalService) GetDailyRecord(ctx context.Context, farmID, userID, animalID string, date time.Time) (*domain.DailyRecord, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.animals.GetRecord(ctx, farmID, animalID, date)
}

func (s *AnimalService) ListDailyRecords(ctx context.Context, farmID, userID, animalID string) ([]*domain.DailyRecord, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.animals.ListRecords(ctx, farmID, animalID)
}

// RecordHealthEvent appends to the animal's health log.
func (s *AnimalService) RecordHealthEvent(ctx context.Context, farmID, userID, animalID string, e *domain.HealthEvent) (*domain.HealthEvent, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	if _, err := s.animals.Get(ctx, farmID, animalID); err != nil {
		return nil, err
	}
	e.ID = fmt.Sprintf("health-%d", s.now().UnixNano())
	e.CreatedAt = s.now()
	if err := s.animals.AppendHealthEvent(ctx, farmID, animalID, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *AnimalService) ListHealthEvents(ctx context.Context, farmID, userID, animalID string) ([]*domain.HealthEvent, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.animals.ListHealthEvents(ctx, farmID, animalID)
}

// RecordVaccination appends to the animal's vaccination log.
func (s *AnimalService) RecordVaccination(ctx context.Context, farmID, userID, animalID string, v *domain.VaccinationRecord) (*domain.VaccinationRecord, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	if _, err := s.animals.Get(ctx, farmID, animalID); err != nil {
		return nil, err
	}
	v.ID = fmt.Sprintf("vacc-%d", s.now().UnixNano())
	v.CreatedAt = s.now()
	if err := s.animals.AppendVaccination(ctx, farmID, animalID, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *AnimalService) ListVaccinations(ctx context.Context, farmID, userID, animalID string) ([]*domain.VaccinationRecord, error) {
	if err := s.farms.RequireMember(ctx, farmID, userID); err != nil {
		return nil, err
	}
	return s.animals.ListVaccinations(ctx, farmID, animalID)
}
