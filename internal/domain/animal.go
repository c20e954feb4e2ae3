package domain

import (
	"context"
	"time"
)

// AnimalType enumerates what an animal is kept for.
type AnimalType string

const (
	AnimalDairy AnimalType = "dairy"
	AnimalBeef  AnimalType = "beef"
)

// Known status tags. The set is open; the UI may introduce more.
const (
	StatusHealthy    = "healthy"
	StatusSick       = "sick"
	StatusInjured    = "injured"
	StatusPregnant   = "pregnant"
	StatusRecovering = "recovering"
)

// Animal is owned by exactly one farm. Its id is farm-scoped and
// human-readable (cow-001, cow-002, ...), reusing the lowest free number.
type Animal struct {
	ID          string
	Name        string
	Breed       string
	Type        AnimalType
	DateOfBirth time.Time
	Notes       string
	Status      []string
}

// DailyRecord is one date-keyed entry in an animal's record subtree.
// Writing the same date again overwrites the previous entry.
type DailyRecord struct {
	Date   time.Time
	Weight float64
	Feed   float64  // kg consumed that day
	Milk   *float64 // litres produced; nil for beef animals
	Health string
	Notes  string
}

// HealthEvent is one entry of an animal's append-only health log.
type HealthEvent struct {
	ID        string
	EventType string
	EventDate time.Time
	Symptoms  string
	Diagnosis string
	Treatment string
	Notes     string
	CreatedAt time.Time
}

// VaccinationRecord is one entry of an animal's append-only vaccination log.
type VaccinationRecord struct {
	ID              string
	VaccineName     string
	VaccinationDate time.Time
	AdministeredBy  string
	BatchNumber     string
	NextDueDate     *time.Time
	IsBooster       bool
	Notes           string
	CreatedAt       time.Time
}

// AnimalRepository defines data access for animals and their subtrees.
type AnimalRepository interface {
	Create(ctx context.Context, farmID string, a *Animal) error
	Get(ctx context.Context, farmID, animalID string) (*Animal, error)
	List(ctx context.Context, farmID string) ([]*Animal, error)
	ListIDs(ctx context.Context, farmID string) ([]string, error)
	Delete(ctx context.Context, farmID, animalID string) error
	SetStatus(ctx context.Context, farmID, animalID string, status []string) error

	// UpsertRecord writes the record under its date key, overwriting any
	// existing entry for that day.
	UpsertRecord(ctx context.Context, farmID, animalID string, r *DailyRecord) error
	GetRecord(ctx context.Context, farmID, animalID string, date time.Time) (*DailyRecord, error)
	ListRecords(ctx context.Context, farmID, animalID string) ([]*DailyRecord, error)

	AppendHealthEvent(ctx context.Context, farmID, animalID string, e *HealthEvent) error
	ListHealthEvents(ctx context.Context, farmID, animalID string) ([]*HealthEvent, error)
	AppendVaccination(ctx context.Context, farmID, animalID string, v *VaccinationRecord) error
	ListVaccinations(ctx context.Context, farmID, animalID string) ([]*VaccinationRecord, error)

	// PurgeSubtree deletes up to limit documents from one of the animal's
	// subtrees ("records", "health_events", "vaccinations") and reports how
	// many were removed. Callers loop until it returns zero.
	PurgeSubtree(ctx context.Context, farmID, animalID, subtree string, limit int) (int, error)
}
