package repository

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
)

// dateKey is the record document key format, one document per calendar day.
const dateKey = "2006-01-02"

// AnimalRepository implements domain.AnimalRepository on the document store.
type AnimalRepository struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewAnimalRepository creates a new animal repository.
func NewAnimalRepository(store docstore.Store, logger *slog.Logger) *AnimalRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnimalRepository{store: store, logger: logger}
}

func (r *AnimalRepository) Create(ctx context.Context, farmID string, a *domain.Animal) error {
	doc := docstore.Document{
		"animalId":    a.ID,
		"name":        a.Name,
		"breed":       a.Breed,
		"type":        string(a.Type),
		"dateOfBirth": encodeTime(a.DateOfBirth),
		"notes":       a.Notes,
		"status":      a.Status,
	}
	return mapStoreErr(r.store.Create(ctx, colAnimals(farmID), a.ID, doc))
}

func (r *AnimalRepository) Get(ctx context.Context, farmID, animalID string) (*domain.Animal, error) {
	doc, err := r.store.Get(ctx, colAnimals(farmID), animalID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return decodeAnimal(animalID, doc), nil
}

func (r *AnimalRepository) List(ctx context.Context, farmID string) ([]*domain.Animal, error) {
	matches, err := r.store.List(ctx, colAnimals(farmID))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.Animal, 0, len(matches))
	for _, m := range matches {
		out = append(out, decodeAnimal(m.Key, m.Doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AnimalRepository) ListIDs(ctx context.Context, farmID string) ([]string, error) {
	ids, err := r.store.Keys(ctx, colAnimals(farmID), 0)
	return ids, mapStoreErr(err)
}

func (r *AnimalRepository) Delete(ctx context.Context, farmID, animalID string) error {
	return mapStoreErr(r.store.Delete(ctx, colAnimals(farmID), animalID))
}

func (r *AnimalRepository) SetStatus(ctx context.Context, farmID, animalID string, status []string) error {
	return mapStoreErr(r.store.Apply(ctx, colAnimals(farmID), animalID,
		docstore.Set("status", status),
	))
}

func (r *AnimalRepository) UpsertRecord(ctx context.Context, farmID, animalID string, rec *domain.DailyRecord) error {
	doc := docstore.Document{
		"date":   encodeTime(rec.Date),
		"weight": rec.Weight,
		"feed":   rec.Feed,
		"health": rec.Health,
		"notes":  rec.Notes,
	}
	if rec.Milk != nil {
		doc["milk"] = *rec.Milk
	} else {
		doc["milk"] = nil
	}
	col := colAnimalSubtree(farmID, animalID, SubtreeRecords)
	return mapStoreErr(r.store.Set(ctx, col, rec.Date.UTC().Format(dateKey), doc))
}

func (r *AnimalRepository) GetRecord(ctx context.Context, farmID, animalID string, date time.Time) (*domain.DailyRecord, error) {
	col := colAnimalSubtree(farmID, animalID, SubtreeRecords)
	doc, err := r.store.Get(ctx, col, date.UTC().Format(dateKey))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return decodeRecord(doc), nil
}

func (r *AnimalRepository) ListRecords(ctx context.Context, farmID, animalID string) ([]*domain.DailyRecord, error) {
	col := colAnimalSubtree(farmID, animalID, SubtreeRecords)
	matches, err := r.store.List(ctx, col)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.DailyRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, decodeRecord(m.Doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *AnimalRepository) AppendHealthEvent(ctx context.Context, farmID, animalID string, e *domain.HealthEvent) error {
	doc := docstore.Document{
		"eventType": e.EventType,
		"eventDate": encodeTime(e.EventDate),
		"symptoms":  e.Symptoms,
		"diagnosis": e.Diagnosis,
		"treatment": e.Treatment,
		"notes":     e.Notes,
		"createdAt": encodeTime(e.CreatedAt),
	}
	col := colAnimalSubtree(farmID, animalID, SubtreeHealthEvents)
	return mapStoreErr(r.store.Set(ctx, col, e.ID, doc))
}

func (r *AnimalRepository) ListHealthEvents(ctx context.Context, farmID, animalID string) ([]*domain.HealthEvent, error) {
	col := colAnimalSubtree(farmID, animalID, SubtreeHealthEvents)
	matches, err := r.store.List(ctx, col)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.HealthEvent, 0, len(matches))
	for _, m := range matches {
		out = append(out, &domain.HealthEvent{
			ID:        m.Key,
			EventType: docString(m.Doc, "eventType"),
			EventDate: docTime(m.Doc, "eventDate"),
			Symptoms:  docString(m.Doc, "symptoms"),
			Diagnosis: docString(m.Doc, "diagnosis"),
			Treatment: docString(m.Doc, "treatment"),
			Notes:     docString(m.Doc, "notes"),
			CreatedAt: docTime(m.Doc, "createdAt"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.After(out[j].EventDate) })
	return out, nil
}

func (r *AnimalRepository) AppendVaccination(ctx context.Context, farmID, animalID string, v *domain.VaccinationRecord) error {
	doc := docstore.Document{
		"vaccineName":     v.VaccineName,
		"vaccinationDate": encodeTime(v.VaccinationDate),
		"administeredBy":  v.AdministeredBy,
		"batchNumber":     v.BatchNumber,
		"isBooster":       v.IsBooster,
		"notes":           v.Notes,
		"createdAt":       encodeTime(v.CreatedAt),
	}
	if v.NextDueDate != nil {
		doc["nextDueDate"] = encodeTime(*v.NextDueDate)
	}
	col := colAnimalSubtree(farmID, animalID, SubtreeVaccinations)
	return mapStoreErr(r.store.Set(ctx, col, v.ID, doc))
}

func (r *AnimalRepository) ListVaccinations(ctx context.Context, farmID, animalID string) ([]*domain.VaccinationRecord, error) {
	col := colAnimalSubtree(farmID, animalID, SubtreeVaccinations)
	matches, err := r.store.List(ctx, col)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.VaccinationRecord, 0, len(matches))
	for _, m := range matches {
		v := &domain.VaccinationRecord{
			ID:              m.Key,
			VaccineName:     docString(m.Doc, "vaccineName"),
			VaccinationDate: docTime(m.Doc, "vaccinationDate"),
			AdministeredBy:  docString(m.Doc, "administeredBy"),
			BatchNumber:     docString(m.Doc, "batchNumber"),
			IsBooster:       docBool(m.Doc, "isBooster"),
			Notes:           docString(m.Doc, "notes"),
			CreatedAt:       docTime(m.Doc, "createdAt"),
		}
		if due := docTime(m.Doc, "nextDueDate"); !due.IsZero() {
			v.NextDueDate = &due
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VaccinationDate.After(out[j].VaccinationDate) })
	return out, nil
}

// PurgeSubtree deletes one bounded batch from the subtree. The cascade
// engine loops this until it reports zero, because a single batch write has
// a size ceiling and the collection may be arbitrarily large.
func (r *AnimalRepository) PurgeSubtree(ctx context.Context, farmID, animalID, subtree string, limit int) (int, error) {
	if limit <= 0 || limit > docstore.MaxBatchSize {
		limit = docstore.MaxBatchSize
	}
	col := colAnimalSubtree(farmID, animalID, subtree)
	keys, err := r.store.Keys(ctx, col, limit)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	writes := make([]docstore.Write, 0, len(keys))
	for _, key := range keys {
		writes = append(writes, docstore.Write{Kind: docstore.WriteDelete, Collection: col, Key: key})
	}
	if err := r.store.BatchWrite(ctx, writes); err != nil {
		return 0, mapStoreErr(err)
	}
	return len(keys), nil
}

func decodeAnimal(id string, doc docstore.Document) *domain.Animal {
	return &domain.Animal{
		ID:          id,
		Name:        docString(doc, "name"),
		Breed:       docString(doc, "breed"),
		Type:        domain.AnimalType(docString(doc, "type")),
		DateOfBirth: docTime(doc, "dateOfBirth"),
		Notes:       docString(doc, "notes"),
		Status:      docStrings(doc, "status"),
	}
}

func decodeRecord(doc docstore.Document) *domain.DailyRecord {
	rec := &domain.DailyRecord{
		Date:   docTime(doc, "date"),
		Weight: docFloat(doc, "weight"),
		Feed:   docFloat(doc, "feed"),
		Health: docString(doc, "health"),
		Notes:  docString(doc, "notes"),
	}
	if v, ok := doc["milk"].(float64); ok {
		rec.Milk = &v
	}
	return rec
}

var _ domain.AnimalRepository = (*AnimalRepository)(nil)
