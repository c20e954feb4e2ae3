package repository

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
)

// MetaRepository implements domain.MetaRepository: the farm metadata
// subtree holding profile, breed catalog, stock ledger and stock history.
type MetaRepository struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewMetaRepository creates a new metadata repository.
func NewMetaRepository(store docstore.Store, logger *slog.Logger) *MetaRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetaRepository{store: store, logger: logger, now: time.Now}
}

func (r *MetaRepository) CreateProfile(ctx context.Context, farmID string, p *domain.Profile) error {
	doc := docstore.Document{
		"farmName":  p.FarmName,
		"location":  p.Location,
		"joinCode":  p.JoinCode,
		"createdAt": encodeTime(p.CreatedAt),
	}
	return mapStoreErr(r.store.Set(ctx, colMeta(farmID), metaKeyInformation, doc))
}

func (r *MetaRepository) GetProfile(ctx context.Context, farmID string) (*domain.Profile, error) {
	doc, err := r.store.Get(ctx, colMeta(farmID), metaKeyInformation)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &domain.Profile{
		FarmName:  docString(doc, "farmName"),
		Location:  docString(doc, "location"),
		JoinCode:  docString(doc, "joinCode"),
		CreatedAt: docTime(doc, "createdAt"),
	}, nil
}

func (r *MetaRepository) SaveProfile(ctx context.Context, farmID string, p *domain.Profile) error {
	// Name and location are the caller-editable fields; join code and
	// creation time stay owned by the lifecycle flow.
	return mapStoreErr(r.store.Apply(ctx, colMeta(farmID), metaKeyInformation,
		docstore.Set("farmName", p.FarmName),
		docstore.Set("location", p.Location),
	))
}

func (r *MetaRepository) AddBreed(ctx context.Context, farmID string, b *domain.Breed) error {
	doc := docstore.Document{
		"name":        b.Name,
		"description": b.Description,
	}
	return mapStoreErr(r.store.Set(ctx, colBreeds(farmID), b.ID, doc))
}

func (r *MetaRepository) ListBreeds(ctx context.Context, farmID string) ([]*domain.Breed, error) {
	matches, err := r.store.List(ctx, colBreeds(farmID))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.Breed, 0, len(matches))
	for _, m := range matches {
		out = append(out, &domain.Breed{
			ID:          m.Key,
			Name:        docString(m.Doc, "name"),
			Description: docString(m.Doc, "description"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MetaRepository) RemoveBreed(ctx context.Context, farmID, breedID string) error {
	return mapStoreErr(r.store.Delete(ctx, colBreeds(farmID), breedID))
}

func (r *MetaRepository) InitLedger(ctx context.Context, farmID string) error {
	err := r.store.Create(ctx, colMeta(farmID), metaKeyStats, docstore.Document{
		"totalFeed":   0.0,
		"totalMilk":   0.0,
		"lastUpdated": encodeTime(r.now()),
	})
	if errors.Is(err, docstore.ErrExists) {
		return nil
	}
	return mapStoreErr(err)
}

func (r *MetaRepository) GetLedger(ctx context.Context, farmID string) (*domain.StockLedger, error) {
	doc, err := r.store.Get(ctx, colMeta(farmID), metaKeyStats)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return &domain.StockLedger{
		TotalFeed:   docFloat(doc, "totalFeed"),
		TotalMilk:   docFloat(doc, "totalMilk"),
		LastUpdated: docTime(doc, "lastUpdated"),
	}, nil
}

// ApplyDelta rides the store's atomic increment so concurrent submissions
// for different animals on the same farm never lose updates.
func (r *MetaRepository) ApplyDelta(ctx context.Context, farmID string, feedDelta, milkDelta float64) error {
	return mapStoreErr(r.store.Apply(ctx, colMeta(farmID), metaKeyStats,
		docstore.Increment("totalFeed", feedDelta),
		docstore.Increment("totalMilk", milkDelta),
		docstore.Set("lastUpdated", encodeTime(r.now())),
	))
}

func (r *MetaRepository) SetAbsolute(ctx context.Context, farmID, kind string, value float64) error {
	return mapStoreErr(r.store.Apply(ctx, colMeta(farmID), metaKeyStats,
		docstore.Set(kind, value),
		docstore.Set("lastUpdated", encodeTime(r.now())),
	))
}

func (r *MetaRepository) AppendSnapshot(ctx context.Context, farmID string, s *domain.StockSnapshot) error {
	key := encodeTime(s.TakenAt)
	doc := docstore.Document{
		"totalFeed": s.TotalFeed,
		"totalMilk": s.TotalMilk,
		"takenAt":   key,
	}
	return mapStoreErr(r.store.Set(ctx, colStockHistory(farmID), key, doc))
}

func (r *MetaRepository) ListSnapshots(ctx context.Context, farmID string, limit int) ([]*domain.StockSnapshot, error) {
	matches, err := r.store.List(ctx, colStockHistory(farmID))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.StockSnapshot, 0, len(matches))
	for _, m := range matches {
		out = append(out, &domain.StockSnapshot{
			TotalFeed: docFloat(m.Doc, "totalFeed"),
			TotalMilk: docFloat(m.Doc, "totalMilk"),
			TakenAt:   docTime(m.Doc, "takenAt"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Purge removes one bounded batch of metadata documents: the breed catalog
// first, then stock history, then the profile and ledger documents
// themselves. Looped by the cascade engine until it reports zero.
func (r *MetaRepository) Purge(ctx context.Context, farmID string, limit int) (int, error) {
	if limit <= 0 || limit > docstore.MaxBatchSize {
		limit = docstore.MaxBatchSize
	}
	for _, col := range []string{colBreeds(farmID), colStockHistory(farmID), colMeta(farmID)} {
		keys, err := r.store.Keys(ctx, col, limit)
		if err != nil {
			return 0, mapStoreErr(err)
		}
		if len(keys) == 0 {
			continue
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
	return 0, nil
}

var _ domain.MetaRepository = (*MetaRepository)(nil)
