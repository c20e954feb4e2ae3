package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
)

// FarmRepository implements domain.FarmRepository on the document store.
type FarmRepository struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewFarmRepository creates a new farm repository.
func NewFarmRepository(store docstore.Store, logger *slog.Logger) *FarmRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmRepository{store: store, logger: logger}
}

func (r *FarmRepository) Create(ctx context.Context, farm *domain.Farm) error {
	doc := docstore.Document{
		"farmId":    farm.ID,
		"farmName":  farm.Name,
		"owner":     farm.Owner,
		"members":   farm.Members,
		"joinCode":  farm.JoinCode,
		"createdAt": encodeTime(farm.CreatedAt),
	}
	return mapStoreErr(r.store.Create(ctx, colFarms, farm.ID, doc))
}

func (r *FarmRepository) Get(ctx context.Context, id string) (*domain.Farm, error) {
	doc, err := r.store.Get(ctx, colFarms, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return decodeFarm(id, doc), nil
}

func (r *FarmRepository) GetByJoinCode(ctx context.Context, code string) (*domain.Farm, error) {
	matches, err := r.store.Query(ctx, colFarms, "joinCode", code)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no farm with join code", domain.ErrNotFound)
	}
	return decodeFarm(matches[0].Key, matches[0].Doc), nil
}

func (r *FarmRepository) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := r.store.Keys(ctx, colFarms, 0)
	return ids, mapStoreErr(err)
}

func (r *FarmRepository) ListDeleting(ctx context.Context) ([]string, error) {
	matches, err := r.store.Query(ctx, colFarms, "deleting", "true")
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Key)
	}
	return out, nil
}

func (r *FarmRepository) MarkDeleting(ctx context.Context, id string) error {
	return mapStoreErr(r.store.Apply(ctx, colFarms, id, docstore.Set("deleting", true)))
}

func (r *FarmRepository) Delete(ctx context.Context, id string) error {
	return mapStoreErr(r.store.Delete(ctx, colFarms, id))
}

func (r *FarmRepository) AddMember(ctx context.Context, farmID, userID string) error {
	return mapStoreErr(r.store.Apply(ctx, colFarms, farmID, docstore.AddToSet("members", userID)))
}

func (r *FarmRepository) RemoveMember(ctx context.Context, farmID, userID string) error {
	return mapStoreErr(r.store.Apply(ctx, colFarms, farmID, docstore.RemoveFromSet("members", userID)))
}

// ReserveJoinCode claims the code with a create-if-absent write on a
// dedicated collection keyed by the code itself. This closes the window
// between the uniqueness query and the farm root write: of two concurrent
// creates drawing the same candidate, exactly one reservation wins.
func (r *FarmRepository) ReserveJoinCode(ctx context.Context, code, farmID string) error {
	err := r.store.Create(ctx, colJoinCodes, code, docstore.Document{"farmId": farmID})
	if errors.Is(err, docstore.ErrExists) {
		// Re-reserving our own code is a no-op so create retries stay safe.
		existing, getErr := r.store.Get(ctx, colJoinCodes, code)
		if getErr == nil && docString(existing, "farmId") == farmID {
			return nil
		}
	}
	return mapStoreErr(err)
}

// BindJoinCode rewrites the farm id an existing reservation points at.
func (r *FarmRepository) BindJoinCode(ctx context.Context, code, farmID string) error {
	return mapStoreErr(r.store.Apply(ctx, colJoinCodes, code, docstore.Set("farmId", farmID)))
}

func (r *FarmRepository) ReleaseJoinCode(ctx context.Context, code string) error {
	return mapStoreErr(r.store.Delete(ctx, colJoinCodes, code))
}

func (r *FarmRepository) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.store.Get(ctx, colJoinCodes, code)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreErr(err)
	}
	return true, nil
}

var _ domain.FarmRepository = (*FarmRepository)(nil)

func decodeFarm(id string, doc docstore.Document) *domain.Farm {
	return &domain.Farm{
		ID:        id,
		Name:      docString(doc, "farmName"),
		Owner:     docString(doc, "owner"),
		Members:   docStrings(doc, "members"),
		JoinCode:  docString(doc, "joinCode"),
		CreatedAt: docTime(doc, "createdAt"),
		Deleting:  docBool(doc, "deleting"),
	}
}
