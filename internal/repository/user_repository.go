package repository

import (
	"context"
	"log/slog"

	"github.com/herdsphere/herdsphere/internal/docstore"
	"github.com/herdsphere/herdsphere/internal/domain"
)

// UserRepository implements domain.UserRepository on the document store.
// It only touches the membership fields; everything else on the user
// document belongs to the external authentication layer.
type UserRepository struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(store docstore.Store, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{store: store, logger: logger}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.store.Get(ctx, colUsers, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return decodeUser(id, doc), nil
}

func (r *UserRepository) AttachFarm(ctx context.Context, userID, farmID string) error {
	return mapStoreErr(r.store.Apply(ctx, colUsers, userID,
		docstore.AddToSet("farms", farmID),
		docstore.Set("currentFarm", farmID),
	))
}

func (r *UserRepository) DetachFarm(ctx context.Context, userID, farmID string) error {
	user, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}
	ops := []docstore.FieldOp{docstore.RemoveFromSet("farms", farmID)}
	if user.CurrentFarm == farmID {
		// Deliberate per-user leave: clear the pointer, let the UI prompt
		// for the next farm instead of picking one.
		ops = append(ops, docstore.Set("currentFarm", nil))
	}
	return mapStoreErr(r.store.Apply(ctx, colUsers, userID, ops...))
}

func (r *UserRepository) SetCurrentFarm(ctx context.Context, userID, farmID string) error {
	return mapStoreErr(r.store.Apply(ctx, colUsers, userID, docstore.Set("currentFarm", farmID)))
}

func (r *UserRepository) ListReferencing(ctx context.Context, farmID string) ([]*domain.User, error) {
	matches, err := r.store.QueryContains(ctx, colUsers, "farms", farmID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.User, 0, len(matches))
	for _, m := range matches {
		out = append(out, decodeUser(m.Key, m.Doc))
	}
	return out, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	matches, err := r.store.List(ctx, colUsers)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]*domain.User, 0, len(matches))
	for _, m := range matches {
		out = append(out, decodeUser(m.Key, m.Doc))
	}
	return out, nil
}

// RepairAfterDelete rewrites every user that still references the deleted
// farm, in one batched write. Unlike leave, the pointer is reassigned to an
// arbitrary remaining farm: the user did not choose to lose this farm, so
// they should land somewhere valid.
func (r *UserRepository) RepairAfterDelete(ctx context.Context, farmID string) (int, error) {
	users, err := r.ListReferencing(ctx, farmID)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	writes := make([]docstore.Write, 0, len(users))
	for _, u := range users {
		var kept []string
		for _, id := range u.Farms {
			if id != farmID {
				kept = append(kept, id)
			}
		}
		ops := []docstore.FieldOp{docstore.RemoveFromSet("farms", farmID)}
		if u.CurrentFarm == farmID {
			if len(kept) > 0 {
				ops = append(ops, docstore.Set("currentFarm", kept[0]))
			} else {
				ops = append(ops, docstore.Set("currentFarm", nil))
			}
		}
		writes = append(writes, docstore.Write{
			Kind:       docstore.WriteUpdate,
			Collection: colUsers,
			Key:        u.ID,
			Ops:        ops,
		})
	}

	if err := r.batchInChunks(ctx, writes); err != nil {
		return 0, err
	}
	r.logger.Info("repaired user references",
		slog.String("farm_id", farmID),
		slog.Int("users", len(users)),
	)
	return len(users), nil
}

func (r *UserRepository) batchInChunks(ctx context.Context, writes []docstore.Write) error {
	for len(writes) > 0 {
		n := len(writes)
		if n > docstore.MaxBatchSize {
			n = docstore.MaxBatchSize
		}
		if err := r.store.BatchWrite(ctx, writes[:n]); err != nil {
			return mapStoreErr(err)
		}
		writes = writes[n:]
	}
	return nil
}

func decodeUser(id string, doc docstore.Document) *domain.User {
	return &domain.User{
		ID:          id,
		Farms:       docStrings(doc, "farms"),
		CurrentFarm: docString(doc, "currentFarm"),
	}
}

var _ domain.UserRepository = (*UserRepository)(nil)
