package domain

import (
	"context"
	"time"
)

// Farm is the tenant root: the top-level ownership and isolation boundary
// for all animal and stock data.
type Farm struct {
	ID        string
	Name      string
	Owner     string   // user id; always present in Members
	Members   []string // set of user ids, non-empty while the farm exists
	JoinCode  string   // unique across live farms
	CreatedAt time.Time
	Deleting  bool // set before a cascade starts so interrupted deletions can be resumed
}

// IsMember reports whether userID belongs to the farm.
func (f *Farm) IsMember(userID string) bool {
	for _, id := range f.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Profile is the farm metadata shown on the farm page.
type Profile struct {
	FarmName  string
	Location  string
	JoinCode  string
	CreatedAt time.Time
}

// Breed is a catalog entry in the farm's breed list.
type Breed struct {
	ID          string
	Name        string
	Description string
}

// StockLedger holds the farm-level aggregate counters. TotalFeed and
// TotalMilk are the running sum of every accepted delta since the last
// absolute override.
type StockLedger struct {
	TotalFeed   float64
	TotalMilk   float64
	LastUpdated time.Time
}

// StockSnapshot is one point of the append-only stock history, kept for
// trend display only; current counters never depend on it.
type StockSnapshot struct {
	TotalFeed float64
	TotalMilk float64
	TakenAt   time.Time
}

// FarmRepository defines data access for farm roots and join codes.
type FarmRepository interface {
	// Create writes the farm root. It fails with ErrConflict if a root with
	// the same id already exists.
	Create(ctx context.Context, farm *Farm) error
	Get(ctx context.Context, id string) (*Farm, error)
	GetByJoinCode(ctx context.Context, code string) (*Farm, error)
	// ListIDs returns the ids of all live farm roots.
	ListIDs(ctx context.Context) ([]string, error)
	// ListDeleting returns farms whose cascade was started but not finished.
	ListDeleting(ctx context.Context) ([]string, error)
	MarkDeleting(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	AddMember(ctx context.Context, farmID, userID string) error
	RemoveMember(ctx context.Context, farmID, userID string) error

	// ReserveJoinCode atomically claims code for farmID; ErrConflict if the
	// code is already held by a live farm.
	ReserveJoinCode(ctx context.Context, code, farmID string) error
	// BindJoinCode points an existing reservation at farmID. The create flow
	// uses it to follow the reservation across a farm-id reallocation.
	BindJoinCode(ctx context.Context, code, farmID string) error
	ReleaseJoinCode(ctx context.Context, code string) error
	// JoinCodeExists reports whether a reservation for code is present.
	JoinCodeExists(ctx context.Context, code string) (bool, error)
}

// MetaRepository defines data access for the farm metadata subtree:
// profile, breed catalog, stock ledger and stock history.
type MetaRepository interface {
	CreateProfile(ctx context.Context, farmID string, p *Profile) error
	GetProfile(ctx context.Context, farmID string) (*Profile, error)
	SaveProfile(ctx context.Context, farmID string, p *Profile) error

	AddBreed(ctx context.Context, farmID string, b *Breed) error
	ListBreeds(ctx context.Context, farmID string) ([]*Breed, error)
	RemoveBreed(ctx context.Context, farmID, breedID string) error

	// InitLedger writes a zeroed stock ledger; a no-op if one exists.
	InitLedger(ctx context.Context, farmID string) error
	GetLedger(ctx context.Context, farmID string) (*StockLedger, error)
	// ApplyDelta atomically increments the counters; never read-modify-write.
	ApplyDelta(ctx context.Context, farmID string, feedDelta, milkDelta float64) error
	// SetAbsolute overwrites one counter. Kind is "totalFeed" or "totalMilk".
	SetAbsolute(ctx context.Context, farmID, kind string, value float64) error

	AppendSnapshot(ctx context.Context, farmID string, s *StockSnapshot) error
	ListSnapshots(ctx context.Context, farmID string, limit int) ([]*StockSnapshot, error)

	// Purge deletes up to limit documents from the metadata subtree (breed
	// catalog, stock history, then profile and ledger) and reports how many
	// went. Callers loop until it returns zero.
	Purge(ctx context.Context, farmID string, limit int) (int, error)
}
