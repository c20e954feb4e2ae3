package domain

import "context"

// User is the per-account record this core maintains membership state on.
// Users are created by the external authentication layer on first sign-in;
// this core mutates Farms and CurrentFarm but never deletes the record.
type User struct {
	ID          string
	Farms       []string // set of farm ids, order irrelevant
	CurrentFarm string   // empty = no farm selected; must be in Farms otherwise
}

// HasFarm reports whether farmID is in the user's membership set.
func (u *User) HasFarm(farmID string) bool {
	for _, id := range u.Farms {
		if id == farmID {
			return true
		}
	}
	return false
}

// UserRepository defines data access for user membership state.
type UserRepository interface {
	Get(ctx context.Context, id string) (*User, error)
	// AttachFarm adds farmID to the user's farm set and points CurrentFarm
	// at it, creating the user document if it does not exist yet. Both
	// mutations use atomic field updates, so re-running is a no-op.
	AttachFarm(ctx context.Context, userID, farmID string) error
	// DetachFarm removes farmID from the user's farm set. If CurrentFarm
	// pointed at farmID it is cleared, never auto-reassigned.
	DetachFarm(ctx context.Context, userID, farmID string) error
	SetCurrentFarm(ctx context.Context, userID, farmID string) error
	// ListReferencing returns every user whose farm set contains farmID.
	ListReferencing(ctx context.Context, farmID string) ([]*User, error)
	// ListAll returns every user document; the reaper scans these for
	// pointers at farms that no longer exist.
	ListAll(ctx context.Context) ([]*User, error)
	// RepairAfterDelete removes farmID from every referencing user in one
	// batched write, reassigning CurrentFarm to an arbitrary remaining farm
	// or clearing it. Safe to re-run; a second pass matches nobody.
	RepairAfterDelete(ctx context.Context, farmID string) (int, error)
}
