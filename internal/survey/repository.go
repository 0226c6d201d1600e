package survey

import (
	"context"
	"slices"
	"strings"
)

// Repository is the persistence contract for surveys.
//
// Save must be a compare-and-swap on Version: it succeeds only when the stored
// revision equals s.Version-1, and returns ErrConflict otherwise. Load returns
// ErrNotFound for unknown ids. No Delete is provided; surveys are never removed
// by the lifecycle.
type Repository interface {
	Create(ctx context.Context, s Survey) error
	Load(ctx context.Context, id string) (Survey, error)
	Save(ctx context.Context, s Survey) error
	List(ctx context.Context, f ListFilter) ([]Survey, error)
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status          Status
	OwnerCustomerID string
	Limit           int
}

func (f ListFilter) Match(s Survey) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.OwnerCustomerID != "" && s.OwnerCustomerID != f.OwnerCustomerID {
		return false
	}
	return true
}

// sortAndLimit orders surveys oldest first (ties by id) and applies f.Limit.
func sortAndLimit(out []Survey, f ListFilter) []Survey {
	slices.SortFunc(out, func(a, b Survey) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
