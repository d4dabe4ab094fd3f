package memory

import (
	"context"
	"sort"
	"sync"

	wells "watergrid-cloud/internal/wells/domain"
)

// Repository is an in-memory wells store used by tests and demo mode.
type Repository struct {
	mu          sync.RWMutex
	wells       map[string]wells.Well
	memberships map[string][]wells.Membership
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		wells:       make(map[string]wells.Well),
		memberships: make(map[string][]wells.Membership),
	}
}

// CreateWell registers a well.
func (r *Repository) CreateWell(ctx context.Context, well wells.Well) error {
	_ = ctx
	if well.ID == "" {
		return wells.ErrEmptyWellID
	}
	r.mu.Lock()
	r.wells[well.ID] = well
	r.mu.Unlock()
	return nil
}

// GetWell loads one well.
func (r *Repository) GetWell(ctx context.Context, wellID string) (*wells.Well, error) {
	_ = ctx
	r.mu.RLock()
	well, ok := r.wells[wellID]
	r.mu.RUnlock()
	if !ok {
		return nil, wells.ErrWellNotFound
	}
	return &well, nil
}

// ListWells returns wells sorted by id.
func (r *Repository) ListWells(ctx context.Context) ([]wells.Well, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]wells.Well, 0, len(r.wells))
	for _, well := range r.wells {
		result = append(result, well)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddMembership appends a membership for a registered well, enforcing the
// investor share cap.
func (r *Repository) AddMembership(ctx context.Context, membership wells.Membership) error {
	_ = ctx
	if err := wells.ValidateMembership(membership); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wells[membership.WellID]; !ok {
		return wells.ErrWellNotFound
	}
	if membership.Role == wells.RoleInvestor {
		total := membership.ShareBasisPoints
		for _, existing := range r.memberships[membership.WellID] {
			if existing.Role == wells.RoleInvestor {
				total += existing.ShareBasisPoints
			}
		}
		if total > wells.MaxBasisPoints {
			return wells.ErrInvestorSharesExceeded
		}
	}
	membership.Position = len(r.memberships[membership.WellID])
	r.memberships[membership.WellID] = append(r.memberships[membership.WellID], membership)
	return nil
}

// ListMemberships returns memberships in insertion order.
func (r *Repository) ListMemberships(ctx context.Context, wellID string) ([]wells.Membership, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	source := r.memberships[wellID]
	result := make([]wells.Membership, len(source))
	copy(result, source)
	return result, nil
}
