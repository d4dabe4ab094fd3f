package wells

import (
	"context"
	"time"
)

// Well is one registered water well on the platform.
type Well struct {
	ID           string
	Name         string
	Location     string
	TopicID      string
	TokenID      string
	TreasuryAcct string
	CreatedAt    time.Time
}

// Role classifies a membership's claim on well revenue.
type Role string

const (
	RoleOperator Role = "OPERATOR"
	RoleInvestor Role = "INVESTOR"
	RolePlatform Role = "PLATFORM"
)

// ValidRole reports whether the role is one of the known roles.
func ValidRole(role Role) bool {
	switch role {
	case RoleOperator, RoleInvestor, RolePlatform:
		return true
	}
	return false
}

// Membership is one ownership share of a well. Position preserves insertion
// order; payout remainder tie-breaks depend on it being stable.
type Membership struct {
	WellID           string
	UserID           string
	Account          string
	Role             Role
	ShareBasisPoints int
	Position         int
	CreatedAt        time.Time
}

// Repository persists wells and memberships.
type Repository interface {
	CreateWell(ctx context.Context, well Well) error
	GetWell(ctx context.Context, wellID string) (*Well, error)
	ListWells(ctx context.Context) ([]Well, error)
	// AddMembership appends a membership; for INVESTOR roles the well's
	// investor share total must stay at or below MaxBasisPoints.
	AddMembership(ctx context.Context, membership Membership) error
	// ListMemberships returns memberships in insertion order.
	ListMemberships(ctx context.Context, wellID string) ([]Membership, error)
}
