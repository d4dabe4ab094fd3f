package wells

import "errors"

// MaxBasisPoints is one hundred percent.
const MaxBasisPoints = 10000

var (
	// ErrEmptyWellID is returned when a well id is missing.
	ErrEmptyWellID = errors.New("wells: empty well id")
	// ErrWellNotFound is returned when a well id is unknown.
	ErrWellNotFound = errors.New("wells: well not found")
	// ErrInvalidRole is returned for an unknown membership role.
	ErrInvalidRole = errors.New("wells: invalid role")
	// ErrInvalidShare is returned when share basis points fall outside 0-10000.
	ErrInvalidShare = errors.New("wells: invalid share basis points")
	// ErrInvestorSharesExceeded is returned when investor shares for a well
	// would exceed 10000 basis points.
	ErrInvestorSharesExceeded = errors.New("wells: investor shares exceed 10000 bps")
)

// ValidateMembership checks role and share bounds.
func ValidateMembership(m Membership) error {
	if m.WellID == "" {
		return ErrEmptyWellID
	}
	if !ValidRole(m.Role) {
		return ErrInvalidRole
	}
	if m.ShareBasisPoints < 0 || m.ShareBasisPoints > MaxBasisPoints {
		return ErrInvalidShare
	}
	return nil
}
