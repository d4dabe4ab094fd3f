package settlement

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Status is the settlement lifecycle state.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusExecuted  Status = "EXECUTED"
	StatusRejected  Status = "REJECTED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// Settlement is one computed revenue-distribution unit for a well and period.
// Owned exclusively by the well; mutated only through the state machine.
type Settlement struct {
	id                string
	wellID            string
	period            Period
	usageTotal        int64
	grossRevenueMinor int64
	status            Status
	rejectReason      string
	createdAt         time.Time
	updatedAt         time.Time

	isNew bool
}

// NewSettlement creates a REQUESTED settlement.
func NewSettlement(wellID string, period Period, usageTotal, grossRevenueMinor int64, now time.Time) (*Settlement, error) {
	if wellID == "" {
		return nil, ErrEmptyWellID
	}
	if period.Start.IsZero() || period.End.IsZero() {
		return nil, ErrInvalidPeriod
	}
	if usageTotal < 0 || grossRevenueMinor < 0 {
		return nil, ErrNegativeValue
	}
	return &Settlement{
		id:                newSettlementID(),
		wellID:            wellID,
		period:            period,
		usageTotal:        usageTotal,
		grossRevenueMinor: grossRevenueMinor,
		status:            StatusRequested,
		createdAt:         now.UTC(),
		updatedAt:         now.UTC(),
		isNew:             true,
	}, nil
}

// Rehydrate rebuilds a settlement from persisted state.
func Rehydrate(id, wellID string, period Period, usageTotal, grossRevenueMinor int64, status Status, rejectReason string, createdAt, updatedAt time.Time) *Settlement {
	return &Settlement{
		id:                id,
		wellID:            wellID,
		period:            period,
		usageTotal:        usageTotal,
		grossRevenueMinor: grossRevenueMinor,
		status:            status,
		rejectReason:      rejectReason,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// Approve transitions REQUESTED -> APPROVED.
func (s *Settlement) Approve(now time.Time) error {
	if s.status != StatusRequested {
		return ErrInvalidState
	}
	s.status = StatusApproved
	s.updatedAt = now.UTC()
	return nil
}

// Reject transitions REQUESTED or APPROVED -> REJECTED.
func (s *Settlement) Reject(reason string, now time.Time) error {
	if s.status != StatusRequested && s.status != StatusApproved {
		return ErrInvalidState
	}
	s.status = StatusRejected
	s.rejectReason = reason
	s.updatedAt = now.UTC()
	return nil
}

// EnsureExecutable fails unless the settlement is APPROVED. Checked before
// payouts are materialized so an illegal execute creates nothing.
func (s *Settlement) EnsureExecutable() error {
	if s.status != StatusApproved {
		return ErrInvalidState
	}
	return nil
}

// MarkExecuted transitions APPROVED -> EXECUTED. Callers must hold durable
// payout records before this point.
func (s *Settlement) MarkExecuted(now time.Time) error {
	if s.status != StatusApproved {
		return ErrInvalidState
	}
	s.status = StatusExecuted
	s.updatedAt = now.UTC()
	return nil
}

// ID returns the settlement identity.
func (s *Settlement) ID() string { return s.id }

// WellID returns the owning well.
func (s *Settlement) WellID() string { return s.wellID }

// Period returns the settlement window.
func (s *Settlement) Period() Period { return s.period }

// UsageTotal returns the summed volume units over the window.
func (s *Settlement) UsageTotal() int64 { return s.usageTotal }

// GrossRevenueMinor returns gross revenue in integer minor units.
func (s *Settlement) GrossRevenueMinor() int64 { return s.grossRevenueMinor }

// Status returns the current lifecycle state.
func (s *Settlement) Status() Status { return s.status }

// RejectReason returns the recorded rejection reason, if any.
func (s *Settlement) RejectReason() string { return s.rejectReason }

// CreatedAt returns the creation time.
func (s *Settlement) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last transition time.
func (s *Settlement) UpdatedAt() time.Time { return s.updatedAt }

// IsNew reports whether the aggregate was freshly created.
func (s *Settlement) IsNew() bool { return s.isNew }

// MarkPersisted marks the aggregate as persisted.
func (s *Settlement) MarkPersisted() {
	if s != nil {
		s.isNew = false
	}
}

// Clone returns a detached copy marked as persisted.
func (s *Settlement) Clone() *Settlement {
	if s == nil {
		return nil
	}
	copied := *s
	copied.isNew = false
	return &copied
}

func newSettlementID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "stl-" + hex.EncodeToString(buf)
}
