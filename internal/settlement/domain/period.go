package settlement

import "time"

// Period is a half-open settlement window, [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod validates and normalizes a settlement window to UTC.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps reports whether two half-open windows intersect.
func (p Period) Overlaps(other Period) bool {
	return p.Start.Before(other.End) && other.Start.Before(p.End)
}

// Key is the persisted representation of the period boundaries.
func (p Period) Key() string {
	return p.Start.UTC().Format(time.RFC3339) + "|" + p.End.UTC().Format(time.RFC3339)
}
