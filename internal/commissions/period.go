package commissions

import (
	"time"

	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

const isoDate = "2006-01-02"

// Period is an inclusive range of calendar days in UTC.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod normalises both bounds to UTC midnight.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: day(start), End: day(end)}
}

// ParsePeriod reads two YYYY-MM-DD dates.
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(isoDate, start)
	if err != nil {
		return Period{}, pkgerrors.New(pkgerrors.CodeValidation, "period start must be YYYY-MM-DD")
	}
	e, err := time.Parse(isoDate, end)
	if err != nil {
		return Period{}, pkgerrors.New(pkgerrors.CodeValidation, "period end must be YYYY-MM-DD")
	}
	p := NewPeriod(s, e)
	return p, p.Validate()
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "period start and end required")
	}
	if p.End.Before(p.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "period end is before its start")
	}
	return nil
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.Start.After(other.End) && !other.Start.After(p.End)
}

// Bounds returns the half-open instant range [start, end+1day).
func (p Period) Bounds() (time.Time, time.Time) {
	return p.Start, p.End.AddDate(0, 0, 1)
}

// Key identifies the period in lock names and log lines.
func (p Period) Key() string {
	return p.Start.Format(isoDate) + ":" + p.End.Format(isoDate)
}

func day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
