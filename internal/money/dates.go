package money

import (
	"errors"
	"time"
)

// ErrInvalidPeriod indicates a period whose end precedes its start.
var ErrInvalidPeriod = errors.New("money: period end before start")

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// DateOf strips the clock from t, keeping its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves t by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// AddMonthsClamped moves t by n calendar months. When the target month is shorter
// than t's day of month the result lands on the target month's last day.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(n), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddYearsClamped moves t by n years; Feb 29 becomes Feb 28 in non-leap years.
func AddYearsClamped(t time.Time, n int) time.Time {
	return AddMonthsClamped(t, 12*n)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateAfter reports whether a falls on a later calendar date than b.
func DateAfter(a, b time.Time) bool {
	return DateOf(a).After(DateOf(b))
}

// DaysBetween counts whole calendar days from `from` to `to`.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD string as a UTC date.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, raw, time.UTC)
}

// MonthKey buckets t into its YYYY-MM period key.
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// Period is an inclusive range of calendar dates.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod normalises both bounds to dates and validates their order.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: DateOf(start), End: DateOf(end)}
	if p.End.Before(p.Start) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// MonthPeriod covers a whole calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: time.Date(year, month, daysIn(year, month), 0, 0, 0, 0, time.UTC)}
}

// YearPeriod covers a whole calendar year.
func YearPeriod(year int) Period {
	return Period{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Contains reports whether t's calendar date lies within the period.
func (p Period) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// Months splits the period into calendar months, trimming the first and last to the bounds.
func (p Period) Months() []Period {
	var out []Period
	for cursor := time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.After(p.End); cursor = cursor.AddDate(0, 1, 0) {
		month := MonthPeriod(cursor.Year(), cursor.Month())
		if month.Start.Before(p.Start) {
			month.Start = p.Start
		}
		if month.End.After(p.End) {
			month.End = p.End
		}
		out = append(out, month)
	}
	return out
}

// Key renders the period for cache keys and logs.
func (p Period) Key() string {
	return FormatDate(p.Start) + ".." + FormatDate(p.End)
}

// EndExclusive returns the instant just after the period, for half-open SQL ranges.
func (p Period) EndExclusive() time.Time {
	return p.End.AddDate(0, 0, 1)
}
