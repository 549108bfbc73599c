package generic

import (
	"time"
)

// =============================================================================
// TIME POINT - Calendar dates as the engine sees them
// =============================================================================

// TimePoint is a calendar day. Comparisons ignore any time of day left in Time.
type TimePoint struct {
	Time time.Time
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

func Today() TimePoint {
	return DateOf(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	t := tp.Time.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(0, 0, n)}
}

// Properties
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// =============================================================================
// ISO WEEK
// =============================================================================

// StartOfISOWeek returns the Monday of the ISO week containing tp.
// Every date of a week maps to the same Monday.
func StartOfISOWeek(tp TimePoint) TimePoint {
	day := DateOf(tp.Time)
	// time.Weekday is Sunday=0; ISO weeks start on Monday.
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDays(-offset)
}

// =============================================================================
// HOLIDAY CALENDAR - Dates paid at the holiday multiplier
// =============================================================================

// Holiday represents a paid holiday.
type Holiday struct {
	Date      TimePoint
	Name      string
	Recurring bool // true = same month/day every year
}

// HolidayCalendar provides holiday lookup functionality.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// DefaultHolidayCalendar is a no-op calendar for when holidays are disabled.
type DefaultHolidayCalendar struct{}

func (DefaultHolidayCalendar) IsHoliday(TimePoint) bool { return false }

// StaticHolidayCalendar is a fixed list of holidays.
type StaticHolidayCalendar struct {
	Holidays []Holiday
}

func NewStaticHolidayCalendar(holidays ...Holiday) *StaticHolidayCalendar {
	return &StaticHolidayCalendar{Holidays: holidays}
}

func (c *StaticHolidayCalendar) IsHoliday(date TimePoint) bool {
	for _, h := range c.Holidays {
		if h.Recurring {
			if h.Date.Month() == date.Month() && h.Date.Day() == date.Day() {
				return true
			}
			continue
		}
		if h.Date.Equal(date) {
			return true
		}
	}
	return false
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}
