package calendar

import "time"

const (
	// NameWeekday is an equity-style calendar: Monday through Friday with a
	// fixed open/close wall time and an optional holiday list.
	NameWeekday = "weekday"
	// NameAlwaysOpen is a 24/7 calendar with midnight-to-midnight sessions.
	NameAlwaysOpen = "24/7"
)

// Default equity session wall times, expressed as offsets from midnight.
const (
	DefaultEquityOpen  = 9*time.Hour + 30*time.Minute
	DefaultEquityClose = 16 * time.Hour
)

// Weekday is a Monday-Friday calendar with fixed session wall times.
type Weekday struct {
	open     time.Duration
	close    time.Duration
	location *time.Location
	holidays map[string]struct{}
}

// NewWeekday creates a weekday calendar with the given open/close offsets
// from midnight in the given location.
func NewWeekday(open time.Duration, close time.Duration, location *time.Location) *Weekday {
	return &Weekday{
		open:     open,
		close:    close,
		location: location,
		holidays: make(map[string]struct{}),
	}
}

// AddHoliday marks a date as a non-trading day.
func (c *Weekday) AddHoliday(date time.Time) {
	c.holidays[date.In(c.location).Format(time.DateOnly)] = struct{}{}
}

// Name implements Calendar.
func (c *Weekday) Name() string {
	return NameWeekday
}

// IsSession implements Calendar.
func (c *Weekday) IsSession(date time.Time) bool {
	local := date.In(c.location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
	}

	_, holiday := c.holidays[local.Format(time.DateOnly)]

	return !holiday
}

// Session implements Calendar.
func (c *Weekday) Session(date time.Time) (SessionWindow, bool) {
	if !c.IsSession(date) {
		return SessionWindow{}, false
	}

	local := date.In(c.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)

	return SessionWindow{
		Date:  midnight,
		Open:  midnight.Add(c.open),
		Close: midnight.Add(c.close),
	}, true
}

// Sessions implements Calendar.
func (c *Weekday) Sessions(start time.Time, end time.Time) []SessionWindow {
	return enumerateSessions(c, start, end)
}

// AlwaysOpen is a 24/7 calendar where every day is a full session. This is
// the natural calendar for crypto markets.
type AlwaysOpen struct{}

// NewAlwaysOpen creates a 24/7 calendar.
func NewAlwaysOpen() *AlwaysOpen {
	return &AlwaysOpen{}
}

// Name implements Calendar.
func (c *AlwaysOpen) Name() string {
	return NameAlwaysOpen
}

// IsSession implements Calendar.
func (c *AlwaysOpen) IsSession(date time.Time) bool {
	return true
}

// Session implements Calendar.
func (c *AlwaysOpen) Session(date time.Time) (SessionWindow, bool) {
	utc := date.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)

	return SessionWindow{
		Date:  midnight,
		Open:  midnight,
		Close: midnight.AddDate(0, 0, 1),
	}, true
}

// Sessions implements Calendar.
func (c *AlwaysOpen) Sessions(start time.Time, end time.Time) []SessionWindow {
	return enumerateSessions(c, start, end)
}

func enumerateSessions(c Calendar, start time.Time, end time.Time) []SessionWindow {
	var sessions []SessionWindow

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if window, ok := c.Session(date); ok {
			sessions = append(sessions, window)
		}
	}

	return sessions
}
