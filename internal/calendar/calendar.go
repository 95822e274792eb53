package calendar

import (
	"time"

	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// SessionWindow is a trading-calendar-derived open/close pair for a single
// session date. Open is inclusive, Close is exclusive.
type SessionWindow struct {
	// Date is midnight of the session date in the calendar's location.
	Date  time.Time
	Open  time.Time
	Close time.Time
}

// Contains reports whether t falls inside the session window.
func (w SessionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Open) && t.Before(w.Close)
}

// AuctionDeltas narrows the usable range of a session at each end, so that
// resampling and execution skip illiquid opening/closing auction prints.
type AuctionDeltas struct {
	Open  time.Duration `yaml:"open" json:"open"`
	Close time.Duration `yaml:"close" json:"close"`
}

// Trim returns the window narrowed by the auction deltas. A window trimmed
// to nothing collapses to an empty range at the open.
func (w SessionWindow) Trim(deltas AuctionDeltas) SessionWindow {
	trimmed := w
	trimmed.Open = w.Open.Add(deltas.Open)
	trimmed.Close = w.Close.Add(-deltas.Close)

	if !trimmed.Close.After(trimmed.Open) {
		trimmed.Close = trimmed.Open
	}

	return trimmed
}

// Calendar answers session membership questions for a named market. The
// core consumes calendars; it never derives sessions on its own.
type Calendar interface {
	// Name returns the registry name of the calendar.
	Name() string
	// IsSession reports whether the given date is a trading session.
	IsSession(date time.Time) bool
	// Session returns the session window for a date, or false when the
	// date is not a trading session.
	Session(date time.Time) (SessionWindow, bool)
	// Sessions enumerates the session windows for all trading days in
	// [start, end], in chronological order.
	Sessions(start time.Time, end time.Time) []SessionWindow
}

// Get resolves a calendar by registry name.
func Get(name string) (Calendar, error) {
	switch name {
	case NameAlwaysOpen:
		return NewAlwaysOpen(), nil
	case NameWeekday:
		return NewWeekday(DefaultEquityOpen, DefaultEquityClose, time.UTC), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidCalendar, "unknown trading calendar: %s", name)
	}
}
