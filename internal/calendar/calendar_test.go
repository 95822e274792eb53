package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CalendarTestSuite struct {
	suite.Suite
}

func TestCalendarSuite(t *testing.T) {
	suite.Run(t, new(CalendarTestSuite))
}

func (suite *CalendarTestSuite) TestWeekdaySkipsWeekends() {
	cal := NewWeekday(DefaultEquityOpen, DefaultEquityClose, time.UTC)

	// 2024-01-01 is a Monday.
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)

	suite.True(cal.IsSession(monday))
	suite.False(cal.IsSession(saturday))
	suite.False(cal.IsSession(sunday))
}

func (suite *CalendarTestSuite) TestWeekdaySessionWallTimes() {
	cal := NewWeekday(DefaultEquityOpen, DefaultEquityClose, time.UTC)

	window, ok := cal.Session(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	suite.Require().True(ok)
	suite.Equal(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), window.Open)
	suite.Equal(time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC), window.Close)
}

func (suite *CalendarTestSuite) TestWeekdayHolidays() {
	cal := NewWeekday(DefaultEquityOpen, DefaultEquityClose, time.UTC)
	holiday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cal.AddHoliday(holiday)

	suite.False(cal.IsSession(holiday))

	// One week of January 2024 starting at the holiday Monday: four
	// sessions remain.
	sessions := cal.Sessions(holiday, holiday.AddDate(0, 0, 6))
	suite.Len(sessions, 4)
}

func (suite *CalendarTestSuite) TestAlwaysOpenFullDaySessions() {
	cal := NewAlwaysOpen()

	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) // Friday
	sessions := cal.Sessions(start, start.AddDate(0, 0, 2))

	// Saturday and Sunday are sessions too.
	suite.Require().Len(sessions, 3)
	suite.Equal(start, sessions[0].Open)
	suite.Equal(start.AddDate(0, 0, 1), sessions[0].Close)
}

func (suite *CalendarTestSuite) TestSessionWindowContains() {
	window := SessionWindow{
		Open:  time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		Close: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC),
	}

	suite.True(window.Contains(window.Open))
	suite.True(window.Contains(window.Open.Add(time.Hour)))
	// Close is exclusive.
	suite.False(window.Contains(window.Close))
	suite.False(window.Contains(window.Open.Add(-time.Minute)))
}

func (suite *CalendarTestSuite) TestTrimAuctionDeltas() {
	window := SessionWindow{
		Open:  time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		Close: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC),
	}

	trimmed := window.Trim(AuctionDeltas{Open: 5 * time.Minute, Close: 10 * time.Minute})
	suite.Equal(window.Open.Add(5*time.Minute), trimmed.Open)
	suite.Equal(window.Close.Add(-10*time.Minute), trimmed.Close)

	// Deltas wider than the session collapse the window to empty.
	collapsed := window.Trim(AuctionDeltas{Open: 4 * time.Hour, Close: 4 * time.Hour})
	suite.Equal(collapsed.Open, collapsed.Close)
}

func (suite *CalendarTestSuite) TestGetByName() {
	tests := []struct {
		name     string
		calendar string
		wantErr  bool
	}{
		{"24/7 calendar", NameAlwaysOpen, false},
		{"weekday calendar", NameWeekday, false},
		{"unknown calendar", "lunar", true},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			cal, err := Get(tc.calendar)
			if tc.wantErr {
				suite.Error(err)
			} else {
				suite.Require().NoError(err)
				suite.Equal(tc.calendar, cal.Name())
			}
		})
	}
}
