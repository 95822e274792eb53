package clock

import (
	"time"

	"github.com/simfolio-lab/simfolio/internal/calendar"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// TickKind identifies the simulation event a tick carries.
type TickKind int

const (
	// TickSessionStart is the pre-market accounting event, emitted once per
	// session before any strategy callback runs.
	TickSessionStart TickKind = iota
	// TickBeforeTradingStart invokes the strategy's BeforeTradingStart.
	TickBeforeTradingStart
	// TickBar invokes HandleData and drives execution + mark-to-market.
	TickBar
	// TickSessionEnd closes out the session.
	TickSessionEnd
)

func (k TickKind) String() string {
	switch k {
	case TickSessionStart:
		return "session_start"
	case TickBeforeTradingStart:
		return "before_trading_start"
	case TickBar:
		return "bar"
	case TickSessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}

// Tick is a single simulation event.
type Tick struct {
	Time time.Time
	Kind TickKind
	// Session is the window of the session this tick belongs to.
	Session calendar.SessionWindow
}

// Clock produces the ordered, deterministic sequence of simulation ticks
// for a date range. The sequence is restartable: every call to Ticks
// iterates from the beginning, which is what makes crash-recovery replay
// possible.
type Clock struct {
	sessions     []calendar.SessionWindow
	emissionRate types.Frequency
	deltas       calendar.AuctionDeltas
}

// New validates the range and builds a clock. It fails with an invalid
// range error when start is after end, or when the emission rate is finer
// than the bundle's native frequency: aggregation cannot synthesize detail
// that was never recorded.
func New(
	start time.Time,
	end time.Time,
	cal calendar.Calendar,
	emissionRate types.Frequency,
	nativeFrequency types.Frequency,
	deltas calendar.AuctionDeltas,
) (*Clock, error) {
	if start.After(end) {
		return nil, errors.Newf(errors.ErrCodeInvalidRange, "start %s is after end %s", start, end)
	}

	if !emissionRate.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidFrequency, "invalid emission rate: %s", emissionRate)
	}

	if !nativeFrequency.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidFrequency, "invalid native frequency: %s", nativeFrequency)
	}

	if emissionRate.Duration() < nativeFrequency.Duration() {
		return nil, errors.Newf(errors.ErrCodeInvalidRange,
			"emission rate %s is finer than the bundle's native frequency %s", emissionRate, nativeFrequency)
	}

	return &Clock{
		sessions:     cal.Sessions(start, end),
		emissionRate: emissionRate,
		deltas:       deltas,
	}, nil
}

// Sessions returns the session windows the clock iterates over.
func (c *Clock) Sessions() []calendar.SessionWindow {
	return c.sessions
}

// BarTimes returns the bar tick times of a single session: right-edge
// labels at the emission rate inside the auction-trimmed window. A session
// too short for a single emission interval yields one bar at the trimmed
// close, so that a session is never silently skipped.
func (c *Clock) BarTimes(session calendar.SessionWindow) []time.Time {
	trimmed := session.Trim(c.deltas)
	if !trimmed.Close.After(trimmed.Open) {
		return nil
	}

	var bars []time.Time

	rate := c.emissionRate.Duration()
	for t := trimmed.Open.Add(rate); !t.After(trimmed.Close); t = t.Add(rate) {
		bars = append(bars, t)
	}

	if len(bars) == 0 {
		bars = append(bars, trimmed.Close)
	}

	return bars
}

// NumBars counts the bar ticks of the whole run, for progress reporting.
func (c *Clock) NumBars() int {
	count := 0
	for _, session := range c.sessions {
		count += len(c.BarTimes(session))
	}

	return count
}

// Ticks returns a restartable iterator over the tick sequence. Per session
// the order is session_start, before_trading_start, one bar per emission
// interval, session_end. Non-trading days produce no events.
func (c *Clock) Ticks() func(yield func(Tick) bool) {
	return func(yield func(Tick) bool) {
		for _, session := range c.sessions {
			if !yield(Tick{Time: session.Date, Kind: TickSessionStart, Session: session}) {
				return
			}

			if !yield(Tick{Time: session.Open, Kind: TickBeforeTradingStart, Session: session}) {
				return
			}

			for _, barTime := range c.BarTimes(session) {
				if !yield(Tick{Time: barTime, Kind: TickBar, Session: session}) {
					return
				}
			}

			if !yield(Tick{Time: session.Close, Kind: TickSessionEnd, Session: session}) {
				return
			}
		}
	}
}
