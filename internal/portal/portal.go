package portal

import (
	"sort"
	"time"

	"github.com/simfolio-lab/simfolio/internal/bundle"
	"github.com/simfolio-lab/simfolio/internal/calendar"
	"github.com/simfolio-lab/simfolio/internal/resample"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Portal is the per-tick read-only data view handed to strategies. Every
// read is strictly bounded by the as-of timestamp: the portal never holds
// a reference to future ticks, only to the resampled series up to the
// current clock position, so look-ahead is structurally impossible rather
// than merely discouraged.
//
// Multiple bundles (a price bundle plus separately-ingested custom-data
// bundles) are resampled independently and merged by timestamp only; each
// symbol is served by the first bundle that covers it, and two bundles are
// never cross-aggregated.
type Portal struct {
	bundles  []*bundle.Bundle
	sessions []calendar.SessionWindow
	rules    resample.Rules
	deltas   calendar.AuctionDeltas
	labeling resample.Labeling
}

// New builds a portal over the given bundles and run sessions.
func New(
	bundles []*bundle.Bundle,
	sessions []calendar.SessionWindow,
	rules resample.Rules,
	deltas calendar.AuctionDeltas,
	labeling resample.Labeling,
) *Portal {
	if rules == nil {
		rules = resample.DefaultRules()
	}

	return &Portal{
		bundles:  bundles,
		sessions: sessions,
		rules:    rules,
		deltas:   deltas,
		labeling: labeling,
	}
}

// bundleFor routes a symbol to the first bundle covering it.
func (p *Portal) bundleFor(symbol string) (*bundle.Bundle, error) {
	for _, b := range p.bundles {
		if b.Metadata().HasSymbol(symbol) {
			return b, nil
		}
	}

	return nil, errors.Newf(errors.ErrCodeUnknownSymbol, "symbol %q is not covered by any loaded bundle", symbol)
}

func (p *Portal) sessionsIn(start time.Time, end time.Time) []calendar.SessionWindow {
	var windows []calendar.SessionWindow

	for _, session := range p.sessions {
		if session.Close.Before(start) || session.Open.After(end) {
			continue
		}

		windows = append(windows, session)
	}

	return windows
}

// series resamples one symbol's native bars to the target frequency over
// [start, asOf], dropping any aggregated bar whose label lies past asOf.
func (p *Portal) series(symbol string, start time.Time, asOf time.Time, frequency types.Frequency) ([]types.Bar, error) {
	owner, err := p.bundleFor(symbol)
	if err != nil {
		return nil, err
	}

	native := owner.Metadata().NativeFrequency
	if frequency.Duration() < native.Duration() {
		return nil, errors.Newf(errors.ErrCodeInvalidFrequency,
			"requested frequency %s is finer than bundle native frequency %s", frequency, native)
	}

	raw, err := owner.Bars([]string{symbol}, start, asOf)
	if err != nil {
		return nil, err
	}

	aggregated, err := resample.Resample(raw, p.sessionsIn(start, asOf), frequency, p.rules, p.deltas, p.labeling)
	if err != nil {
		return nil, err
	}

	// The resampler already works on bars bounded by asOf; the label check
	// keeps the no-look-ahead guarantee independent of labeling mode.
	bounded := aggregated[:0]

	for _, bar := range aggregated {
		if bar.Time.After(asOf) {
			continue
		}

		bounded = append(bounded, bar)
	}

	return bounded, nil
}

// Current materializes the bar snapshot for the tick at asOf: for each
// symbol, the aggregated bar labeled exactly asOf. Symbols with no bar in
// the current window (halted or simply absent this interval) are omitted
// from the snapshot rather than synthesized.
func (p *Portal) Current(symbols []string, frequency types.Frequency, asOf time.Time) (map[string]types.Bar, error) {
	snapshot := make(map[string]types.Bar, len(symbols))

	for _, symbol := range symbols {
		window := frequency.Duration()

		series, err := p.series(symbol, asOf.Add(-window), asOf, frequency)
		if err != nil {
			return nil, err
		}

		for _, bar := range series {
			if bar.Time.Equal(asOf) {
				snapshot[symbol] = bar

				break
			}
		}
	}

	return snapshot, nil
}

// History returns up to windowLength aggregated bars per symbol at the
// requested frequency, ending at or before asOf, merged across symbols and
// ordered by timestamp then symbol. Fewer bars are returned when the
// bundle does not yet cover the full window (strategy warm-up), never
// more, and never a bar whose window extends past asOf.
func (p *Portal) History(
	symbols []string,
	windowLength int,
	frequency types.Frequency,
	asOf time.Time,
) ([]types.Bar, error) {
	if windowLength <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "window length must be positive, got %d", windowLength)
	}

	var merged []types.Bar

	for _, symbol := range symbols {
		// Read back far enough to cover the window across session gaps:
		// one session of slack per requested bar is ample.
		lookback := time.Duration(windowLength+1) * frequency.Duration()
		if sessionSpan := p.sessionSpanFor(windowLength, frequency); sessionSpan > lookback {
			lookback = sessionSpan
		}

		series, err := p.series(symbol, asOf.Add(-lookback), asOf, frequency)
		if err != nil {
			return nil, err
		}

		if len(series) > windowLength {
			series = series[len(series)-windowLength:]
		}

		merged = append(merged, series...)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Time.Equal(merged[j].Time) {
			return merged[i].Symbol < merged[j].Symbol
		}

		return merged[i].Time.Before(merged[j].Time)
	})

	return merged, nil
}

// sessionSpanFor estimates the wall-clock span needed to collect the
// requested number of bars when the frequency is a day or coarser.
func (p *Portal) sessionSpanFor(windowLength int, frequency types.Frequency) time.Duration {
	if frequency.Duration() < types.Frequency1d.Duration() {
		return 0
	}

	// Calendar weeks contain at least five sessions; two days of slack per
	// requested bar covers weekends and holidays.
	return time.Duration(windowLength) * 3 * 24 * time.Hour
}
