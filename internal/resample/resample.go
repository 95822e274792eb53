package resample

import (
	"sort"
	"time"

	"github.com/simfolio-lab/simfolio/internal/calendar"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Reduction is a named, deterministic aggregation of one bar field. Rules
// are data rather than code so that resampling stays auditable.
type Reduction string

const (
	ReductionFirst Reduction = "first"
	ReductionLast  Reduction = "last"
	ReductionMin   Reduction = "min"
	ReductionMax   Reduction = "max"
	ReductionSum   Reduction = "sum"
)

// Rules maps bar fields to reductions.
type Rules map[types.BarField]Reduction

// DefaultRules returns the conventional OHLCV rule set.
func DefaultRules() Rules {
	return Rules{
		types.BarFieldOpen:   ReductionFirst,
		types.BarFieldHigh:   ReductionMax,
		types.BarFieldLow:    ReductionMin,
		types.BarFieldClose:  ReductionLast,
		types.BarFieldVolume: ReductionSum,
	}
}

// Labeling selects the canonical timestamp of an aggregated bar.
type Labeling string

const (
	// LabelWindowEnd stamps the window's right edge (the default): an
	// aggregated bar is only visible once its window has completed.
	LabelWindowEnd   Labeling = "window_end"
	LabelWindowStart Labeling = "window_start"
)

func reduce(reduction Reduction, values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New(errors.ErrCodeInvalidAggregation, "cannot reduce an empty window")
	}

	switch reduction {
	case ReductionFirst:
		return values[0], nil
	case ReductionLast:
		return values[len(values)-1], nil
	case ReductionMin:
		minimum := values[0]
		for _, v := range values[1:] {
			if v < minimum {
				minimum = v
			}
		}

		return minimum, nil
	case ReductionMax:
		maximum := values[0]
		for _, v := range values[1:] {
			if v > maximum {
				maximum = v
			}
		}

		return maximum, nil
	case ReductionSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}

		return sum, nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidAggregation, "unknown reduction: %s", reduction)
	}
}

var barFields = []types.BarField{
	types.BarFieldOpen,
	types.BarFieldHigh,
	types.BarFieldLow,
	types.BarFieldClose,
	types.BarFieldVolume,
}

// Resample groups native bars into non-overlapping windows of the target
// frequency aligned to session opens (not wall-clock midnight: sessions can
// be shorter than a calendar day) and reduces each field per the rules.
// Bars inside the auction exclusion deltas are trimmed before aggregation.
// Windows with zero native bars, such as halts, are dropped rather than
// synthesized as zero volume.
func Resample(
	bars []types.Bar,
	sessions []calendar.SessionWindow,
	target types.Frequency,
	rules Rules,
	deltas calendar.AuctionDeltas,
	labeling Labeling,
) ([]types.Bar, error) {
	if !target.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidFrequency, "invalid target frequency: %s", target)
	}

	if rules == nil {
		rules = DefaultRules()
	}

	for field, reduction := range rules {
		switch reduction {
		case ReductionFirst, ReductionLast, ReductionMin, ReductionMax, ReductionSum:
		default:
			return nil, errors.Newf(errors.ErrCodeInvalidAggregation, "unknown reduction %q for field %q", reduction, field)
		}
	}

	defaults := DefaultRules()

	bySymbol := make(map[string][]types.Bar)
	symbols := make([]string, 0)

	for _, bar := range bars {
		if _, seen := bySymbol[bar.Symbol]; !seen {
			symbols = append(symbols, bar.Symbol)
		}

		bySymbol[bar.Symbol] = append(bySymbol[bar.Symbol], bar)
	}

	sort.Strings(symbols)

	var aggregated []types.Bar

	for _, symbol := range symbols {
		series := bySymbol[symbol]
		sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })

		for _, session := range sessions {
			trimmed := session.Trim(deltas)
			if !trimmed.Close.After(trimmed.Open) {
				continue
			}

			width := target.Duration()
			for windowStart := trimmed.Open; windowStart.Before(trimmed.Close); windowStart = windowStart.Add(width) {
				windowEnd := windowStart.Add(width)
				if windowEnd.After(trimmed.Close) {
					windowEnd = trimmed.Close
				}

				window := barsInWindow(series, windowStart, windowEnd, windowEnd.Equal(trimmed.Close))
				if len(window) == 0 {
					continue
				}

				label := windowEnd
				if labeling == LabelWindowStart {
					label = windowStart
				}

				bar, err := aggregateWindow(window, symbol, label, rules, defaults)
				if err != nil {
					return nil, err
				}

				aggregated = append(aggregated, bar)
			}
		}
	}

	sort.Slice(aggregated, func(i, j int) bool {
		if aggregated[i].Time.Equal(aggregated[j].Time) {
			return aggregated[i].Symbol < aggregated[j].Symbol
		}

		return aggregated[i].Time.Before(aggregated[j].Time)
	})

	return aggregated, nil
}

// barsInWindow returns the bars with windowStart <= t < windowEnd. The
// final window of a session is closed at the right instead, so that a bar
// stamped exactly at the session close still belongs to the session.
func barsInWindow(series []types.Bar, windowStart time.Time, windowEnd time.Time, closedEnd bool) []types.Bar {
	var window []types.Bar

	for _, bar := range series {
		if bar.Time.Before(windowStart) {
			continue
		}

		if bar.Time.Before(windowEnd) || (closedEnd && bar.Time.Equal(windowEnd)) {
			window = append(window, bar)
		}
	}

	return window
}

func aggregateWindow(
	window []types.Bar,
	symbol string,
	label time.Time,
	rules Rules,
	defaults Rules,
) (types.Bar, error) {
	aggregated := types.Bar{Time: label, Symbol: symbol}

	for _, field := range barFields {
		reduction, ok := rules[field]
		if !ok {
			reduction = defaults[field]
		}

		values := make([]float64, len(window))
		for i, bar := range window {
			values[i] = bar.Field(field)
		}

		value, err := reduce(reduction, values)
		if err != nil {
			return types.Bar{}, err
		}

		switch field {
		case types.BarFieldOpen:
			aggregated.Open = value
		case types.BarFieldHigh:
			aggregated.High = value
		case types.BarFieldLow:
			aggregated.Low = value
		case types.BarFieldClose:
			aggregated.Close = value
		case types.BarFieldVolume:
			aggregated.Volume = value
		}
	}

	return aggregated, nil
}
