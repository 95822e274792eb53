package analytics

import (
	"time"

	"github.com/simfolio-lab/simfolio/internal/portal"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// BenchmarkSource produces the benchmark simple-return series aligned to
// the run's snapshot ticks.
type BenchmarkSource interface {
	Returns(ticks []time.Time) ([]float64, error)
}

// SeriesBenchmark wraps an externally supplied return series. The series
// must already be aligned to the run's ticks.
type SeriesBenchmark struct {
	series []float64
}

// NewSeriesBenchmark creates a benchmark from a precomputed series.
func NewSeriesBenchmark(series []float64) *SeriesBenchmark {
	return &SeriesBenchmark{series: series}
}

// Returns implements BenchmarkSource.
func (b *SeriesBenchmark) Returns(ticks []time.Time) ([]float64, error) {
	if len(b.series) < len(ticks) {
		return nil, errors.Newf(errors.ErrCodeInsufficientData,
			"benchmark series has %d returns for %d ticks", len(b.series), len(ticks))
	}

	return b.series[:len(ticks)], nil
}

// SymbolBenchmark derives benchmark returns from a symbol's bundle data
// through the portal, so the benchmark obeys the same as-of bounds as the
// strategy's own data.
type SymbolBenchmark struct {
	portal    *portal.Portal
	symbol    string
	frequency types.Frequency
}

// NewSymbolBenchmark creates a benchmark from a traded symbol.
func NewSymbolBenchmark(p *portal.Portal, symbol string, frequency types.Frequency) *SymbolBenchmark {
	return &SymbolBenchmark{portal: p, symbol: symbol, frequency: frequency}
}

// Returns implements BenchmarkSource. Ticks with no benchmark bar carry a
// zero return so the series stays aligned with the snapshots.
func (b *SymbolBenchmark) Returns(ticks []time.Time) ([]float64, error) {
	returns := make([]float64, len(ticks))
	previous := 0.0

	for i, tick := range ticks {
		bars, err := b.portal.Current([]string{b.symbol}, b.frequency, tick)
		if err != nil {
			return nil, err
		}

		bar, ok := bars[b.symbol]
		if !ok {
			continue
		}

		if previous > 0 {
			returns[i] = bar.Close/previous - 1
		}

		previous = bar.Close
	}

	return returns, nil
}
