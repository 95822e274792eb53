package marketdata

import (
	"context"
	"time"

	"github.com/simfolio-lab/simfolio/internal/types"
)

// FetchResult is the outcome of one bar fetch. Symbols the source knows
// nothing about are reported, never silently dropped: an ingestion that
// quietly lost a symbol would corrupt every backtest over the bundle.
type FetchResult struct {
	// Bars holds the fetched bars ordered by time, then symbol.
	Bars []types.Bar
	// MissingSymbols lists requested symbols the source had no data for.
	MissingSymbols []string
}

// DataSource fetches historical bars from an external provider.
type DataSource interface {
	// FetchBars returns bars for the requested symbols in [start, end] at
	// the given frequency, ordered by time per symbol.
	FetchBars(
		ctx context.Context,
		symbols []string,
		start time.Time,
		end time.Time,
		frequency types.Frequency,
	) (FetchResult, error)
	// Name identifies the source in logs and bundle metadata.
	Name() string
}
