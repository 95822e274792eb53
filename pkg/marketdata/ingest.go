package marketdata

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simfolio-lab/simfolio/internal/bundle"
	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Ingestor fetches bars from a data source and saves them as a new bundle
// version. Symbols are fetched concurrently with a bounded worker pool;
// the save itself is a single transaction.
type Ingestor struct {
	source  DataSource
	store   *bundle.Store
	logger  *logger.Logger
	workers int
}

// NewIngestor creates an ingestor. workers <= 0 uses one worker per CPU.
func NewIngestor(source DataSource, store *bundle.Store, workers int, log *logger.Logger) *Ingestor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Ingestor{
		source:  source,
		store:   store,
		logger:  log,
		workers: workers,
	}
}

// Ingest fetches [start, end] bars for the symbols and saves them as a
// new version of the named bundle. Symbols the source has no data for
// fail the ingestion: a bundle with silent gaps would corrupt every run
// over it.
func (i *Ingestor) Ingest(
	ctx context.Context,
	bundleName string,
	symbols []string,
	start time.Time,
	end time.Time,
	frequency types.Frequency,
	calendarName string,
) (*semver.Version, error) {
	if len(symbols) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "no symbols to ingest")
	}

	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionSetDescription(fmt.Sprintf("Ingesting %s", bundleName)),
		progressbar.OptionShowCount(),
	)

	var (
		mu      sync.Mutex
		bars    []types.Bar
		missing []string
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(i.workers)

	for _, symbol := range symbols {
		group.Go(func() error {
			result, err := i.source.FetchBars(groupCtx, []string{symbol}, start, end, frequency)
			if err != nil {
				return err
			}

			mu.Lock()
			bars = append(bars, result.Bars...)
			missing = append(missing, result.MissingSymbols...)
			mu.Unlock()

			//nolint:errcheck // progress rendering is best effort
			bar.Add(1)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeIngestFailed, err, "ingestion of bundle %q failed", bundleName)
	}

	if len(missing) > 0 {
		sort.Strings(missing)

		return nil, errors.Newf(errors.ErrCodeIngestFailed,
			"source %s has no data for symbols %v in [%s, %s]", i.source.Name(), missing, start, end)
	}

	sort.Slice(bars, func(a, b int) bool {
		if bars[a].Time.Equal(bars[b].Time) {
			return bars[a].Symbol < bars[b].Symbol
		}

		return bars[a].Time.Before(bars[b].Time)
	})

	version, err := i.store.Save(bundleName, bars, frequency, calendarName)
	if err != nil {
		return nil, err
	}

	i.logger.Info("Bundle ingested",
		zap.String("bundle", bundleName),
		zap.String("version", version.String()),
		zap.String("source", i.source.Name()),
		zap.Int("bars", len(bars)),
	)

	return version, nil
}

// Refresh appends bars newer than the bundle's current extent to an
// existing version, for live-refresh use while readers are active.
func (i *Ingestor) Refresh(ctx context.Context, bundleName string, version *semver.Version, end time.Time) error {
	handle, err := i.store.Load(bundleName, version.String())
	if err != nil {
		return err
	}

	meta := handle.Metadata()

	last, ok, err := handle.LastBar(meta.Symbols[0], end)
	if err != nil {
		return err
	}

	if !ok {
		return errors.Newf(errors.ErrCodeBundleGap, "bundle %q version %s has no bars to refresh from", bundleName, version)
	}

	fetchStart := last.Time.Add(meta.NativeFrequency.Duration())
	if !fetchStart.Before(end) {
		return nil
	}

	result, err := i.source.FetchBars(ctx, meta.Symbols, fetchStart, end, meta.NativeFrequency)
	if err != nil {
		return err
	}

	if len(result.Bars) == 0 {
		return nil
	}

	return i.store.AppendBars(bundleName, version, result.Bars)
}
