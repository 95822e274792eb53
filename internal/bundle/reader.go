package bundle

import (
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Bundle is a read handle on one saved (name, version). It is safe to
// share across concurrent readers: the underlying storage is read-only
// during simulation, and every read snapshots the bundle's extent first so
// a concurrent live-refresh append is never partially observed.
type Bundle struct {
	store *Store
	meta  Metadata
}

// Metadata returns the bundle's descriptor.
func (b *Bundle) Metadata() Metadata {
	return b.meta
}

// extent returns the latest bar timestamp currently visible.
func (b *Bundle) extent() (time.Time, error) {
	row := b.store.sq.
		Select("MAX(time)").
		From("bars").
		Where(squirrel.Eq{"bundle_name": b.meta.Name, "bundle_version": b.meta.Version.String()}).
		RunWith(b.store.db).
		QueryRow()

	var extent sql.NullTime
	if err := row.Scan(&extent); err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read bundle extent", err)
	}

	if !extent.Valid {
		return time.Time{}, errors.Newf(errors.ErrCodeBundleGap, "bundle %q version %s has no bars",
			b.meta.Name, b.meta.Version)
	}

	return extent.Time, nil
}

// Bars reads native bars for the requested symbols in [start, end],
// ordered by timestamp then symbol. A requested symbol with no data in the
// bundle's covered range fails with an unknown symbol error: silently
// skipping it would misrepresent the backtest universe, and it usually
// signals an ingestion gap.
func (b *Bundle) Bars(symbols []string, start time.Time, end time.Time) ([]types.Bar, error) {
	if len(symbols) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "no symbols requested")
	}

	for _, symbol := range symbols {
		if !b.meta.HasSymbol(symbol) {
			return nil, errors.Newf(errors.ErrCodeUnknownSymbol,
				"symbol %q has no data in bundle %q version %s", symbol, b.meta.Name, b.meta.Version)
		}
	}

	// Snapshot the extent before reading so an in-flight append cannot
	// tear the window.
	extent, err := b.extent()
	if err != nil {
		return nil, err
	}

	readEnd := end
	if extent.Before(readEnd) {
		readEnd = extent
	}

	symbolArgs := make([]string, len(symbols))
	copy(symbolArgs, symbols)

	rows, err := b.store.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{
			"bundle_name":    b.meta.Name,
			"bundle_version": b.meta.Version.String(),
			"symbol":         symbolArgs,
		}).
		Where(squirrel.GtOrEq{"time": start}).
		Where(squirrel.LtOrEq{"time": readEnd}).
		OrderBy("time ASC", "symbol ASC").
		RunWith(b.store.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var bar types.Bar
		if err := rows.Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err)
	}

	return bars, nil
}

// LastBar returns the latest bar for a symbol at or before asOf, or false
// when none exists yet.
func (b *Bundle) LastBar(symbol string, asOf time.Time) (types.Bar, bool, error) {
	if !b.meta.HasSymbol(symbol) {
		return types.Bar{}, false, errors.Newf(errors.ErrCodeUnknownSymbol,
			"symbol %q has no data in bundle %q version %s", symbol, b.meta.Name, b.meta.Version)
	}

	row := b.store.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.Eq{"bundle_name": b.meta.Name, "bundle_version": b.meta.Version.String(), "symbol": symbol}).
		Where(squirrel.LtOrEq{"time": asOf}).
		OrderBy("time DESC").
		Limit(1).
		RunWith(b.store.db).
		QueryRow()

	var bar types.Bar

	err := row.Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
	if err == sql.ErrNoRows {
		return types.Bar{}, false, nil
	}

	if err != nil {
		return types.Bar{}, false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query last bar", err)
	}

	return bar, true, nil
}
