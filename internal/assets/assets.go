package assets

import (
	"sort"
	"time"

	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Asset is one listing of a symbol. Symbols get reused after delistings,
// so an asset is identified by symbol plus listing window, never by
// symbol alone.
type Asset struct {
	ID     string
	Symbol string
	Name   string
	// Exchange the asset trades on.
	Exchange string
	// ListedAt is the first date the symbol refers to this asset.
	ListedAt time.Time
	// DelistedAt is the first date the symbol no longer refers to this
	// asset. Zero means still listed.
	DelistedAt time.Time
}

// ActiveAt reports whether the asset holds the symbol on the given date.
func (a Asset) ActiveAt(asOf time.Time) bool {
	if asOf.Before(a.ListedAt) {
		return false
	}

	return a.DelistedAt.IsZero() || asOf.Before(a.DelistedAt)
}

// Registry resolves symbols to assets as of a date. It is an explicit
// handle owned by the run, not shared process state, so concurrent runs
// with different universes cannot interfere.
type Registry struct {
	bySymbol map[string][]Asset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bySymbol: make(map[string][]Asset)}
}

// Add registers an asset listing. Listings for the same symbol are kept
// in listing-date order.
func (r *Registry) Add(asset Asset) error {
	if asset.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "asset symbol must not be empty")
	}

	if !asset.DelistedAt.IsZero() && !asset.DelistedAt.After(asset.ListedAt) {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"asset %s delisting %s is not after listing %s", asset.Symbol, asset.DelistedAt, asset.ListedAt)
	}

	listings := append(r.bySymbol[asset.Symbol], asset)
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].ListedAt.Before(listings[j].ListedAt)
	})

	r.bySymbol[asset.Symbol] = listings

	return nil
}

// Resolve returns the asset a symbol referred to on the given date.
func (r *Registry) Resolve(symbol string, asOf time.Time) (Asset, error) {
	for _, asset := range r.bySymbol[symbol] {
		if asset.ActiveAt(asOf) {
			return asset, nil
		}
	}

	return Asset{}, errors.Newf(errors.ErrCodeAssetNotFound, "symbol %q resolves to no asset at %s", symbol, asOf)
}

// Symbols returns all known symbols sorted.
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}
