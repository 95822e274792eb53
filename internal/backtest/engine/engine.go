package engine

import (
	"context"

	"github.com/simfolio-lab/simfolio/internal/analytics"
	"github.com/simfolio-lab/simfolio/internal/assets"
	"github.com/simfolio-lab/simfolio/internal/bundle"
	"github.com/simfolio-lab/simfolio/internal/runtime"
	"github.com/simfolio-lab/simfolio/internal/types"
)

// Lifecycle callback types for backtest phases.
// Callbacks returning an error abort the run.

// OnRunStartCallback is called once before the first tick. runID is the
// unique identifier generated for the run.
type OnRunStartCallback func(runID string, totalTicks int) error

// OnProcessTickCallback is called after each processed tick.
type OnProcessTickCallback func(current int, total int) error

// OnRunEndCallback is called when the run finishes (always called via defer).
type OnRunEndCallback func(runID string, resultFolderPath string)

// LifecycleCallbacks holds the lifecycle callbacks for the engine. All
// fields are pointers; nil means no callback is invoked.
type LifecycleCallbacks struct {
	OnRunStart    *OnRunStartCallback
	OnProcessTick *OnProcessTickCallback
	OnRunEnd      *OnRunEndCallback
}

type Engine interface {
	// Initialize the engine with the given YAML configuration.
	Initialize(config string) error
	// SetBundles sets the data bundles the run reads from. The first
	// bundle covering a symbol serves it.
	SetBundles(bundles []*bundle.Bundle) error
	// SetResultsFolder sets the output directory for run results. When
	// unset, nothing is written to disk.
	SetResultsFolder(folder string) error
	// LoadStrategy loads the trading strategy.
	LoadStrategy(strategy runtime.Strategy) error
	// SetBenchmark overrides the configured benchmark with an explicit
	// source, for externally supplied return series.
	SetBenchmark(source analytics.BenchmarkSource) error
	// SetAssetRegistry restricts order submission to symbols the registry
	// resolves at the order's tick. Optional; without it every symbol is
	// accepted.
	SetAssetRegistry(registry *assets.Registry) error
	// Run executes the strategy over the configured range. The context is
	// checked at every tick boundary; on cancellation the partial result
	// is returned with Aborted set.
	Run(ctx context.Context, callbacks LifecycleCallbacks) (*types.RunResult, error)
	// GetConfigSchema returns the JSON schema of the engine configuration.
	GetConfigSchema() (string, error)
}
