package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/simfolio-lab/simfolio/internal/analytics"
	"github.com/simfolio-lab/simfolio/internal/assets"
	"github.com/simfolio-lab/simfolio/internal/backtest/engine"
	"github.com/simfolio-lab/simfolio/internal/bundle"
	"github.com/simfolio-lab/simfolio/internal/calendar"
	"github.com/simfolio-lab/simfolio/internal/clock"
	"github.com/simfolio-lab/simfolio/internal/execution"
	"github.com/simfolio-lab/simfolio/internal/execution/commission"
	"github.com/simfolio-lab/simfolio/internal/execution/slippage"
	"github.com/simfolio-lab/simfolio/internal/ledger"
	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/portal"
	"github.com/simfolio-lab/simfolio/internal/resample"
	"github.com/simfolio-lab/simfolio/internal/runtime"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Sessions per year used to scale intraday returns when annualizing.
const sessionsPerYear = 252.0

type SimulationEngineV1 struct {
	config        SimulationConfig
	rawConfig     string
	strategy      runtime.Strategy
	bundles       []*bundle.Bundle
	resultsFolder string
	log           *logger.Logger
	benchmark     analytics.BenchmarkSource
	registry      *assets.Registry
	deltas        calendar.AuctionDeltas
}

// NewSimulationEngineV1 creates an uninitialized engine.
func NewSimulationEngineV1() engine.Engine {
	return &SimulationEngineV1{
		config: EmptyConfig(),
	}
}

// Initialize implements engine.Engine.
func (e *SimulationEngineV1) Initialize(config string) error {
	if err := yaml.Unmarshal([]byte(config), &e.config); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse engine config", err)
	}

	if err := e.config.Validate(); err != nil {
		return err
	}

	e.rawConfig = config

	var loggerErr error

	e.log, loggerErr = logger.NewLogger()
	if loggerErr != nil {
		return loggerErr
	}

	e.log.Debug("Simulation engine initialized",
		zap.Time("start", e.config.StartTime),
		zap.Time("end", e.config.EndTime),
		zap.String("emission_rate", string(e.config.EmissionRate)),
	)

	return nil
}

// SetBundles implements engine.Engine.
func (e *SimulationEngineV1) SetBundles(bundles []*bundle.Bundle) error {
	if len(bundles) == 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "at least one bundle is required")
	}

	e.bundles = bundles

	return nil
}

// SetResultsFolder implements engine.Engine.
func (e *SimulationEngineV1) SetResultsFolder(folder string) error {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create results folder", err)
	}

	e.resultsFolder = folder

	return nil
}

// LoadStrategy implements engine.Engine.
func (e *SimulationEngineV1) LoadStrategy(strategy runtime.Strategy) error {
	if strategy == nil {
		return errors.New(errors.ErrCodeStrategyNotLoaded, "strategy must not be nil")
	}

	e.strategy = strategy

	return nil
}

// SetBenchmark implements engine.Engine.
func (e *SimulationEngineV1) SetBenchmark(source analytics.BenchmarkSource) error {
	e.benchmark = source

	return nil
}

// SetAssetRegistry implements engine.Engine.
func (e *SimulationEngineV1) SetAssetRegistry(registry *assets.Registry) error {
	e.registry = registry

	return nil
}

// GetConfigSchema implements engine.Engine.
func (e *SimulationEngineV1) GetConfigSchema() (string, error) {
	return e.config.GenerateSchemaJSON()
}

// Run implements engine.Engine. The tick loop is single-threaded and
// deterministic: two runs over the same bundles and config produce
// identical snapshot series. The context is checked once per tick; on
// cancellation the partial result is returned with Aborted set.
func (e *SimulationEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (*types.RunResult, error) {
	if e.strategy == nil {
		return nil, errors.New(errors.ErrCodeStrategyNotLoaded, "no strategy loaded")
	}

	if len(e.bundles) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "no bundles set")
	}

	if e.log == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "engine not initialized")
	}

	cal, err := calendar.Get(e.config.Calendar)
	if err != nil {
		return nil, err
	}

	clk, err := clock.New(
		e.config.StartTime, e.config.EndTime, cal,
		e.config.EmissionRate, e.nativeFrequency(), e.deltas,
	)
	if err != nil {
		return nil, err
	}

	journal, err := ledger.NewJournal("", e.log)
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	if err := journal.Initialize(); err != nil {
		return nil, err
	}

	led, err := ledger.New(e.config.StartingCash, journal, e.log)
	if err != nil {
		return nil, err
	}

	exec := execution.New(led, commission.ForBroker(e.config.Broker), e.slippageModel(), e.config.AllowMargin, e.log)
	exec.SetStrategyName(e.strategy.Name())
	exec.SetAssetRegistry(e.registry)

	dataPortal := portal.New(e.bundles, clk.Sessions(), resample.DefaultRules(), e.deltas, resample.LabelWindowEnd)
	symbols := e.symbols()

	runtimeCtx := runtime.RuntimeContext{
		Portal:        dataPortal,
		TradingSystem: exec,
		Cache:         runtime.NewRunCache(),
		Logger:        e.log,
	}

	if err := e.strategy.Initialize(e.config.StrategyConfig); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "strategy initialization failed", err)
	}

	result := &types.RunResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	totalTicks := clk.NumBars()
	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(result.RunID, totalTicks); err != nil {
			return nil, err
		}
	}

	if callbacks.OnRunEnd != nil {
		defer (*callbacks.OnRunEnd)(result.RunID, e.resultsFolder)
	}

	numSessions, runErr := e.tickLoop(ctx, clk, exec, led, dataPortal, symbols, runtimeCtx, result, totalTicks, callbacks)

	if err := exec.CancelRemaining(); err != nil && runErr == nil {
		runErr = err
	}

	result.Snapshots = led.History()

	e.summarize(result, journal, exec, dataPortal, numSessions, totalTicks)

	if err := e.writeResults(result, journal); err != nil && runErr == nil {
		runErr = err
	}

	if record := runtime.Call(e.config.EndTime, func() error {
		return e.strategy.Analyze(runtimeCtx, result)
	}); record != nil {
		result.Errors = append(result.Errors, *record)
	}

	return result, runErr
}

// tickLoop drives the clock and returns the number of sessions processed.
func (e *SimulationEngineV1) tickLoop(
	ctx context.Context,
	clk *clock.Clock,
	exec *execution.Engine,
	led *ledger.Ledger,
	dataPortal *portal.Portal,
	symbols []string,
	runtimeCtx runtime.RuntimeContext,
	result *types.RunResult,
	totalTicks int,
	callbacks engine.LifecycleCallbacks,
) (int, error) {
	var (
		runErr      error
		numSessions int
		processed   int
	)

	clk.Ticks()(func(tick clock.Tick) bool {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			runErr = err

			return false
		}

		switch tick.Kind {
		case clock.TickSessionStart:
			numSessions++

		case clock.TickBeforeTradingStart:
			exec.SetTick(tick.Time)

			if record := runtime.Call(tick.Time, func() error {
				return e.strategy.BeforeTradingStart(runtimeCtx, tick)
			}); record != nil {
				if !e.recordError(result, record) {
					return false
				}
			}

		case clock.TickBar:
			exec.SetTick(tick.Time)

			bars, err := dataPortal.Current(symbols, e.config.EmissionRate, tick.Time)
			if err != nil {
				result.Aborted = true
				runErr = err

				return false
			}

			// Fills for orders placed on earlier ticks happen before the
			// strategy callback, so the portfolio it observes is current.
			if _, err := exec.ProcessTick(bars, tick.Time); err != nil {
				result.Aborted = true
				runErr = err

				return false
			}

			if record := runtime.Call(tick.Time, func() error {
				return e.strategy.HandleData(runtimeCtx, tick, bars)
			}); record != nil {
				if !e.recordError(result, record) {
					return false
				}
			}

			// Mark-to-market runs even when the callback failed: the
			// snapshot series always has one row per bar tick.
			if _, err := led.MarkToMarket(bars, tick.Time); err != nil {
				result.Aborted = true
				runErr = err

				return false
			}

			processed++

			if callbacks.OnProcessTick != nil {
				if err := (*callbacks.OnProcessTick)(processed, totalTicks); err != nil {
					result.Aborted = true
					runErr = err

					return false
				}
			}

		case clock.TickSessionEnd:
			// Orders stay open across sessions; the end-of-run cancellation
			// in Run is the only mandatory cancel policy.
			e.log.Debug("Session closed", zap.Time("close", tick.Time))
		}

		return true
	})

	return numSessions, runErr
}

// recordError appends a callback failure and reports whether the run
// should continue.
func (e *SimulationEngineV1) recordError(result *types.RunResult, record *types.ErrorRecord) bool {
	if e.config.StopOnError {
		record.Aborted = true
		result.Aborted = true
	}

	result.Errors = append(result.Errors, *record)

	e.log.Warn("Strategy callback error",
		zap.Time("tick", record.Timestamp),
		zap.String("message", record.Message),
		zap.Bool("aborted", record.Aborted),
	)

	return !e.config.StopOnError
}

func (e *SimulationEngineV1) summarize(
	result *types.RunResult,
	journal *ledger.Journal,
	exec *execution.Engine,
	dataPortal *portal.Portal,
	numSessions int,
	totalTicks int,
) {
	periodsPerYear := sessionsPerYear
	if numSessions > 0 && totalTicks > numSessions {
		periodsPerYear = sessionsPerYear * float64(totalTicks) / float64(numSessions)
	}

	benchmarkReturns := e.benchmarkReturns(result, dataPortal)

	stats := analytics.Compute(result.Snapshots, e.config.StartingCash, periodsPerYear, benchmarkReturns)
	stats.NumSessions = numSessions

	if orders, fills, err := journal.Counts(); err == nil {
		stats.NumOrders = orders
		stats.NumFills = fills
	}

	if fees, err := journal.TotalCommission(); err == nil {
		stats.TotalFees = fees
	}

	result.Stats = stats
}

func (e *SimulationEngineV1) benchmarkReturns(result *types.RunResult, dataPortal *portal.Portal) []float64 {
	source := e.benchmark

	if source == nil {
		if symbol, err := e.config.BenchmarkSymbol.Take(); err == nil {
			source = analytics.NewSymbolBenchmark(dataPortal, symbol, e.config.EmissionRate)
		}
	}

	if source == nil {
		return nil
	}

	ticks := make([]time.Time, len(result.Snapshots))
	for i, snapshot := range result.Snapshots {
		ticks[i] = snapshot.Timestamp
	}

	returns, err := source.Returns(ticks)
	if err != nil {
		e.log.Warn("Benchmark returns unavailable", zap.Error(err))

		return nil
	}

	return returns
}

func (e *SimulationEngineV1) writeResults(result *types.RunResult, journal *ledger.Journal) error {
	if e.resultsFolder == "" {
		return nil
	}

	runFolder := filepath.Join(e.resultsFolder, result.RunID)
	if err := os.MkdirAll(runFolder, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create run folder", err)
	}

	if err := types.WriteStats(filepath.Join(runFolder, "stats.yaml"), result.Stats); err != nil {
		return err
	}

	// Echo the config so a result folder is reproducible on its own.
	if err := os.WriteFile(filepath.Join(runFolder, "config.yaml"), []byte(e.rawConfig), 0644); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to write config echo", err)
	}

	if err := journal.Write(runFolder); err != nil {
		return err
	}

	result.JournalPath = runFolder

	e.log.Info("Run results written",
		zap.String("run_id", result.RunID),
		zap.String("folder", runFolder),
	)

	return nil
}

// slippageModel builds the configured slippage model. Zero parameters
// take the model defaults.
func (e *SimulationEngineV1) slippageModel() slippage.Model {
	switch e.config.Slippage {
	case SlippageVolumeShare:
		return slippage.NewVolumeShare(e.config.SlippageVolumeLimit, e.config.SlippagePriceImpact)
	default:
		return slippage.NewNoSlippage()
	}
}

// nativeFrequency returns the coarsest native frequency across bundles,
// which is the binding constraint for the emission rate.
func (e *SimulationEngineV1) nativeFrequency() types.Frequency {
	native := e.bundles[0].Metadata().NativeFrequency

	for _, b := range e.bundles[1:] {
		if b.Metadata().NativeFrequency.Duration() > native.Duration() {
			native = b.Metadata().NativeFrequency
		}
	}

	return native
}

// symbols returns the union of bundle symbols, sorted for deterministic
// processing order.
func (e *SimulationEngineV1) symbols() []string {
	seen := make(map[string]struct{})

	var symbols []string

	for _, b := range e.bundles {
		for _, symbol := range b.Metadata().Symbols {
			if _, ok := seen[symbol]; ok {
				continue
			}

			seen[symbol] = struct{}{}

			symbols = append(symbols, symbol)
		}
	}

	sort.Strings(symbols)

	return symbols
}
