package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/simfolio-lab/simfolio/internal/backtest/engine"
	enginev1 "github.com/simfolio-lab/simfolio/internal/backtest/engine/engine_v1"
	"github.com/simfolio-lab/simfolio/internal/bundle"
	"github.com/simfolio-lab/simfolio/internal/clock"
	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/runtime"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/marketdata"
)

// syntheticSource serves deterministic daily bars: day i closes at
// 100 + i for every symbol, midnight-labeled.
type syntheticSource struct{}

func (s *syntheticSource) Name() string {
	return "synthetic"
}

func (s *syntheticSource) FetchBars(
	ctx context.Context,
	symbols []string,
	start time.Time,
	end time.Time,
	frequency types.Frequency,
) (marketdata.FetchResult, error) {
	var result marketdata.FetchResult

	for _, symbol := range symbols {
		day := 0
		for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
			price := 100 + float64(day)
			result.Bars = append(result.Bars, types.Bar{
				Time:   t,
				Symbol: symbol,
				Open:   price,
				High:   price + 1,
				Low:    price - 1,
				Close:  price,
				Volume: 1e6,
			})
			day++
		}
	}

	return result, nil
}

// holdFirstBarStrategy buys one share of each symbol on its first bar.
type holdFirstBarStrategy struct{}

func (s *holdFirstBarStrategy) Initialize(config string) error {
	return nil
}

func (s *holdFirstBarStrategy) BeforeTradingStart(ctx runtime.RuntimeContext, tick clock.Tick) error {
	return nil
}

func (s *holdFirstBarStrategy) HandleData(ctx runtime.RuntimeContext, tick clock.Tick, bars map[string]types.Bar) error {
	for symbol := range bars {
		if _, held := ctx.TradingSystem.GetPosition(symbol); held {
			continue
		}

		if _, err := ctx.TradingSystem.PlaceOrder(symbol, 1); err != nil {
			return err
		}
	}

	return nil
}

func (s *holdFirstBarStrategy) Analyze(ctx runtime.RuntimeContext, result *types.RunResult) error {
	ctx.Logger.Info("E2E run analyzed", zap.Float64("total_return", result.Stats.TotalReturn))

	return nil
}

func (s *holdFirstBarStrategy) Name() string {
	return "hold_first_bar"
}

// E2ETestSuite drives the full pipeline: ingest from a source into the
// bundle store, run the simulation over the saved bundle, and verify the
// exported results.
type E2ETestSuite struct {
	suite.Suite
	logger *logger.Logger
	store  *bundle.Store
}

func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}

func (suite *E2ETestSuite) SetupSuite() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.logger = log
}

func (suite *E2ETestSuite) SetupTest() {
	store, err := bundle.NewStore("", suite.logger)
	suite.Require().NoError(err)
	suite.Require().NoError(store.Initialize())
	suite.store = store
}

func (suite *E2ETestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func (suite *E2ETestSuite) TestIngestRunAndExport() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	ingestor := marketdata.NewIngestor(&syntheticSource{}, suite.store, 2, suite.logger)

	version, err := ingestor.Ingest(
		context.Background(), "synthetic",
		[]string{"AAPL", "MSFT"},
		start, end,
		types.Frequency1d, "24/7",
	)
	suite.Require().NoError(err)
	suite.Equal("1.0.0", version.String())

	handle, err := suite.store.Load("synthetic", bundle.VersionLatest)
	suite.Require().NoError(err)
	suite.Equal([]string{"AAPL", "MSFT"}, handle.Metadata().Symbols)

	backtester := enginev1.NewSimulationEngineV1()
	suite.Require().NoError(backtester.Initialize(`
start_time: 2024-01-01T00:00:00Z
end_time: 2024-01-09T00:00:00Z
calendar: "24/7"
emission_rate: 1d
starting_cash: 10000
broker: zero_commission
slippage: none
`))

	suite.Require().NoError(backtester.SetBundles([]*bundle.Bundle{handle}))
	suite.Require().NoError(backtester.LoadStrategy(&holdFirstBarStrategy{}))

	resultsFolder := suite.T().TempDir()
	suite.Require().NoError(backtester.SetResultsFolder(resultsFolder))

	result, err := backtester.Run(context.Background(), engine.LifecycleCallbacks{})
	suite.Require().NoError(err)
	suite.False(result.Aborted)

	// Nine 24/7 sessions at daily emission: one snapshot per session.
	suite.Len(result.Snapshots, 9)
	suite.Equal(2, result.Stats.NumOrders)
	suite.Equal(2, result.Stats.NumFills)

	// Both positions ride the +1/day drift from their day-2 fills at 101.
	final := result.Snapshots[len(result.Snapshots)-1]
	suite.Require().Len(final.Positions, 2)
	suite.Greater(final.NAV, 10000.0)

	// The run folder holds the stats and the order/fill journal.
	runFolder := filepath.Join(resultsFolder, result.RunID)
	suite.Equal(runFolder, result.JournalPath)

	for _, name := range []string{"stats.yaml", "config.yaml", "orders.parquet", "fills.parquet"} {
		info, err := os.Stat(filepath.Join(runFolder, name))
		suite.Require().NoError(err, name)
		suite.Greater(info.Size(), int64(0), name)
	}
}

func (suite *E2ETestSuite) TestRefreshExtendsBundle() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	ingestor := marketdata.NewIngestor(&syntheticSource{}, suite.store, 1, suite.logger)

	version, err := ingestor.Ingest(
		context.Background(), "synthetic",
		[]string{"AAPL"},
		start, end,
		types.Frequency1d, "24/7",
	)
	suite.Require().NoError(err)

	newEnd := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	suite.Require().NoError(ingestor.Refresh(context.Background(), "synthetic", version, newEnd))

	handle, err := suite.store.Load("synthetic", version.String())
	suite.Require().NoError(err)

	last, ok, err := handle.LastBar("AAPL", newEnd.AddDate(0, 0, 1))
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.True(last.Time.After(end))
}
