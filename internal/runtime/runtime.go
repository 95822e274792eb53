package runtime

import (
	"github.com/simfolio-lab/simfolio/internal/clock"
	"github.com/simfolio-lab/simfolio/internal/execution"
	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/portal"
	"github.com/simfolio-lab/simfolio/internal/types"
)

// Strategy is the algorithm contract. Implementations keep their state in
// the RuntimeContext cache; the engine calls the lifecycle methods in
// clock order and never concurrently.
type Strategy interface {
	// Initialize receives the raw strategy configuration payload before
	// the first tick.
	Initialize(config string) error
	// BeforeTradingStart runs once per session before the first bar.
	BeforeTradingStart(ctx RuntimeContext, tick clock.Tick) error
	// HandleData runs on every bar tick with the current bar snapshot.
	// Fills for orders placed on earlier ticks are processed before the
	// callback, so the portfolio the strategy observes is current.
	HandleData(ctx RuntimeContext, tick clock.Tick, bars map[string]types.Bar) error
	// Analyze runs once after the last tick with the finished run result.
	Analyze(ctx RuntimeContext, result *types.RunResult) error
	// Name identifies the strategy in orders and logs.
	Name() string
}

// RuntimeContext is the bundle of engine surfaces a strategy may touch.
type RuntimeContext struct {
	// Portal provides current and historical bars, bounded by the tick.
	Portal *portal.Portal
	// TradingSystem is used to place and manage orders.
	TradingSystem execution.TradingSystem
	// Cache carries strategy state across callbacks within one run.
	Cache Cache
	// Logger is the run's logger.
	Logger *logger.Logger
}
