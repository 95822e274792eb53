package main

import (
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/simfolio-lab/simfolio/internal/clock"
	"github.com/simfolio-lab/simfolio/internal/runtime"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// BuyAndHoldStrategy buys a fixed quantity of each configured symbol on
// its first bar and holds to the end of the run.
type BuyAndHoldStrategy struct {
	symbols  []string
	quantity float64
}

type buyAndHoldConfig struct {
	Symbols  []string `yaml:"symbols"`
	Quantity float64  `yaml:"quantity"`
}

func NewBuyAndHoldStrategy() *BuyAndHoldStrategy {
	return &BuyAndHoldStrategy{}
}

// Initialize implements runtime.Strategy.
func (s *BuyAndHoldStrategy) Initialize(config string) error {
	var parsed buyAndHoldConfig
	if err := yaml.Unmarshal([]byte(config), &parsed); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse buy_and_hold config", err)
	}

	if len(parsed.Symbols) == 0 {
		return errors.New(errors.ErrCodeStrategyConfigError, "buy_and_hold needs at least one symbol")
	}

	if parsed.Quantity <= 0 {
		parsed.Quantity = 1
	}

	s.symbols = parsed.Symbols
	s.quantity = parsed.Quantity

	return nil
}

// BeforeTradingStart implements runtime.Strategy.
func (s *BuyAndHoldStrategy) BeforeTradingStart(ctx runtime.RuntimeContext, tick clock.Tick) error {
	return nil
}

// HandleData implements runtime.Strategy.
func (s *BuyAndHoldStrategy) HandleData(ctx runtime.RuntimeContext, tick clock.Tick, bars map[string]types.Bar) error {
	for _, symbol := range s.symbols {
		if _, held := ctx.TradingSystem.GetPosition(symbol); held {
			continue
		}

		if _, ok := bars[symbol]; !ok {
			continue
		}

		order, err := ctx.TradingSystem.PlaceOrder(symbol, s.quantity)
		if err != nil {
			return err
		}

		ctx.Logger.Info("Entry order placed",
			zap.String("symbol", symbol),
			zap.String("order_id", order.ID),
		)
	}

	return nil
}

// Analyze implements runtime.Strategy.
func (s *BuyAndHoldStrategy) Analyze(ctx runtime.RuntimeContext, result *types.RunResult) error {
	ctx.Logger.Info("Run finished",
		zap.Float64("total_return", result.Stats.TotalReturn),
		zap.Float64("max_drawdown", result.Stats.MaxDrawdown),
	)

	return nil
}

// Name implements runtime.Strategy.
func (s *BuyAndHoldStrategy) Name() string {
	return "buy_and_hold"
}
