package main

import (
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/simfolio-lab/simfolio/internal/clock"
	"github.com/simfolio-lab/simfolio/internal/indicator"
	"github.com/simfolio-lab/simfolio/internal/runtime"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// MACrossStrategy holds each symbol while its fast moving average is
// above the slow one and exits when the averages cross back.
type MACrossStrategy struct {
	symbols    []string
	quantity   float64
	fastPeriod int
	slowPeriod int
	frequency  types.Frequency
}

type maCrossConfig struct {
	Symbols    []string `yaml:"symbols"`
	Quantity   float64  `yaml:"quantity"`
	FastPeriod int      `yaml:"fast_period"`
	SlowPeriod int      `yaml:"slow_period"`
	Frequency  string   `yaml:"frequency"`
}

func NewMACrossStrategy() *MACrossStrategy {
	return &MACrossStrategy{}
}

// Initialize implements runtime.Strategy.
func (s *MACrossStrategy) Initialize(config string) error {
	parsed := maCrossConfig{
		Quantity:   1,
		FastPeriod: 10,
		SlowPeriod: 30,
		Frequency:  string(types.Frequency1d),
	}

	if err := yaml.Unmarshal([]byte(config), &parsed); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse ma_cross config", err)
	}

	if len(parsed.Symbols) == 0 {
		return errors.New(errors.ErrCodeStrategyConfigError, "ma_cross needs at least one symbol")
	}

	if parsed.FastPeriod <= 0 || parsed.SlowPeriod <= parsed.FastPeriod {
		return errors.Newf(errors.ErrCodeStrategyConfigError,
			"ma_cross needs 0 < fast_period < slow_period, got %d and %d", parsed.FastPeriod, parsed.SlowPeriod)
	}

	frequency, err := types.ParseFrequency(parsed.Frequency)
	if err != nil {
		return err
	}

	s.symbols = parsed.Symbols
	s.quantity = parsed.Quantity
	s.fastPeriod = parsed.FastPeriod
	s.slowPeriod = parsed.SlowPeriod
	s.frequency = frequency

	return nil
}

// BeforeTradingStart implements runtime.Strategy.
func (s *MACrossStrategy) BeforeTradingStart(ctx runtime.RuntimeContext, tick clock.Tick) error {
	return nil
}

// HandleData implements runtime.Strategy.
func (s *MACrossStrategy) HandleData(ctx runtime.RuntimeContext, tick clock.Tick, bars map[string]types.Bar) error {
	for _, symbol := range s.symbols {
		if _, ok := bars[symbol]; !ok {
			continue
		}

		history, err := ctx.Portal.History([]string{symbol}, s.slowPeriod, s.frequency, tick.Time)
		if err != nil {
			return err
		}

		fast, err := indicator.SMA(history, s.fastPeriod)
		if errors.HasCode(err, errors.ErrCodeInsufficientData) {
			// Still warming up.
			continue
		} else if err != nil {
			return err
		}

		slow, err := indicator.SMA(history, s.slowPeriod)
		if errors.HasCode(err, errors.ErrCodeInsufficientData) {
			continue
		} else if err != nil {
			return err
		}

		position, held := ctx.TradingSystem.GetPosition(symbol)

		switch {
		case fast > slow && !held:
			order, err := ctx.TradingSystem.PlaceOrder(symbol, s.quantity)
			if err != nil {
				return err
			}

			ctx.Logger.Info("Cross entry",
				zap.String("symbol", symbol),
				zap.Float64("fast", fast),
				zap.Float64("slow", slow),
				zap.String("order_id", order.ID),
			)

		case fast < slow && held:
			order, err := ctx.TradingSystem.PlaceOrder(symbol, -position.Quantity)
			if err != nil {
				return err
			}

			ctx.Logger.Info("Cross exit",
				zap.String("symbol", symbol),
				zap.Float64("fast", fast),
				zap.Float64("slow", slow),
				zap.String("order_id", order.ID),
			)
		}
	}

	return nil
}

// Analyze implements runtime.Strategy.
func (s *MACrossStrategy) Analyze(ctx runtime.RuntimeContext, result *types.RunResult) error {
	ctx.Logger.Info("Run finished",
		zap.Float64("total_return", result.Stats.TotalReturn),
		zap.Float64("sharpe", result.Stats.SharpeRatio),
		zap.Float64("max_drawdown", result.Stats.MaxDrawdown),
	)

	return nil
}

// Name implements runtime.Strategy.
func (s *MACrossStrategy) Name() string {
	return "ma_cross"
}
