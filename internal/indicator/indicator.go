// Package indicator computes technical indicators over bar history
// windows, as returned by the data portal. All functions consume bars in
// ascending time order and fail with an insufficient-data error when the
// window is shorter than the requested period.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// SMA returns the simple moving average of the closing prices over the
// last period bars.
func SMA(bars []types.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "period must be positive, got %d", period)
	}

	if len(bars) < period {
		return 0, errors.Newf(errors.ErrCodeInsufficientData, "need %d bars for SMA, have %d", period, len(bars))
	}

	sum := decimal.Zero
	for _, bar := range bars[len(bars)-period:] {
		sum = sum.Add(decimal.NewFromFloat(bar.Close))
	}

	value, _ := sum.Div(decimal.NewFromInt(int64(period))).Float64()

	return value, nil
}

// EMA returns the exponential moving average of the closing prices,
// seeded with the SMA of the first period bars.
func EMA(bars []types.Bar, period int) (float64, error) {
	seed, err := SMA(bars[:min(period, len(bars))], period)
	if err != nil {
		return 0, err
	}

	multiplier := 2.0 / (float64(period) + 1)

	ema := seed
	for _, bar := range bars[period:] {
		ema = (bar.Close-ema)*multiplier + ema
	}

	return ema, nil
}

// RSI returns the Relative Strength Index over the last period bar-to-bar
// close changes, in the range [0, 100]. A window with no losses reports
// 100, a window with no gains reports 0.
func RSI(bars []types.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "period must be positive, got %d", period)
	}

	// period changes need period+1 closes.
	if len(bars) < period+1 {
		return 0, errors.Newf(errors.ErrCodeInsufficientData, "need %d bars for RSI, have %d", period+1, len(bars))
	}

	window := bars[len(bars)-period-1:]

	var gains, losses float64

	for i := 1; i < len(window); i++ {
		change := window[i].Close - window[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if losses == 0 {
		if gains == 0 {
			return 50, nil
		}

		return 100, nil
	}

	rs := (gains / float64(period)) / (losses / float64(period))

	return 100 - 100/(1+rs), nil
}
