package slippage

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/simfolio-lab/simfolio/internal/types"
)

// Model decides the execution price and the fillable quantity for an
// order against one bar. Implementations must be pure functions of the
// bar and requested amount so replays are deterministic.
type Model interface {
	// Process returns the execution price and the quantity that can fill
	// on this bar. Amount is the signed remaining order quantity; the
	// returned fillable keeps its sign and never exceeds it in magnitude.
	Process(bar types.Bar, amount float64) (price float64, fillable float64)
}

// NoSlippage fills the full remaining quantity at the bar close.
type NoSlippage struct{}

// NewNoSlippage creates a model with no price impact and no volume cap.
func NewNoSlippage() Model {
	return &NoSlippage{}
}

// Process implements Model.
func (m *NoSlippage) Process(bar types.Bar, amount float64) (float64, float64) {
	return bar.Close, amount
}

// VolumeShare caps each fill at a fraction of the bar volume and moves
// the price against the order quadratically in the consumed share of
// volume. Large orders fill across several bars instead of printing an
// impossible single-bar trade.
type VolumeShare struct {
	// VolumeLimit is the maximum fraction of a bar's volume one order may
	// consume.
	VolumeLimit float64
	// PriceImpact scales the quadratic impact term.
	PriceImpact float64
}

// NewVolumeShare creates a volume-share model. Zero values fall back to
// the defaults of 2.5% of bar volume and a 0.1 impact constant.
func NewVolumeShare(volumeLimit float64, priceImpact float64) Model {
	if volumeLimit <= 0 {
		volumeLimit = 0.025
	}

	if priceImpact <= 0 {
		priceImpact = 0.1
	}

	return &VolumeShare{VolumeLimit: volumeLimit, PriceImpact: priceImpact}
}

// Process implements Model.
func (m *VolumeShare) Process(bar types.Bar, amount float64) (float64, float64) {
	if bar.Volume <= 0 {
		return bar.Close, 0
	}

	maxFill := m.VolumeLimit * bar.Volume

	fillable := amount
	if math.Abs(fillable) > maxFill {
		fillable = math.Copysign(maxFill, amount)
	}

	share := math.Abs(fillable) / bar.Volume
	if share > m.VolumeLimit {
		share = m.VolumeLimit
	}

	impact := decimal.NewFromFloat(m.PriceImpact).
		Mul(decimal.NewFromFloat(share)).
		Mul(decimal.NewFromFloat(share))

	close := decimal.NewFromFloat(bar.Close)

	// Impact moves the price against the order: up for buys, down for
	// sells.
	var price decimal.Decimal
	if amount > 0 {
		price = close.Mul(decimal.NewFromInt(1).Add(impact))
	} else {
		price = close.Mul(decimal.NewFromInt(1).Sub(impact))
	}

	result, _ := price.Float64()

	return result, fillable
}
