package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents current holdings of an asset. A position exists only
// while Quantity is non-zero; the ledger removes it when the quantity
// returns to zero.
type Position struct {
	Symbol string `yaml:"symbol" json:"symbol" csv:"symbol"`
	// Quantity is signed; negative quantities are short positions.
	Quantity float64 `yaml:"quantity" json:"quantity" csv:"quantity"`
	// CostBasis is the weighted-average entry price per unit, commission
	// included.
	CostBasis float64 `yaml:"cost_basis" json:"cost_basis" csv:"cost_basis"`
	// LastPrice is the latest known price at or before the current tick.
	LastPrice float64 `yaml:"last_price" json:"last_price" csv:"last_price"`
	// LastPriceTime is the tick the last price was observed at.
	LastPriceTime time.Time `yaml:"last_price_time" json:"last_price_time" csv:"last_price_time"`
	OpenedAt      time.Time `yaml:"opened_at" json:"opened_at" csv:"opened_at"`
}

// MarketValue returns Quantity * LastPrice.
func (p *Position) MarketValue() float64 {
	value, _ := decimal.NewFromFloat(p.Quantity).Mul(decimal.NewFromFloat(p.LastPrice)).Float64()

	return value
}

// UnrealizedPnL returns the mark-to-market gain over the cost basis.
func (p *Position) UnrealizedPnL() float64 {
	qty := decimal.NewFromFloat(p.Quantity)
	pnl := qty.Mul(decimal.NewFromFloat(p.LastPrice)).Sub(qty.Mul(decimal.NewFromFloat(p.CostBasis)))

	value, _ := pnl.Float64()

	return value
}
