package commission

import (
	"math"

	"github.com/shopspring/decimal"
)

// Model computes the commission for a fill. Implementations must be pure
// functions of quantity and price with no hidden state, so that replays
// are deterministic.
type Model interface {
	// Calculate returns the commission in account currency for a fill of
	// the given quantity at the given price. Quantity may be signed.
	Calculate(quantity float64, price float64) float64
}

// PerUnit charges a fixed rate per unit traded with a minimum cost floor
// per trade.
type PerUnit struct {
	Rate    float64
	Minimum float64
}

// NewPerUnit creates a per-unit commission model.
func NewPerUnit(rate float64, minimum float64) Model {
	return &PerUnit{Rate: rate, Minimum: minimum}
}

// Calculate implements Model.
func (c *PerUnit) Calculate(quantity float64, price float64) float64 {
	fee, _ := decimal.NewFromFloat(c.Rate).Mul(decimal.NewFromFloat(math.Abs(quantity))).Float64()
	if fee < c.Minimum {
		return c.Minimum
	}

	return fee
}

// Zero charges no commission.
type Zero struct{}

// NewZero creates a zero-commission model.
func NewZero() Model {
	return &Zero{}
}

// Calculate implements Model.
func (c *Zero) Calculate(quantity float64, price float64) float64 {
	return 0.0
}

// Broker selects a commission preset by name.
type Broker string

const (
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
)

// AllBrokers lists the presets for schema generation.
var AllBrokers = []any{
	BrokerInteractiveBroker,
	BrokerZero,
}

// ForBroker returns the preset model for a broker name. Unknown names get
// the zero model.
func ForBroker(broker Broker) Model {
	switch broker {
	case BrokerInteractiveBroker:
		// 0.005 per share with a 1 USD minimum per trade.
		return NewPerUnit(0.005, 1.0)
	case BrokerZero:
		return NewZero()
	default:
		return NewZero()
	}
}
