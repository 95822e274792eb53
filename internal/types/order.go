package types

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/simfolio-lab/simfolio/pkg/errors"
)

type OrderKind string

type OrderStatus string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

const (
	OrderReasonStrategy          string = "strategy"
	OrderReasonInsufficientFunds string = "insufficient_funds"
	OrderReasonNoMarketData      string = "no_market_data"
	OrderReasonEndOfSimulation   string = "end_of_simulation"
	OrderReasonInvalidAmount     string = "invalid_amount"
	OrderReasonAssetExpired      string = "asset_expired"
)

// Reason records why an order reached its current status.
type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is a strategy intent to change a position. Amount is signed:
// positive buys, negative sells. Only the execution engine mutates an
// order, and terminal statuses are never modified again.
type Order struct {
	ID     string    `yaml:"id" json:"id" csv:"id" validate:"required,uuid"`
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Amount float64   `yaml:"amount" json:"amount" csv:"amount" validate:"required"`
	Kind   OrderKind `yaml:"kind" json:"kind" csv:"kind" validate:"required,oneof=MARKET LIMIT"`
	// LimitPrice bounds the execution price for limit orders. Ignored for
	// market orders.
	LimitPrice float64     `yaml:"limit_price" json:"limit_price" csv:"limit_price" validate:"gte=0"`
	Status     OrderStatus `yaml:"status" json:"status" csv:"status"`
	// CreatedAt is the simulation tick at which the order was placed.
	CreatedAt time.Time `yaml:"created_at" json:"created_at" csv:"created_at" validate:"required"`
	// Sequence orders submissions within a single tick; with CreatedAt it
	// gives the deterministic processing order.
	Sequence int `yaml:"sequence" json:"sequence" csv:"sequence"`
	// FilledAmount accumulates executed amount, same sign as Amount.
	FilledAmount float64 `yaml:"filled_amount" json:"filled_amount" csv:"filled_amount"`
	Reason       Reason  `yaml:"reason" json:"reason" csv:"reason"`
	StrategyName string  `yaml:"strategy_name" json:"strategy_name" csv:"strategy_name"`
}

// IsBuy reports whether the order increases the position.
func (o *Order) IsBuy() bool {
	return o.Amount > 0
}

// Remaining returns the unfilled amount, signed like Amount.
func (o *Order) Remaining() float64 {
	return o.Amount - o.FilledAmount
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if o.Kind == OrderKindLimit && o.LimitPrice <= 0 {
		return errors.Newf(errors.ErrCodeInvalidOrder, "limit order requires a positive limit price, got %f", o.LimitPrice)
	}

	return nil
}

// Fill is a single execution against an order. At most one fill is created
// per order per tick.
type Fill struct {
	OrderID    string    `yaml:"order_id" json:"order_id" csv:"order_id"`
	Symbol     string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Amount     float64   `yaml:"amount" json:"amount" csv:"amount"`
	Price      float64   `yaml:"price" json:"price" csv:"price"`
	Commission float64   `yaml:"commission" json:"commission" csv:"commission"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
}

// Notional returns the unsigned cash value of the fill before commission.
func (f Fill) Notional() float64 {
	return math.Abs(f.Amount) * f.Price
}
