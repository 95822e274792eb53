package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type OrderTestSuite struct {
	suite.Suite
}

func TestOrderSuite(t *testing.T) {
	suite.Run(t, new(OrderTestSuite))
}

func (suite *OrderTestSuite) validOrder() Order {
	return Order{
		ID:        uuid.New().String(),
		Symbol:    "AAPL",
		Amount:    10,
		Kind:      OrderKindMarket,
		Status:    OrderStatusOpen,
		CreatedAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}
}

func (suite *OrderTestSuite) TestValidate() {
	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr bool
	}{
		{"valid market order", func(o *Order) {}, false},
		{"valid limit order", func(o *Order) {
			o.Kind = OrderKindLimit
			o.LimitPrice = 150
		}, false},
		{"missing symbol", func(o *Order) { o.Symbol = "" }, true},
		{"zero amount", func(o *Order) { o.Amount = 0 }, true},
		{"malformed id", func(o *Order) { o.ID = "not-a-uuid" }, true},
		{"limit without price", func(o *Order) { o.Kind = OrderKindLimit }, true},
		{"negative limit price", func(o *Order) {
			o.Kind = OrderKindLimit
			o.LimitPrice = -1
		}, true},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			order := suite.validOrder()
			tc.mutate(&order)

			err := order.Validate()
			if tc.wantErr {
				suite.Error(err)
			} else {
				suite.NoError(err)
			}
		})
	}
}

func (suite *OrderTestSuite) TestRemainingIsSigned() {
	buy := suite.validOrder()
	buy.FilledAmount = 4
	suite.Equal(6.0, buy.Remaining())

	sell := suite.validOrder()
	sell.Amount = -10
	sell.FilledAmount = -4
	suite.Equal(-6.0, sell.Remaining())
}

func (suite *OrderTestSuite) TestIsTerminal() {
	order := suite.validOrder()

	for _, status := range []OrderStatus{OrderStatusOpen, OrderStatusPartiallyFilled} {
		order.Status = status
		suite.False(order.IsTerminal())
	}

	for _, status := range []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected} {
		order.Status = status
		suite.True(order.IsTerminal())
	}
}

func (suite *OrderTestSuite) TestFillNotional() {
	fill := Fill{Amount: -4, Price: 25}
	suite.Equal(100.0, fill.Notional())
}

func (suite *OrderTestSuite) TestPositionMath() {
	position := Position{
		Symbol:    "AAPL",
		Quantity:  10,
		CostBasis: 100,
		LastPrice: 110,
	}

	suite.InDelta(1100.0, position.MarketValue(), 1e-9)
	suite.InDelta(100.0, position.UnrealizedPnL(), 1e-9)

	short := Position{Symbol: "AAPL", Quantity: -10, CostBasis: 100, LastPrice: 110}
	suite.InDelta(-1100.0, short.MarketValue(), 1e-9)
	suite.InDelta(-100.0, short.UnrealizedPnL(), 1e-9)
}
