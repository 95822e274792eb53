package execution

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simfolio-lab/simfolio/internal/assets"
	"github.com/simfolio-lab/simfolio/internal/execution/commission"
	"github.com/simfolio-lab/simfolio/internal/execution/slippage"
	"github.com/simfolio-lab/simfolio/internal/ledger"
	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// TradingSystem is the order-facing surface handed to strategies. The
// execution engine implements it against the simulated ledger.
type TradingSystem interface {
	// PlaceOrder submits a market order. Amount is signed: positive buys,
	// negative sells.
	PlaceOrder(symbol string, amount float64) (types.Order, error)
	// PlaceLimitOrder submits a limit order.
	PlaceLimitOrder(symbol string, amount float64, limitPrice float64) (types.Order, error)
	// CancelOrder cancels a single open order.
	CancelOrder(orderID string) error
	// CancelAllOrders cancels every open order.
	CancelAllOrders() error
	// GetOrder returns an order by id.
	GetOrder(orderID string) (types.Order, error)
	// GetOpenOrders returns the non-terminal orders in submission order.
	GetOpenOrders() []types.Order
	// GetPosition returns the open position for a symbol, if any.
	GetPosition(symbol string) (types.Position, bool)
	// GetPositions returns all open positions sorted by symbol.
	GetPositions() []types.Position
	// GetCash returns the current cash balance.
	GetCash() float64
	// GetMaxBuyQuantity returns the largest quantity affordable at the
	// given price with the current cash, commission included.
	GetMaxBuyQuantity(symbol string, price float64) (float64, error)
}

// Engine processes orders against per-tick bar snapshots. Orders fill in
// submission order, at the bar close adjusted by the slippage model,
// capped by the slippage model's volume participation limit, with
// commission deducted alongside the notional. One fill at most is created
// per order per tick.
type Engine struct {
	ledger      *ledger.Ledger
	commission  commission.Model
	slippage    slippage.Model
	allowMargin bool
	logger      *logger.Logger
	// registry, when set, gates order submission on the symbol resolving
	// to a listed asset at the current tick.
	registry *assets.Registry

	orders map[string]*types.Order
	// open holds non-terminal order ids in submission order, which is the
	// deterministic tie-break for same-tick orders.
	open     []string
	sequence int
	now      time.Time
	strategy string
}

// New creates an execution engine over the given ledger and models.
func New(
	led *ledger.Ledger,
	commissionModel commission.Model,
	slippageModel slippage.Model,
	allowMargin bool,
	log *logger.Logger,
) *Engine {
	if commissionModel == nil {
		commissionModel = commission.NewZero()
	}

	if slippageModel == nil {
		slippageModel = slippage.NewNoSlippage()
	}

	return &Engine{
		ledger:      led,
		commission:  commissionModel,
		slippage:    slippageModel,
		allowMargin: allowMargin,
		logger:      log,
		orders:      make(map[string]*types.Order),
	}
}

// SetTick positions the engine at the current simulation tick. Orders
// placed afterwards carry this timestamp.
func (e *Engine) SetTick(tick time.Time) {
	e.now = tick
}

// SetStrategyName tags subsequently placed orders with the strategy name.
func (e *Engine) SetStrategyName(name string) {
	e.strategy = name
}

// SetAssetRegistry installs a registry for date-sensitive symbol checks.
// A nil registry permits every symbol.
func (e *Engine) SetAssetRegistry(registry *assets.Registry) {
	e.registry = registry
}

// PlaceOrder implements TradingSystem.
func (e *Engine) PlaceOrder(symbol string, amount float64) (types.Order, error) {
	return e.submit(symbol, amount, types.OrderKindMarket, 0)
}

// PlaceLimitOrder implements TradingSystem.
func (e *Engine) PlaceLimitOrder(symbol string, amount float64, limitPrice float64) (types.Order, error) {
	return e.submit(symbol, amount, types.OrderKindLimit, limitPrice)
}

func (e *Engine) submit(symbol string, amount float64, kind types.OrderKind, limitPrice float64) (types.Order, error) {
	if amount == 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidOrder, "order amount must be non-zero for %s", symbol)
	}

	order := &types.Order{
		ID:           uuid.New().String(),
		Symbol:       symbol,
		Amount:       amount,
		Kind:         kind,
		LimitPrice:   limitPrice,
		Status:       types.OrderStatusOpen,
		CreatedAt:    e.now,
		Sequence:     e.sequence,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy},
		StrategyName: e.strategy,
	}

	if err := order.Validate(); err != nil {
		return types.Order{}, err
	}

	if err := e.checkTradable(order); err != nil {
		return *order, err
	}

	e.sequence++
	e.orders[order.ID] = order
	e.open = append(e.open, order.ID)

	if err := e.record(order); err != nil {
		return types.Order{}, err
	}

	e.logger.Debug("Order placed",
		zap.String("id", order.ID),
		zap.String("symbol", symbol),
		zap.Float64("amount", amount),
		zap.String("kind", string(kind)),
	)

	return *order, nil
}

// checkTradable rejects orders whose symbol resolves to no listed asset
// at the current tick. The rejected order is journaled like any other
// terminal order.
func (e *Engine) checkTradable(order *types.Order) error {
	if e.registry == nil {
		return nil
	}

	_, err := e.registry.Resolve(order.Symbol, e.now)
	if err == nil {
		return nil
	}

	order.Status = types.OrderStatusRejected
	order.Reason = types.Reason{Reason: types.OrderReasonAssetExpired, Message: err.Error()}
	e.orders[order.ID] = order

	if recordErr := e.record(order); recordErr != nil {
		e.logger.Warn("Failed to journal rejected order", zap.String("id", order.ID), zap.Error(recordErr))
	}

	e.logger.Info("Order rejected",
		zap.String("id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("reason", types.OrderReasonAssetExpired),
	)

	return errors.Wrapf(errors.ErrCodeAssetNotTradable, err, "%s is not tradable at %s", order.Symbol, e.now)
}

// ProcessTick attempts to fill every open order against the tick's bar
// snapshot. Orders whose symbol has no bar this tick are left untouched.
// Returns the fills created, in processing order.
func (e *Engine) ProcessTick(bars map[string]types.Bar, tick time.Time) ([]types.Fill, error) {
	var fills []types.Fill

	for _, id := range e.openIDs() {
		order := e.orders[id]

		bar, ok := bars[order.Symbol]
		if !ok {
			continue
		}

		fill, filled, err := e.tryFill(order, bar, tick)
		if err != nil {
			return fills, err
		}

		if filled {
			fills = append(fills, fill)
		}
	}

	e.compactOpen()

	return fills, nil
}

func (e *Engine) tryFill(order *types.Order, bar types.Bar, tick time.Time) (types.Fill, bool, error) {
	if order.Kind == types.OrderKindLimit && !limitCrossed(order, bar) {
		return types.Fill{}, false, nil
	}

	price, fillable := e.slippage.Process(bar, order.Remaining())
	if fillable == 0 {
		return types.Fill{}, false, nil
	}

	if order.Kind == types.OrderKindLimit && !limitPriceAcceptable(order, price) {
		return types.Fill{}, false, nil
	}

	if !e.allowMargin {
		adjusted, reason, ok := e.constrain(order, fillable, price)
		if !ok {
			e.reject(order, reason)

			return types.Fill{}, false, nil
		}

		fillable = adjusted
	}

	fee := e.commission.Calculate(fillable, price)

	fill := types.Fill{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Amount:     fillable,
		Price:      price,
		Commission: fee,
		Timestamp:  tick,
	}

	if err := e.ledger.Apply(fill); err != nil {
		return types.Fill{}, false, err
	}

	order.FilledAmount += fillable
	if order.Remaining() == 0 {
		order.Status = types.OrderStatusFilled
	} else {
		order.Status = types.OrderStatusPartiallyFilled
	}

	if err := e.record(order); err != nil {
		return types.Fill{}, false, err
	}

	e.logger.Debug("Order filled",
		zap.String("id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.Float64("amount", fillable),
		zap.Float64("price", price),
		zap.Float64("commission", fee),
		zap.String("status", string(order.Status)),
	)

	return fill, true, nil
}

// constrain checks the cash and inventory limits of a margin-free
// account. Buys must be fully affordable including commission; sells are
// capped at the held quantity.
func (e *Engine) constrain(order *types.Order, fillable float64, price float64) (float64, string, bool) {
	if order.IsBuy() {
		cost := fillable*price + e.commission.Calculate(fillable, price)
		if cost > e.ledger.Cash() {
			return 0, types.OrderReasonInsufficientFunds, false
		}

		return fillable, "", true
	}

	position, ok := e.ledger.Position(order.Symbol)
	if !ok || position.Quantity <= 0 {
		return 0, types.OrderReasonInsufficientFunds, false
	}

	if math.Abs(fillable) > position.Quantity {
		fillable = -position.Quantity
	}

	return fillable, "", true
}

func (e *Engine) reject(order *types.Order, reason string) {
	order.Status = types.OrderStatusRejected
	order.Reason = types.Reason{Reason: reason}

	if err := e.record(order); err != nil {
		e.logger.Warn("Failed to journal rejected order", zap.String("id", order.ID), zap.Error(err))
	}

	e.logger.Info("Order rejected",
		zap.String("id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("reason", reason),
	)
}

func limitCrossed(order *types.Order, bar types.Bar) bool {
	if order.IsBuy() {
		return bar.Low <= order.LimitPrice
	}

	return bar.High >= order.LimitPrice
}

func limitPriceAcceptable(order *types.Order, price float64) bool {
	if order.IsBuy() {
		return price <= order.LimitPrice
	}

	return price >= order.LimitPrice
}

// CancelOrder implements TradingSystem.
func (e *Engine) CancelOrder(orderID string) error {
	order, ok := e.orders[orderID]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", orderID)
	}

	if order.IsTerminal() {
		return errors.Newf(errors.ErrCodeOrderTerminal, "order %s is already %s", orderID, order.Status)
	}

	return e.cancel(order, types.OrderReasonStrategy, "cancelled by strategy")
}

// CancelAllOrders implements TradingSystem.
func (e *Engine) CancelAllOrders() error {
	for _, id := range e.openIDs() {
		if err := e.cancel(e.orders[id], types.OrderReasonStrategy, "cancelled by strategy"); err != nil {
			return err
		}
	}

	return nil
}

// CancelRemaining cancels every open order at the end of the run so no
// order is left in a non-terminal state.
func (e *Engine) CancelRemaining() error {
	for _, id := range e.openIDs() {
		err := e.cancel(e.orders[id], types.OrderReasonEndOfSimulation, "simulation ended before fill")
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) cancel(order *types.Order, reason string, message string) error {
	order.Status = types.OrderStatusCancelled
	order.Reason = types.Reason{Reason: reason, Message: message}

	e.compactOpen()

	return e.record(order)
}

// GetOrder implements TradingSystem.
func (e *Engine) GetOrder(orderID string) (types.Order, error) {
	order, ok := e.orders[orderID]
	if !ok {
		return types.Order{}, errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", orderID)
	}

	return *order, nil
}

// GetOpenOrders implements TradingSystem.
func (e *Engine) GetOpenOrders() []types.Order {
	ids := e.openIDs()

	orders := make([]types.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *e.orders[id])
	}

	return orders
}

// Orders returns every order of the run sorted by submission order.
func (e *Engine) Orders() []types.Order {
	orders := make([]types.Order, 0, len(e.orders))
	for _, order := range e.orders {
		orders = append(orders, *order)
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Sequence < orders[j].Sequence
	})

	return orders
}

// GetPosition implements TradingSystem.
func (e *Engine) GetPosition(symbol string) (types.Position, bool) {
	return e.ledger.Position(symbol)
}

// GetPositions implements TradingSystem.
func (e *Engine) GetPositions() []types.Position {
	return e.ledger.Positions()
}

// GetCash implements TradingSystem.
func (e *Engine) GetCash() float64 {
	return e.ledger.Cash()
}

// GetMaxBuyQuantity implements TradingSystem.
func (e *Engine) GetMaxBuyQuantity(symbol string, price float64) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "price must be positive, got %f", price)
	}

	cash := e.ledger.Cash()
	quantity := cash / price

	// Back off until the commission fits too.
	for quantity > 0 {
		cost := quantity*price + e.commission.Calculate(quantity, price)
		if cost <= cash {
			return quantity, nil
		}

		quantity = (cash - e.commission.Calculate(quantity, price)) / price
	}

	return 0, nil
}

// openIDs returns a copy of the open id list so callbacks placing new
// orders mid-iteration cannot perturb the current pass.
func (e *Engine) openIDs() []string {
	ids := make([]string, 0, len(e.open))

	for _, id := range e.open {
		if !e.orders[id].IsTerminal() {
			ids = append(ids, id)
		}
	}

	return ids
}

func (e *Engine) compactOpen() {
	remaining := e.open[:0]

	for _, id := range e.open {
		if !e.orders[id].IsTerminal() {
			remaining = append(remaining, id)
		}
	}

	e.open = remaining
}

func (e *Engine) record(order *types.Order) error {
	journal := e.ledger.Journal()
	if journal == nil {
		return nil
	}

	return journal.RecordOrder(*order)
}
