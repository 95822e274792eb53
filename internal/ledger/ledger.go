package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Ledger is the single owner of portfolio state: cash, open positions and
// the snapshot history. Fills change cash and positions; mark-to-market
// appends one immutable snapshot per tick. All money math goes through
// decimal so that cash plus position value always reconciles to NAV.
type Ledger struct {
	cash         decimal.Decimal
	startingCash float64
	positions    map[string]*types.Position
	history      []types.Snapshot
	journal      *Journal
	logger       *logger.Logger
}

// New creates a ledger with the given starting cash. The journal may be
// nil when trade persistence is not wanted.
func New(startingCash float64, journal *Journal, log *logger.Logger) (*Ledger, error) {
	if startingCash <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "starting cash must be positive, got %f", startingCash)
	}

	return &Ledger{
		cash:         decimal.NewFromFloat(startingCash),
		startingCash: startingCash,
		positions:    make(map[string]*types.Position),
		journal:      journal,
		logger:       log,
	}, nil
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	cash, _ := l.cash.Float64()

	return cash
}

// StartingCash returns the initial cash balance.
func (l *Ledger) StartingCash() float64 {
	return l.startingCash
}

// Position returns the open position for a symbol, if any.
func (l *Ledger) Position(symbol string) (types.Position, bool) {
	position, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}

	return *position, true
}

// Positions returns copies of the open positions sorted by symbol.
func (l *Ledger) Positions() []types.Position {
	positions := make([]types.Position, 0, len(l.positions))
	for _, position := range l.positions {
		positions = append(positions, *position)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	return positions
}

// Apply books one fill: cash moves by -(amount * price) - commission and
// the position is updated with a weighted-average cost basis. A position
// whose quantity returns to zero is removed.
func (l *Ledger) Apply(fill types.Fill) error {
	if fill.Amount == 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "fill amount must be non-zero")
	}

	amount := decimal.NewFromFloat(fill.Amount)
	price := decimal.NewFromFloat(fill.Price)
	commission := decimal.NewFromFloat(fill.Commission)

	l.cash = l.cash.Sub(amount.Mul(price)).Sub(commission)

	l.applyToPosition(fill, amount, price, commission)

	if l.journal != nil {
		if err := l.journal.RecordFill(fill); err != nil {
			return err
		}
	}

	l.logger.Debug("Fill applied",
		zap.String("symbol", fill.Symbol),
		zap.Float64("amount", fill.Amount),
		zap.Float64("price", fill.Price),
		zap.Float64("commission", fill.Commission),
		zap.String("cash", l.cash.String()),
	)

	return nil
}

func (l *Ledger) applyToPosition(fill types.Fill, amount, price, commission decimal.Decimal) {
	position, ok := l.positions[fill.Symbol]
	if !ok {
		// Commission is folded into the entry basis per unit.
		basis := price.Add(commission.Div(amount.Abs()))
		basisValue, _ := basis.Float64()

		l.positions[fill.Symbol] = &types.Position{
			Symbol:        fill.Symbol,
			Quantity:      fill.Amount,
			CostBasis:     basisValue,
			LastPrice:     fill.Price,
			LastPriceTime: fill.Timestamp,
			OpenedAt:      fill.Timestamp,
		}

		return
	}

	oldQty := decimal.NewFromFloat(position.Quantity)
	newQty := oldQty.Add(amount)

	switch {
	case newQty.IsZero():
		delete(l.positions, fill.Symbol)

		return
	case oldQty.Sign() == amount.Sign():
		// Increasing the position: blend the basis over the combined
		// quantity, commission included.
		oldCost := oldQty.Abs().Mul(decimal.NewFromFloat(position.CostBasis))
		addCost := amount.Abs().Mul(price).Add(commission)
		basis, _ := oldCost.Add(addCost).Div(newQty.Abs()).Float64()
		position.CostBasis = basis
	case oldQty.Sign() != newQty.Sign():
		// The fill crossed through zero: the surviving side was entered at
		// the fill price.
		position.CostBasis = fill.Price
		position.OpenedAt = fill.Timestamp
	default:
		// Reducing the position leaves the basis untouched; the realized
		// gain shows up in cash.
	}

	position.Quantity, _ = newQty.Float64()
	position.LastPrice = fill.Price
	position.LastPriceTime = fill.Timestamp
}

// MarkToMarket revalues open positions at the tick's bars, computes NAV
// and appends a snapshot. A position whose symbol is missing from the
// snapshot keeps its previous mark; a position that has never been priced
// is a fatal bookkeeping error because NAV would silently drift.
func (l *Ledger) MarkToMarket(bars map[string]types.Bar, tick time.Time) (types.Snapshot, error) {
	nav := l.cash

	for symbol, position := range l.positions {
		if bar, ok := bars[symbol]; ok {
			position.LastPrice = bar.Close
			position.LastPriceTime = bar.Time
		}

		if position.LastPrice == 0 {
			return types.Snapshot{}, errors.Newf(errors.ErrCodeMarkToMarketFailed,
				"position %s has no observable price at %s", symbol, tick)
		}

		nav = nav.Add(decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(position.LastPrice)))
	}

	navValue, _ := nav.Float64()

	previous := l.startingCash
	if len(l.history) > 0 {
		previous = l.history[len(l.history)-1].NAV
	}

	returns := 0.0
	if previous != 0 {
		returns, _ = nav.Div(decimal.NewFromFloat(previous)).Sub(decimal.NewFromInt(1)).Float64()
	}

	snapshot := types.Snapshot{
		Timestamp: tick,
		Cash:      l.Cash(),
		NAV:       navValue,
		Returns:   returns,
		Positions: l.Positions(),
	}

	l.history = append(l.history, snapshot)

	return snapshot, nil
}

// NAV returns the NAV of the latest snapshot, or starting cash before the
// first mark.
func (l *Ledger) NAV() float64 {
	if len(l.history) == 0 {
		return l.startingCash
	}

	return l.history[len(l.history)-1].NAV
}

// History returns the snapshot series in tick order.
func (l *Ledger) History() []types.Snapshot {
	return l.history
}

// Journal exposes the trade journal, if one is attached.
func (l *Ledger) Journal() *Journal {
	return l.journal
}
