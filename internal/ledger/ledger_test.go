package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

type LedgerTestSuite struct {
	suite.Suite
	logger *logger.Logger
	ledger *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (suite *LedgerTestSuite) SetupSuite() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.logger = log
}

func (suite *LedgerTestSuite) SetupTest() {
	led, err := New(100000, nil, suite.logger)
	suite.Require().NoError(err)
	suite.ledger = led
}

func (suite *LedgerTestSuite) tick(n int) time.Time {
	return time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute)
}

func (suite *LedgerTestSuite) TestNewRejectsNonPositiveCash() {
	_, err := New(0, nil, suite.logger)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *LedgerTestSuite) TestBuyFillMovesCashAndPosition() {
	// Buy 5 @ 100 with 1 commission: cash = 100000 - 500 - 1 = 99499.
	err := suite.ledger.Apply(types.Fill{
		OrderID:    "o1",
		Symbol:     "AAPL",
		Amount:     5,
		Price:      100,
		Commission: 1,
		Timestamp:  suite.tick(0),
	})
	suite.Require().NoError(err)

	suite.InDelta(99499.0, suite.ledger.Cash(), 1e-9)

	position, ok := suite.ledger.Position("AAPL")
	suite.Require().True(ok)
	suite.Equal(5.0, position.Quantity)
	// Basis includes the commission: (500 + 1) / 5.
	suite.InDelta(100.2, position.CostBasis, 1e-9)
}

func (suite *LedgerTestSuite) TestSellFillAddsCash() {
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 10, Price: 100, Timestamp: suite.tick(0),
	}))

	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o2", Symbol: "AAPL", Amount: -4, Price: 110, Timestamp: suite.tick(1),
	}))

	suite.InDelta(100000-1000+440, suite.ledger.Cash(), 1e-9)

	position, ok := suite.ledger.Position("AAPL")
	suite.Require().True(ok)
	suite.Equal(6.0, position.Quantity)
	// Reducing a position leaves the basis untouched.
	suite.InDelta(100.0, position.CostBasis, 1e-9)
}

func (suite *LedgerTestSuite) TestPositionRemovedAtZero() {
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 10, Price: 100, Timestamp: suite.tick(0),
	}))
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o2", Symbol: "AAPL", Amount: -10, Price: 105, Timestamp: suite.tick(1),
	}))

	_, ok := suite.ledger.Position("AAPL")
	suite.False(ok)
	suite.Empty(suite.ledger.Positions())
}

func (suite *LedgerTestSuite) TestIncreasingPositionBlendsBasis() {
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 10, Price: 100, Timestamp: suite.tick(0),
	}))
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o2", Symbol: "AAPL", Amount: 10, Price: 110, Timestamp: suite.tick(1),
	}))

	position, ok := suite.ledger.Position("AAPL")
	suite.Require().True(ok)
	suite.Equal(20.0, position.Quantity)
	suite.InDelta(105.0, position.CostBasis, 1e-9)
}

func (suite *LedgerTestSuite) TestMarkToMarketNAVInvariant() {
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 5, Price: 100, Commission: 1, Timestamp: suite.tick(0),
	}))

	bars := map[string]types.Bar{
		"AAPL": {Time: suite.tick(1), Symbol: "AAPL", Close: 100, Volume: 1000},
	}

	snapshot, err := suite.ledger.MarkToMarket(bars, suite.tick(1))
	suite.Require().NoError(err)

	// NAV = cash + position value = 99499 + 500: only the commission is
	// lost relative to starting cash.
	suite.InDelta(99999.0, snapshot.NAV, 1e-9)
	suite.InDelta(99499.0, snapshot.Cash, 1e-9)
	suite.Len(snapshot.Positions, 1)
}

func (suite *LedgerTestSuite) TestMarkToMarketKeepsStaleMark() {
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 5, Price: 100, Timestamp: suite.tick(0),
	}))

	// No bar for AAPL this tick: the previous mark carries forward.
	snapshot, err := suite.ledger.MarkToMarket(map[string]types.Bar{}, suite.tick(1))
	suite.Require().NoError(err)
	suite.InDelta(100000.0, snapshot.NAV, 1e-9)
}

func (suite *LedgerTestSuite) TestMarkToMarketFatalWithoutAnyPrice() {
	// A position that has never been priced cannot be valued; NAV would
	// silently drift if this were tolerated.
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 5, Price: 0, Timestamp: suite.tick(0),
	}))

	_, err := suite.ledger.MarkToMarket(map[string]types.Bar{}, suite.tick(1))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarkToMarketFailed))
}

func (suite *LedgerTestSuite) TestSnapshotHistoryAppendOnly() {
	for i := 0; i < 3; i++ {
		_, err := suite.ledger.MarkToMarket(map[string]types.Bar{}, suite.tick(i))
		suite.Require().NoError(err)
	}

	history := suite.ledger.History()
	suite.Require().Len(history, 3)

	for i := 1; i < len(history); i++ {
		suite.True(history[i].Timestamp.After(history[i-1].Timestamp))
	}
}

func (suite *LedgerTestSuite) TestReturnsSeries() {
	suite.Require().NoError(suite.ledger.Apply(types.Fill{
		OrderID: "o1", Symbol: "AAPL", Amount: 1000, Price: 100, Timestamp: suite.tick(0),
	}))

	_, err := suite.ledger.MarkToMarket(map[string]types.Bar{
		"AAPL": {Time: suite.tick(1), Symbol: "AAPL", Close: 100},
	}, suite.tick(1))
	suite.Require().NoError(err)

	snapshot, err := suite.ledger.MarkToMarket(map[string]types.Bar{
		"AAPL": {Time: suite.tick(2), Symbol: "AAPL", Close: 110},
	}, suite.tick(2))
	suite.Require().NoError(err)

	// NAV went from 100000 to 110000.
	suite.InDelta(0.1, snapshot.Returns, 1e-9)
}
