package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

type IndicatorTestSuite struct {
	suite.Suite
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func (suite *IndicatorTestSuite) bars(closes ...float64) []types.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, close := range closes {
		bars[i] = types.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Symbol: "AAPL",
			Close:  close,
		}
	}

	return bars
}

func (suite *IndicatorTestSuite) TestSMA() {
	value, err := SMA(suite.bars(1, 2, 3, 4, 5), 5)
	suite.Require().NoError(err)
	suite.InDelta(3.0, value, 1e-9)

	// Only the trailing window counts.
	value, err = SMA(suite.bars(100, 1, 2, 3), 3)
	suite.Require().NoError(err)
	suite.InDelta(2.0, value, 1e-9)
}

func (suite *IndicatorTestSuite) TestSMAInsufficientData() {
	_, err := SMA(suite.bars(1, 2), 5)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientData))

	_, err = SMA(suite.bars(1, 2), 0)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *IndicatorTestSuite) TestEMAConstantSeries() {
	value, err := EMA(suite.bars(10, 10, 10, 10, 10, 10), 3)
	suite.Require().NoError(err)
	suite.InDelta(10.0, value, 1e-9)
}

func (suite *IndicatorTestSuite) TestEMAWeighsRecentCloses() {
	sma, err := SMA(suite.bars(1, 2, 3, 4, 5, 6, 7, 8), 8)
	suite.Require().NoError(err)

	ema, err := EMA(suite.bars(1, 2, 3, 4, 5, 6, 7, 8), 4)
	suite.Require().NoError(err)

	// A rising series pulls the EMA above the full-window average.
	suite.Greater(ema, sma)
}

func (suite *IndicatorTestSuite) TestRSI() {
	tests := []struct {
		name     string
		closes   []float64
		period   int
		expected float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5}, 4, 100},
		{"all losses", []float64{5, 4, 3, 2, 1}, 4, 0},
		{"flat series", []float64{3, 3, 3, 3, 3}, 4, 50},
		{"balanced", []float64{10, 11, 10, 11, 10}, 4, 50},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			value, err := RSI(suite.bars(tc.closes...), tc.period)
			suite.Require().NoError(err)
			suite.InDelta(tc.expected, value, 1e-9)
		})
	}
}

func (suite *IndicatorTestSuite) TestRSIInsufficientData() {
	_, err := RSI(suite.bars(1, 2, 3), 4)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientData))
}
