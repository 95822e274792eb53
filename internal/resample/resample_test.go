package resample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/simfolio-lab/simfolio/internal/calendar"
	"github.com/simfolio-lab/simfolio/internal/types"
)

type ResampleTestSuite struct {
	suite.Suite
	session  calendar.SessionWindow
	sessions []calendar.SessionWindow
}

func TestResampleSuite(t *testing.T) {
	suite.Run(t, new(ResampleTestSuite))
}

func (suite *ResampleTestSuite) SetupTest() {
	open := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	suite.session = calendar.SessionWindow{
		Date:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:  open,
		Close: open.Add(6*time.Hour + 30*time.Minute),
	}
	suite.sessions = []calendar.SessionWindow{suite.session}
}

// minuteBars builds n consecutive 1m bars starting at the session open,
// start-labeled, opening at 100, 101, ... with volume 10 each.
func (suite *ResampleTestSuite) minuteBars(n int) []types.Bar {
	bars := make([]types.Bar, n)

	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)
		bars[i] = types.Bar{
			Time:   suite.session.Open.Add(time.Duration(i) * time.Minute),
			Symbol: "AAPL",
			Open:   price,
			High:   price + 1.5,
			Low:    price - 0.5,
			Close:  price + 1,
			Volume: 10,
		}
	}

	return bars
}

func (suite *ResampleTestSuite) TestFiveOneMinuteBarsToFiveMinutes() {
	bars := suite.minuteBars(5)

	aggregated, err := Resample(bars, suite.sessions, types.Frequency5m, DefaultRules(), calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Require().NoError(err)
	suite.Require().Len(aggregated, 1)

	bar := aggregated[0]
	suite.Equal(100.0, bar.Open)
	suite.Equal(105.0, bar.Close)
	suite.Equal(105.5, bar.High)
	suite.Equal(99.5, bar.Low)
	suite.Equal(50.0, bar.Volume)
	// Right-edge label: the window [09:30, 09:35) is stamped 09:35.
	suite.Equal(suite.session.Open.Add(5*time.Minute), bar.Time)
}

func (suite *ResampleTestSuite) TestVolumeConservation() {
	bars := suite.minuteBars(37)

	aggregated, err := Resample(bars, suite.sessions, types.Frequency15m, DefaultRules(), calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Require().NoError(err)

	var total float64
	for _, bar := range aggregated {
		total += bar.Volume
	}

	suite.Equal(370.0, total)
}

func (suite *ResampleTestSuite) TestEmptyWindowsDropped() {
	bars := suite.minuteBars(5)
	// A bar far into the session, leaving a multi-window gap.
	bars = append(bars, types.Bar{
		Time:   suite.session.Open.Add(2 * time.Hour),
		Symbol: "AAPL",
		Open:   200, High: 200, Low: 200, Close: 200, Volume: 7,
	})

	aggregated, err := Resample(bars, suite.sessions, types.Frequency5m, DefaultRules(), calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Require().NoError(err)

	// Only two windows contain bars; halted windows are not synthesized.
	suite.Require().Len(aggregated, 2)
	suite.Equal(7.0, aggregated[1].Volume)
}

func (suite *ResampleTestSuite) TestWindowsAlignToSessionOpen() {
	bars := suite.minuteBars(10)

	aggregated, err := Resample(bars, suite.sessions, types.Frequency5m, DefaultRules(), calendar.AuctionDeltas{}, LabelWindowStart)
	suite.Require().NoError(err)
	suite.Require().Len(aggregated, 2)

	// With window-start labeling the first window is stamped at the
	// session open (09:30), not at a wall-clock round hour.
	suite.Equal(suite.session.Open, aggregated[0].Time)
	suite.Equal(suite.session.Open.Add(5*time.Minute), aggregated[1].Time)
}

func (suite *ResampleTestSuite) TestAuctionDeltasTrimBeforeAggregation() {
	bars := suite.minuteBars(10)

	deltas := calendar.AuctionDeltas{Open: 5 * time.Minute}

	aggregated, err := Resample(bars, suite.sessions, types.Frequency5m, DefaultRules(), deltas, LabelWindowEnd)
	suite.Require().NoError(err)
	suite.Require().Len(aggregated, 1)

	// The first five bars fall inside the opening auction delta; only the
	// bars from 09:35 on survive.
	suite.Equal(105.0, aggregated[0].Open)
	suite.Equal(50.0, aggregated[0].Volume)
}

func (suite *ResampleTestSuite) TestNoBarCountedTwice() {
	// A bar exactly on a window boundary belongs to the later window only.
	bars := suite.minuteBars(10)

	aggregated, err := Resample(bars, suite.sessions, types.Frequency5m, DefaultRules(), calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Require().NoError(err)

	var total float64
	for _, bar := range aggregated {
		total += bar.Volume
	}

	suite.Equal(100.0, total)
}

func (suite *ResampleTestSuite) TestMultipleSymbolsIndependent() {
	bars := suite.minuteBars(5)
	for _, bar := range suite.minuteBars(5) {
		bar.Symbol = "MSFT"
		bar.Open += 1000
		bar.High += 1000
		bar.Low += 1000
		bar.Close += 1000
		bars = append(bars, bar)
	}

	aggregated, err := Resample(bars, suite.sessions, types.Frequency5m, DefaultRules(), calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Require().NoError(err)
	suite.Require().Len(aggregated, 2)

	// Output ordered by time then symbol; the two symbols never mix.
	suite.Equal("AAPL", aggregated[0].Symbol)
	suite.Equal("MSFT", aggregated[1].Symbol)
	suite.Equal(1100.0, aggregated[1].Open)
}

func (suite *ResampleTestSuite) TestUnknownReductionRejected() {
	rules := Rules{types.BarFieldClose: Reduction("median")}

	_, err := Resample(suite.minuteBars(5), suite.sessions, types.Frequency5m, rules, calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Error(err)
}

func (suite *ResampleTestSuite) TestInvalidTargetFrequencyRejected() {
	_, err := Resample(suite.minuteBars(5), suite.sessions, types.Frequency("7m"), DefaultRules(), calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Error(err)
}

func (suite *ResampleTestSuite) TestCustomRules() {
	rules := Rules{
		types.BarFieldOpen:   ReductionLast,
		types.BarFieldVolume: ReductionMax,
	}

	aggregated, err := Resample(suite.minuteBars(5), suite.sessions, types.Frequency5m, rules, calendar.AuctionDeltas{}, LabelWindowEnd)
	suite.Require().NoError(err)
	suite.Require().Len(aggregated, 1)

	// Overridden fields use the custom reduction, the rest keep defaults.
	suite.Equal(104.0, aggregated[0].Open)
	suite.Equal(10.0, aggregated[0].Volume)
	suite.Equal(105.5, aggregated[0].High)
}
