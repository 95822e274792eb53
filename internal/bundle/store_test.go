package bundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/suite"

	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/internal/version"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

type StoreTestSuite struct {
	suite.Suite
	logger *logger.Logger
	store  *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (suite *StoreTestSuite) SetupSuite() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.logger = log
}

func (suite *StoreTestSuite) SetupTest() {
	store, err := NewStore("", suite.logger)
	suite.Require().NoError(err)
	suite.Require().NoError(store.Initialize())
	suite.store = store
}

func (suite *StoreTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

// dailyBars builds n daily bars per symbol starting 2024-01-01.
func (suite *StoreTestSuite) dailyBars(n int, symbols ...string) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var bars []types.Bar

	for i := 0; i < n; i++ {
		for _, symbol := range symbols {
			price := 100.0 + float64(i)
			bars = append(bars, types.Bar{
				Time:   start.AddDate(0, 0, i),
				Symbol: symbol,
				Open:   price,
				High:   price + 2,
				Low:    price - 1,
				Close:  price + 1,
				Volume: 1000,
			})
		}
	}

	return bars
}

func (suite *StoreTestSuite) TestSaveFirstVersionIsOneDotZero() {
	version, err := suite.store.Save("quotes", suite.dailyBars(5, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)
	suite.Equal("1.0.0", version.String())
}

func (suite *StoreTestSuite) TestSaveBumpsMinorVersion() {
	_, err := suite.store.Save("quotes", suite.dailyBars(5, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	second, err := suite.store.Save("quotes", suite.dailyBars(7, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)
	suite.Equal("1.1.0", second.String())

	versions, err := suite.store.Versions("quotes")
	suite.Require().NoError(err)
	suite.Require().Len(versions, 2)
	suite.True(versions[0].LessThan(versions[1]))
}

func (suite *StoreTestSuite) TestSaveRejectsEmptyAndNonMonotonic() {
	_, err := suite.store.Save("quotes", nil, types.Frequency1d, "24/7")
	suite.Error(err)

	bars := suite.dailyBars(3, "AAPL")
	bars[2].Time = bars[0].Time
	_, err = suite.store.Save("quotes", bars, types.Frequency1d, "24/7")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBundleWriteFailed))
}

func (suite *StoreTestSuite) TestLoadResolvesLatest() {
	_, err := suite.store.Save("quotes", suite.dailyBars(5, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)
	_, err = suite.store.Save("quotes", suite.dailyBars(7, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	handle, err := suite.store.Load("quotes", VersionLatest)
	suite.Require().NoError(err)
	suite.Equal("1.1.0", handle.Metadata().Version.String())
	suite.Equal(types.Frequency1d, handle.Metadata().NativeFrequency)
	suite.Equal([]string{"AAPL"}, handle.Metadata().Symbols)
}

func (suite *StoreTestSuite) TestLoadMissingBundle() {
	_, err := suite.store.Load("nope", VersionLatest)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBundleNotFound))
}

func (suite *StoreTestSuite) TestLoadIsIdempotent() {
	saved := suite.dailyBars(5, "AAPL", "MSFT")
	version, err := suite.store.Save("quotes", saved, types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	start := saved[0].Time
	end := saved[len(saved)-1].Time

	first, err := suite.store.Load("quotes", version.String())
	suite.Require().NoError(err)
	firstBars, err := first.Bars([]string{"AAPL", "MSFT"}, start, end)
	suite.Require().NoError(err)

	second, err := suite.store.Load("quotes", version.String())
	suite.Require().NoError(err)
	secondBars, err := second.Bars([]string{"AAPL", "MSFT"}, start, end)
	suite.Require().NoError(err)

	suite.Equal(firstBars, secondBars)
	suite.Len(firstBars, 10)
}

func (suite *StoreTestSuite) TestBarsUnknownSymbolFails() {
	version, err := suite.store.Save("quotes", suite.dailyBars(5, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	handle, err := suite.store.Load("quotes", version.String())
	suite.Require().NoError(err)

	_, err = handle.Bars([]string{"TSLA"}, time.Time{}, time.Now())
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownSymbol))
}

func (suite *StoreTestSuite) TestAppendBarsExtendsRange() {
	bars := suite.dailyBars(5, "AAPL")
	version, err := suite.store.Save("quotes", bars, types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	newBar := types.Bar{
		Time:   bars[len(bars)-1].Time.AddDate(0, 0, 1),
		Symbol: "AAPL",
		Open:   200, High: 201, Low: 199, Close: 200, Volume: 500,
	}
	suite.Require().NoError(suite.store.AppendBars("quotes", version, []types.Bar{newBar}))

	handle, err := suite.store.Load("quotes", version.String())
	suite.Require().NoError(err)
	suite.Equal(newBar.Time, handle.Metadata().End)

	got, err := handle.Bars([]string{"AAPL"}, bars[0].Time, newBar.Time)
	suite.Require().NoError(err)
	suite.Len(got, 6)
}

func (suite *StoreTestSuite) TestAppendBarsRejectsBackfill() {
	bars := suite.dailyBars(5, "AAPL")
	version, err := suite.store.Save("quotes", bars, types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	// A bar at or before the current extent would rewrite history under
	// an active reader.
	err = suite.store.AppendBars("quotes", version, []types.Bar{bars[2]})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBundleWriteFailed))
}

func (suite *StoreTestSuite) TestLastBar() {
	bars := suite.dailyBars(5, "AAPL")
	version, err := suite.store.Save("quotes", bars, types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	handle, err := suite.store.Load("quotes", version.String())
	suite.Require().NoError(err)

	bar, ok, err := handle.LastBar("AAPL", bars[2].Time)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Equal(bars[2].Time, bar.Time)

	_, ok, err = handle.LastBar("AAPL", bars[0].Time.AddDate(0, 0, -1))
	suite.Require().NoError(err)
	suite.False(ok)
}

func (suite *StoreTestSuite) TestExportParquet() {
	dir, err := os.MkdirTemp("", "bundle-export")
	suite.Require().NoError(err)
	defer os.RemoveAll(dir)

	version, err := suite.store.Save("quotes", suite.dailyBars(5, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	path := filepath.Join(dir, "quotes.parquet")
	suite.Require().NoError(suite.store.ExportParquet("quotes", version.String(), path))

	info, err := os.Stat(path)
	suite.Require().NoError(err)
	suite.Greater(info.Size(), int64(0))
}

func (suite *StoreTestSuite) TestVersionsSortedSemver() {
	for i := 0; i < 3; i++ {
		_, err := suite.store.Save("quotes", suite.dailyBars(i+1, "AAPL"), types.Frequency1d, "24/7")
		suite.Require().NoError(err)
	}

	versions, err := suite.store.Versions("quotes")
	suite.Require().NoError(err)
	suite.Equal([]*semver.Version{
		semver.MustParse("1.0.0"),
		semver.MustParse("1.1.0"),
		semver.MustParse("1.2.0"),
	}, versions)
}

func (suite *StoreTestSuite) TestWriterVersionStampedAndChecked() {
	original := version.Version
	defer func() { version.Version = original }()

	version.Version = "2.1.0"

	_, err := suite.store.Save("quotes", suite.dailyBars(3, "AAPL"), types.Frequency1d, "24/7")
	suite.Require().NoError(err)

	handle, err := suite.store.Load("quotes", VersionLatest)
	suite.Require().NoError(err)
	suite.Equal("2.1.0", handle.Metadata().WriterVersion)

	// A patch-level difference stays readable.
	version.Version = "2.1.7"
	_, err = suite.store.Load("quotes", VersionLatest)
	suite.NoError(err)

	// A minor-version difference does not.
	version.Version = "2.2.0"
	_, err = suite.store.Load("quotes", VersionLatest)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidVersion))
}
