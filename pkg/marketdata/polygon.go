package marketdata

import (
	"context"
	"sort"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"go.uber.org/zap"

	"github.com/simfolio-lab/simfolio/internal/logger"
	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// PolygonSource fetches aggregate bars from the Polygon REST API.
type PolygonSource struct {
	client *polygon.Client
	logger *logger.Logger
}

// NewPolygonSource creates a Polygon-backed data source.
func NewPolygonSource(apiKey string, log *logger.Logger) (DataSource, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon api key is required")
	}

	return &PolygonSource{
		client: polygon.New(apiKey),
		logger: log,
	}, nil
}

// Name implements DataSource.
func (s *PolygonSource) Name() string {
	return "polygon"
}

// FetchBars implements DataSource.
func (s *PolygonSource) FetchBars(
	ctx context.Context,
	symbols []string,
	start time.Time,
	end time.Time,
	frequency types.Frequency,
) (FetchResult, error) {
	multiplier, timespan, err := aggParams(frequency)
	if err != nil {
		return FetchResult{}, err
	}

	var result FetchResult

	for _, symbol := range symbols {
		bars, err := s.fetchSymbol(ctx, symbol, start, end, multiplier, timespan)
		if err != nil {
			return FetchResult{}, err
		}

		if len(bars) == 0 {
			result.MissingSymbols = append(result.MissingSymbols, symbol)

			s.logger.Warn("No data returned for symbol",
				zap.String("symbol", symbol),
				zap.Time("start", start),
				zap.Time("end", end),
			)

			continue
		}

		result.Bars = append(result.Bars, bars...)
	}

	sort.Slice(result.Bars, func(i, j int) bool {
		if result.Bars[i].Time.Equal(result.Bars[j].Time) {
			return result.Bars[i].Symbol < result.Bars[j].Symbol
		}

		return result.Bars[i].Time.Before(result.Bars[j].Time)
	})

	return result, nil
}

func (s *PolygonSource) fetchSymbol(
	ctx context.Context,
	symbol string,
	start time.Time,
	end time.Time,
	multiplier int,
	timespan models.Timespan,
) ([]types.Bar, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithLimit(50000)

	iter := s.client.ListAggs(ctx, params)

	var bars []types.Bar

	for iter.Next() {
		agg := iter.Item()

		bars = append(bars, types.Bar{
			Time:   time.Time(agg.Timestamp).UTC(),
			Symbol: symbol,
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s from polygon", symbol)
	}

	return bars, nil
}

func aggParams(frequency types.Frequency) (int, models.Timespan, error) {
	switch frequency {
	case types.Frequency1m:
		return 1, models.Minute, nil
	case types.Frequency5m:
		return 5, models.Minute, nil
	case types.Frequency15m:
		return 15, models.Minute, nil
	case types.Frequency30m:
		return 30, models.Minute, nil
	case types.Frequency1h:
		return 1, models.Hour, nil
	case types.Frequency1d:
		return 1, models.Day, nil
	default:
		return 0, "", errors.Newf(errors.ErrCodeInvalidFrequency, "unsupported fetch frequency: %s", frequency)
	}
}
