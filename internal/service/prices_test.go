package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/storage"
	"github.com/lncr/reports-helpbot1/internal/types"
)

type fakeChart struct {
	id       int64
	idErr    error
	points   []types.DailyPrice
	lastID   int64
	lastSpan string
}

func (f *fakeChart) TokenID(ctx context.Context, symbol string) (int64, error) {
	return f.id, f.idErr
}

func (f *fakeChart) ChartPoints(ctx context.Context, tokenID int64, chartRange string) ([]types.DailyPrice, error) {
	f.lastID = tokenID
	f.lastSpan = chartRange
	return f.points, nil
}

type fakeHistory struct {
	rates map[string]map[string]decimal.Decimal // date -> symbol -> rate
	calls int
}

func (f *fakeHistory) HistoricalRates(ctx context.Context, day time.Time, symbols []string) (types.RateSample, error) {
	f.calls++
	if f.rates == nil {
		return types.RateSample{Date: types.Day(day), Rates: marchRates("0.9")}, nil
	}
	key := day.Format("2006-01-02")
	rates, ok := f.rates[key]
	if !ok {
		return types.RateSample{}, apperrors.NewUpstream("openexchange", "no rates for "+key)
	}
	return types.RateSample{Date: types.Day(day), Rates: rates}, nil
}

type fakeConverter struct {
	rates map[string]decimal.Decimal
}

func (f *fakeConverter) Convert(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return f.rates[to], nil
}

func point(day, hour int, price string) types.DailyPrice {
	return types.DailyPrice{
		Date:  time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC),
		Price: decimal.RequireFromString(price),
	}
}

func TestMonthlyPriceMeanOfDayAverages(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	chart := &fakeChart{id: 11419, points: []types.DailyPrice{
		// Day 1: samples 2 and 4 average to 3.
		point(1, 6, "2"), point(1, 18, "4"),
		// Day 2: single sample 5.
		point(2, 12, "5"),
		// Outside the window, must be ignored.
		{Date: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), Price: decimal.RequireFromString("100")},
	}}
	service := NewPriceService(chart, &fakeHistory{}, &fakeConverter{}, storage.NewMemoryRateCache())

	price, err := service.MonthlyPrice(context.Background(), "TON", target)
	require.NoError(t, err)
	require.NotNil(t, price)

	// mean((2+4)/2, 5) = 4
	assert.Equal(t, "4", price.PriceMeanUSD.String())
	assert.Equal(t, "5", price.PriceEndUSD.String(), "end is the last in-window sample")
	assert.Equal(t, int64(11419), chart.lastID)
	assert.Equal(t, "1Y", chart.lastSpan, "past months use the year chart")
}

func TestMonthlyPriceEmptyWindowYieldsNil(t *testing.T) {
	target := time.Date(2023, 7, 31, 23, 59, 59, 0, time.UTC)
	service := NewPriceService(&fakeChart{id: 1}, &fakeHistory{}, &fakeConverter{}, storage.NewMemoryRateCache())

	price, err := service.MonthlyPrice(context.Background(), "TON", target)
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestMonthlyPriceLookupFailurePropagates(t *testing.T) {
	chart := &fakeChart{idErr: apperrors.NewUpstream("coinmarketcap", "no listing")}
	service := NewPriceService(chart, &fakeHistory{}, &fakeConverter{}, storage.NewMemoryRateCache())

	_, err := service.MonthlyPrice(context.Background(), "stTON", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryUpstream, apperrors.CategoryOf(err))
}

func TestDailyPricesCarrySymbol(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	chart := &fakeChart{id: 1, points: []types.DailyPrice{point(1, 6, "2"), point(2, 6, "3")}}
	service := NewPriceService(chart, &fakeHistory{}, &fakeConverter{}, storage.NewMemoryRateCache())

	daily, err := service.DailyPrices(context.Background(), "TON", target)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "TON", daily[0].Symbol)
	assert.Equal(t, types.Day(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), daily[0].Date)
}

func marchRates(eur string) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString(eur),
		"RUB": decimal.RequireFromString("90"),
	}
}

func TestFiatPricesInvertUSDRates(t *testing.T) {
	// Two-day month window: 2024-02-29 target means 29 cached days needed;
	// use a short month via pre-seeded cache to keep the fixture small.
	target := time.Date(2024, 2, 2, 23, 59, 59, 0, time.UTC)

	cache := storage.NewMemoryRateCache()
	history := &fakeHistory{rates: map[string]map[string]decimal.Decimal{
		"2024-02-01": marchRates("0.8"),
		"2024-02-02": marchRates("0.5"),
	}}
	service := NewPriceService(&fakeChart{}, history, &fakeConverter{}, cache)

	prices, err := service.FiatPrices(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, prices, 2)

	var eur types.Price
	for _, price := range prices {
		if price.Symbol == "EUR" {
			eur = price
		}
	}
	// mean(0.8, 0.5) = 0.65; 1/0.65; end 1/0.5 = 2.
	assert.Equal(t, "2", eur.PriceEndUSD.String())
	assert.True(t, eur.PriceMeanUSD.Sub(one.Div(decimal.RequireFromString("0.65"))).IsZero())
}

func TestFiatRatesReadthroughCachesFetchedDays(t *testing.T) {
	target := time.Date(2024, 2, 2, 23, 59, 59, 0, time.UTC)

	cache := storage.NewMemoryRateCache()
	require.NoError(t, cache.Append(context.Background(), []types.RateSample{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Rates: marchRates("0.8")},
	}))
	history := &fakeHistory{rates: map[string]map[string]decimal.Decimal{
		"2024-02-02": marchRates("0.5"),
	}}
	service := NewPriceService(&fakeChart{}, history, &fakeConverter{}, cache)

	_, err := service.FiatPrices(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, history.calls, "cached day must not be refetched")

	// Second run is fully served from the cache.
	_, err = service.FiatPrices(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, history.calls)
}
