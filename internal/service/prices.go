package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/storage"
	"github.com/lncr/reports-helpbot1/internal/types"
)

// fiatSymbols are the non-USD currencies the report quotes.
var fiatSymbols = []string{"EUR", "RUB"}

var one = decimal.New(1, 0)

// priceChart is the CoinMarketCap surface the price service depends on.
type priceChart interface {
	TokenID(ctx context.Context, symbol string) (int64, error)
	ChartPoints(ctx context.Context, tokenID int64, chartRange string) ([]types.DailyPrice, error)
}

// fiatHistory is the historical fiat-rate surface.
type fiatHistory interface {
	HistoricalRates(ctx context.Context, day time.Time, symbols []string) (types.RateSample, error)
}

// liveConverter supplies a spot rate for the day history cannot cover yet.
type liveConverter interface {
	Convert(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// PriceService computes monthly token price summaries, daily price series and
// fiat rates with a cache readthrough.
type PriceService struct {
	chart     priceChart
	history   fiatHistory
	converter liveConverter
	cache     storage.RateCache
}

// NewPriceService wires the pricing engine.
func NewPriceService(chart priceChart, history fiatHistory, converter liveConverter, cache storage.RateCache) *PriceService {
	return &PriceService{chart: chart, history: history, converter: converter, cache: cache}
}

// priceWindow is the sampled period: the first of target's month through
// target. A zero target means the running month, through now.
func priceWindow(target time.Time) (time.Time, time.Time, string) {
	if target.IsZero() {
		now := time.Now().UTC()
		return types.MonthStart(now), now, adapter.ChartRangeMonth
	}
	return types.MonthStart(target), target, adapter.ChartRangeYear
}

// MonthlyPrice summarizes the symbol's USD price over target's month: the
// mean of the per-day averages and the last sample. A month with no samples
// yields nil, which downstream treats as a zero valuation.
func (s *PriceService) MonthlyPrice(ctx context.Context, symbol string, target time.Time) (*types.Price, error) {
	points, err := s.chartWindow(ctx, symbol, target)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	daily := dayAverages(symbol, points)
	sum := decimal.Zero
	for _, day := range daily {
		sum = sum.Add(day.Price)
	}

	return &types.Price{
		Symbol:       symbol,
		Date:         types.Day(points[len(points)-1].Date),
		PriceEndUSD:  points[len(points)-1].Price,
		PriceMeanUSD: sum.Div(decimal.NewFromInt(int64(len(daily)))),
	}, nil
}

// DailyPrices returns the symbol's per-day average USD price over target's
// month.
func (s *PriceService) DailyPrices(ctx context.Context, symbol string, target time.Time) ([]types.DailyPrice, error) {
	points, err := s.chartWindow(ctx, symbol, target)
	if err != nil {
		return nil, err
	}
	return dayAverages(symbol, points), nil
}

func (s *PriceService) chartWindow(ctx context.Context, symbol string, target time.Time) ([]types.DailyPrice, error) {
	tokenID, err := s.chart.TokenID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	from, to, chartRange := priceWindow(target)
	points, err := s.chart.ChartPoints(ctx, tokenID, chartRange)
	if err != nil {
		return nil, err
	}

	window := points[:0:0]
	for _, point := range points {
		if point.Date.Before(from) || point.Date.After(to) {
			continue
		}
		window = append(window, point)
	}
	return window, nil
}

// dayAverages collapses intraday samples into one average per calendar day,
// preserving chronological order.
func dayAverages(symbol string, points []types.DailyPrice) []types.DailyPrice {
	var days []time.Time
	sums := make(map[time.Time]decimal.Decimal)
	counts := make(map[time.Time]int64)
	for _, point := range points {
		day := types.Day(point.Date)
		if _, seen := sums[day]; !seen {
			days = append(days, day)
		}
		sums[day] = sums[day].Add(point.Price)
		counts[day]++
	}

	daily := make([]types.DailyPrice, 0, len(days))
	for _, day := range days {
		daily = append(daily, types.DailyPrice{
			Symbol: symbol,
			Date:   day,
			Price:  sums[day].Div(decimal.NewFromInt(counts[day])),
		})
	}
	return daily
}

// FiatPrices returns the month's EUR and RUB prices of one USD inverted into
// USD per unit, from the cached day-by-day rate table.
func (s *PriceService) FiatPrices(ctx context.Context, target time.Time) ([]types.Price, error) {
	samples, err := s.monthRates(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	date := types.Day(samples[len(samples)-1].Date)
	prices := make([]types.Price, 0, len(fiatSymbols))
	for _, symbol := range fiatSymbols {
		sum := decimal.Zero
		count := int64(0)
		last := decimal.Zero
		for _, sample := range samples {
			rate, ok := sample.Rates[symbol]
			if !ok || rate.IsZero() {
				continue
			}
			sum = sum.Add(rate)
			count++
			last = rate
		}
		if count == 0 || last.IsZero() {
			continue
		}
		prices = append(prices, types.Price{
			Symbol:       symbol,
			Date:         date,
			PriceMeanUSD: one.Div(sum.Div(decimal.NewFromInt(count))),
			PriceEndUSD:  one.Div(last),
		})
	}
	return prices, nil
}

// monthRates assembles one rate sample per day of target's month: cached days
// are reused, missing days fetched and cached, and for the running month the
// still-unclosed today is covered by a live spot sample.
func (s *PriceService) monthRates(ctx context.Context, target time.Time) ([]types.RateSample, error) {
	current := target.IsZero()
	end := target
	if current {
		end = time.Now().UTC()
	}
	from := types.MonthStart(end)
	lastCached := types.Day(end)
	if current {
		// Today's closing rate does not exist yet.
		lastCached = lastCached.AddDate(0, 0, -1)
	}

	cached, err := s.cache.Read(ctx, from, lastCached)
	if err != nil {
		return nil, err
	}
	present := make(map[time.Time]types.RateSample, len(cached))
	for _, sample := range cached {
		present[types.Day(sample.Date)] = sample
	}

	var fetched []types.RateSample
	var samples []types.RateSample
	for day := from; !day.After(lastCached); day = day.AddDate(0, 0, 1) {
		if sample, ok := present[day]; ok {
			samples = append(samples, sample)
			continue
		}
		sample, err := s.history.HistoricalRates(ctx, day, fiatSymbols)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, sample)
		samples = append(samples, sample)
	}
	if len(fetched) > 0 {
		if err := s.cache.Append(ctx, fetched); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("failed to cache fiat rates")
		}
	}

	if current {
		live, err := s.liveSample(ctx, types.Day(end))
		if err != nil {
			return nil, err
		}
		samples = append(samples, live)
	}
	return samples, nil
}

// WarmFiatCache fetches and caches the closing fiat rates for one day. Meant
// for the daily prefetch job; report requests fall back to on-demand fetching
// when a day is missing.
func (s *PriceService) WarmFiatCache(ctx context.Context, day time.Time) error {
	day = types.Day(day)
	cached, err := s.cache.Read(ctx, day, day)
	if err != nil {
		return err
	}
	if len(cached) > 0 {
		return nil
	}
	sample, err := s.history.HistoricalRates(ctx, day, fiatSymbols)
	if err != nil {
		return err
	}
	return s.cache.Append(ctx, []types.RateSample{sample})
}

func (s *PriceService) liveSample(ctx context.Context, day time.Time) (types.RateSample, error) {
	rates := make(map[string]decimal.Decimal, len(fiatSymbols))
	for _, symbol := range fiatSymbols {
		rate, err := s.converter.Convert(ctx, "USD", symbol)
		if err != nil {
			return types.RateSample{}, err
		}
		rates[symbol] = rate
	}
	return types.RateSample{Date: day, Rates: rates}, nil
}
