package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/types"
)

// Validator-capacity projection parameters.
const (
	smaWindowDays        = 7
	forecastHorizonWeeks = 2
	runningValidators    = 5
)

// tonPerValidator is the effective stake one validator carries.
var tonPerValidator = decimal.NewFromInt(400_000)

// TVLForecast projects validator demand from the protocol's daily TVL series.
// Each day's TVL delta is smoothed into a weekly moving average; the growth
// expected over the horizon, plus the stake already sitting above the last
// full validator, gives the expected new validators. The adjusted figure
// subtracts the headroom of the validators currently running. Days before the
// smoothing window fills report zero projections.
func (s *StakingService) TVLForecast(ctx context.Context) ([]types.TVLForecastRow, error) {
	points, err := s.tvl.ProtocolTVL(ctx, s.protocol)
	if err != nil {
		return nil, err
	}

	rows := make([]types.TVLForecastRow, 0, len(points))
	for i, point := range points {
		delta := decimal.Zero
		if i > 0 {
			delta = point.TVLTON.Sub(points[i-1].TVLTON)
		}
		rows = append(rows, types.TVLForecastRow{
			Date:               point.Date,
			TVLTON:             point.TVLTON,
			Delta:              delta,
			RequiredValidators: point.TVLTON.Div(tonPerValidator).IntPart() + 1,
		})
		if i < smaWindowDays-1 {
			continue
		}

		windowSum := decimal.Zero
		for _, prior := range rows[i+1-smaWindowDays:] {
			windowSum = windowSum.Add(prior.Delta)
		}
		row := &rows[i]
		row.SMAWeekly = windowSum.Mul(decimal.NewFromInt(7)).Div(decimal.NewFromInt(smaWindowDays))
		row.ExpectedGrowth2W = row.SMAWeekly.Mul(decimal.NewFromInt(forecastHorizonWeeks))
		row.ExpectedNewVal = point.TVLTON.Mod(tonPerValidator).
			Add(row.ExpectedGrowth2W).Div(tonPerValidator)
		row.ExpectedNewValAdj = row.ExpectedNewVal.
			Sub(decimal.NewFromInt(runningValidators - row.RequiredValidators))
	}
	return rows, nil
}
