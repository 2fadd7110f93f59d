package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/retry"
	"github.com/lncr/reports-helpbot1/internal/types"
)

const fullDataMethod = "get_full_data"

// protocolFeeShare is the pool's cut: gross yield is the net rate scaled back
// by the remaining share.
var protocolFeeShare = decimal.RequireFromString("0.8")

var (
	twelve = decimal.NewFromInt(12)
)

// chainStateSource samples contract state at historical masterchain blocks.
type chainStateSource interface {
	LookupBlock(ctx context.Context, ts time.Time) (adapter.BlockID, error)
	RunGetMethodInts(ctx context.Context, address, method string, block adapter.BlockID) ([]*big.Int, error)
}

// tvlSource supplies the protocol's TVL history.
type tvlSource interface {
	ProtocolTVL(ctx context.Context, protocol string) ([]adapter.TVLPoint, error)
}

// StakingService derives the liquid-staking yield report from on-chain pool
// state sampled at month ends.
type StakingService struct {
	state    chainStateSource
	tvl      tvlSource
	pool     string
	protocol string
}

// NewStakingService wires the yield engine. pool is the pool contract address
// queried for its jetton/TON ratio; protocol the TVL registry slug.
func NewStakingService(state chainStateSource, tvl tvlSource, pool, protocol string) *StakingService {
	return &StakingService{state: state, tvl: tvl, pool: pool, protocol: protocol}
}

// monthEnd returns the last calendar day of t's month.
func monthEnd(t time.Time) time.Time {
	return types.MonthStart(t).AddDate(0, 1, -1)
}

// MonthEndDates returns the trailing twelve month-end dates, oldest first,
// ending with target's month. A zero target anchors on the current month.
func MonthEndDates(target time.Time) []time.Time {
	if target.IsZero() {
		target = time.Now().UTC()
	}
	dates := make([]time.Time, 0, 12)
	for i := 11; i >= 0; i-- {
		dates = append(dates, monthEnd(types.MonthStart(target).AddDate(0, -i, 0)))
	}
	return dates
}

// PriceRatios samples the pool's stTON price ratio at each date. Dates whose
// block or state cannot be read are skipped, yielding a partial series.
func (s *StakingService) PriceRatios(ctx context.Context, dates []time.Time) []types.StakingSample {
	samples := make([]types.StakingSample, 0, len(dates))
	for _, date := range dates {
		ratio, err := s.ratioAt(ctx, date)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("date", date.Format("2006-01-02")).
				Warn("skipping unreadable staking sample")
			continue
		}
		samples = append(samples, types.StakingSample{Date: date, PriceRatio: ratio})
	}
	return samples
}

// ratioAt reads get_full_data at the masterchain block closing the date. The
// first two stack entries are total jettons minted and total TON staked;
// their quotient is the stTON price in TON.
func (s *StakingService) ratioAt(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	var ratio decimal.Decimal
	err := retry.Do(ctx, retry.ContractCall, func(ctx context.Context, attempt int) error {
		block, err := s.state.LookupBlock(ctx, date)
		if err != nil {
			return err
		}
		stack, err := s.state.RunGetMethodInts(ctx, s.pool, fullDataMethod, block)
		if err != nil {
			return err
		}
		if len(stack) < 2 {
			return apperrors.NewUpstream("liteserver",
				fmt.Sprintf("%s returned %d stack entries, want at least 2", fullDataMethod, len(stack)))
		}
		minted := decimal.NewFromBigInt(stack[0], 0)
		if minted.IsZero() {
			return apperrors.NewUpstream("liteserver", fullDataMethod+" reports zero minted supply")
		}
		ratio = decimal.NewFromBigInt(stack[1], 0).Div(minted)
		return nil
	})
	return ratio, err
}

// TVLAPY builds the monthly yield report: month-over-month rate from the
// sampled price ratios, annualized net and gross yields, and the protocol's
// TVL merged in by month.
func (s *StakingService) TVLAPY(ctx context.Context, target time.Time) ([]types.TVLAPYRow, error) {
	samples := s.PriceRatios(ctx, MonthEndDates(target))
	if len(samples) == 0 {
		return nil, nil
	}

	tvl, err := s.tvl.ProtocolTVL(ctx, s.protocol)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("tvl history unavailable, reporting yields only")
		tvl = nil
	}

	rows := make([]types.TVLAPYRow, 0, len(samples))
	for i, sample := range samples {
		rate := decimal.Zero
		if i > 0 && !samples[i-1].PriceRatio.IsZero() {
			rate = sample.PriceRatio.Div(samples[i-1].PriceRatio).Sub(one)
		}

		row := types.TVLAPYRow{
			Date:       sample.Date,
			SttonPrice: sample.PriceRatio,
			Rate:       rate,
			APYNet:     one.Add(rate).Pow(twelve).Sub(one),
			APYGross:   one.Add(rate.Div(protocolFeeShare)).Pow(twelve).Sub(one),
		}
		if point, ok := tvlAt(tvl, sample.Date); ok {
			row.TVLTON = point.TVLTON
			row.TVLUSD = point.TVLUSD
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// tvlAt picks the latest TVL point on or before the date.
func tvlAt(points []adapter.TVLPoint, date time.Time) (adapter.TVLPoint, bool) {
	day := types.Day(date)
	found := false
	var best adapter.TVLPoint
	for _, point := range points {
		if types.Day(point.Date).After(day) {
			break
		}
		best = point
		found = true
	}
	return best, found
}
