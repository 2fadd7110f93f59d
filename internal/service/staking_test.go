package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
)

type fakeChainState struct {
	// ratios maps month-end dates to [minted, staked] stacks.
	ratios map[string][]*big.Int
}

func (f *fakeChainState) LookupBlock(ctx context.Context, ts time.Time) (adapter.BlockID, error) {
	key := ts.Format("2006-01-02")
	if _, ok := f.ratios[key]; !ok {
		return adapter.BlockID{}, apperrors.NewUpstream("liteserver", "no block for "+key)
	}
	return adapter.BlockID{Workchain: -1, Seqno: ts.Unix()}, nil
}

func (f *fakeChainState) RunGetMethodInts(ctx context.Context, address, method string, block adapter.BlockID) ([]*big.Int, error) {
	key := time.Unix(block.Seqno, 0).UTC().Format("2006-01-02")
	return f.ratios[key], nil
}

type fakeTVL struct {
	points []adapter.TVLPoint
	err    error
}

func (f *fakeTVL) ProtocolTVL(ctx context.Context, protocol string) ([]adapter.TVLPoint, error) {
	return f.points, f.err
}

func TestMonthEndDates(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	dates := MonthEndDates(target)

	require.Len(t, dates, 12)
	assert.Equal(t, time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), dates[10], "leap February")
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), dates[11])
}

func stack(minted, staked int64) []*big.Int {
	return []*big.Int{big.NewInt(minted), big.NewInt(staked)}
}

func TestTVLAPYComputesRates(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	ratios := make(map[string][]*big.Int)
	for i, date := range MonthEndDates(target) {
		// Ratio grows 1% every month: 1.00, 1.01, 1.0201, ...
		grown := decimal.RequireFromString("1.01").Pow(decimal.NewFromInt(int64(i)))
		staked := grown.Mul(decimal.New(1, 9)).IntPart()
		ratios[date.Format("2006-01-02")] = stack(1_000_000_000, staked)
	}
	service := NewStakingService(&fakeChainState{ratios: ratios}, &fakeTVL{}, "0:pool", "bemo")

	rows, err := service.TVLAPY(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	assert.True(t, rows[0].Rate.IsZero(), "first month has no predecessor")
	assert.True(t, rows[0].APYNet.IsZero())

	// rate ≈ 0.01 ⇒ apy_net = 1.01^12 − 1 ≈ 0.1268
	rate := rows[1].Rate
	assert.True(t, rate.Sub(decimal.RequireFromString("0.01")).Abs().LessThan(decimal.RequireFromString("0.0001")),
		"got rate %s", rate)
	assert.True(t, rows[1].APYNet.GreaterThan(decimal.RequireFromString("0.12")))
	assert.True(t, rows[1].APYGross.GreaterThan(rows[1].APYNet), "gross backs out the protocol cut")
}

func TestTVLAPYPartialSeries(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	dates := MonthEndDates(target)

	// Only the last two months are readable.
	ratios := map[string][]*big.Int{
		dates[10].Format("2006-01-02"): stack(1_000_000_000, 1_000_000_000),
		dates[11].Format("2006-01-02"): stack(1_000_000_000, 1_020_000_000),
	}
	service := NewStakingService(&fakeChainState{ratios: ratios}, &fakeTVL{}, "0:pool", "bemo")

	rows, err := service.TVLAPY(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, rows, 2, "unreadable months are skipped, not fatal")
	assert.Equal(t, "0.02", rows[1].Rate.String())
}

func TestTVLAPYMergesTVLByMonth(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	dates := MonthEndDates(target)
	ratios := map[string][]*big.Int{
		dates[11].Format("2006-01-02"): stack(1_000_000_000, 1_000_000_000),
	}
	tvl := &fakeTVL{points: []adapter.TVLPoint{
		{Date: time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), TVLUSD: dec("900000"), TVLTON: dec("380000")},
		{Date: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), TVLUSD: dec("1000000"), TVLTON: dec("400000")},
		{Date: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), TVLUSD: dec("1100000"), TVLTON: dec("410000")},
	}}
	service := NewStakingService(&fakeChainState{ratios: ratios}, tvl, "0:pool", "bemo")

	rows, err := service.TVLAPY(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1000000", rows[0].TVLUSD.String(), "latest point at or before the month end")
	assert.Equal(t, "400000", rows[0].TVLTON.String())
}

func TestTVLAPYSurvivesTVLOutage(t *testing.T) {
	target := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	dates := MonthEndDates(target)
	ratios := map[string][]*big.Int{
		dates[11].Format("2006-01-02"): stack(1_000_000_000, 1_000_000_000),
	}
	tvl := &fakeTVL{err: apperrors.NewUpstream("defillama", "down")}
	service := NewStakingService(&fakeChainState{ratios: ratios}, tvl, "0:pool", "bemo")

	rows, err := service.TVLAPY(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].TVLUSD.IsZero())
}

func TestRatioAtZeroMintedSupplyIsUpstreamError(t *testing.T) {
	target := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	ratios := map[string][]*big.Int{
		target.Format("2006-01-02"): stack(0, 1_000_000_000),
	}
	service := NewStakingService(&fakeChainState{ratios: ratios}, &fakeTVL{}, "0:pool", "bemo")

	samples := service.PriceRatios(context.Background(), []time.Time{target})
	assert.Empty(t, samples, "unreadable ratio yields no sample")
}
