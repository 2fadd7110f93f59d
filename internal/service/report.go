package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/types"
)

// Report is the assembled monthly output: the unified transfer ledger, the
// per-wallet balances valued in USD, price summaries, daily price series and
// the staking yield table.
type Report struct {
	Transfers   []types.Transfer   `json:"transfers"`
	Balances    []types.Balance    `json:"balances"`
	Prices      []types.Price      `json:"prices"`
	DailyPrices []types.DailyPrice `json:"daily_prices"`
	TVLAPY      []types.TVLAPYRow  `json:"tvl_apy"`
	Errors      []WalletError      `json:"errors,omitempty"`
}

// WalletError reports a wallet that was skipped over malformed input.
type WalletError struct {
	Address     string `json:"address"`
	AccountName string `json:"account_name"`
	Message     string `json:"message"`
}

// ReportService assembles monthly reports from the underlying engines.
type ReportService struct {
	transfers *TransferService
	balances  *BalanceService
	prices    *PriceService
	staking   *StakingService
}

// NewReportService wires the report assembler.
func NewReportService(transfers *TransferService, balances *BalanceService, prices *PriceService, staking *StakingService) *ReportService {
	return &ReportService{transfers: transfers, balances: balances, prices: prices, staking: staking}
}

// TargetDate resolves the requested month to a reconstruction point: the last
// instant of the month for past months, zero for the running month (meaning
// "now", no reconstruction).
func TargetDate(month time.Month, year int, now time.Time) time.Time {
	now = now.UTC()
	if year == now.Year() && month == now.Month() {
		return time.Time{}
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, 0).Add(-time.Second)
}

// reportWindow is the ledger period for the requested month.
func reportWindow(month time.Month, year int, target time.Time) (time.Time, time.Time) {
	if target.IsZero() {
		now := time.Now().UTC()
		return types.MonthStart(now), now
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), target
}

// BuildReport assembles the full report for the wallets over the requested
// month. Wallets are processed sequentially; one with a malformed address is
// reported under Errors and skipped, the rest of the report proceeds.
func (s *ReportService) BuildReport(ctx context.Context, wallets []types.Wallet, jettons types.AddressBook, month time.Month, year int) (*Report, error) {
	target := TargetDate(month, year, time.Now().UTC())
	from, to := reportWindow(month, year, target)

	report := &Report{}
	quotes := make(map[string]decimal.Decimal)
	for _, wallet := range wallets {
		walletLog := logging.FromContext(ctx).WithFields(map[string]interface{}{
			"wallet":  wallet.Address,
			"account": wallet.AccountName,
		})

		transfers, err := s.transfers.WalletTransfers(ctx, wallet, jettons, from, to)
		if err == nil {
			report.Transfers = append(report.Transfers, transfers...)

			var balances []types.Balance
			var walletQuotes map[string]decimal.Decimal
			balances, walletQuotes, err = s.balances.Balances(ctx, wallet, jettons, target)
			if err == nil {
				report.Balances = append(report.Balances, balances...)
				for symbol, quote := range walletQuotes {
					quotes[symbol] = quote
				}
			}
		}
		if err != nil {
			if !apperrors.IsAddressParse(err) {
				return nil, err
			}
			walletLog.WithError(err).Warn("skipping wallet with unparsable address")
			report.Errors = append(report.Errors, WalletError{
				Address:     wallet.Address,
				AccountName: wallet.AccountName,
				Message:     err.Error(),
			})
		}
	}

	if err := s.valueReport(ctx, report, quotes, target); err != nil {
		return nil, err
	}

	fiat, err := s.prices.FiatPrices(ctx, target)
	if err != nil {
		return nil, err
	}
	report.Prices = append(report.Prices, fiat...)

	tvlAPY, err := s.staking.TVLAPY(ctx, target)
	if err != nil {
		return nil, err
	}
	report.TVLAPY = tvlAPY

	return report, nil
}

// LedgerForMonth builds only the unified transfer ledger for the requested
// month, with the same skip-on-malformed-wallet behavior as BuildReport.
func (s *ReportService) LedgerForMonth(ctx context.Context, wallets []types.Wallet, jettons types.AddressBook, month time.Month, year int) ([]types.Transfer, []WalletError, error) {
	target := TargetDate(month, year, time.Now().UTC())
	from, to := reportWindow(month, year, target)

	var ledger []types.Transfer
	var skipped []WalletError
	for _, wallet := range wallets {
		transfers, err := s.transfers.WalletTransfers(ctx, wallet, jettons, from, to)
		if err != nil {
			if !apperrors.IsAddressParse(err) {
				return nil, nil, err
			}
			skipped = append(skipped, WalletError{Address: wallet.Address, AccountName: wallet.AccountName, Message: err.Error()})
			continue
		}
		ledger = append(ledger, transfers...)
	}
	return ledger, skipped, nil
}

// BalancesForMonth reconstructs only the balances for the requested month.
func (s *ReportService) BalancesForMonth(ctx context.Context, wallets []types.Wallet, jettons types.AddressBook, month time.Month, year int) ([]types.Balance, []WalletError, error) {
	target := TargetDate(month, year, time.Now().UTC())

	var all []types.Balance
	var skipped []WalletError
	for _, wallet := range wallets {
		balances, _, err := s.balances.Balances(ctx, wallet, jettons, target)
		if err != nil {
			if !apperrors.IsAddressParse(err) {
				return nil, nil, err
			}
			skipped = append(skipped, WalletError{Address: wallet.Address, AccountName: wallet.AccountName, Message: err.Error()})
			continue
		}
		all = append(all, balances...)
	}
	return all, skipped, nil
}

// valueReport prices every balance symbol and applies USD valuations. A
// symbol the price source cannot resolve falls back to its live indexer
// quote; with neither, the valuation stays zero.
func (s *ReportService) valueReport(ctx context.Context, report *Report, quotes map[string]decimal.Decimal, target time.Time) error {
	priced := make(map[string]*types.Price)
	for _, balance := range report.Balances {
		if _, seen := priced[balance.Symbol]; seen {
			continue
		}

		price, err := s.prices.MonthlyPrice(ctx, balance.Symbol, target)
		if err != nil || price == nil {
			if err != nil {
				logging.FromContext(ctx).WithError(err).WithField("symbol", balance.Symbol).
					Warn("price lookup failed, falling back to live quote")
			}
			if quote, ok := quotes[balance.Symbol]; ok {
				price = &types.Price{
					Symbol:       balance.Symbol,
					Date:         balanceDate(target),
					PriceEndUSD:  quote,
					PriceMeanUSD: quote,
				}
			}
		}
		priced[balance.Symbol] = price
		if price == nil {
			continue
		}

		report.Prices = append(report.Prices, *price)
		daily, err := s.prices.DailyPrices(ctx, balance.Symbol, target)
		if err == nil {
			report.DailyPrices = append(report.DailyPrices, daily...)
		}
	}

	for i := range report.Balances {
		if price := priced[report.Balances[i].Symbol]; price != nil {
			report.Balances[i].BalanceUSD = report.Balances[i].BalanceToken.Mul(price.PriceEndUSD)
		}
	}
	return nil
}
