// Package types provides the common domain model for the reconciliation engine.
package types

import (
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Network represents the chain a wallet or transfer belongs to.
type Network string

const (
	// NetworkETH represents the EVM chain.
	NetworkETH Network = "ETH"
	// NetworkTON represents the TON chain.
	NetworkTON Network = "TON"
)

// Side represents the direction of a transfer relative to the wallet.
type Side string

const (
	// SideIn represents an incoming transfer (wallet is recipient).
	SideIn Side = "in"
	// SideOut represents an outgoing transfer (wallet is sender).
	SideOut Side = "out"
)

// tonFriendlyPattern matches user-friendly TON addresses: a two-character
// flag/workchain prefix followed by 46 base64url characters.
var tonFriendlyPattern = regexp.MustCompile(`^(EQ|UQ|Ef|Uf|kQ|0Q)[0-9A-Za-z_-]{46}$`)

// IsTONFriendlyAddress reports whether the address is in the user-friendly
// TON form, as opposed to the raw workchain:hex form.
func IsTONFriendlyAddress(address string) bool {
	return tonFriendlyPattern.MatchString(address)
}

// Wallet is the immutable identity of a tracked account.
// The network is derived from the address shape, never stored.
type Wallet struct {
	Address     string `json:"address"`
	AccountName string `json:"account_name"`
}

// Network derives the chain from the address shape. Anything that is not a
// canonical EVM hex address is treated as a TON address; parse failures
// surface later, when the address is actually used.
func (w Wallet) Network() Network {
	if common.IsHexAddress(w.Address) {
		return NetworkETH
	}
	return NetworkTON
}

// IsTONFriendly reports whether the wallet address is in the user-friendly
// TON form.
func (w Wallet) IsTONFriendly() bool {
	return IsTONFriendlyAddress(w.Address)
}

// Token identifies a token contract, its display symbol and base-unit scale.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddressBook is an ordered set of tokens looked up case-insensitively by
// contract address.
type AddressBook []Token

// Get returns the token registered under the given address.
func (b AddressBook) Get(address string) (Token, bool) {
	for _, token := range b {
		if strings.EqualFold(token.Address, address) {
			return token, true
		}
	}
	return Token{}, false
}

// Transfer is a normalized, ledger-ready transfer row. Value is always
// non-negative; direction is encoded solely by Side. Time is UTC.
type Transfer struct {
	Time        time.Time       `json:"time"`
	Side        Side            `json:"side"`
	Value       decimal.Decimal `json:"value"`
	Symbol      string          `json:"symbol"`
	Note        string          `json:"note"`
	AccountName string          `json:"account_name"`
	Address     string          `json:"address"` // counterparty
	Network     Network         `json:"network"`
}

// Balance is one reconstructed balance row: one per symbol per date per
// wallet. Produced once, never mutated.
type Balance struct {
	Date         time.Time       `json:"date"`
	Symbol       string          `json:"symbol"`
	BalanceToken decimal.Decimal `json:"balance_token"`
	BalanceUSD   decimal.Decimal `json:"balance_usd"`
	AccountName  string          `json:"account_name"`
}

// Price is a monthly price summary for one symbol: the last sample of the
// period and the arithmetic mean over the period.
type Price struct {
	Symbol       string          `json:"symbol"`
	Date         time.Time       `json:"date"`
	PriceEndUSD  decimal.Decimal `json:"price_end_usd"`
	PriceMeanUSD decimal.Decimal `json:"price_mean_usd"`
}

// DailyPrice is one per-day price sample for one symbol.
type DailyPrice struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Price  decimal.Decimal `json:"price"`
}

// RateSample is one fiat-rate snapshot for a calendar day, USD based.
type RateSample struct {
	Date  time.Time                  `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// StakingSample is the staking price ratio observed at the last available day
// of a month.
type StakingSample struct {
	Date       time.Time       `json:"date"`
	PriceRatio decimal.Decimal `json:"price_ratio"`
}

// TVLAPYRow is one month of the staking yield report.
type TVLAPYRow struct {
	Date       time.Time       `json:"date"`
	SttonPrice decimal.Decimal `json:"stton_price"`
	Rate       decimal.Decimal `json:"rate"`
	APYNet     decimal.Decimal `json:"apy_net"`
	APYGross   decimal.Decimal `json:"apy_gross"`
	TVLTON     decimal.Decimal `json:"tvl_ton"`
	TVLUSD     decimal.Decimal `json:"tvl_usd"`
}

// TVLForecastRow is one day of the validator-capacity forecast: the daily TVL
// delta, its weekly moving average, and the validator demand it implies.
type TVLForecastRow struct {
	Date               time.Time       `json:"date"`
	TVLTON             decimal.Decimal `json:"tvl"`
	Delta              decimal.Decimal `json:"delta"`
	SMAWeekly          decimal.Decimal `json:"sma_w"`
	ExpectedGrowth2W   decimal.Decimal `json:"growth_rate_expected_2w"`
	RequiredValidators int64           `json:"n_req_validators"`
	ExpectedNewVal     decimal.Decimal `json:"exp_new_val"`
	ExpectedNewValAdj  decimal.Decimal `json:"exp_new_val_adj"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
