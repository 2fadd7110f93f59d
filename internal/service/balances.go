package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/types"
)

// wei converts EVM base units to whole ether.
var wei = decimal.New(1, 18)

// evmBalanceSource is the Etherscan surface the balance service depends on.
type evmBalanceSource interface {
	NativeBalanceWei(ctx context.Context, address string) (string, error)
	TokenBalanceRaw(ctx context.Context, address, contractAddress string) (string, error)
	BlockByTime(ctx context.Context, ts time.Time, closest string) (int64, error)
	TransactionsSince(ctx context.Context, address string, startBlock int64) ([]adapter.EtherscanTransaction, error)
	TokenTransfers(ctx context.Context, address string, startBlock, endBlock int64) ([]adapter.EtherscanTokenTransfer, error)
}

// tonBalanceSource is the toncenter surface the balance service depends on.
type tonBalanceSource interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// jettonBalanceSource is the tonapi surface the balance service depends on.
type jettonBalanceSource interface {
	JettonBalances(ctx context.Context, account string) ([]adapter.JettonBalance, error)
}

// BalanceService reports current balances and reconstructs historical ones by
// replaying transfers backwards from the present state.
type BalanceService struct {
	explorer  evmBalanceSource
	chain     tonBalanceSource
	indexer   jettonBalanceSource
	archive   tonArchive
	transfers *TransferService
	tokens    types.AddressBook
}

// NewBalanceService wires the balance reconstructor.
func NewBalanceService(
	explorer evmBalanceSource,
	chain tonBalanceSource,
	indexer jettonBalanceSource,
	archive tonArchive,
	transfers *TransferService,
	tokens types.AddressBook,
) *BalanceService {
	return &BalanceService{
		explorer:  explorer,
		chain:     chain,
		indexer:   indexer,
		archive:   archive,
		transfers: transfers,
		tokens:    tokens,
	}
}

// Balances returns the wallet's per-symbol balances as of target, or as of
// now when target is zero. The second return value carries live USD quotes
// keyed by symbol, where the upstream supplies them.
func (s *BalanceService) Balances(ctx context.Context, wallet types.Wallet, jettons types.AddressBook, target time.Time) ([]types.Balance, map[string]decimal.Decimal, error) {
	if wallet.Network() == types.NetworkETH {
		balances, err := s.evmBalances(ctx, wallet, target)
		return balances, nil, err
	}
	return s.tonBalances(ctx, wallet, jettons, target)
}

func balanceDate(target time.Time) time.Time {
	if target.IsZero() {
		return types.Day(time.Now().UTC())
	}
	return types.Day(target)
}

func (s *BalanceService) evmBalances(ctx context.Context, wallet types.Wallet, target time.Time) ([]types.Balance, error) {
	native, err := s.currentEtherBalance(ctx, wallet.Address)
	if err != nil {
		return nil, err
	}

	tokenBalances := make(map[string]decimal.Decimal, len(s.tokens))
	for _, token := range s.tokens {
		raw, err := s.explorer.TokenBalanceRaw(ctx, wallet.Address, token.Address)
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse token balance %q: %w", raw, err)
		}
		tokenBalances[token.Symbol] = amount.Div(decimal.New(1, int32(token.Decimals)))
	}

	if !target.IsZero() {
		native, tokenBalances, err = s.replayEVM(ctx, wallet, target, native, tokenBalances)
		if err != nil {
			return nil, err
		}
	}

	date := balanceDate(target)
	balances := []types.Balance{{
		Date:         date,
		Symbol:       "ETH",
		BalanceToken: native,
		AccountName:  wallet.AccountName,
	}}
	for _, token := range s.tokens {
		balances = append(balances, types.Balance{
			Date:         date,
			Symbol:       token.Symbol,
			BalanceToken: tokenBalances[token.Symbol],
			AccountName:  wallet.AccountName,
		})
	}
	return balances, nil
}

func (s *BalanceService) currentEtherBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	raw, err := s.explorer.NativeBalanceWei(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse native balance %q: %w", raw, err)
	}
	return amount.Div(wei), nil
}

// replayEVM walks every transaction after target and undoes its effect on the
// present balances. Transactions where the wallet is neither side are
// ignored; outgoing ones also undo the gas fee.
func (s *BalanceService) replayEVM(
	ctx context.Context,
	wallet types.Wallet,
	target time.Time,
	native decimal.Decimal,
	tokens map[string]decimal.Decimal,
) (decimal.Decimal, map[string]decimal.Decimal, error) {
	startBlock, err := s.explorer.BlockByTime(ctx, target, "before")
	if err != nil {
		return decimal.Zero, nil, err
	}

	txs, err := s.explorer.TransactionsSince(ctx, wallet.Address, startBlock)
	if err != nil {
		return decimal.Zero, nil, err
	}
	for _, tx := range txs {
		if !timestampAfter(tx.TimeStamp, target) {
			continue
		}
		value, err := decimal.NewFromString(tx.Value)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("parse tx value %q: %w", tx.Value, err)
		}
		value = value.Div(wei)

		switch {
		case strings.EqualFold(tx.From, wallet.Address):
			fee, err := gasFee(tx)
			if err != nil {
				return decimal.Zero, nil, err
			}
			native = native.Add(value).Add(fee)
		case strings.EqualFold(tx.To, wallet.Address):
			native = native.Sub(value)
		}
	}

	rows, err := s.explorer.TokenTransfers(ctx, wallet.Address, startBlock, 99999999)
	if err != nil {
		return decimal.Zero, nil, err
	}
	for _, row := range rows {
		token, tracked := s.tokens.Get(row.ContractAddress)
		if !tracked || !timestampAfter(row.TimeStamp, target) {
			continue
		}
		raw, err := decimal.NewFromString(row.Value)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("parse token transfer value %q: %w", row.Value, err)
		}
		decimals := token.Decimals
		if parsed, err := strconv.Atoi(row.TokenDecimal); err == nil {
			decimals = parsed
		}
		value := raw.Div(decimal.New(1, int32(decimals)))

		if strings.EqualFold(row.From, wallet.Address) {
			tokens[token.Symbol] = tokens[token.Symbol].Add(value)
		} else if strings.EqualFold(row.To, wallet.Address) {
			tokens[token.Symbol] = tokens[token.Symbol].Sub(value)
		}
	}

	return native, tokens, nil
}

func gasFee(tx adapter.EtherscanTransaction) (decimal.Decimal, error) {
	gasUsed, err := decimal.NewFromString(tx.GasUsed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse gas used %q: %w", tx.GasUsed, err)
	}
	gasPrice, err := decimal.NewFromString(tx.GasPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse gas price %q: %w", tx.GasPrice, err)
	}
	return gasUsed.Mul(gasPrice).Div(wei), nil
}

func timestampAfter(unixString string, target time.Time) bool {
	unix, err := strconv.ParseInt(unixString, 10, 64)
	if err != nil {
		return false
	}
	return time.Unix(unix, 0).After(target)
}

func (s *BalanceService) tonBalances(ctx context.Context, wallet types.Wallet, jettons types.AddressBook, target time.Time) ([]types.Balance, map[string]decimal.Decimal, error) {
	parsed, err := parseTONAddress(wallet.Address)
	if err != nil {
		return nil, nil, err
	}

	native, err := s.chain.NativeBalance(ctx, wallet.Address)
	if err != nil {
		return nil, nil, err
	}

	holdings, err := s.indexer.JettonBalances(ctx, wallet.Address)
	if err != nil {
		return nil, nil, err
	}
	jettonBalances := make(map[string]decimal.Decimal, len(jettons))
	quotes := make(map[string]decimal.Decimal, len(jettons))
	for _, holding := range holdings {
		token, tracked := jettons.Get(holding.Jetton.Address)
		if !tracked {
			continue
		}
		raw, err := decimal.NewFromString(holding.Balance.String())
		if err != nil {
			return nil, nil, fmt.Errorf("parse jetton balance %q: %w", holding.Balance, err)
		}
		jettonBalances[token.Symbol] = raw.Div(decimal.New(1, int32(holding.Jetton.Decimals)))
		if quote, ok := holding.Price.Prices["USD"]; ok {
			if price, err := decimal.NewFromString(quote.String()); err == nil {
				quotes[token.Symbol] = price
			}
		}
	}

	if !target.IsZero() {
		native, err = s.replayTONNative(ctx, wallet, rawHex(parsed), target, native)
		if err != nil {
			return nil, nil, err
		}
		jettonBalances, err = s.replayJettons(ctx, wallet, jettons, target, jettonBalances)
		if err != nil {
			return nil, nil, err
		}
	}

	date := balanceDate(target)
	balances := []types.Balance{{
		Date:         date,
		Symbol:       "TON",
		BalanceToken: native,
		AccountName:  wallet.AccountName,
	}}
	for _, token := range jettons {
		amount, held := jettonBalances[token.Symbol]
		if !held && target.IsZero() {
			continue
		}
		balances = append(balances, types.Balance{
			Date:         date,
			Symbol:       token.Symbol,
			BalanceToken: amount,
			AccountName:  wallet.AccountName,
		})
	}
	return balances, quotes, nil
}

// replayTONNative undoes every archive row after target. Incoming value is
// only undone when it came from another account; outgoing values are undone
// when the first destination is another account. Fees always apply.
func (s *BalanceService) replayTONNative(ctx context.Context, wallet types.Wallet, walletHex string, target time.Time, native decimal.Decimal) (decimal.Decimal, error) {
	rows, err := s.archive.RawTransactions(ctx, wallet.Address, target, time.Time{})
	if err != nil {
		return decimal.Zero, err
	}

	for _, row := range rows {
		if row.InMsgValueGrams != nil {
			src := ""
			if row.InMsgSrcAddrHex != nil {
				src = strings.ToLower(*row.InMsgSrcAddrHex)
			}
			if src != walletHex {
				value, err := gramsToTON(*row.InMsgValueGrams)
				if err != nil {
					return decimal.Zero, err
				}
				native = native.Sub(value)
			}
		}

		if len(row.OutMsgValueGrams) > 0 {
			firstDest := ""
			if len(row.OutMsgDestAddrHex) > 0 {
				firstDest = strings.ToLower(row.OutMsgDestAddrHex[0])
			}
			if firstDest != walletHex {
				for _, grams := range row.OutMsgValueGrams {
					value, err := gramsToTON(grams)
					if err != nil {
						return decimal.Zero, err
					}
					native = native.Add(value)
				}
			}
		}

		fee, err := feeTON(row)
		if err != nil {
			return decimal.Zero, err
		}
		native = native.Add(fee)
	}
	return native, nil
}

// replayJettons undoes jetton and staking movements after target, per symbol.
func (s *BalanceService) replayJettons(ctx context.Context, wallet types.Wallet, jettons types.AddressBook, target time.Time, balances map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	now := time.Now().UTC()
	moved, err := s.transfers.jettonTransfers(ctx, wallet, jettons, target, now)
	if err != nil {
		return nil, err
	}
	staking, err := s.transfers.stakingTransfers(ctx, wallet, jettons, target, now)
	if err != nil {
		return nil, err
	}

	for _, transfer := range append(moved, staking...) {
		if transfer.Symbol == "TON" {
			continue
		}
		if transfer.Side == types.SideIn {
			balances[transfer.Symbol] = balances[transfer.Symbol].Sub(transfer.Value)
		} else {
			balances[transfer.Symbol] = balances[transfer.Symbol].Add(transfer.Value)
		}
	}
	return balances, nil
}
