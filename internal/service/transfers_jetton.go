package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/retry"
	"github.com/lncr/reports-helpbot1/internal/types"
)

const (
	noteEvaaDeposit    = "evaa deposit"
	noteEvaaWithdrawal = "evaa withdrawal"

	sttonSymbol = "stTON"
)

// jettonTransfers maps the wallet's indexer events onto ledger rows: plain
// jetton transfers and both legs of every swap.
func (s *TransferService) jettonTransfers(ctx context.Context, wallet types.Wallet, jettons types.AddressBook, from, to time.Time) ([]types.Transfer, error) {
	events, err := s.indexer.AccountEvents(ctx, wallet.Address, from, to)
	if err != nil {
		return nil, err
	}

	owned, err := s.deriveJettonWallets(ctx, wallet, jettons)
	if err != nil {
		return nil, err
	}

	var transfers []types.Transfer
	for _, event := range events {
		if event.InProgress {
			continue
		}
		at := time.Unix(event.Timestamp, 0).UTC()
		for _, action := range event.Actions {
			if action.Status != "ok" {
				continue
			}
			switch {
			case action.JettonTransfer != nil:
				row, ok := s.jettonTransferRow(wallet, jettons, owned, *action.JettonTransfer, at)
				if ok {
					transfers = append(transfers, row)
				}
			case action.JettonSwap != nil:
				transfers = append(transfers,
					s.swapLegs(wallet, jettons, *action.JettonSwap, action.SimplePreview.Description, at)...)
			}
		}
	}
	return transfers, nil
}

func (s *TransferService) jettonTransferRow(
	wallet types.Wallet,
	jettons types.AddressBook,
	owned map[string]string,
	action adapter.JettonTransferAction,
	at time.Time,
) (types.Transfer, bool) {
	token, tracked := jettons.Get(action.Jetton.Address)
	if !tracked {
		return types.Transfer{}, false
	}

	value, err := decimal.NewFromString(action.Amount.String())
	if err != nil {
		return types.Transfer{}, false
	}
	value = value.Div(decimal.New(1, int32(action.Jetton.Decimals)))

	side := types.SideIn
	counterparty := action.SendersWallet
	if s.ownsJettonWallet(owned, action.SendersWallet) {
		side = types.SideOut
		counterparty = action.RecipientsWallet
	}

	return types.Transfer{
		Time:        at,
		Side:        side,
		Value:       value,
		Symbol:      token.Symbol,
		Note:        s.jettonNote(action.Comment, counterparty, side),
		AccountName: wallet.AccountName,
		Address:     strings.ToLower(counterparty),
		Network:     types.NetworkTON,
	}, true
}

// jettonNote prefers the lending-protocol classification over the raw
// comment: deposits and withdrawals there are economically distinct from
// plain transfers.
func (s *TransferService) jettonNote(comment, counterparty string, side types.Side) string {
	if strings.EqualFold(counterparty, s.staking.Lending) {
		if side == types.SideOut {
			return noteEvaaDeposit
		}
		return noteEvaaWithdrawal
	}
	if comment != "" {
		return comment
	}
	if note, ok := s.tonNotes.Lookup(counterparty); ok {
		return note
	}
	return ""
}

// swapLegs renders a swap as its two movements, both annotated with the
// indexer's human-readable description.
func (s *TransferService) swapLegs(
	wallet types.Wallet,
	jettons types.AddressBook,
	swap adapter.JettonSwapAction,
	description string,
	at time.Time,
) []types.Transfer {
	var legs []types.Transfer

	if out, ok := swapLeg(jettons, swap.JettonMasterIn, swap.AmountIn.String(), swap.TonIn); ok {
		legs = append(legs, types.Transfer{
			Time:        at,
			Side:        types.SideOut,
			Value:       out.value,
			Symbol:      out.symbol,
			Note:        description,
			AccountName: wallet.AccountName,
			Network:     types.NetworkTON,
		})
	}
	if in, ok := swapLeg(jettons, swap.JettonMasterOut, swap.AmountOut.String(), swap.TonOut); ok {
		legs = append(legs, types.Transfer{
			Time:        at,
			Side:        types.SideIn,
			Value:       in.value,
			Symbol:      in.symbol,
			Note:        description,
			AccountName: wallet.AccountName,
			Network:     types.NetworkTON,
		})
	}
	return legs
}

type swapAmount struct {
	value  decimal.Decimal
	symbol string
}

func swapLeg(jettons types.AddressBook, master *adapter.JettonInfo, amount string, ton *json.Number) (swapAmount, bool) {
	if master != nil {
		token, tracked := jettons.Get(master.Address)
		if !tracked {
			return swapAmount{}, false
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return swapAmount{}, false
		}
		return swapAmount{value: value.Div(decimal.New(1, int32(master.Decimals))), symbol: token.Symbol}, true
	}
	if ton != nil {
		value, err := decimal.NewFromString(ton.String())
		if err != nil {
			return swapAmount{}, false
		}
		return swapAmount{value: value.Div(nanoton), symbol: "TON"}, true
	}
	return swapAmount{}, false
}

// deriveJettonWallets resolves the wallet's jetton wallet contract for every
// tracked jetton master. Derivation is chain-state lookup only, so it is
// retried indefinitely on the contract-call policy.
func (s *TransferService) deriveJettonWallets(ctx context.Context, wallet types.Wallet, jettons types.AddressBook) (map[string]string, error) {
	owned := make(map[string]string, len(jettons))
	for _, token := range jettons {
		var derived string
		err := retry.Do(ctx, retry.ContractCall, func(ctx context.Context, attempt int) error {
			var err error
			derived, err = s.indexer.JettonWalletAddress(ctx, token.Address, wallet.Address)
			return err
		})
		if err != nil {
			return nil, err
		}
		owned[strings.ToLower(token.Address)] = strings.ToLower(derived)
	}
	return owned, nil
}

func (s *TransferService) ownsJettonWallet(owned map[string]string, candidate string) bool {
	lowered := strings.ToLower(candidate)
	for _, derived := range owned {
		if derived == lowered {
			return true
		}
	}
	return false
}

// stakingTransfers synthesizes mint and burn rows for the liquid-staking
// jetton from op-code filtered archive queries. They surface stake and
// unstake movements the indexer does not report as transfers.
func (s *TransferService) stakingTransfers(ctx context.Context, wallet types.Wallet, jettons types.AddressBook, from, to time.Time) ([]types.Transfer, error) {
	if _, tracked := jettons.Get(s.staking.SttonMaster); !tracked {
		return nil, nil
	}

	sttonWallet, err := s.sttonWalletHex(ctx, wallet)
	if err != nil {
		return nil, err
	}
	masterHex := hexPart(s.staking.SttonMaster)

	burns, err := s.archive.StakingTransactions(ctx, adapter.StakingFilter{
		From:       from,
		To:         to,
		SrcAddrHex: sttonWallet,
		Address:    masterHex,
		OpCodeHex:  adapter.OpCodeBurn,
	})
	if err != nil {
		return nil, err
	}
	mints, err := s.archive.StakingTransactions(ctx, adapter.StakingFilter{
		From:       from,
		To:         to,
		SrcAddrHex: masterHex,
		Address:    sttonWallet,
		OpCodeHex:  adapter.OpCodeInternalTransfer,
	})
	if err != nil {
		return nil, err
	}

	var transfers []types.Transfer
	for _, row := range burns {
		transfer, err := s.stakingRow(wallet, row, types.SideOut)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("skipping unparsable burn row")
			continue
		}
		transfers = append(transfers, transfer)
	}
	for _, row := range mints {
		transfer, err := s.stakingRow(wallet, row, types.SideIn)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("skipping unparsable mint row")
			continue
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

func (s *TransferService) stakingRow(wallet types.Wallet, row adapter.DtonStakingTransaction, side types.Side) (types.Transfer, error) {
	at, err := row.Time()
	if err != nil {
		return types.Transfer{}, err
	}
	amount, err := stakingAmount(row.InMsgBody)
	if err != nil {
		return types.Transfer{}, err
	}
	return types.Transfer{
		Time:        at,
		Side:        side,
		Value:       amount,
		Symbol:      sttonSymbol,
		Note:        noteBemoStaking,
		AccountName: wallet.AccountName,
		Address:     normalizeCounterparty(row.InMsgSrcAddrHex),
		Network:     types.NetworkTON,
	}, nil
}

// stakingAmount extracts the coin amount from a mint or burn message body:
// 32-bit op code, 64-bit query id, then the amount as variable-length coins.
func stakingAmount(bodyBase64 string) (decimal.Decimal, error) {
	raw, err := base64.StdEncoding.DecodeString(bodyBase64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode message body: %w", err)
	}
	body, err := cell.FromBOC(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse message body: %w", err)
	}

	slice := body.BeginParse()
	if _, err := slice.LoadUInt(32); err != nil {
		return decimal.Zero, fmt.Errorf("skip op code: %w", err)
	}
	if _, err := slice.LoadUInt(64); err != nil {
		return decimal.Zero, fmt.Errorf("skip query id: %w", err)
	}
	coins, err := slice.LoadBigCoins()
	if err != nil {
		return decimal.Zero, fmt.Errorf("load amount: %w", err)
	}
	return decimal.NewFromBigInt(coins, -9), nil
}

func (s *TransferService) sttonWalletHex(ctx context.Context, wallet types.Wallet) (string, error) {
	var derived string
	err := retry.Do(ctx, retry.ContractCall, func(ctx context.Context, attempt int) error {
		var err error
		derived, err = s.indexer.JettonWalletAddress(ctx, s.staking.SttonMaster, wallet.Address)
		return err
	})
	if err != nil {
		return "", err
	}
	return hexPart(derived), nil
}

// hexPart strips the workchain prefix from a raw-form address.
func hexPart(raw string) string {
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		return strings.ToLower(raw[i+1:])
	}
	return strings.ToLower(raw)
}
