package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/types"
)

// evmTokenTransfers lists the wallet's ERC-20 transfers in the window,
// restricted to the configured token list.
func (s *TransferService) evmTokenTransfers(ctx context.Context, wallet types.Wallet, from, to time.Time) ([]types.Transfer, error) {
	startBlock, err := s.explorer.BlockByTime(ctx, from, "after")
	if err != nil {
		return nil, err
	}
	endBlock, err := s.explorer.BlockByTime(ctx, to, "before")
	if err != nil {
		return nil, err
	}

	rows, err := s.explorer.TokenTransfers(ctx, wallet.Address, startBlock, endBlock)
	if err != nil {
		return nil, err
	}

	transfers := make([]types.Transfer, 0, len(rows))
	for _, row := range rows {
		token, tracked := s.tokens.Get(row.ContractAddress)
		if !tracked {
			continue
		}

		unix, err := strconv.ParseInt(row.TimeStamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse transfer timestamp %q: %w", row.TimeStamp, err)
		}
		raw, err := decimal.NewFromString(row.Value)
		if err != nil {
			return nil, fmt.Errorf("parse transfer value %q: %w", row.Value, err)
		}
		decimals, err := strconv.Atoi(row.TokenDecimal)
		if err != nil {
			decimals = token.Decimals
		}

		side := types.SideIn
		counterparty := row.From
		if strings.EqualFold(row.From, wallet.Address) {
			side = types.SideOut
			counterparty = row.To
		}

		note := ""
		if mapped, ok := s.ethNotes.Lookup(counterparty); ok {
			note = mapped
		}

		transfers = append(transfers, types.Transfer{
			Time:        time.Unix(unix, 0).UTC(),
			Side:        side,
			Value:       raw.Div(decimal.New(1, int32(decimals))),
			Symbol:      token.Symbol,
			Note:        note,
			AccountName: wallet.AccountName,
			Address:     strings.ToLower(counterparty),
			Network:     types.NetworkETH,
		})
	}
	return transfers, nil
}
