package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/types"
)

const (
	noteProtocolFee    = "protocol fee"
	noteValidatorFee   = "validator fee"
	noteBemoStaking    = "bemo staking"
	noteTransactionFee = "transaction fee"
)

// dustThreshold marks unattributed sub-0.5 TON movements as fee noise.
var dustThreshold = decimal.RequireFromString("0.5")

// tonNativeTransfers maps the wallet's archive rows in the window onto ledger
// rows. Rows that move no value (pure state updates) are skipped.
func (s *TransferService) tonNativeTransfers(ctx context.Context, wallet types.Wallet, from, to time.Time) ([]types.Transfer, error) {
	if _, err := parseTONAddress(wallet.Address); err != nil {
		return nil, err
	}

	rows, err := s.archive.RawTransactions(ctx, wallet.Address, from, to)
	if err != nil {
		return nil, err
	}

	transfers := make([]types.Transfer, 0, len(rows))
	for _, row := range rows {
		at, err := row.Time()
		if err != nil {
			return nil, err
		}

		var side types.Side
		var value decimal.Decimal
		var counterpartyHex string
		var comment string
		switch {
		case row.InMsgValueGrams != nil:
			side = types.SideIn
			value, err = gramsToTON(*row.InMsgValueGrams)
			if row.InMsgSrcAddrHex != nil {
				counterpartyHex = *row.InMsgSrcAddrHex
			}
			if row.InMsgComment != nil {
				comment = *row.InMsgComment
			}
		case len(row.OutMsgValueGrams) > 0:
			side = types.SideOut
			value, err = gramsToTON(row.OutMsgValueGrams[0])
			if len(row.OutMsgDestAddrHex) > 0 {
				counterpartyHex = row.OutMsgDestAddrHex[0]
			}
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		counterparty := normalizeCounterparty(counterpartyHex)
		transfers = append(transfers, types.Transfer{
			Time:        at,
			Side:        side,
			Value:       value,
			Symbol:      "TON",
			Note:        s.tonNote(comment, counterparty, value),
			AccountName: wallet.AccountName,
			Address:     counterparty,
			Network:     types.NetworkTON,
		})
	}
	return transfers, nil
}

// tonNote classifies a native transfer. Exact comment markers are rewritten
// first, a staking-pool counterparty overrides the comment, and any value
// below the dust threshold is unconditionally fee noise.
func (s *TransferService) tonNote(comment, counterparty string, value decimal.Decimal) string {
	note := comment
	switch comment {
	case "протокол":
		note = noteProtocolFee
	case "val":
		note = noteValidatorFee
	}
	if counterparty != "" && strings.EqualFold(counterparty, s.staking.Pool) {
		note = noteBemoStaking
	}
	if note == "" {
		if mapped, ok := s.tonNotes.Lookup(counterparty); ok {
			note = mapped
		}
	}
	if value.Abs().LessThan(dustThreshold) {
		return noteTransactionFee
	}
	return note
}

func gramsToTON(grams json.Number) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(grams.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse grams %q: %w", grams.String(), err)
	}
	return value.Div(nanoton), nil
}

// feeTON sums every nullable fee component of an archive row, in whole TON.
// Components that are absent count as zero.
func feeTON(row adapter.DtonRawTransaction) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, component := range []*json.Number{
		row.ComputePhGasFees,
		row.ActionPhTotalFwdFees,
		row.ActionPhTotalActionFees,
		row.StoragePhStorageFeesCollected,
		row.StoragePhStorageFeesDue,
		row.InMsgFwdFeeGrams,
		row.InMsgIhrFeeGrams,
	} {
		if component == nil {
			continue
		}
		part, err := gramsToTON(*component)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(part)
	}
	return total, nil
}
