// Package service implements the reconciliation engine: transfer
// normalization, the unified ledger, balance reconstruction, pricing and the
// staking yield report.
package service

import (
	"sort"
	"strings"

	"github.com/lncr/reports-helpbot1/internal/types"
)

const swapNotePrefix = "Swapping"

// Unify merges native and jetton transfers into one deduplicated ledger.
//
// Rows are sorted by (account, time) and collapsed by the composite key
// (time, account, whole-number value): indexers frequently report the same
// economic event from both the native and the jetton view with the fractional
// part differing, so only the integer part participates in the key. The first
// row of a collapsed group survives; if any member of the group carries a swap
// note, that note is copied onto the survivor while the survivor's value is
// kept.
func Unify(native, jetton []types.Transfer) []types.Transfer {
	all := make([]types.Transfer, 0, len(native)+len(jetton))
	all = append(all, native...)
	all = append(all, jetton...)
	sortLedger(all)

	type groupKey struct {
		time    int64
		account string
		whole   int64
	}

	kept := make([]types.Transfer, 0, len(all))
	index := make(map[groupKey]int, len(all))
	for _, transfer := range all {
		key := groupKey{
			time:    transfer.Time.Unix(),
			account: transfer.AccountName,
			whole:   transfer.Value.IntPart(),
		}
		at, seen := index[key]
		if !seen {
			index[key] = len(kept)
			kept = append(kept, transfer)
			continue
		}
		if strings.HasPrefix(transfer.Note, swapNotePrefix) {
			kept[at].Note = transfer.Note
		}
	}

	sortLedger(kept)
	return kept
}

func sortLedger(transfers []types.Transfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		if transfers[i].AccountName != transfers[j].AccountName {
			return transfers[i].AccountName < transfers[j].AccountName
		}
		return transfers[i].Time.Before(transfers[j].Time)
	})
}
