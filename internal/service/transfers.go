package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/books"
	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/types"
)

// nanoton converts TON base units to whole coins.
var nanoton = decimal.New(1, 9)

// evmExplorer is the Etherscan surface the transfer service depends on.
type evmExplorer interface {
	BlockByTime(ctx context.Context, ts time.Time, closest string) (int64, error)
	TokenTransfers(ctx context.Context, address string, startBlock, endBlock int64) ([]adapter.EtherscanTokenTransfer, error)
}

// tonArchive is the dTON surface the transfer service depends on.
type tonArchive interface {
	RawTransactions(ctx context.Context, addressFriendly string, from, to time.Time) ([]adapter.DtonRawTransaction, error)
	StakingTransactions(ctx context.Context, filter adapter.StakingFilter) ([]adapter.DtonStakingTransaction, error)
}

// tonIndexer is the tonapi surface the transfer service depends on.
type tonIndexer interface {
	AccountEvents(ctx context.Context, account string, start, end time.Time) ([]adapter.Event, error)
	JettonWalletAddress(ctx context.Context, jettonMaster, owner string) (string, error)
}

// StakingAddresses are the raw-form contract addresses the TON mappers
// recognize: the liquid-staking jetton master, its pool and the lending
// protocol.
type StakingAddresses struct {
	SttonMaster string
	Pool        string
	Lending     string
}

// TransferService produces the unified transfer ledger for a wallet: EVM
// token transfers, TON native transfers, jetton transfers and swaps, and
// synthetic staking mint/burn rows.
type TransferService struct {
	explorer evmExplorer
	archive  tonArchive
	indexer  tonIndexer

	tokens   types.AddressBook
	ethNotes books.NoteBook
	tonNotes books.NoteBook
	staking  StakingAddresses
}

// NewTransferService wires the transfer ledger producer.
func NewTransferService(
	explorer evmExplorer,
	archive tonArchive,
	indexer tonIndexer,
	tokens types.AddressBook,
	ethNotes, tonNotes books.NoteBook,
	staking StakingAddresses,
) *TransferService {
	return &TransferService{
		explorer: explorer,
		archive:  archive,
		indexer:  indexer,
		tokens:   tokens,
		ethNotes: ethNotes,
		tonNotes: tonNotes,
		staking:  staking,
	}
}

// WalletTransfers returns the ledger for one wallet in the [from, to] window.
// TON ledgers are deduplicated across the native and jetton views; the EVM
// ledger has a single source, so it is only sorted.
func (s *TransferService) WalletTransfers(ctx context.Context, wallet types.Wallet, jettons types.AddressBook, from, to time.Time) ([]types.Transfer, error) {
	switch wallet.Network() {
	case types.NetworkETH:
		transfers, err := s.evmTokenTransfers(ctx, wallet, from, to)
		if err != nil {
			return nil, err
		}
		sortLedger(transfers)
		return transfers, nil
	default:
		native, err := s.tonNativeTransfers(ctx, wallet, from, to)
		if err != nil {
			return nil, err
		}
		jetton, err := s.jettonTransfers(ctx, wallet, jettons, from, to)
		if err != nil {
			return nil, err
		}
		staking, err := s.stakingTransfers(ctx, wallet, jettons, from, to)
		if err != nil {
			return nil, err
		}
		return Unify(native, append(jetton, staking...)), nil
	}
}

// parseTONAddress parses any supported TON address form, wrapping failures as
// input errors so the caller skips just the affected wallet.
func parseTONAddress(raw string) (*address.Address, error) {
	var parsed *address.Address
	var err error
	if types.IsTONFriendlyAddress(raw) {
		parsed, err = address.ParseAddr(raw)
	} else {
		parsed, err = address.ParseRawAddr(raw)
	}
	if err != nil {
		return nil, apperrors.NewAddressParse(raw, err)
	}
	return parsed, nil
}

// rawForm renders an address in its workchain:hex form, lowercase.
func rawForm(a *address.Address) string {
	return fmt.Sprintf("%d:%x", a.Workchain(), a.Data())
}

// rawHex is the hex part of the raw form, as archive rows report addresses.
func rawHex(a *address.Address) string {
	raw := rawForm(a)
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

// normalizeCounterparty renders a bare account-id hex the way the ledger
// reports counterparties.
func normalizeCounterparty(hex string) string {
	if hex == "" {
		return ""
	}
	return "0:" + strings.ToLower(hex)
}
