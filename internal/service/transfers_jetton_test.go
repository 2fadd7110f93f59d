package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/lncr/reports-helpbot1/internal/adapter"
	"github.com/lncr/reports-helpbot1/internal/books"
	"github.com/lncr/reports-helpbot1/internal/types"
)

func sttonBook() types.AddressBook {
	return types.AddressBook{{Address: testPoolRaw, Symbol: sttonSymbol, Decimals: 9}}
}

func jettonFixture(indexer *fakeIndexer, archive *fakeArchive) *TransferService {
	return NewTransferService(nil, archive, indexer, nil, nil,
		books.NoteBook{}, StakingAddresses{
			SttonMaster: testPoolRaw,
			Pool:        testPoolRaw,
			Lending:     testLendingRaw,
		})
}

func TestJettonTransferSides(t *testing.T) {
	ownWallet := "0:1111"
	indexer := &fakeIndexer{
		wallets: map[string]string{testPoolRaw: ownWallet},
		events: []adapter.Event{
			{
				Timestamp: 1_700_000_000,
				Actions: []adapter.Action{{
					Type:   "JettonTransfer",
					Status: "ok",
					JettonTransfer: &adapter.JettonTransferAction{
						SendersWallet:    ownWallet,
						RecipientsWallet: "0:2222",
						Amount:           "5000000000",
						Comment:          "rent",
						Jetton:           adapter.JettonInfo{Address: testPoolRaw, Symbol: sttonSymbol, Decimals: 9},
					},
				}},
			},
			{
				Timestamp: 1_700_000_100,
				Actions: []adapter.Action{{
					Type:   "JettonTransfer",
					Status: "ok",
					JettonTransfer: &adapter.JettonTransferAction{
						SendersWallet:    "0:3333",
						RecipientsWallet: ownWallet,
						Amount:           "1000000000",
						Jetton:           adapter.JettonInfo{Address: testPoolRaw, Symbol: sttonSymbol, Decimals: 9},
					},
				}},
			},
		},
	}
	service := jettonFixture(indexer, &fakeArchive{})

	transfers, err := service.jettonTransfers(context.Background(),
		types.Wallet{Address: testTONWallet, AccountName: "ops"},
		sttonBook(), time.Time{}, time.Now())
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	assert.Equal(t, types.SideOut, transfers[0].Side)
	assert.Equal(t, "5", transfers[0].Value.String())
	assert.Equal(t, "rent", transfers[0].Note)
	assert.Equal(t, "0:2222", transfers[0].Address)

	assert.Equal(t, types.SideIn, transfers[1].Side)
	assert.Equal(t, "0:3333", transfers[1].Address)
}

func TestJettonTransferEvaaNotes(t *testing.T) {
	ownWallet := "0:1111"
	indexer := &fakeIndexer{
		wallets: map[string]string{testPoolRaw: ownWallet},
		events: []adapter.Event{{
			Timestamp: 1_700_000_000,
			Actions: []adapter.Action{
				{
					Type:   "JettonTransfer",
					Status: "ok",
					JettonTransfer: &adapter.JettonTransferAction{
						SendersWallet:    ownWallet,
						RecipientsWallet: testLendingRaw,
						Amount:           "1000000000",
						Comment:          "ignored",
						Jetton:           adapter.JettonInfo{Address: testPoolRaw, Symbol: sttonSymbol, Decimals: 9},
					},
				},
				{
					Type:   "JettonTransfer",
					Status: "ok",
					JettonTransfer: &adapter.JettonTransferAction{
						SendersWallet:    testLendingRaw,
						RecipientsWallet: ownWallet,
						Amount:           "1000000000",
						Jetton:           adapter.JettonInfo{Address: testPoolRaw, Symbol: sttonSymbol, Decimals: 9},
					},
				},
			},
		}},
	}
	service := jettonFixture(indexer, &fakeArchive{})

	transfers, err := service.jettonTransfers(context.Background(),
		types.Wallet{Address: testTONWallet, AccountName: "ops"},
		sttonBook(), time.Time{}, time.Now())
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, noteEvaaDeposit, transfers[0].Note)
	assert.Equal(t, noteEvaaWithdrawal, transfers[1].Note)
}

func TestJettonSwapEmitsBothLegs(t *testing.T) {
	tonIn := json.Number("7000000000")
	indexer := &fakeIndexer{
		events: []adapter.Event{{
			Timestamp: 1_700_000_000,
			Actions: []adapter.Action{{
				Type:   "JettonSwap",
				Status: "ok",
				SimplePreview: struct {
					Description string `json:"description"`
				}{Description: "Swapping 7 TON for 6.5 stTON"},
				JettonSwap: &adapter.JettonSwapAction{
					TonIn:           &tonIn,
					AmountOut:       "6500000000",
					JettonMasterOut: &adapter.JettonInfo{Address: testPoolRaw, Symbol: sttonSymbol, Decimals: 9},
				},
			}},
		}},
	}
	service := jettonFixture(indexer, &fakeArchive{})

	transfers, err := service.jettonTransfers(context.Background(),
		types.Wallet{Address: testTONWallet, AccountName: "ops"},
		sttonBook(), time.Time{}, time.Now())
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	out := transfers[0]
	assert.Equal(t, types.SideOut, out.Side)
	assert.Equal(t, "TON", out.Symbol)
	assert.Equal(t, "7", out.Value.String())
	assert.Equal(t, "Swapping 7 TON for 6.5 stTON", out.Note)

	in := transfers[1]
	assert.Equal(t, types.SideIn, in.Side)
	assert.Equal(t, sttonSymbol, in.Symbol)
	assert.Equal(t, "6.5", in.Value.String())
}

func TestJettonTransfersSkipInProgressAndFailedActions(t *testing.T) {
	indexer := &fakeIndexer{
		events: []adapter.Event{
			{Timestamp: 1, InProgress: true, Actions: []adapter.Action{{
				Type: "JettonTransfer", Status: "ok",
				JettonTransfer: &adapter.JettonTransferAction{
					Amount: "1", Jetton: adapter.JettonInfo{Address: testPoolRaw, Decimals: 9},
				},
			}}},
			{Timestamp: 2, Actions: []adapter.Action{{
				Type: "JettonTransfer", Status: "failed",
				JettonTransfer: &adapter.JettonTransferAction{
					Amount: "1", Jetton: adapter.JettonInfo{Address: testPoolRaw, Decimals: 9},
				},
			}}},
		},
	}
	service := jettonFixture(indexer, &fakeArchive{})

	transfers, err := service.jettonTransfers(context.Background(),
		types.Wallet{Address: testTONWallet, AccountName: "ops"},
		sttonBook(), time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func stakingBody(t *testing.T, amount uint64) string {
	t.Helper()
	body := cell.BeginCell().
		MustStoreUInt(0x7bdd97de, 32).
		MustStoreUInt(1, 64).
		MustStoreCoins(amount).
		EndCell()
	return base64.StdEncoding.EncodeToString(body.ToBOC())
}

func TestStakingTransfersSynthesizeMintAndBurn(t *testing.T) {
	archive := &fakeArchive{staking: map[string][]adapter.DtonStakingTransaction{
		adapter.OpCodeBurn: {{
			InMsgBody: stakingBody(t, 2_500_000_000),
			GenUtime:  "2024-03-10T15:00:00",
			Lt:        "100",
		}},
		adapter.OpCodeInternalTransfer: {{
			InMsgBody: stakingBody(t, 4_000_000_000),
			GenUtime:  "2024-03-12T15:00:00",
			Lt:        "200",
		}},
	}}
	indexer := &fakeIndexer{wallets: map[string]string{testPoolRaw: "0:1111"}}
	service := jettonFixture(indexer, archive)

	transfers, err := service.stakingTransfers(context.Background(),
		types.Wallet{Address: testTONWallet, AccountName: "ops"},
		sttonBook(), time.Time{}, time.Now())
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	burn := transfers[0]
	assert.Equal(t, types.SideOut, burn.Side)
	assert.Equal(t, "2.5", burn.Value.String())
	assert.Equal(t, sttonSymbol, burn.Symbol)
	assert.Equal(t, noteBemoStaking, burn.Note)

	mint := transfers[1]
	assert.Equal(t, types.SideIn, mint.Side)
	assert.Equal(t, "4", mint.Value.String())
}

func TestStakingTransfersSkippedWhenJettonUntracked(t *testing.T) {
	service := jettonFixture(&fakeIndexer{}, &fakeArchive{})

	transfers, err := service.stakingTransfers(context.Background(),
		types.Wallet{Address: testTONWallet, AccountName: "ops"},
		types.AddressBook{}, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, transfers)
}
