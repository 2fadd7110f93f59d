package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/retry"
)

func newTonapiFixture(t *testing.T, handler http.HandlerFunc) *TonapiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTonapiClient(server.URL, httpclient.New(retry.Once))
}

func TestTonapiJettonBalances(t *testing.T) {
	client := newTonapiFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/accounts/EQowner/jettons", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("currencies"))
		fmt.Fprint(w, `{"balances":[
			{"balance":"2500000000","jetton":{"address":"0:aa","symbol":"stTON","decimals":9},
			 "price":{"prices":{"USD":"5.31"}}}
		]}`)
	})

	balances, err := client.JettonBalances(context.Background(), "EQowner")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "stTON", balances[0].Jetton.Symbol)
	assert.Equal(t, "2500000000", balances[0].Balance.String())
	assert.Equal(t, "5.31", balances[0].Price.Prices["USD"].String())
}

func TestTonapiAccountEventsDrainsPages(t *testing.T) {
	pages := 0
	client := newTonapiFixture(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		switch r.URL.Query().Get("before_lt") {
		case "":
			fmt.Fprint(w, `{"events":[
				{"event_id":"e1","timestamp":1700000100,"actions":[{"type":"JettonTransfer"}]}
			],"next_from":42}`)
		case "42":
			fmt.Fprint(w, `{"events":[
				{"event_id":"e2","timestamp":1700000000,"actions":[{"type":"JettonSwap"}]}
			],"next_from":0}`)
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("before_lt"))
		}
	})

	start := time.Unix(1_699_000_000, 0)
	end := time.Unix(1_701_000_000, 0)
	events, err := client.AccountEvents(context.Background(), "EQowner", start, end)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, "e2", events[1].EventID)
	assert.Equal(t, 2, pages)
}

func TestTonapiJettonWalletAddress(t *testing.T) {
	client := newTonapiFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/blockchain/accounts/EQmaster/methods/get_wallet_address", r.URL.Path)
		assert.Equal(t, "EQowner", r.URL.Query().Get("args"))
		fmt.Fprint(w, `{"success":true,"decoded":{"jetton_wallet_address":"0:deadbeef"}}`)
	})

	address, err := client.JettonWalletAddress(context.Background(), "EQmaster", "EQowner")
	require.NoError(t, err)
	assert.Equal(t, "0:deadbeef", address)
}

func TestTonapiJettonWalletAddressEmptyDecoded(t *testing.T) {
	client := newTonapiFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"decoded":{}}`)
	})

	_, err := client.JettonWalletAddress(context.Background(), "EQmaster", "EQowner")
	require.Error(t, err)
}
