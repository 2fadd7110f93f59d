package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/retry"
)

func newDtonFixture(t *testing.T, handler http.HandlerFunc) *DtonClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewDtonClient(server.URL, httpclient.New(retry.Once))
}

func decodeDtonQuery(t *testing.T, r *http.Request) string {
	t.Helper()
	var body struct {
		Query string `json:"query"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body.Query
}

func TestDtonRawTransactionsShiftsBoundsIntoProviderZone(t *testing.T) {
	var query string
	client := newDtonFixture(t, func(w http.ResponseWriter, r *http.Request) {
		query = decodeDtonQuery(t, r)
		fmt.Fprint(w, `{"data":{"raw_transactions":[]}}`)
	})

	// Midnight UTC is 03:00 in the provider zone.
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.RawTransactions(context.Background(), "EQtest", from, time.Time{})
	require.NoError(t, err)

	assert.Contains(t, query, `gen_utime__gte: "2024-03-01T03:00:00"`)
	assert.NotContains(t, query, "gen_utime__lte", "zero upper bound must stay open")
}

func TestDtonRawTransactionTimeNormalizesToUTC(t *testing.T) {
	tx := DtonRawTransaction{GenUtime: "2024-03-01T03:00:00"}
	parsed, err := tx.Time()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), parsed)
}

func TestDtonErrorsPayloadBecomesUpstreamError(t *testing.T) {
	client := newDtonFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"rate limited"}]}`)
	})

	_, err := client.RawTransactions(context.Background(), "EQtest", time.Now(), time.Time{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryUpstream, apperrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestDtonStakingTransactionsDrainsCursor(t *testing.T) {
	pages := 0
	client := newDtonFixture(t, func(w http.ResponseWriter, r *http.Request) {
		query := decodeDtonQuery(t, r)
		pages++
		switch pages {
		case 1:
			assert.NotContains(t, query, "lt__lt")
			fmt.Fprint(w, `{"data":{"raw_transactions":[
				{"in_msg_body":"b1","in_msg_op_code":"2077177310","gen_utime":"2024-03-02T12:00:00","lt":"200"},
				{"in_msg_body":"b2","in_msg_op_code":"2077177310","gen_utime":"2024-03-01T12:00:00","lt":"100"}
			]}}`)
		case 2:
			assert.Contains(t, query, "lt__lt: 100")
			fmt.Fprint(w, `{"data":{"raw_transactions":[]}}`)
		default:
			t.Fatalf("unexpected page %d", pages)
		}
	})

	txs, err := client.StakingTransactions(context.Background(), StakingFilter{
		From:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Address:   "cd872fa7",
		OpCodeHex: OpCodeBurn,
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "b1", txs[0].InMsgBody)
	assert.Equal(t, 2, pages)
}

func TestDtonStakingFilterRendersOptionalClauses(t *testing.T) {
	var query string
	client := newDtonFixture(t, func(w http.ResponseWriter, r *http.Request) {
		query = decodeDtonQuery(t, r)
		fmt.Fprint(w, `{"data":{"raw_transactions":[]}}`)
	})

	_, err := client.StakingTransactions(context.Background(), StakingFilter{
		From:       time.Unix(1_700_000_000, 0),
		To:         time.Unix(1_700_100_000, 0),
		SrcAddrHex: "aa",
		OpCodeHex:  OpCodeInternalTransfer,
	})
	require.NoError(t, err)

	assert.Contains(t, query, `in_msg_src_addr_address_hex: "aa"`)
	assert.Contains(t, query, fmt.Sprintf("in_msg_op_code_hex: %q", OpCodeInternalTransfer))
	assert.NotContains(t, query, `address: "`, "empty address filter must be omitted")
}
