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

func newLiteServerFixture(t *testing.T, handler http.HandlerFunc) *LiteServerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewLiteServerClient(server.URL, httpclient.New(retry.Once))
}

func TestLookupBlock(t *testing.T) {
	client := newLiteServerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lookupBlock", r.URL.Path)
		assert.Equal(t, "-1", r.URL.Query().Get("workchain"))
		assert.Equal(t, masterchainShard, r.URL.Query().Get("shard"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("unixtime"))
		fmt.Fprint(w, `{"ok":true,"result":{"workchain":-1,"shard":"-9223372036854775808","seqno":34567890,"root_hash":"rh","file_hash":"fh"}}`)
	})

	block, err := client.LookupBlock(context.Background(), time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(34567890), block.Seqno)
	assert.Equal(t, -1, block.Workchain)
}

func TestRunGetMethodIntsParsesHexStack(t *testing.T) {
	client := newLiteServerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runGetMethod", r.URL.Path)
		var body runMethodRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "get_full_data", body.Method)
		require.NotNil(t, body.Block)
		assert.Equal(t, int64(34567890), body.Block.Seqno)
		fmt.Fprint(w, `{"ok":true,"result":{"exit_code":0,"stack":[
			["num","0x3b9aca00"],
			["num","0x3f5476a00"]
		]}}`)
	})

	block := BlockID{Workchain: -1, Shard: masterchainShard, Seqno: 34567890}
	ints, err := client.RunGetMethodInts(context.Background(), "0:cd872fa7", "get_full_data", block)
	require.NoError(t, err)
	require.Len(t, ints, 2)
	assert.Equal(t, int64(1_000_000_000), ints[0].Int64())
	assert.Equal(t, int64(17_000_000_000), ints[1].Int64())
}

func TestRunGetMethodIntsNonZeroExitCode(t *testing.T) {
	client := newLiteServerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"exit_code":-13,"stack":[]}}`)
	})

	_, err := client.RunGetMethodInts(context.Background(), "0:cd872fa7", "get_full_data", BlockID{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryUpstream, apperrors.CategoryOf(err))
}
