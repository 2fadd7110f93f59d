package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
)

// Masterchain coordinates for block lookups.
const (
	masterchainID    = -1
	masterchainShard = "-9223372036854775808"
)

// LiteServerClient executes get methods against historical chain state via a
// lite-server HTTP gateway. It backs the staking-ratio sampler, which needs
// contract state as of a past masterchain block.
type LiteServerClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewLiteServerClient creates a gateway client for the given base URL.
func NewLiteServerClient(baseURL string, http *httpclient.Client) *LiteServerClient {
	return &LiteServerClient{baseURL: baseURL, http: http}
}

// BlockID identifies a masterchain block.
type BlockID struct {
	Workchain int    `json:"workchain"`
	Shard     string `json:"shard"`
	Seqno     int64  `json:"seqno"`
	RootHash  string `json:"root_hash"`
	FileHash  string `json:"file_hash"`
}

// LookupBlock returns the last masterchain block with unixtime at or before
// ts.
func (c *LiteServerClient) LookupBlock(ctx context.Context, ts time.Time) (BlockID, error) {
	params := url.Values{}
	params.Set("workchain", strconv.Itoa(masterchainID))
	params.Set("shard", masterchainShard)
	params.Set("unixtime", strconv.FormatInt(ts.Unix(), 10))

	var payload struct {
		Ok     bool    `json:"ok"`
		Error  string  `json:"error"`
		Result BlockID `json:"result"`
	}
	endpoint := c.baseURL + "/lookupBlock"
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return BlockID{}, err
	}
	if !payload.Ok {
		return BlockID{}, apperrors.NewUpstream("liteserver", payload.Error)
	}
	return payload.Result, nil
}

type runMethodRequest struct {
	Address string   `json:"address"`
	Method  string   `json:"method"`
	Stack   [][]any  `json:"stack"`
	Block   *BlockID `json:"block,omitempty"`
}

// RunGetMethodInts executes a get method on the contract at the given block
// and returns the integer stack entries in order. Non-integer entries make
// the call fail; the methods sampled here return only integers.
func (c *LiteServerClient) RunGetMethodInts(ctx context.Context, address, method string, block BlockID) ([]*big.Int, error) {
	request := runMethodRequest{
		Address: address,
		Method:  method,
		Stack:   [][]any{},
		Block:   &block,
	}

	var payload struct {
		Ok     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			ExitCode int                 `json:"exit_code"`
			Stack    [][]json.RawMessage `json:"stack"`
		} `json:"result"`
	}
	endpoint := c.baseURL + "/runGetMethod"
	if err := c.http.PostJSON(ctx, endpoint, request, &payload); err != nil {
		return nil, err
	}
	if !payload.Ok {
		return nil, apperrors.NewUpstream("liteserver", payload.Error)
	}
	if payload.Result.ExitCode != 0 {
		return nil, apperrors.NewUpstream("liteserver",
			fmt.Sprintf("%s on %s exited with code %d", method, address, payload.Result.ExitCode))
	}

	ints := make([]*big.Int, 0, len(payload.Result.Stack))
	for i, entry := range payload.Result.Stack {
		if len(entry) != 2 {
			return nil, fmt.Errorf("stack entry %d: want [type, value] pair, got %d elements", i, len(entry))
		}
		var kind string
		if err := json.Unmarshal(entry[0], &kind); err != nil {
			return nil, fmt.Errorf("stack entry %d: decode type: %w", i, err)
		}
		if kind != "num" {
			return nil, fmt.Errorf("stack entry %d: want num, got %s", i, kind)
		}
		var hex string
		if err := json.Unmarshal(entry[1], &hex); err != nil {
			return nil, fmt.Errorf("stack entry %d: decode value: %w", i, err)
		}
		value, ok := new(big.Int).SetString(strings.TrimPrefix(hex, "0x"), 16)
		if !ok {
			return nil, fmt.Errorf("stack entry %d: parse hex %q", i, hex)
		}
		ints = append(ints, value)
	}
	return ints, nil
}
