// Package adapter contains one client per upstream data source. Each client
// owns the wire shape of its upstream and converts it into engine inputs;
// nothing chain-specific leaks past this package except the raw transaction
// records the balance reconstructor replays.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
)

// EtherscanClient fetches balances and transaction history from the EVM
// explorer API.
type EtherscanClient struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	limiter *rate.Limiter
}

// NewEtherscanClient creates an explorer client throttled to rps requests per
// second.
func NewEtherscanClient(baseURL, apiKey string, rps float64, http *httpclient.Client) *EtherscanClient {
	return &EtherscanClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    http,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// EtherscanTransaction is one row of the explorer's txlist result. Amounts
// are base-unit decimal strings.
type EtherscanTransaction struct {
	Hash      string `json:"hash"`
	TimeStamp string `json:"timeStamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	GasPrice  string `json:"gasPrice"`
	GasUsed   string `json:"gasUsed"`
}

// EtherscanTokenTransfer is one row of the explorer's tokentx result.
type EtherscanTokenTransfer struct {
	Hash            string `json:"hash"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// etherscanEnvelope is the common response wrapper. Status "1" is success;
// list endpoints report "0" with an empty result for empty windows.
type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (c *EtherscanClient) call(ctx context.Context, params url.Values) (*etherscanEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params.Set("apikey", c.apiKey)

	var envelope etherscanEnvelope
	if err := c.http.GetJSON(ctx, c.baseURL, params, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// NativeBalanceWei returns the current native balance in wei as a decimal
// string.
func (c *EtherscanClient) NativeBalanceWei(ctx context.Context, address string) (string, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "balance")
	params.Set("address", address)
	params.Set("tag", "latest")

	envelope, err := c.call(ctx, params)
	if err != nil {
		return "", err
	}
	if envelope.Status != "1" {
		return "", apperrors.NewUpstream("etherscan", envelope.Message)
	}

	var balance string
	if err := json.Unmarshal(envelope.Result, &balance); err != nil {
		return "", fmt.Errorf("decode native balance: %w", err)
	}
	return balance, nil
}

// TokenBalanceRaw returns the current token balance in base units as a
// decimal string.
func (c *EtherscanClient) TokenBalanceRaw(ctx context.Context, address, contractAddress string) (string, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokenbalance")
	params.Set("contractaddress", contractAddress)
	params.Set("address", address)
	params.Set("tag", "latest")

	envelope, err := c.call(ctx, params)
	if err != nil {
		return "", err
	}
	if envelope.Status != "1" {
		return "", apperrors.NewUpstream("etherscan", envelope.Message)
	}

	var balance string
	if err := json.Unmarshal(envelope.Result, &balance); err != nil {
		return "", fmt.Errorf("decode token balance: %w", err)
	}
	return balance, nil
}

// BlockByTime returns the block number closest to ts. closest is "before" or
// "after".
func (c *EtherscanClient) BlockByTime(ctx context.Context, ts time.Time, closest string) (int64, error) {
	params := url.Values{}
	params.Set("module", "block")
	params.Set("action", "getblocknobytime")
	params.Set("timestamp", strconv.FormatInt(ts.Unix(), 10))
	params.Set("closest", closest)

	envelope, err := c.call(ctx, params)
	if err != nil {
		return 0, err
	}
	if envelope.Status != "1" {
		return 0, apperrors.NewUpstream("etherscan", envelope.Message)
	}

	var raw string
	if err := json.Unmarshal(envelope.Result, &raw); err != nil {
		return 0, fmt.Errorf("decode block number: %w", err)
	}
	block, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block number %q: %w", raw, err)
	}
	return block, nil
}

// TransactionsSince lists normal transactions for the address from startBlock
// to the chain head, ascending.
func (c *EtherscanClient) TransactionsSince(ctx context.Context, address string, startBlock int64) ([]EtherscanTransaction, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", address)
	params.Set("startblock", strconv.FormatInt(startBlock, 10))
	params.Set("endblock", "99999999")
	params.Set("sort", "asc")

	envelope, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var txs []EtherscanTransaction
	if err := json.Unmarshal(envelope.Result, &txs); err != nil {
		if envelope.Status != "1" {
			return nil, apperrors.NewUpstream("etherscan", envelope.Message)
		}
		return nil, fmt.Errorf("decode transaction list: %w", err)
	}
	return txs, nil
}

// TokenTransfers lists ERC-20 transfer events for the address between the
// given blocks, ascending.
func (c *EtherscanClient) TokenTransfers(ctx context.Context, address string, startBlock, endBlock int64) ([]EtherscanTokenTransfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", address)
	params.Set("startblock", strconv.FormatInt(startBlock, 10))
	params.Set("endblock", strconv.FormatInt(endBlock, 10))
	params.Set("sort", "asc")

	envelope, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}

	var transfers []EtherscanTokenTransfer
	if err := json.Unmarshal(envelope.Result, &transfers); err != nil {
		if envelope.Status != "1" {
			return nil, apperrors.NewUpstream("etherscan", envelope.Message)
		}
		return nil, fmt.Errorf("decode token transfers: %w", err)
	}
	return transfers, nil
}
