package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/httpclient"
)

// nanotonsPerTon converts base units to whole TON.
var nanotonsPerTon = decimal.New(1, 9)

// ToncenterClient fetches current-state data from the TON HTTP index API.
type ToncenterClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewToncenterClient creates an index client for the given base URL.
func NewToncenterClient(baseURL string, http *httpclient.Client) *ToncenterClient {
	return &ToncenterClient{baseURL: baseURL, http: http}
}

// NativeBalance returns the account's current balance in whole TON.
func (c *ToncenterClient) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("address", address)

	var payload struct {
		Balance json.Number `json:"balance"`
	}
	endpoint := c.baseURL + "/account"
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return decimal.Zero, err
	}

	nanotons, err := decimal.NewFromString(payload.Balance.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", payload.Balance, err)
	}
	return nanotons.Div(nanotonsPerTon), nil
}
