package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
)

// ConverterClient fetches live spot conversion rates. It fills the
// current-day gap historical rate providers cannot cover yet.
type ConverterClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewConverterClient creates a live-rate client.
func NewConverterClient(baseURL string, http *httpclient.Client) *ConverterClient {
	return &ConverterClient{baseURL: baseURL, http: http}
}

// Convert returns how many units of "to" one unit of "from" buys right now.
func (c *ConverterClient) Convert(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToLower(from)
	to = strings.ToLower(to)

	params := url.Values{}
	params.Set("amount", "1")

	// The response mixes a status string with per-currency numbers, so decode
	// lazily and only parse the requested currency.
	var payload map[string]json.RawMessage
	endpoint := fmt.Sprintf("%s/convert/%s/%s", c.baseURL, url.PathEscape(from), url.PathEscape(to))
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return decimal.Zero, err
	}

	raw, ok := payload[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, apperrors.NewUpstream("coinconvert",
			fmt.Sprintf("no %s rate in conversion response", strings.ToUpper(to)))
	}
	var rate decimal.Decimal
	if err := json.Unmarshal(raw, &rate); err != nil {
		return decimal.Zero, fmt.Errorf("parse %s rate: %w", strings.ToUpper(to), err)
	}
	return rate, nil
}
