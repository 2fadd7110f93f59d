package adapter

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/types"
)

// OpenExchangeClient fetches historical USD-based fiat rates.
type OpenExchangeClient struct {
	baseURL string
	appID   string
	http    *httpclient.Client
}

// NewOpenExchangeClient creates a historical-rates client.
func NewOpenExchangeClient(baseURL, appID string, http *httpclient.Client) *OpenExchangeClient {
	return &OpenExchangeClient{baseURL: baseURL, appID: appID, http: http}
}

// HistoricalRates returns the USD-based rates for the given symbols on the
// given day. Rates are quoted as units of the symbol per USD.
func (c *OpenExchangeClient) HistoricalRates(ctx context.Context, day time.Time, symbols []string) (types.RateSample, error) {
	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("symbols", strings.Join(symbols, ","))

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	endpoint := c.baseURL + "/historical/" + day.UTC().Format("2006-01-02") + ".json"
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{Date: types.Day(day), Rates: payload.Rates}, nil
}
