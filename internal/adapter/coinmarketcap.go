package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/types"
)

// Chart ranges supported by the quote-history endpoint.
const (
	ChartRangeMonth = "1M"
	ChartRangeYear  = "1Y"
)

// CMCClient resolves token ids through the pro API and fetches USD price
// history through the public chart endpoint.
type CMCClient struct {
	proBaseURL   string
	chartBaseURL string
	apiKey       string
	http         *httpclient.Client
}

// NewCMCClient creates a price-history client.
func NewCMCClient(proBaseURL, chartBaseURL, apiKey string, http *httpclient.Client) *CMCClient {
	return &CMCClient{
		proBaseURL:   proBaseURL,
		chartBaseURL: chartBaseURL,
		apiKey:       apiKey,
		http:         http,
	}
}

// TokenID resolves a ticker symbol to its listing id. The id map is static
// per symbol, so a failed lookup is not retried.
func (c *CMCClient) TokenID(ctx context.Context, symbol string) (int64, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var payload struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
		Status struct {
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	}
	endpoint := c.proBaseURL + "/v1/cryptocurrency/map"
	err := c.http.GetJSON(ctx, endpoint, params, &payload,
		httpclient.NoRetries(),
		httpclient.WithHeaders(http.Header{"X-CMC_PRO_API_KEY": {c.apiKey}}),
	)
	if err != nil {
		return 0, err
	}
	if len(payload.Data) == 0 {
		return 0, apperrors.NewUpstream("coinmarketcap",
			fmt.Sprintf("no listing for symbol %s: %s", symbol, payload.Status.ErrorMessage))
	}
	return payload.Data[0].ID, nil
}

// ChartPoints returns the daily USD price points for the token id over the
// given range, sorted by time ascending.
func (c *CMCClient) ChartPoints(ctx context.Context, tokenID int64, chartRange string) ([]types.DailyPrice, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(tokenID, 10))
	params.Set("range", chartRange)

	var payload struct {
		Data struct {
			Points map[string]struct {
				V []json.Number `json:"v"`
			} `json:"points"`
		} `json:"data"`
	}
	endpoint := c.chartBaseURL + "/data-api/v3/cryptocurrency/detail/chart"
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return nil, err
	}

	points := make([]types.DailyPrice, 0, len(payload.Data.Points))
	for ts, point := range payload.Data.Points {
		if len(point.V) == 0 {
			continue
		}
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse chart timestamp %q: %w", ts, err)
		}
		price, err := decimal.NewFromString(point.V[0].String())
		if err != nil {
			return nil, fmt.Errorf("parse chart price %q: %w", point.V[0], err)
		}
		points = append(points, types.DailyPrice{
			Date:  time.Unix(unix, 0).UTC(),
			Price: price,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
