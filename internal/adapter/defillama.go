package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lncr/reports-helpbot1/internal/httpclient"
)

// TVLPoint is one daily total-value-locked sample of a protocol on one chain.
type TVLPoint struct {
	Date   time.Time
	TVLUSD decimal.Decimal
	TVLTON decimal.Decimal
}

// DefiLlamaClient fetches protocol TVL history.
type DefiLlamaClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewDefiLlamaClient creates a TVL client.
func NewDefiLlamaClient(baseURL string, http *httpclient.Client) *DefiLlamaClient {
	return &DefiLlamaClient{baseURL: baseURL, http: http}
}

type llamaTVLRow struct {
	Date   int64       `json:"date"`
	TVL    json.Number `json:"totalLiquidityUSD"`
	Tokens struct {
		TON json.Number `json:"TON"`
	} `json:"tokens"`
}

// ProtocolTVL returns the protocol's daily TVL on the TON chain, in USD and
// in TON, sorted by date ascending.
func (c *DefiLlamaClient) ProtocolTVL(ctx context.Context, protocol string) ([]TVLPoint, error) {
	var payload struct {
		ChainTVLs struct {
			TON struct {
				TVL       []llamaTVLRow `json:"tvl"`
				TokensRaw []llamaTVLRow `json:"tokens"`
			} `json:"TON"`
		} `json:"chainTvls"`
	}
	endpoint := c.baseURL + "/protocol/" + url.PathEscape(protocol)
	if err := c.http.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	tonByDate := make(map[int64]decimal.Decimal, len(payload.ChainTVLs.TON.TokensRaw))
	for _, row := range payload.ChainTVLs.TON.TokensRaw {
		amount, err := decimal.NewFromString(row.Tokens.TON.String())
		if err != nil {
			continue
		}
		tonByDate[row.Date] = amount
	}

	points := make([]TVLPoint, 0, len(payload.ChainTVLs.TON.TVL))
	for _, row := range payload.ChainTVLs.TON.TVL {
		usd, err := decimal.NewFromString(row.TVL.String())
		if err != nil {
			return nil, fmt.Errorf("parse tvl %q: %w", row.TVL, err)
		}
		points = append(points, TVLPoint{
			Date:   time.Unix(row.Date, 0).UTC(),
			TVLUSD: usd,
			TVLTON: tonByDate[row.Date],
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
