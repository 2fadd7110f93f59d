package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/logging"
)

// TonapiClient queries the TON token-indexer REST API: jetton balances,
// wallet event history and read-only method execution.
type TonapiClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewTonapiClient creates an indexer client for the given base URL.
func NewTonapiClient(baseURL string, http *httpclient.Client) *TonapiClient {
	return &TonapiClient{baseURL: baseURL, http: http}
}

// JettonInfo describes a jetton master as the indexer reports it.
type JettonInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// JettonBalance is one current jetton holding of an account.
type JettonBalance struct {
	Balance json.Number `json:"balance"`
	Jetton  JettonInfo  `json:"jetton"`
	Price   struct {
		Prices map[string]json.Number `json:"prices"`
	} `json:"price"`
}

// JettonBalances returns the account's current jetton holdings with USD
// quotes.
func (c *TonapiClient) JettonBalances(ctx context.Context, account string) ([]JettonBalance, error) {
	params := url.Values{}
	params.Set("currencies", "usd")

	var payload struct {
		Balances []JettonBalance `json:"balances"`
	}
	endpoint := fmt.Sprintf("%s/v2/accounts/%s/jettons", c.baseURL, url.PathEscape(account))
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return nil, err
	}
	return payload.Balances, nil
}

// JettonTransferAction is the payload of a JettonTransfer action.
type JettonTransferAction struct {
	SendersWallet    string      `json:"senders_wallet"`
	RecipientsWallet string      `json:"recipients_wallet"`
	Amount           json.Number `json:"amount"`
	Comment          string      `json:"comment"`
	Jetton           JettonInfo  `json:"jetton"`
}

// JettonSwapAction is the payload of a JettonSwap action. Jetton-to-TON swaps
// carry TonIn/TonOut instead of one of the jetton sides.
type JettonSwapAction struct {
	AmountIn        json.Number  `json:"amount_in"`
	AmountOut       json.Number  `json:"amount_out"`
	TonIn           *json.Number `json:"ton_in"`
	TonOut          *json.Number `json:"ton_out"`
	JettonMasterIn  *JettonInfo  `json:"jetton_master_in"`
	JettonMasterOut *JettonInfo  `json:"jetton_master_out"`
}

// Action is one action within an indexer event.
type Action struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	SimplePreview struct {
		Description string `json:"description"`
	} `json:"simple_preview"`
	JettonTransfer *JettonTransferAction `json:"JettonTransfer"`
	JettonSwap     *JettonSwapAction     `json:"JettonSwap"`
}

// Event is one indexer event: a group of actions sharing a timestamp.
type Event struct {
	EventID    string   `json:"event_id"`
	Timestamp  int64    `json:"timestamp"`
	InProgress bool     `json:"in_progress"`
	Actions    []Action `json:"actions"`
}

const eventsPageLimit = 100

// AccountEvents drains all event pages for an account within [start, end].
// Pagination cursors by before_lt; a mid-pagination failure aborts the whole
// fetch rather than returning partial data.
func (c *TonapiClient) AccountEvents(ctx context.Context, account string, start, end time.Time) ([]Event, error) {
	endpoint := fmt.Sprintf("%s/v2/accounts/%s/events", c.baseURL, url.PathEscape(account))

	var all []Event
	beforeLt := int64(0)
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(eventsPageLimit))
		params.Set("start_date", strconv.FormatInt(start.Unix(), 10))
		params.Set("end_date", strconv.FormatInt(end.Unix(), 10))
		if beforeLt > 0 {
			params.Set("before_lt", strconv.FormatInt(beforeLt, 10))
		}

		var payload struct {
			Events   []Event     `json:"events"`
			NextFrom json.Number `json:"next_from"`
		}
		if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
			return nil, err
		}

		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"account": account,
			"events":  len(payload.Events),
		}).Debug("fetched account events page")
		all = append(all, payload.Events...)

		next, err := payload.NextFrom.Int64()
		if err != nil || next == 0 {
			return all, nil
		}
		beforeLt = next
	}
}

// JettonWalletAddress executes get_wallet_address on the jetton master for
// the given owner and returns the derived jetton wallet address in raw form.
// The call is a pure function of chain state; callers wrap it in the
// contract-call retry policy.
func (c *TonapiClient) JettonWalletAddress(ctx context.Context, jettonMaster, owner string) (string, error) {
	endpoint := fmt.Sprintf(
		"%s/v2/blockchain/accounts/%s/methods/get_wallet_address",
		c.baseURL, url.PathEscape(jettonMaster),
	)
	params := url.Values{}
	params.Set("args", owner)

	var payload struct {
		Success bool `json:"success"`
		Decoded struct {
			JettonWalletAddress string `json:"jetton_wallet_address"`
		} `json:"decoded"`
	}
	if err := c.http.GetJSON(ctx, endpoint, params, &payload); err != nil {
		return "", err
	}
	if payload.Decoded.JettonWalletAddress == "" {
		return "", fmt.Errorf("get_wallet_address returned no address for owner %s", owner)
	}
	return payload.Decoded.JettonWalletAddress, nil
}
