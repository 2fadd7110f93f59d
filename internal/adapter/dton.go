package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/lncr/reports-helpbot1/internal/errors"
	"github.com/lncr/reports-helpbot1/internal/httpclient"
	"github.com/lncr/reports-helpbot1/internal/logging"
)

// providerZone is the fixed offset the archive reports timestamps in. All
// query bounds are shifted into it and all response times shifted back to UTC.
var providerZone = time.FixedZone("UTC+3", 3*60*60)

const dtonTimeLayout = "2006-01-02T15:04:05"

// Staking message op codes recognized by the synthetic mint/burn fetch.
const (
	OpCodeBurn             = "0x7bdd97de"
	OpCodeInternalTransfer = "0x178d4519"
)

// DtonClient queries the TON transaction archive over GraphQL.
type DtonClient struct {
	url  string
	http *httpclient.Client
}

// NewDtonClient creates an archive client for the given GraphQL endpoint.
func NewDtonClient(url string, http *httpclient.Client) *DtonClient {
	return &DtonClient{url: url, http: http}
}

// DtonRawTransaction is a raw archive transaction row. Every fee component is
// independently nullable; a missing component counts as zero.
type DtonRawTransaction struct {
	GenUtime                      string        `json:"gen_utime"`
	AccountStorageBalanceGrams    json.Number   `json:"account_storage_balance_grams"`
	InMsgValueGrams               *json.Number  `json:"in_msg_value_grams"`
	OutMsgValueGrams              []json.Number `json:"out_msg_value_grams"`
	OutMsgDestAddrHex             []string      `json:"out_msg_dest_addr_address_hex"`
	InMsgSrcAddrHex               *string       `json:"in_msg_src_addr_address_hex"`
	InMsgComment                  *string       `json:"in_msg_comment"`
	ComputePhGasFees              *json.Number  `json:"compute_ph_gas_fees"`
	ActionPhTotalFwdFees          *json.Number  `json:"action_ph_total_fwd_fees"`
	ActionPhTotalActionFees       *json.Number  `json:"action_ph_total_action_fees"`
	StoragePhStorageFeesCollected *json.Number  `json:"storage_ph_storage_fees_collected"`
	StoragePhStorageFeesDue       *json.Number  `json:"storage_ph_storage_fees_due"`
	InMsgFwdFeeGrams              *json.Number  `json:"in_msg_fwd_fee_grams"`
	InMsgIhrFeeGrams              *json.Number  `json:"in_msg_ihr_fee_grams"`
}

// Time parses the provider-zone timestamp and normalizes it to UTC.
func (tx DtonRawTransaction) Time() (time.Time, error) {
	parsed, err := time.ParseInLocation(dtonTimeLayout, tx.GenUtime, providerZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse gen_utime %q: %w", tx.GenUtime, err)
	}
	return parsed.UTC(), nil
}

// DtonStakingTransaction is an archive row of the staking mint/burn fetch.
type DtonStakingTransaction struct {
	InMsgBody        string      `json:"in_msg_body"`
	InMsgOpCode      json.Number `json:"in_msg_op_code"`
	InMsgDestAddrHex string      `json:"in_msg_dest_addr_address_hex"`
	InMsgSrcAddrHex  string      `json:"in_msg_src_addr_address_hex"`
	GenUtime         string      `json:"gen_utime"`
	Lt               json.Number `json:"lt"`
}

// Time parses the provider-zone timestamp and normalizes it to UTC.
func (tx DtonStakingTransaction) Time() (time.Time, error) {
	parsed, err := time.ParseInLocation(dtonTimeLayout, tx.GenUtime, providerZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse gen_utime %q: %w", tx.GenUtime, err)
	}
	return parsed.UTC(), nil
}

type dtonQuery struct {
	Query string `json:"query"`
}

type dtonError struct {
	Message string `json:"message"`
}

var rawTransactionAttributes = []string{
	"gen_utime",
	"account_storage_balance_grams",
	"in_msg_value_grams",
	"out_msg_value_grams",
	"out_msg_dest_addr_address_hex",
	"in_msg_src_addr_address_hex",
	"in_msg_comment",
	"compute_ph_gas_fees",
	"action_ph_total_fwd_fees",
	"action_ph_total_action_fees",
	"storage_ph_storage_fees_collected",
	"storage_ph_storage_fees_due",
	"in_msg_fwd_fee_grams",
	"in_msg_ihr_fee_grams",
}

var stakingTransactionAttributes = []string{
	"in_msg_body",
	"in_msg_op_code",
	"in_msg_dest_addr_address_hex",
	"in_msg_src_addr_address_hex",
	"gen_utime",
	"lt",
}

// RawTransactions returns the archive rows for a friendly address with
// gen_utime within [from, to]. A zero "to" leaves the upper bound open, which
// the balance reconstructor uses to replay everything up to now.
func (c *DtonClient) RawTransactions(ctx context.Context, addressFriendly string, from time.Time, to time.Time) ([]DtonRawTransaction, error) {
	filters := []string{
		fmt.Sprintf("address_friendly: %q", addressFriendly),
		fmt.Sprintf("gen_utime__gte: %q", from.In(providerZone).Format(dtonTimeLayout)),
	}
	if !to.IsZero() {
		filters = append(filters, fmt.Sprintf("gen_utime__lte: %q", to.In(providerZone).Format(dtonTimeLayout)))
	}

	var payload struct {
		RawTransactions []DtonRawTransaction `json:"raw_transactions"`
	}
	if err := c.query(ctx, filters, rawTransactionAttributes, &payload); err != nil {
		return nil, err
	}
	return payload.RawTransactions, nil
}

// StakingFilter selects staking transactions by message participants and op
// code.
type StakingFilter struct {
	From time.Time
	To   time.Time
	// SrcAddrHex filters by the sender account id, optional.
	SrcAddrHex string
	// Address filters by the affected account id.
	Address string
	// OpCodeHex filters by the message op code, e.g. OpCodeBurn.
	OpCodeHex string
}

// StakingTransactions drains all pages of an op-code filtered archive query,
// cursoring by lt. A failure mid-pagination aborts the whole fetch.
func (c *DtonClient) StakingTransactions(ctx context.Context, filter StakingFilter) ([]DtonStakingTransaction, error) {
	base := []string{
		"workchain: 0",
		fmt.Sprintf("gen_utime__gte: %d", filter.From.In(providerZone).Unix()),
		fmt.Sprintf("gen_utime__lte: %d", filter.To.In(providerZone).Unix()),
	}
	if filter.SrcAddrHex != "" {
		base = append(base, fmt.Sprintf("in_msg_src_addr_address_hex: %q", filter.SrcAddrHex))
	}
	if filter.Address != "" {
		base = append(base, fmt.Sprintf("address: %q", filter.Address))
	}
	if filter.OpCodeHex != "" {
		base = append(base, fmt.Sprintf("in_msg_op_code_hex: %q", filter.OpCodeHex))
	}

	var all []DtonStakingTransaction
	cursor := int64(0)
	for {
		filters := base
		if cursor > 0 {
			filters = append(append([]string{}, base...), fmt.Sprintf("lt__lt: %d", cursor))
		}

		var payload struct {
			RawTransactions []DtonStakingTransaction `json:"raw_transactions"`
		}
		if err := c.query(ctx, filters, stakingTransactionAttributes, &payload); err != nil {
			return nil, err
		}
		if len(payload.RawTransactions) == 0 {
			return all, nil
		}

		logging.FromContext(ctx).WithField("count", len(payload.RawTransactions)).Debug("fetched staking transactions page")
		all = append(all, payload.RawTransactions...)

		last := payload.RawTransactions[len(payload.RawTransactions)-1]
		lt, err := last.Lt.Int64()
		if err != nil {
			return nil, fmt.Errorf("parse lt cursor %q: %w", last.Lt, err)
		}
		cursor = lt
	}
}

func (c *DtonClient) query(ctx context.Context, filters, attributes []string, out any) error {
	query := fmt.Sprintf(
		"{\n  raw_transactions(\n    %s\n  ) {\n    %s\n  }\n}",
		strings.Join(filters, "\n    "),
		strings.Join(attributes, "\n    "),
	)

	var response struct {
		Data   json.RawMessage `json:"data"`
		Errors []dtonError     `json:"errors"`
	}
	if err := c.http.PostJSON(ctx, c.url, dtonQuery{Query: query}, &response); err != nil {
		return err
	}
	if len(response.Errors) > 0 {
		return apperrors.NewUpstream("dton", response.Errors[0].Message)
	}
	if err := json.Unmarshal(response.Data, out); err != nil {
		return fmt.Errorf("decode dton response: %w", err)
	}
	return nil
}
