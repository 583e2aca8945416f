package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/models"
)

// TronGrid talks to a TRON full node through the TronGrid HTTP API. It is
// the preferred gateway because it returns raw event logs, letting the
// extractor decode transfers itself instead of trusting explorer parsing.
type TronGrid struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewTronGrid creates a TronGrid gateway. apiKey may be empty; unkeyed
// requests are rate-limited harder by the service.
func NewTronGrid(baseURL, apiKey string, timeout time.Duration) *TronGrid {
	return &TronGrid{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Name returns the gateway identifier used in logs
func (g *TronGrid) Name() string {
	return "trongrid"
}

type gridTxInfo struct {
	ID             string `json:"id"`
	BlockNumber    int64  `json:"blockNumber"`
	BlockTimeStamp int64  `json:"blockTimeStamp"`
	Receipt        struct {
		Result string `json:"result"`
	} `json:"receipt"`
	Log []EventLog `json:"log"`
}

type gridTx struct {
	TxID string `json:"txID"`
	Ret  []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
}

type gridBlock struct {
	BlockHeader struct {
		RawData struct {
			Number int64 `json:"number"`
		} `json:"raw_data"`
	} `json:"block_header"`
}

// TransactionInfo fetches the execution receipt and the transaction body.
// Both calls must succeed; a transaction whose receipt never landed is
// treated as not found rather than as a gateway failure.
func (g *TronGrid) TransactionInfo(ctx context.Context, txHash string) (*RawTransaction, error) {
	var info gridTxInfo
	if err := g.post(ctx, "/wallet/gettransactioninfobyid", map[string]string{"value": txHash}, &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, errors.ErrTxNotFound(txHash)
	}

	var tx gridTx
	if err := g.post(ctx, "/wallet/gettransactionbyid", map[string]string{"value": txHash}, &tx); err != nil {
		return nil, err
	}
	if tx.TxID == "" {
		return nil, errors.ErrTxNotFound(txHash)
	}

	succeeded := info.Receipt.Result == "SUCCESS"
	if len(tx.Ret) > 0 && tx.Ret[0].ContractRet != "SUCCESS" {
		succeeded = false
	}

	return &RawTransaction{
		TxHash:         txHash,
		Succeeded:      succeeded,
		BlockNumber:    info.BlockNumber,
		BlockTimestamp: time.UnixMilli(info.BlockTimeStamp).UTC(),
		Logs:           info.Log,
	}, nil
}

// LatestBlockNumber returns the current chain head
func (g *TronGrid) LatestBlockNumber(ctx context.Context) (int64, error) {
	var block gridBlock
	if err := g.post(ctx, "/wallet/getnowblock", map[string]string{}, &block); err != nil {
		return 0, err
	}
	if block.BlockHeader.RawData.Number == 0 {
		return 0, errors.ErrDecode(g.Name(), fmt.Errorf("getnowblock returned no block number"))
	}
	return block.BlockHeader.RawData.Number, nil
}

type gridTRC20Transfers struct {
	Data []struct {
		TransactionID  string `json:"transaction_id"`
		From           string `json:"from"`
		To             string `json:"to"`
		Value          string `json:"value"`
		BlockTimestamp int64  `json:"block_timestamp"`
		TokenInfo      struct {
			Decimals int32 `json:"decimals"`
		} `json:"token_info"`
	} `json:"data"`
}

// TransferHistory lists inbound TRC20 transfers to an address within a
// time window. The account endpoint does not report block numbers, so
// Confirmations is left at 0; scan candidates go through the full
// fetch pipeline before any decision is made.
func (g *TronGrid) TransferHistory(ctx context.Context, q TransferQuery) ([]models.NormalizedTransfer, error) {
	addr, err := NormalizeAddress(q.ToAddress)
	if err != nil {
		return nil, errors.ErrDecode(g.Name(), err)
	}

	params := url.Values{}
	params.Set("only_to", "true")
	params.Set("contract_address", q.Contract)
	params.Set("min_timestamp", strconv.FormatInt(q.Start.UnixMilli(), 10))
	params.Set("max_timestamp", strconv.FormatInt(q.End.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(q.Limit))

	endpoint := fmt.Sprintf("/v1/accounts/%s/transactions/trc20?%s", addr, params.Encode())

	var resp gridTRC20Transfers
	if err := g.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	transfers := make([]models.NormalizedTransfer, 0, len(resp.Data))
	for _, item := range resp.Data {
		raw, err := decimal.NewFromString(item.Value)
		if err != nil {
			continue
		}
		decimals := item.TokenInfo.Decimals
		if decimals == 0 {
			decimals = USDTDecimals
		}
		from, errFrom := NormalizeAddress(item.From)
		to, errTo := NormalizeAddress(item.To)
		if errFrom != nil || errTo != nil {
			continue
		}
		transfers = append(transfers, models.NormalizedTransfer{
			TxHash:         item.TransactionID,
			From:           from,
			To:             to,
			Amount:         raw.Shift(-decimals),
			BlockTimestamp: time.UnixMilli(item.BlockTimestamp).UTC(),
		})
	}
	return transfers, nil
}

func (g *TronGrid) post(ctx context.Context, endpoint string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.ErrDecode(g.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.ErrNetwork("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return g.do(req, result)
}

func (g *TronGrid) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+endpoint, nil)
	if err != nil {
		return errors.ErrNetwork("failed to create request", err)
	}

	return g.do(req, result)
}

func (g *TronGrid) do(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.ErrNetwork(fmt.Sprintf("request to %s failed", g.Name()), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.ErrNetwork(fmt.Sprintf("%s returned status %d", g.Name(), resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.ErrDecode(g.Name(), err)
	}
	return nil
}
