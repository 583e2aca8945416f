package tron

import (
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

// TronScan talks to the TronScan explorer API. It serves as the fallback
// gateway: the explorer pre-decodes TRC20 movements, so it can confirm a
// transfer even when the node path returns no event logs.
type TronScan struct {
	client  *http.Client
	baseURL string
}

// NewTronScan creates a TronScan gateway for one explorer mirror
func NewTronScan(baseURL string, timeout time.Duration) *TronScan {
	return &TronScan{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name returns the gateway identifier used in logs
func (s *TronScan) Name() string {
	return "tronscan:" + s.baseURL
}

type scanTxInfo struct {
	Hash              string `json:"hash"`
	Block             int64  `json:"block"`
	Timestamp         int64  `json:"timestamp"`
	ContractRet       string `json:"contractRet"`
	Confirmed         bool   `json:"confirmed"`
	TRC20TransferInfo []struct {
		ContractAddress string `json:"contract_address"`
		FromAddress     string `json:"from_address"`
		ToAddress       string `json:"to_address"`
		AmountStr       string `json:"amount_str"`
	} `json:"trc20TransferInfo"`
}

// TransactionInfo fetches a transaction with its pre-decoded token
// transfers in a single call.
func (s *TronScan) TransactionInfo(ctx context.Context, txHash string) (*RawTransaction, error) {
	endpoint := "/api/transaction-info?hash=" + url.QueryEscape(txHash)

	var info scanTxInfo
	if err := s.get(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	if info.Hash == "" {
		return nil, errors.ErrTxNotFound(txHash)
	}

	raw := &RawTransaction{
		TxHash:         txHash,
		Succeeded:      info.ContractRet == "SUCCESS",
		BlockNumber:    info.Block,
		BlockTimestamp: time.UnixMilli(info.Timestamp).UTC(),
	}
	for _, t := range info.TRC20TransferInfo {
		raw.Decoded = append(raw.Decoded, DecodedTransfer{
			Contract:  t.ContractAddress,
			From:      t.FromAddress,
			To:        t.ToAddress,
			AmountRaw: t.AmountStr,
		})
	}
	return raw, nil
}

type scanBlocks struct {
	Data []struct {
		Number int64 `json:"number"`
	} `json:"data"`
}

// LatestBlockNumber returns the newest block known to the explorer
func (s *TronScan) LatestBlockNumber(ctx context.Context) (int64, error) {
	var blocks scanBlocks
	if err := s.get(ctx, "/api/block?sort=-number&limit=1", &blocks); err != nil {
		return 0, err
	}
	if len(blocks.Data) == 0 || blocks.Data[0].Number == 0 {
		return 0, errors.ErrDecode(s.Name(), fmt.Errorf("block endpoint returned no data"))
	}
	return blocks.Data[0].Number, nil
}

// scanTransferItem tolerates both response shapes the explorer mirrors
// use: amount_str vs amount, block_ts vs timestamp.
type scanTransferItem struct {
	TransactionID string `json:"transaction_id"`
	FromAddress   string `json:"from_address"`
	ToAddress     string `json:"to_address"`
	AmountStr     string `json:"amount_str"`
	Amount        string `json:"amount"`
	Block         int64  `json:"block"`
	BlockTS       int64  `json:"block_ts"`
	Timestamp     int64  `json:"timestamp"`
}

type scanTransfers struct {
	TokenTransfers []scanTransferItem `json:"token_transfers"`
	Data           []scanTransferItem `json:"data"`
}

// TransferHistory lists inbound TRC20 transfers for the scanner
func (s *TronScan) TransferHistory(ctx context.Context, q TransferQuery) ([]models.NormalizedTransfer, error) {
	addr, err := NormalizeAddress(q.ToAddress)
	if err != nil {
		return nil, errors.ErrDecode(s.Name(), err)
	}

	params := url.Values{}
	params.Set("toAddress", addr)
	params.Set("contract_address", q.Contract)
	params.Set("start_timestamp", strconv.FormatInt(q.Start.UnixMilli(), 10))
	params.Set("end_timestamp", strconv.FormatInt(q.End.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("start", "0")
	params.Set("sort", "-timestamp")

	var resp scanTransfers
	if err := s.get(ctx, "/api/token_trc20/transfers?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	items := resp.TokenTransfers
	if len(items) == 0 {
		items = resp.Data
	}

	transfers := make([]models.NormalizedTransfer, 0, len(items))
	for _, item := range items {
		amountStr := item.AmountStr
		if amountStr == "" {
			amountStr = item.Amount
		}
		raw, err := decimal.NewFromString(amountStr)
		if err != nil {
			continue
		}
		from, errFrom := NormalizeAddress(item.FromAddress)
		to, errTo := NormalizeAddress(item.ToAddress)
		if errFrom != nil || errTo != nil {
			continue
		}
		ts := item.BlockTS
		if ts == 0 {
			ts = item.Timestamp
		}
		transfers = append(transfers, models.NormalizedTransfer{
			TxHash:         item.TransactionID,
			From:           from,
			To:             to,
			Amount:         raw.Shift(-USDTDecimals),
			BlockNumber:    item.Block,
			BlockTimestamp: time.UnixMilli(ts).UTC(),
		})
	}
	return transfers, nil
}

func (s *TronScan) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return errors.ErrNetwork("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.ErrNetwork(fmt.Sprintf("request to %s failed", s.Name()), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.ErrNetwork(fmt.Sprintf("%s rate limited the request", s.Name()), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.ErrNetwork(fmt.Sprintf("%s returned status %d", s.Name(), resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.ErrDecode(s.Name(), err)
	}
	return nil
}
