package tron

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourusername/usdt-verification/internal/models"
)

var errMalformedAmount = fmt.Errorf("malformed transfer amount data")

// USDTDecimals is the decimal exponent of the USDT TRC20 token
const USDTDecimals = 6

// TransferTopic is keccak256("Transfer(address,address,uint256)"), the
// topic0 of every ERC20/TRC20 Transfer event.
const TransferTopic = "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// ExtractTransfer finds the first token transfer of the expected contract
// in a raw transaction and normalizes it. Returns false when the
// transaction carries no matching transfer. Explorer-decoded transfers
// take precedence over raw event logs since a gateway supplies only one
// of the two.
func ExtractTransfer(raw *RawTransaction, expectedContract string) (*models.NormalizedTransfer, bool) {
	wantContract, err := NormalizeAddress(expectedContract)
	if err != nil {
		return nil, false
	}

	for _, d := range raw.Decoded {
		contract, err := NormalizeAddress(d.Contract)
		if err != nil || contract != wantContract {
			continue
		}
		from, errFrom := NormalizeAddress(d.From)
		to, errTo := NormalizeAddress(d.To)
		if errFrom != nil || errTo != nil {
			continue
		}
		rawAmount, err := decimal.NewFromString(d.AmountRaw)
		if err != nil {
			continue
		}
		return normalized(raw, from, to, rawAmount.Shift(-USDTDecimals)), true
	}

	for _, log := range raw.Logs {
		contract, err := NormalizeAddress(log.Address)
		if err != nil || contract != wantContract {
			continue
		}
		if len(log.Topics) < 3 || !topicMatches(log.Topics[0], TransferTopic) {
			continue
		}
		from, errFrom := topicAddress(log.Topics[1])
		to, errTo := topicAddress(log.Topics[2])
		if errFrom != nil || errTo != nil {
			continue
		}
		amount, err := amountFromData(log.Data)
		if err != nil {
			continue
		}
		return normalized(raw, from, to, amount), true
	}

	return nil, false
}

// HasTransfer reports whether the raw transaction carries any transfer of
// the expected contract
func HasTransfer(raw *RawTransaction, expectedContract string) bool {
	_, ok := ExtractTransfer(raw, expectedContract)
	return ok
}

func normalized(raw *RawTransaction, from, to string, amount decimal.Decimal) *models.NormalizedTransfer {
	var confirmations int64
	if raw.ChainHead > raw.BlockNumber && raw.BlockNumber > 0 {
		confirmations = raw.ChainHead - raw.BlockNumber
	}
	return &models.NormalizedTransfer{
		TxHash:         raw.TxHash,
		From:           from,
		To:             to,
		Amount:         amount,
		BlockNumber:    raw.BlockNumber,
		BlockTimestamp: raw.BlockTimestamp,
		Confirmations:  confirmations,
	}
}

func topicMatches(topic, want string) bool {
	return strings.EqualFold(strings.TrimPrefix(topic, "0x"), want)
}

// topicAddress recovers a TRON address from the low 160 bits of a
// 32-byte event topic
func topicAddress(topic string) (string, error) {
	t := strings.TrimPrefix(topic, "0x")
	if len(t) > 40 {
		t = t[len(t)-40:]
	}
	return NormalizeAddress("41" + t)
}

func amountFromData(data string) (decimal.Decimal, error) {
	d := strings.TrimPrefix(data, "0x")
	if d == "" {
		return decimal.Zero, errMalformedAmount
	}
	n, ok := new(big.Int).SetString(d, 16)
	if !ok {
		return decimal.Zero, errMalformedAmount
	}
	return decimal.NewFromBigInt(n, -USDTDecimals), nil
}
