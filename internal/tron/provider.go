package tron

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
)

// EventLog is one contract event emitted by a transaction, as returned by
// the node. Address is the emitting contract in hex form; Topics and Data
// are hex strings without a 0x prefix on TronGrid.
type EventLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// DecodedTransfer is a token movement already decoded by an explorer
// backend. AmountRaw is the integer on-chain value before decimal shift.
type DecodedTransfer struct {
	Contract  string
	From      string
	To        string
	AmountRaw string
}

// RawTransaction is the gateway-normalized view of a single on-chain
// transaction. Node-style gateways populate Logs; explorer-style gateways
// populate Decoded. ChainHead is filled in by the fetcher after a separate
// head lookup and is 0 when that lookup failed.
type RawTransaction struct {
	TxHash         string
	Succeeded      bool
	BlockNumber    int64
	BlockTimestamp time.Time
	Logs           []EventLog
	Decoded        []DecodedTransfer
	ChainHead      int64
}

// TransferQuery selects inbound token transfers for the wallet scanner.
type TransferQuery struct {
	ToAddress string
	Contract  string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Gateway is a blockchain data provider. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Name() string
	TransactionInfo(ctx context.Context, txHash string) (*RawTransaction, error)
	LatestBlockNumber(ctx context.Context) (int64, error)
	TransferHistory(ctx context.Context, q TransferQuery) ([]models.NormalizedTransfer, error)
}

// Pool rotates across gateways with sticky round-robin failover: the
// current index only advances on failure, so a healthy gateway keeps
// serving all traffic. Reads of the index under concurrent failover may
// be stale; the cost is one extra retry, not a wrong answer.
type Pool struct {
	mu       sync.Mutex
	gateways []Gateway
	current  int
}

// NewPool creates a gateway pool. Order matters: the first gateway is the
// preferred one until it fails.
func NewPool(gateways ...Gateway) *Pool {
	return &Pool{gateways: gateways}
}

// Len returns the number of configured gateways
func (p *Pool) Len() int {
	return len(p.gateways)
}

// Execute runs op against the current gateway, advancing to the next one
// on any error until every gateway has been tried once. Returns the last
// error when all gateways fail.
func (p *Pool) Execute(ctx context.Context, op func(Gateway) error) error {
	if len(p.gateways) == 0 {
		return errors.ErrNetwork("no gateways configured", nil)
	}

	var lastErr error
	for attempt := 0; attempt < len(p.gateways); attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.ErrNetwork("context cancelled", err)
		}

		gw := p.currentGateway()
		err := op(gw)
		if err == nil {
			return nil
		}

		lastErr = err
		p.advance()
		logger.Warn("Gateway call failed, failing over", logger.Fields{
			"gateway": gw.Name(),
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return lastErr
}

func (p *Pool) currentGateway() Gateway {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateways[p.current]
}

func (p *Pool) advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = (p.current + 1) % len(p.gateways)
}
