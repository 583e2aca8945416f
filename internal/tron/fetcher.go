package tron

import (
	"context"

	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/logger"
)

// Fetcher retrieves raw transactions through the gateway pool. A gateway
// response that lacks a matching token transfer counts as a miss for that
// gateway, so the pool falls through to the explorer path before the
// transaction is declared not found.
type Fetcher struct {
	pool          *Pool
	tokenContract string
}

// NewFetcher creates a fetcher bound to one token contract
func NewFetcher(pool *Pool, tokenContract string) *Fetcher {
	return &Fetcher{pool: pool, tokenContract: tokenContract}
}

// Fetch retrieves one transaction with its chain head. Returns a
// TX_NOT_FOUND error when no gateway knows a successful transaction with
// a matching transfer, and a NETWORK_ERROR when all gateways failed.
func (f *Fetcher) Fetch(ctx context.Context, txHash string) (*RawTransaction, error) {
	var raw *RawTransaction
	err := f.pool.Execute(ctx, func(gw Gateway) error {
		r, err := gw.TransactionInfo(ctx, txHash)
		if err != nil {
			return err
		}
		if !r.Succeeded {
			// Reverted transactions moved no value. Other gateways
			// may still disagree on recent blocks, so keep trying.
			return errors.ErrTxNotFound(txHash)
		}
		if !HasTransfer(r, f.tokenContract) {
			return errors.ErrTxNotFound(txHash)
		}
		raw = r
		return nil
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeTxNotFound) {
			return nil, err
		}
		return nil, errors.ErrNetwork("all gateways failed fetching transaction "+txHash, err)
	}

	var head int64
	headErr := f.pool.Execute(ctx, func(gw Gateway) error {
		h, err := gw.LatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		head = h
		return nil
	})
	if headErr != nil {
		// Confirmations degrade to 0 and the attempt resolves as
		// pending, which is retried; never fail the fetch over this.
		logger.Warn("Chain head lookup failed, confirmations unknown", logger.Fields{
			"tx_hash": txHash,
			"error":   headErr.Error(),
		})
	}
	raw.ChainHead = head

	return raw, nil
}
