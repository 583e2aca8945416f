package verify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
	"github.com/yourusername/usdt-verification/internal/tron"
)

const scanPageLimit = 50

// Scanner recovers payments whose transaction hash the user never
// submitted by listing inbound transfers to the merchant wallet and
// running each plausible candidate through the engine. The history
// endpoints only pre-filter by recipient, contract, and time range;
// amount matching happens client-side.
type Scanner struct {
	pool   *tron.Pool
	engine *Engine
}

// NewScanner creates a wallet scanner sharing the engine's gateway pool
func NewScanner(pool *tron.Pool, engine *Engine) *Scanner {
	return &Scanner{pool: pool, engine: engine}
}

// Scan lists transfers to the wallet within [windowStart, windowEnd]
// whose amount falls within tolerance of expectedAmount.
func (s *Scanner) Scan(ctx context.Context, wallet, contract string, windowStart, windowEnd time.Time, expectedAmount decimal.Decimal, tolerance float64) ([]models.NormalizedTransfer, error) {
	var transfers []models.NormalizedTransfer
	err := s.pool.Execute(ctx, func(gw tron.Gateway) error {
		result, err := gw.TransferHistory(ctx, tron.TransferQuery{
			ToAddress: wallet,
			Contract:  contract,
			Start:     windowStart,
			End:       windowEnd,
			Limit:     scanPageLimit,
		})
		if err != nil {
			return err
		}
		transfers = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	band := expectedAmount.Mul(decimal.NewFromFloat(tolerance))
	var matches []models.NormalizedTransfer
	for _, t := range transfers {
		if t.Amount.Sub(expectedAmount).Abs().LessThanOrEqual(band) {
			matches = append(matches, t)
		}
	}
	return matches, nil
}

// VerifyByScan looks for the payment among recent wallet transfers and
// verifies each candidate through the full decision chain. The scan
// window opens shortly before the request was created, so a transfer
// sent moments early is still found, and extends windowHours past
// creation. Candidates stop after the first settle; remaining ones
// would only resolve to AlreadyProcessed or a rejection.
func (s *Scanner) VerifyByScan(ctx context.Context, req *models.PaymentRequest, windowHours int) []models.VerificationOutcome {
	policy := s.engine.policy
	windowStart := req.CreatedAt.Add(-policy.ScanLookback)
	windowEnd := req.CreatedAt.Add(time.Duration(windowHours) * time.Hour)
	if now := s.engine.now(); windowEnd.After(now) {
		windowEnd = now
	}

	candidates, err := s.Scan(ctx, req.WalletAddress, req.TokenContract, windowStart, windowEnd, req.ExpectedAmount, policy.ScanTolerance)
	if err != nil {
		logger.Warn("Wallet scan failed", logger.Fields{
			"payment_id": req.PaymentID,
			"error":      err.Error(),
		})
		return []models.VerificationOutcome{{
			Status:  models.OutcomeNetworkError,
			Message: "wallet scan failed, retry later",
		}}
	}

	logger.Info("Wallet scan completed", logger.Fields{
		"payment_id": req.PaymentID,
		"candidates": len(candidates),
	})

	var outcomes []models.VerificationOutcome
	for _, candidate := range candidates {
		outcome := s.engine.VerifyByHash(ctx, req, candidate.TxHash)
		outcomes = append(outcomes, outcome)
		if outcome.Status == models.OutcomeVerified {
			break
		}
	}
	return outcomes
}
