package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
)

// Scorer computes an additive fraud score for a candidate transfer
// against its payment request. Signals are independent; each contributes
// a fixed weight and the sum is capped at 1.0. Scoring is a read-mostly
// operation except for the rate signal, which records the attempt in the
// ledger as part of evaluating it.
type Scorer struct {
	policy config.Policy
	ledger ledger.Ledger
}

// NewScorer creates a fraud scorer
func NewScorer(policy config.Policy, l ledger.Ledger) *Scorer {
	return &Scorer{policy: policy, ledger: l}
}

// Score evaluates all fraud signals for one transfer. Ledger read
// failures degrade the affected signal to zero rather than failing the
// attempt; a ledger outage must not block settlements.
func (s *Scorer) Score(ctx context.Context, transfer *models.NormalizedTransfer, req *models.PaymentRequest) models.FraudAssessment {
	var score float64
	var warnings []string

	suspicious, err := s.ledger.IsSuspicious(ctx, transfer.From)
	if err != nil {
		logger.Warn("Blacklist lookup failed, signal skipped", logger.Fields{
			"payment_id": req.PaymentID,
			"error":      err.Error(),
		})
	} else if suspicious {
		score += s.policy.BlacklistWeight
		warnings = append(warnings, "sender address is blacklisted")
	}

	ratio := amountRatio(transfer.Amount, req.ExpectedAmount)
	if ratio < s.policy.UnderpaymentRatio {
		score += s.policy.UnderpaymentWeight
		warnings = append(warnings, fmt.Sprintf("amount %s is below %.0f%% of expected %s",
			transfer.Amount.String(), s.policy.UnderpaymentRatio*100, req.ExpectedAmount.String()))
	} else if ratio > s.policy.OverpaymentRatio {
		score += s.policy.OverpaymentWeight
		warnings = append(warnings, fmt.Sprintf("amount %s exceeds %.0f%% of expected %s",
			transfer.Amount.String(), s.policy.OverpaymentRatio*100, req.ExpectedAmount.String()))
	}

	// A transfer mined well before the invoice existed cannot be a
	// payment for it; someone is submitting an old transaction.
	if transfer.BlockTimestamp.Before(req.CreatedAt.Add(-s.policy.EarlyWindow)) {
		score += s.policy.EarlyTimestampWeight
		warnings = append(warnings, "transaction predates the payment request")
	}

	if deficit := s.policy.MinConfirmations - transfer.Confirmations; deficit > 0 {
		score += s.policy.ConfirmationWeight * float64(deficit) / float64(s.policy.MinConfirmations)
		warnings = append(warnings, fmt.Sprintf("only %d of %d confirmations", transfer.Confirmations, s.policy.MinConfirmations))
	}

	attempts, err := s.ledger.RecordAttempt(ctx, req.UserID, time.Now().UTC(), s.policy.RateWindow)
	if err != nil {
		logger.Warn("Attempt accounting failed, signal skipped", logger.Fields{
			"payment_id": req.PaymentID,
			"error":      err.Error(),
		})
	} else if attempts > s.policy.RateLimit {
		score += s.policy.RateLimitWeight
		warnings = append(warnings, fmt.Sprintf("%d verification attempts within the rate window", attempts))
	}

	if score > 1.0 {
		score = 1.0
	}

	return models.FraudAssessment{Score: score, Warnings: warnings}
}

func amountRatio(received, expected decimal.Decimal) float64 {
	if !expected.IsPositive() {
		return 0
	}
	ratio, _ := received.Div(expected).Float64()
	return ratio
}
