package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
	"github.com/yourusername/usdt-verification/internal/tron"
)

// Fetcher retrieves raw transactions from the blockchain
type Fetcher interface {
	Fetch(ctx context.Context, txHash string) (*tron.RawTransaction, error)
}

// Scorer evaluates fraud signals for a candidate transfer
type Scorer interface {
	Score(ctx context.Context, transfer *models.NormalizedTransfer, req *models.PaymentRequest) models.FraudAssessment
}

// Store persists settlement decisions and the audit trail
type Store interface {
	SettlePayment(ctx context.Context, paymentID string, from, to models.PaymentStatus, txHash string, amount decimal.Decimal, verifiedAt time.Time) error
	AppendAudit(ctx context.Context, rec models.AuditRecord) error
}

// Notifier publishes settlement events to downstream workflows
type Notifier interface {
	SendNotification(ctx context.Context, event models.NotificationEvent) error
}

// Engine runs the verification decision chain for one payment at a time.
// The check order is fixed: replay, retrievability, address, fraud,
// confirmations, amount. Address and fraud run before the amount check so
// a correctly sized payment to the wrong address can never pass on amount
// alone. Only the Verified branch writes anywhere.
type Engine struct {
	fetcher  Fetcher
	scorer   Scorer
	ledger   ledger.Ledger
	store    Store
	notifier Notifier
	policy   config.Policy

	now func() time.Time
}

// NewEngine wires a verification engine from its collaborators
func NewEngine(fetcher Fetcher, scorer Scorer, l ledger.Ledger, store Store, notifier Notifier, policy config.Policy) *Engine {
	return &Engine{
		fetcher:  fetcher,
		scorer:   scorer,
		ledger:   l,
		store:    store,
		notifier: notifier,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// VerifyByHash runs one verification attempt for a user-submitted
// transaction hash. The outcome is final for this attempt; retryable
// outcomes (pending, network errors) are re-enqueued by the caller.
func (e *Engine) VerifyByHash(ctx context.Context, req *models.PaymentRequest, txHash string) models.VerificationOutcome {
	outcome := e.evaluate(ctx, req, txHash)

	if outcome.Status == models.OutcomeVerified {
		outcome = e.settle(ctx, req, outcome)
	}

	e.audit(ctx, req, outcome)

	logger.Info("Verification attempt resolved", logger.Fields{
		"payment_id":  req.PaymentID,
		"tx_hash":     txHash,
		"status":      string(outcome.Status),
		"fraud_score": outcome.FraudScore,
	})
	return outcome
}

func (e *Engine) evaluate(ctx context.Context, req *models.PaymentRequest, txHash string) models.VerificationOutcome {
	seen, err := e.ledger.SeenVerified(ctx, txHash)
	if err != nil {
		// The settle-time MarkVerified insert is the authoritative
		// replay guard; this lookup is only a fast path.
		logger.Warn("Replay pre-check failed, continuing", logger.Fields{
			"tx_hash": txHash,
			"error":   err.Error(),
		})
	}
	if seen {
		return models.VerificationOutcome{
			Status:  models.OutcomeAlreadyProcessed,
			TxHash:  txHash,
			Message: "transaction hash was already used for a verified payment",
		}
	}

	raw, err := e.fetcher.Fetch(ctx, txHash)
	if err != nil {
		if errors.IsCode(err, errors.CodeTxNotFound) {
			return models.VerificationOutcome{
				Status:  models.OutcomeNotFound,
				TxHash:  txHash,
				Message: "transaction not found or carries no matching token transfer",
			}
		}
		return models.VerificationOutcome{
			Status:  models.OutcomeNetworkError,
			TxHash:  txHash,
			Message: "blockchain gateways unavailable, retry later",
		}
	}

	transfer, ok := tron.ExtractTransfer(raw, req.TokenContract)
	if !ok {
		return models.VerificationOutcome{
			Status:  models.OutcomeNotFound,
			TxHash:  txHash,
			Message: "transaction carries no transfer of the expected token",
		}
	}

	if !tron.AddressesEqual(transfer.To, req.WalletAddress) {
		return models.VerificationOutcome{
			Status:   models.OutcomeWrongAddress,
			TxHash:   txHash,
			Transfer: transfer,
			Message:  "transfer recipient does not match the payment wallet",
		}
	}

	assessment := e.scorer.Score(ctx, transfer, req)
	if assessment.Score > e.policy.FraudGate {
		return models.VerificationOutcome{
			Status:     models.OutcomeFraudDetected,
			TxHash:     txHash,
			Transfer:   transfer,
			Message:    "transfer failed fraud screening",
			FraudScore: assessment.Score,
			Warnings:   assessment.Warnings,
		}
	}

	if transfer.Confirmations < e.policy.MinConfirmations {
		return models.VerificationOutcome{
			Status:     models.OutcomePending,
			TxHash:     txHash,
			Transfer:   transfer,
			Message:    fmt.Sprintf("payment seen, %d of %d confirmations", transfer.Confirmations, e.policy.MinConfirmations),
			FraudScore: assessment.Score,
			Warnings:   assessment.Warnings,
		}
	}

	if !e.amountAcceptable(transfer.Amount, req.ExpectedAmount) {
		return models.VerificationOutcome{
			Status:     models.OutcomeInsufficientAmount,
			TxHash:     txHash,
			Transfer:   transfer,
			Message:    fmt.Sprintf("received %s, expected %s", transfer.Amount.String(), req.ExpectedAmount.String()),
			FraudScore: assessment.Score,
			Warnings:   assessment.Warnings,
		}
	}

	return models.VerificationOutcome{
		Status:     models.OutcomeVerified,
		TxHash:     txHash,
		Transfer:   transfer,
		Message:    "payment verified",
		FraudScore: assessment.Score,
		Warnings:   assessment.Warnings,
	}
}

// amountAcceptable accepts overpayment of any size. Underpayment passes
// down to the configured floor, with a small band around the exact
// amount treated as exact to absorb rounding in upstream conversions.
func (e *Engine) amountAcceptable(received, expected decimal.Decimal) bool {
	band := expected.Mul(decimal.NewFromFloat(e.policy.AmountTolerance))
	if received.Sub(expected).Abs().LessThanOrEqual(band) {
		return true
	}
	floor := expected.Mul(decimal.NewFromFloat(e.policy.UnderpaymentRatio))
	return received.GreaterThanOrEqual(floor)
}

// settle consumes the transaction hash and transitions the payment row.
// Payments verified after their window closed settle as paid_late and
// wait for an operator decision instead of activating automatically.
func (e *Engine) settle(ctx context.Context, req *models.PaymentRequest, outcome models.VerificationOutcome) models.VerificationOutcome {
	inserted, err := e.ledger.MarkVerified(ctx, outcome.TxHash)
	if err != nil {
		return models.VerificationOutcome{
			Status:     models.OutcomeNetworkError,
			TxHash:     outcome.TxHash,
			Transfer:   outcome.Transfer,
			Message:    "security ledger unavailable, retry later",
			FraudScore: outcome.FraudScore,
			Warnings:   outcome.Warnings,
		}
	}
	if !inserted {
		return models.VerificationOutcome{
			Status:  models.OutcomeAlreadyProcessed,
			TxHash:  outcome.TxHash,
			Message: "transaction hash was already used for a verified payment",
		}
	}

	now := e.now()
	target := models.StatusPaid
	eventType := models.EventPaymentVerified
	message := "payment verified"
	if req.Expired(now) {
		target = models.StatusPaidLate
		eventType = models.EventLatePaymentDetected
		message = "late payment detected, awaiting approval"
	}

	err = e.store.SettlePayment(ctx, req.PaymentID, models.StatusPending, target, outcome.TxHash, outcome.Transfer.Amount, now)
	if err != nil {
		if errors.IsCode(err, errors.CodeStatusConflict) {
			return models.VerificationOutcome{
				Status:  models.OutcomeAlreadyProcessed,
				TxHash:  outcome.TxHash,
				Message: "payment was already settled",
			}
		}
		logger.Error("Settlement write failed after ledger insert", logger.Fields{
			"payment_id": req.PaymentID,
			"tx_hash":    outcome.TxHash,
			"error":      err.Error(),
		})
		return models.VerificationOutcome{
			Status:     models.OutcomeFailed,
			TxHash:     outcome.TxHash,
			Transfer:   outcome.Transfer,
			Message:    "settlement could not be recorded, operator attention required",
			FraudScore: outcome.FraudScore,
			Warnings:   outcome.Warnings,
		}
	}

	event := models.NotificationEvent{
		EventType: eventType,
		PaymentID: req.PaymentID,
		UserID:    req.UserID,
		Status:    target,
		TxHash:    outcome.TxHash,
		Amount:    outcome.Transfer.Amount.String(),
		Message:   message,
		Timestamp: now,
	}
	if err := e.notifier.SendNotification(ctx, event); err != nil {
		logger.Error("Settlement notification failed", logger.Fields{
			"payment_id": req.PaymentID,
			"error":      err.Error(),
		})
	}

	outcome.Message = message
	if target == models.StatusPaidLate {
		outcome.Warnings = append(outcome.Warnings, "payment arrived after the payment window")
	}
	return outcome
}

func (e *Engine) audit(ctx context.Context, req *models.PaymentRequest, outcome models.VerificationOutcome) {
	rec := models.AuditRecord{
		PaymentID:  req.PaymentID,
		UserID:     req.UserID,
		FromStatus: req.Status,
		Actor:      "engine",
		TxHash:     outcome.TxHash,
		Outcome:    string(outcome.Status),
		FraudScore: outcome.FraudScore,
		Message:    outcome.Message,
		CreatedAt:  e.now(),
	}
	if outcome.Status == models.OutcomeVerified {
		rec.ToStatus = models.StatusPaid
		if req.Expired(e.now()) {
			rec.ToStatus = models.StatusPaidLate
		}
	}
	if err := e.store.AppendAudit(ctx, rec); err != nil {
		logger.Error("Audit write failed", logger.Fields{
			"payment_id": req.PaymentID,
			"outcome":    string(outcome.Status),
			"error":      err.Error(),
		})
	}
}
