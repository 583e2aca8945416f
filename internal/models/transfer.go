package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedTransfer is the engine's canonical view of an on-chain TRC20
// transfer, independent of which gateway supplied it. Addresses are in
// base58 form; Amount is in token units (raw value shifted by the token's
// decimal exponent). Built fresh per fetch, never persisted.
type NormalizedTransfer struct {
	TxHash         string
	From           string
	To             string
	Amount         decimal.Decimal
	BlockNumber    int64
	BlockTimestamp time.Time
	Confirmations  int64
}

// OutcomeStatus tags the result of one verification attempt
type OutcomeStatus string

const (
	OutcomeVerified           OutcomeStatus = "verified"
	OutcomePending            OutcomeStatus = "pending"
	OutcomeInsufficientAmount OutcomeStatus = "insufficient_amount"
	OutcomeWrongAddress       OutcomeStatus = "wrong_address"
	OutcomeFraudDetected      OutcomeStatus = "fraud_detected"
	OutcomeAlreadyProcessed   OutcomeStatus = "already_processed"
	OutcomeNotFound           OutcomeStatus = "not_found"
	OutcomeFailed             OutcomeStatus = "failed"
	OutcomeNetworkError       OutcomeStatus = "network_error"
)

// VerificationOutcome is the immutable result of a single verification
// attempt. Transfer is nil when the transaction could not be retrieved.
type VerificationOutcome struct {
	Status     OutcomeStatus
	TxHash     string
	Transfer   *NormalizedTransfer
	Message    string
	FraudScore float64
	Warnings   []string
}

// Retryable reports whether the caller may retry this outcome later
// (after backoff or new confirmations). Domain rejections are terminal.
func (o VerificationOutcome) Retryable() bool {
	return o.Status == OutcomePending || o.Status == OutcomeNetworkError
}

// FraudAssessment is the fraud scorer's output: a score in [0, 1] plus
// ordered human-readable warning codes.
type FraudAssessment struct {
	Score    float64
	Warnings []string
}
