package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment request
type PaymentStatus string

const (
	StatusPending      PaymentStatus = "pending"
	StatusPaid         PaymentStatus = "paid"
	StatusPaidLate     PaymentStatus = "paid_late"
	StatusExpired      PaymentStatus = "expired"
	StatusFailed       PaymentStatus = "failed"
	StatusLateRejected PaymentStatus = "late_rejected"
)

// PaymentRequest represents a single invoice awaiting on-chain settlement.
// Amounts are fixed-point decimals in token units (USDT), never floats.
type PaymentRequest struct {
	PaymentID      string          `json:"payment_id"`
	UserID         string          `json:"user_id"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	TokenContract  string          `json:"token_contract"`
	WalletAddress  string          `json:"wallet_address"`
	Status         PaymentStatus   `json:"status"`
	TxHash         string          `json:"tx_hash,omitempty"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	VerifiedAt     *time.Time      `json:"verified_at,omitempty"`
}

// Expired reports whether the request's payment window has closed at t.
func (p *PaymentRequest) Expired(t time.Time) bool {
	return t.After(p.ExpiresAt)
}

// VerificationJob represents a message in the verification SQS queue.
// TxHash is empty for scan-path jobs.
type VerificationJob struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	TxHash    string `json:"tx_hash,omitempty"`
}

// NotificationEvent signals the external subscription-activation and
// admin-approval workflows after a settlement decision.
type NotificationEvent struct {
	EventType string        `json:"event_type"`
	PaymentID string        `json:"payment_id"`
	UserID    string        `json:"user_id"`
	Status    PaymentStatus `json:"status"`
	TxHash    string        `json:"tx_hash,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notification event types
const (
	EventPaymentVerified     = "payment.verified"
	EventLatePaymentDetected = "payment.late_detected"
	EventPaymentExpired      = "payment.expired"
)

// AuditRecord is an append-only row written on every status change and
// verification attempt.
type AuditRecord struct {
	AuditID    string        `json:"audit_id"`
	PaymentID  string        `json:"payment_id"`
	UserID     string        `json:"user_id"`
	FromStatus PaymentStatus `json:"from_status,omitempty"`
	ToStatus   PaymentStatus `json:"to_status,omitempty"`
	Actor      string        `json:"actor"`
	TxHash     string        `json:"tx_hash,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
	FraudScore float64       `json:"fraud_score"`
	Message    string        `json:"message,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
