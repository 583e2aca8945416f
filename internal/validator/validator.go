package validator

import (
	"regexp"
	"strings"

	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/models"
)

var (
	txHashPattern     = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
	base58AddrPattern = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	hexAddrPattern    = regexp.MustCompile(`^(0x)?(41)?[a-fA-F0-9]{40}$`)
)

// ValidateTxHash validates a user-submitted transaction reference.
// TRON transaction ids are 32 bytes, hex-encoded without a 0x prefix.
func ValidateTxHash(txHash string) error {
	trimmed := strings.TrimSpace(txHash)
	if trimmed == "" {
		return errors.ErrValidation("tx_hash", "is required")
	}

	if !txHashPattern.MatchString(trimmed) {
		return errors.ErrValidation("tx_hash", "must be 64 hexadecimal characters")
	}

	return nil
}

// ValidateAddress validates a TRON address in either encoding: base58check
// (T-prefixed, 34 characters) or hex (40 hex digits, optionally prefixed
// with 41 or 0x41).
func ValidateAddress(address string) error {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return errors.ErrValidation("address", "is required")
	}

	if !base58AddrPattern.MatchString(trimmed) && !hexAddrPattern.MatchString(trimmed) {
		return errors.ErrValidation("address", "is not a valid TRON address")
	}

	return nil
}

// ValidatePaymentRequest validates a payment request before it enters the
// verification pipeline.
func ValidatePaymentRequest(req *models.PaymentRequest) error {
	if req.PaymentID == "" {
		return errors.ErrValidation("payment_id", "is required")
	}

	if !req.ExpectedAmount.IsPositive() {
		return errors.ErrValidation("expected_amount", "must be greater than 0")
	}

	if err := ValidateAddress(req.WalletAddress); err != nil {
		return errors.ErrValidation("wallet_address", "is not a valid TRON address")
	}

	if req.TokenContract == "" {
		return errors.ErrValidation("token_contract", "is required")
	}

	return nil
}

// IsTxHash reports whether the string looks like a transaction reference
func IsTxHash(s string) bool {
	return txHashPattern.MatchString(strings.TrimSpace(s))
}
