package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with a machine-readable code
type AppError struct {
	Code       string // Machine-readable error code
	Message    string // Human-readable error message
	StatusCode int    // HTTP status code
	Err        error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (underlying: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Taxonomy codes used by the verification core
const (
	CodeNetworkError    = "NETWORK_ERROR"
	CodeTxNotFound      = "TX_NOT_FOUND"
	CodeDecodeError     = "DECODE_ERROR"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeQueueError      = "QUEUE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodePaymentNotFound = "PAYMENT_NOT_FOUND"
	CodeStatusConflict  = "STATUS_CONFLICT"
	CodeLedgerError     = "LEDGER_ERROR"
)

// Common error constructors

// ErrNetwork creates a gateway-exhausted network error. Retryable by the
// caller after backoff.
func ErrNetwork(message string, err error) *AppError {
	return &AppError{
		Code:       CodeNetworkError,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// ErrTxNotFound indicates the transaction is absent on-chain or carries no
// relevant token transfer. Terminal for this attempt.
func ErrTxNotFound(txHash string) *AppError {
	return &AppError{
		Code:       CodeTxNotFound,
		Message:    fmt.Sprintf("Transaction '%s' not found or carries no matching transfer", txHash),
		StatusCode: http.StatusNotFound,
		Err:        nil,
	}
}

// ErrDecode creates an error for a malformed gateway payload
func ErrDecode(gateway string, err error) *AppError {
	return &AppError{
		Code:       CodeDecodeError,
		Message:    fmt.Sprintf("Failed to decode response from gateway '%s'", gateway),
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// ErrPaymentNotFound creates a payment not found error
func ErrPaymentNotFound(paymentID string) *AppError {
	return &AppError{
		Code:       CodePaymentNotFound,
		Message:    fmt.Sprintf("Payment '%s' not found", paymentID),
		StatusCode: http.StatusNotFound,
		Err:        nil,
	}
}

// ErrStatusConflict indicates an optimistic status transition lost the race:
// the row was not in the expected current status.
func ErrStatusConflict(paymentID, expected string) *AppError {
	return &AppError{
		Code:       CodeStatusConflict,
		Message:    fmt.Sprintf("Payment '%s' is no longer in status '%s'", paymentID, expected),
		StatusCode: http.StatusConflict,
		Err:        nil,
	}
}

// ErrDatabaseOperation creates a database operation error
func ErrDatabaseOperation(operation string, err error) *AppError {
	return &AppError{
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("Database operation '%s' failed", operation),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrQueueOperation creates a queue operation error
func ErrQueueOperation(operation string, err error) *AppError {
	return &AppError{
		Code:       CodeQueueError,
		Message:    fmt.Sprintf("Queue operation '%s' failed", operation),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrLedgerOperation creates a security-ledger operation error
func ErrLedgerOperation(operation string, err error) *AppError {
	return &AppError{
		Code:       CodeLedgerError,
		Message:    fmt.Sprintf("Ledger operation '%s' failed", operation),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrValidation creates a validation error
func ErrValidation(field, reason string) *AppError {
	return &AppError{
		Code:       CodeValidationError,
		Message:    fmt.Sprintf("Validation failed for field '%s': %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        nil,
	}
}

// IsCode reports whether err is an AppError carrying the given code
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
