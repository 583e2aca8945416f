package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/models"
)

func testPolicy() config.Policy {
	return config.Policy{
		MinConfirmations:     20,
		FraudGate:            0.7,
		BlacklistWeight:      0.8,
		UnderpaymentWeight:   0.6,
		OverpaymentWeight:    0.2,
		EarlyTimestampWeight: 0.4,
		RateLimitWeight:      0.3,
		ConfirmationWeight:   0.1,
		UnderpaymentRatio:    0.95,
		OverpaymentRatio:     1.10,
		EarlyWindow:          5 * time.Minute,
		RateWindow:           time.Hour,
		RateLimit:            5,
	}
}

func cleanTransfer(amount string) *models.NormalizedTransfer {
	return &models.NormalizedTransfer{
		TxHash:         "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		From:           "TSender111111111111111111111111111",
		To:             "TWallet111111111111111111111111111",
		Amount:         decimal.RequireFromString(amount),
		BlockNumber:    1000,
		BlockTimestamp: time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC),
		Confirmations:  20,
	}
}

func testRequest() *models.PaymentRequest {
	return &models.PaymentRequest{
		PaymentID:      "pay-1",
		UserID:         "user-1",
		ExpectedAmount: decimal.RequireFromString("10"),
		Status:         models.StatusPending,
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestScoreCleanTransfer(t *testing.T) {
	s := NewScorer(testPolicy(), ledger.NewMemory())

	assessment := s.Score(context.Background(), cleanTransfer("10"), testRequest())
	assert.Zero(t, assessment.Score)
	assert.Empty(t, assessment.Warnings)
}

func TestScoreBlacklistedSender(t *testing.T) {
	l := ledger.NewMemory()
	transfer := cleanTransfer("10")
	require.NoError(t, l.AddSuspiciousAddress(context.Background(), transfer.From))

	s := NewScorer(testPolicy(), l)
	assessment := s.Score(context.Background(), transfer, testRequest())
	assert.InDelta(t, 0.8, assessment.Score, 1e-9)
	assert.Len(t, assessment.Warnings, 1)
}

func TestScoreAmountSignals(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   float64
	}{
		{"exact amount", "10", 0},
		{"at underpayment floor", "9.5", 0},
		{"below underpayment floor", "9.49", 0.6},
		{"at overpayment ceiling", "11", 0},
		{"above overpayment ceiling", "11.01", 0.2},
		{"massive overpayment", "15", 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(testPolicy(), ledger.NewMemory())
			assessment := s.Score(context.Background(), cleanTransfer(tt.amount), testRequest())
			assert.InDelta(t, tt.want, assessment.Score, 1e-9)
		})
	}
}

func TestScoreEarlyTimestamp(t *testing.T) {
	s := NewScorer(testPolicy(), ledger.NewMemory())

	transfer := cleanTransfer("10")
	transfer.BlockTimestamp = testRequest().CreatedAt.Add(-10 * time.Minute)

	assessment := s.Score(context.Background(), transfer, testRequest())
	assert.InDelta(t, 0.4, assessment.Score, 1e-9)
}

func TestScoreTimestampSlightlyEarlyIsFine(t *testing.T) {
	s := NewScorer(testPolicy(), ledger.NewMemory())

	transfer := cleanTransfer("10")
	transfer.BlockTimestamp = testRequest().CreatedAt.Add(-4 * time.Minute)

	assessment := s.Score(context.Background(), transfer, testRequest())
	assert.Zero(t, assessment.Score)
}

func TestScoreConfirmationDeficit(t *testing.T) {
	s := NewScorer(testPolicy(), ledger.NewMemory())

	transfer := cleanTransfer("10")
	transfer.Confirmations = 10 // deficit 10 of 20

	assessment := s.Score(context.Background(), transfer, testRequest())
	assert.InDelta(t, 0.05, assessment.Score, 1e-9)
}

func TestScoreExcessiveAttempts(t *testing.T) {
	l := ledger.NewMemory()
	s := NewScorer(testPolicy(), l)
	ctx := context.Background()

	// Five prior attempts inside the window; the scoring call itself is
	// the sixth.
	for i := 0; i < 5; i++ {
		_, err := l.RecordAttempt(ctx, "user-1", time.Now().UTC(), time.Hour)
		require.NoError(t, err)
	}

	assessment := s.Score(ctx, cleanTransfer("10"), testRequest())
	assert.InDelta(t, 0.3, assessment.Score, 1e-9)
}

func TestScoreIsCapped(t *testing.T) {
	l := ledger.NewMemory()
	ctx := context.Background()
	transfer := cleanTransfer("5") // heavy underpayment
	transfer.BlockTimestamp = testRequest().CreatedAt.Add(-time.Hour)
	transfer.Confirmations = 0
	require.NoError(t, l.AddSuspiciousAddress(ctx, transfer.From))
	for i := 0; i < 10; i++ {
		_, err := l.RecordAttempt(ctx, "user-1", time.Now().UTC(), time.Hour)
		require.NoError(t, err)
	}

	s := NewScorer(testPolicy(), l)
	assessment := s.Score(ctx, transfer, testRequest())
	assert.Equal(t, 1.0, assessment.Score)
	assert.Len(t, assessment.Warnings, 5)
}
