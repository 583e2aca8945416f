package verify

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/models"
)

func latePayment() *models.PaymentRequest {
	p := &models.PaymentRequest{
		PaymentID:      "pay-1",
		UserID:         "user-1",
		ExpectedAmount: decimal.RequireFromString("10"),
		AmountReceived: decimal.RequireFromString("10"),
		TxHash:         testHash,
		Status:         models.StatusPaidLate,
	}
	return p
}

func TestApproveLatePayment(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	admin := NewAdmin(store, ledger.NewMemory(), notifier)

	require.NoError(t, admin.ApproveLatePayment(context.Background(), latePayment(), "ops@example.com"))

	require.Len(t, store.transitions, 1)
	assert.Equal(t, models.StatusPaidLate, store.transitions[0].from)
	assert.Equal(t, models.StatusPaid, store.transitions[0].to)

	require.Len(t, store.audits, 1)
	assert.Equal(t, "ops@example.com", store.audits[0].Actor)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.EventPaymentVerified, notifier.events[0].EventType)
}

func TestRejectLatePayment(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	l := ledger.NewMemory()
	ctx := context.Background()

	// The hash was consumed at settle time and must stay consumed
	_, err := l.MarkVerified(ctx, testHash)
	require.NoError(t, err)

	admin := NewAdmin(store, l, notifier)
	require.NoError(t, admin.RejectLatePayment(ctx, latePayment(), "ops@example.com"))

	require.Len(t, store.transitions, 1)
	assert.Equal(t, models.StatusLateRejected, store.transitions[0].to)
	assert.Empty(t, notifier.events)

	seen, err := l.SeenVerified(ctx, testHash)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestApproveLatePaymentConflict(t *testing.T) {
	store := &fakeStore{
		transitionErr: apperrors.ErrStatusConflict("pay-1", string(models.StatusPaidLate)),
	}
	admin := NewAdmin(store, ledger.NewMemory(), &fakeNotifier{})

	err := admin.ApproveLatePayment(context.Background(), latePayment(), "ops@example.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStatusConflict))
	assert.Empty(t, store.audits)
}

func TestBlacklistAddress(t *testing.T) {
	l := ledger.NewMemory()
	admin := NewAdmin(&fakeStore{}, l, &fakeNotifier{})
	ctx := context.Background()

	require.NoError(t, admin.BlacklistAddress(ctx, senderAddr, "ops@example.com"))

	suspicious, err := l.IsSuspicious(ctx, senderAddr)
	require.NoError(t, err)
	assert.True(t, suspicious)

	stats, err := admin.LedgerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SuspiciousCount)
}
