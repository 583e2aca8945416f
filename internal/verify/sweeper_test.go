package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/usdt-verification/internal/models"
	"github.com/yourusername/usdt-verification/internal/tron"
)

func newSweeperFixture(f *engineFixture, gw tron.Gateway) *Sweeper {
	scanner := NewScanner(tron.NewPool(gw), f.engine)
	sweeper := NewSweeper(f.store, scanner, f.notifier, testPolicy())
	sweeper.now = f.engine.now
	return sweeper
}

func TestSweepExpiresPaymentsPastGrace(t *testing.T) {
	f := newFixture(testPolicy())

	stale := f.request()
	stale.ExpiresAt = f.now.Add(-13 * time.Hour) // grace is 12h
	f.store.pending = []*models.PaymentRequest{stale}

	sweeper := newSweeperFixture(f, &historyGateway{})
	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Settled)

	require.Len(t, f.store.transitions, 1)
	assert.Equal(t, models.StatusPending, f.store.transitions[0].from)
	assert.Equal(t, models.StatusExpired, f.store.transitions[0].to)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.EventPaymentExpired, f.notifier.events[0].EventType)
}

func TestSweepRecoversLatePayment(t *testing.T) {
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)

	late := f.request()
	late.ExpiresAt = f.now.Add(-time.Hour) // inside the 12h grace
	f.store.pending = []*models.PaymentRequest{late}

	gw := &historyGateway{transfers: []models.NormalizedTransfer{historyEntry(testHash, "10")}}
	sweeper := newSweeperFixture(f, gw)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 0, report.Expired)

	// Post-expiry settlement lands as paid_late pending operator review
	require.Len(t, f.store.settles, 1)
	assert.Equal(t, models.StatusPaidLate, f.store.settles[0].to)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.EventLatePaymentDetected, f.notifier.events[0].EventType)
}

func TestSweepNothingPending(t *testing.T) {
	f := newFixture(testPolicy())
	sweeper := newSweeperFixture(f, &historyGateway{})

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestSweepTransitionFailureCounted(t *testing.T) {
	f := newFixture(testPolicy())
	f.store.transitionErr = assert.AnError

	stale := f.request()
	stale.ExpiresAt = f.now.Add(-24 * time.Hour)
	f.store.pending = []*models.PaymentRequest{stale}

	sweeper := newSweeperFixture(f, &historyGateway{})
	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 0, report.Expired)
}
