package verify

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/usdt-verification/internal/config"
	apperrors "github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/fraud"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/models"
	"github.com/yourusername/usdt-verification/internal/tron"
)

const (
	usdtContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	senderHex    = "1111111111111111111111111111111111111111"
	walletHex    = "2222222222222222222222222222222222222222"
	strangerHex  = "3333333333333333333333333333333333333333"
	testHash     = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

var (
	senderAddr   = mustAddr("41" + senderHex)
	walletAddr   = mustAddr("41" + walletHex)
	strangerAddr = mustAddr("41" + strangerHex)
)

func mustAddr(hexAddr string) string {
	addr, err := tron.NormalizeAddress(hexAddr)
	if err != nil {
		panic(err)
	}
	return addr
}

func testPolicy() config.Policy {
	return config.Policy{
		MinConfirmations:     15,
		FraudGate:            0.7,
		BlacklistWeight:      0.8,
		UnderpaymentWeight:   0.6,
		OverpaymentWeight:    0.2,
		EarlyTimestampWeight: 0.4,
		RateLimitWeight:      0.3,
		ConfirmationWeight:   0.1,
		UnderpaymentRatio:    0.95,
		OverpaymentRatio:     1.10,
		AmountTolerance:      0.01,
		ScanTolerance:        0.05,
		EarlyWindow:          5 * time.Minute,
		RateWindow:           time.Hour,
		RateLimit:            5,
		LatePaymentGrace:     12 * time.Hour,
		ScanLookback:         30 * time.Minute,
		ScanWindowHours:      2,
	}
}

// fakeFetcher serves canned raw transactions keyed by hash
type fakeFetcher struct {
	raws map[string]*tron.RawTransaction
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, txHash string) (*tron.RawTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, ok := f.raws[txHash]
	if !ok {
		return nil, apperrors.ErrTxNotFound(txHash)
	}
	return raw, nil
}

type settleCall struct {
	paymentID string
	from      models.PaymentStatus
	to        models.PaymentStatus
	txHash    string
	amount    decimal.Decimal
}

type transitionCall struct {
	paymentID string
	from      models.PaymentStatus
	to        models.PaymentStatus
}

type fakeStore struct {
	settles       []settleCall
	settleErr     error
	audits        []models.AuditRecord
	transitions   []transitionCall
	transitionErr error
	pending       []*models.PaymentRequest
}

func (s *fakeStore) SettlePayment(_ context.Context, paymentID string, from, to models.PaymentStatus, txHash string, amount decimal.Decimal, _ time.Time) error {
	if s.settleErr != nil {
		return s.settleErr
	}
	s.settles = append(s.settles, settleCall{paymentID, from, to, txHash, amount})
	return nil
}

func (s *fakeStore) AppendAudit(_ context.Context, rec models.AuditRecord) error {
	s.audits = append(s.audits, rec)
	return nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, paymentID string, from, to models.PaymentStatus) error {
	if s.transitionErr != nil {
		return s.transitionErr
	}
	s.transitions = append(s.transitions, transitionCall{paymentID, from, to})
	return nil
}

func (s *fakeStore) ListExpiredPending(_ context.Context, _ time.Time) ([]*models.PaymentRequest, error) {
	return s.pending, nil
}

type fakeNotifier struct {
	events []models.NotificationEvent
}

func (n *fakeNotifier) SendNotification(_ context.Context, event models.NotificationEvent) error {
	n.events = append(n.events, event)
	return nil
}

func rawTransfer(txHash, toHex string, micros int64, confirmations int64, blockTime time.Time) *tron.RawTransaction {
	const blockNumber = 1000
	return &tron.RawTransaction{
		TxHash:         txHash,
		Succeeded:      true,
		BlockNumber:    blockNumber,
		BlockTimestamp: blockTime,
		ChainHead:      blockNumber + confirmations,
		Logs: []tron.EventLog{{
			Address: "41a614f803b6fd780986a42c78ec9c7f77e6ded13c",
			Topics: []string{
				tron.TransferTopic,
				strings.Repeat("0", 24) + senderHex,
				strings.Repeat("0", 24) + toHex,
			},
			Data: fmt.Sprintf("%064x", micros),
		}},
	}
}

type engineFixture struct {
	engine   *Engine
	fetcher  *fakeFetcher
	ledger   *ledger.Memory
	store    *fakeStore
	notifier *fakeNotifier
	now      time.Time
}

func newFixture(policy config.Policy) *engineFixture {
	f := &engineFixture{
		fetcher:  &fakeFetcher{raws: map[string]*tron.RawTransaction{}},
		ledger:   ledger.NewMemory(),
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC),
	}
	scorer := fraud.NewScorer(policy, f.ledger)
	f.engine = NewEngine(f.fetcher, scorer, f.ledger, f.store, f.notifier, policy)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *engineFixture) request() *models.PaymentRequest {
	return &models.PaymentRequest{
		PaymentID:      "pay-1",
		UserID:         "user-1",
		ExpectedAmount: decimal.RequireFromString("10"),
		TokenContract:  usdtContract,
		WalletAddress:  walletAddr,
		Status:         models.StatusPending,
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt:      time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC),
	}
}

func (f *engineFixture) goodTransfer(micros int64) {
	f.fetcher.raws[testHash] = rawTransfer(testHash, walletHex, micros, 20, f.request().CreatedAt.Add(time.Minute))
}

func TestVerifyHappyPath(t *testing.T) {
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)

	assert.Equal(t, models.OutcomeVerified, outcome.Status)
	require.Len(t, f.store.settles, 1)
	assert.Equal(t, models.StatusPending, f.store.settles[0].from)
	assert.Equal(t, models.StatusPaid, f.store.settles[0].to)
	assert.Equal(t, testHash, f.store.settles[0].txHash)
	assert.True(t, f.store.settles[0].amount.Equal(decimal.RequireFromString("10")))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.EventPaymentVerified, f.notifier.events[0].EventType)

	require.Len(t, f.store.audits, 1)
	assert.Equal(t, string(models.OutcomeVerified), f.store.audits[0].Outcome)
}

func TestVerifyReplayInvariant(t *testing.T) {
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)
	ctx := context.Background()

	first := f.engine.VerifyByHash(ctx, f.request(), testHash)
	require.Equal(t, models.OutcomeVerified, first.Status)

	// Same hash against the same request, and against a different one
	second := f.engine.VerifyByHash(ctx, f.request(), testHash)
	assert.Equal(t, models.OutcomeAlreadyProcessed, second.Status)

	other := f.request()
	other.PaymentID = "pay-2"
	third := f.engine.VerifyByHash(ctx, other, testHash)
	assert.Equal(t, models.OutcomeAlreadyProcessed, third.Status)

	assert.Len(t, f.store.settles, 1)
	assert.Len(t, f.notifier.events, 1)
}

func TestVerifyNotFound(t *testing.T) {
	f := newFixture(testPolicy())

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeNotFound, outcome.Status)
	assert.False(t, outcome.Retryable())
	assert.Empty(t, f.store.settles)
}

func TestVerifyNetworkError(t *testing.T) {
	f := newFixture(testPolicy())
	f.fetcher.err = apperrors.ErrNetwork("all gateways down", nil)

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeNetworkError, outcome.Status)
	assert.True(t, outcome.Retryable())
}

func TestVerifyWrongAddress(t *testing.T) {
	f := newFixture(testPolicy())
	f.fetcher.raws[testHash] = rawTransfer(testHash, strangerHex, 10_000_000, 20, f.request().CreatedAt.Add(time.Minute))

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeWrongAddress, outcome.Status)
	require.NotNil(t, outcome.Transfer)
	assert.Equal(t, strangerAddr, outcome.Transfer.To)
	assert.Empty(t, f.store.settles)
}

func TestVerifyAddressEncodingInsensitive(t *testing.T) {
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)

	// Configured wallet in hex form must still normalize-match the
	// base58 recipient decoded from the event log
	req := f.request()
	req.WalletAddress = "0x41" + strings.ToUpper(walletHex)

	outcome := f.engine.VerifyByHash(context.Background(), req, testHash)
	assert.Equal(t, models.OutcomeVerified, outcome.Status)
}

func TestVerifyOrderingPrecedence(t *testing.T) {
	// Wrong address AND blacklisted sender AND underpaid: the address
	// check wins because it runs first.
	f := newFixture(testPolicy())
	require.NoError(t, f.ledger.AddSuspiciousAddress(context.Background(), senderAddr))
	f.fetcher.raws[testHash] = rawTransfer(testHash, strangerHex, 1_000_000, 20, f.request().CreatedAt.Add(time.Minute))

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeWrongAddress, outcome.Status)
}

func TestVerifyFraudDetected(t *testing.T) {
	f := newFixture(testPolicy())
	require.NoError(t, f.ledger.AddSuspiciousAddress(context.Background(), senderAddr))
	f.goodTransfer(10_000_000)

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeFraudDetected, outcome.Status)
	assert.InDelta(t, 0.8, outcome.FraudScore, 1e-9)
	assert.Empty(t, f.store.settles)
}

func TestVerifyFraudGateBoundary(t *testing.T) {
	// Exactly at the gate is allowed; strictly above is blocked.
	exactly := testPolicy()
	exactly.BlacklistWeight = 0.7
	f := newFixture(exactly)
	require.NoError(t, f.ledger.AddSuspiciousAddress(context.Background(), senderAddr))
	f.goodTransfer(10_000_000)

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeVerified, outcome.Status)

	above := testPolicy()
	above.BlacklistWeight = 0.71
	f = newFixture(above)
	require.NoError(t, f.ledger.AddSuspiciousAddress(context.Background(), senderAddr))
	f.goodTransfer(10_000_000)

	outcome = f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeFraudDetected, outcome.Status)
}

func TestVerifyConfirmationGating(t *testing.T) {
	f := newFixture(testPolicy())
	created := f.request().CreatedAt

	f.fetcher.raws[testHash] = rawTransfer(testHash, walletHex, 10_000_000, 14, created.Add(time.Minute))
	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomePending, outcome.Status)
	assert.True(t, outcome.Retryable())
	assert.Empty(t, f.store.settles)

	f.fetcher.raws[testHash] = rawTransfer(testHash, walletHex, 10_000_000, 15, created.Add(time.Minute))
	outcome = f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeVerified, outcome.Status)
}

func TestVerifyAmountTolerance(t *testing.T) {
	tests := []struct {
		name   string
		micros int64
		want   models.OutcomeStatus
	}{
		{"exact amount", 10_000_000, models.OutcomeVerified},
		{"94 percent is underpaid", 9_400_000, models.OutcomeInsufficientAmount},
		{"96 percent is accepted", 9_600_000, models.OutcomeVerified},
		{"overpayment is accepted", 15_000_000, models.OutcomeVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testPolicy())
			f.goodTransfer(tt.micros)

			outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
			assert.Equal(t, tt.want, outcome.Status)
		})
	}
}

func TestVerifyLatePayment(t *testing.T) {
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)
	f.now = f.request().ExpiresAt.Add(time.Hour)

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)

	assert.Equal(t, models.OutcomeVerified, outcome.Status)
	require.Len(t, f.store.settles, 1)
	assert.Equal(t, models.StatusPaidLate, f.store.settles[0].to)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.EventLatePaymentDetected, f.notifier.events[0].EventType)
}

func TestVerifySettleRace(t *testing.T) {
	// Another worker settled the row between evaluation and the
	// conditional update
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)
	f.store.settleErr = apperrors.ErrStatusConflict("pay-1", string(models.StatusPending))

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeAlreadyProcessed, outcome.Status)
	assert.Empty(t, f.notifier.events)
}

func TestVerifySettleFailure(t *testing.T) {
	f := newFixture(testPolicy())
	f.goodTransfer(10_000_000)
	f.store.settleErr = apperrors.ErrDatabaseOperation("settle_payment", fmt.Errorf("throttled"))

	outcome := f.engine.VerifyByHash(context.Background(), f.request(), testHash)
	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.Empty(t, f.notifier.events)
}
