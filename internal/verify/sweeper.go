package verify

import (
	"context"
	"time"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
)

// SweepStore is the persistence surface for the periodic sweep
type SweepStore interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*models.PaymentRequest, error)
	TransitionStatus(ctx context.Context, paymentID string, from, to models.PaymentStatus) error
	AppendAudit(ctx context.Context, rec models.AuditRecord) error
}

// SweepReport summarizes one sweep run
type SweepReport struct {
	Examined int `json:"examined"`
	Settled  int `json:"settled"`
	Expired  int `json:"expired"`
	Errors   int `json:"errors"`
}

// Sweeper runs the periodic late-payment job. Pending payments past
// expiry get one last chance: the wallet is scanned for a matching
// transfer that arrived late. Payments still unpaid after the grace
// window are marked expired.
type Sweeper struct {
	store    SweepStore
	scanner  *Scanner
	notifier Notifier
	policy   config.Policy

	now func() time.Time
}

// NewSweeper creates the sweep job
func NewSweeper(store SweepStore, scanner *Scanner, notifier Notifier, policy config.Policy) *Sweeper {
	return &Sweeper{
		store:    store,
		scanner:  scanner,
		notifier: notifier,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep processes every pending payment whose window has closed
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.now()

	payments, err := s.store.ListExpiredPending(ctx, now)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	report.Examined = len(payments)

	for _, p := range payments {
		if now.After(p.ExpiresAt.Add(s.policy.LatePaymentGrace)) {
			if err := s.expire(ctx, p); err != nil {
				report.Errors++
				continue
			}
			report.Expired++
			continue
		}

		// Still inside the grace window: scan from creation through
		// now for a transfer the user never reported.
		hours := int(now.Sub(p.CreatedAt).Hours()) + 1
		outcomes := s.scanner.VerifyByScan(ctx, p, hours)
		for _, outcome := range outcomes {
			if outcome.Status == models.OutcomeVerified {
				report.Settled++
				break
			}
		}
	}

	logger.Info("Sweep completed", logger.Fields{
		"examined": report.Examined,
		"settled":  report.Settled,
		"expired":  report.Expired,
		"errors":   report.Errors,
	})
	return report, nil
}

func (s *Sweeper) expire(ctx context.Context, p *models.PaymentRequest) error {
	if err := s.store.TransitionStatus(ctx, p.PaymentID, models.StatusPending, models.StatusExpired); err != nil {
		logger.Error("Expiry transition failed", logger.Fields{
			"payment_id": p.PaymentID,
			"error":      err.Error(),
		})
		return err
	}

	rec := models.AuditRecord{
		PaymentID:  p.PaymentID,
		UserID:     p.UserID,
		FromStatus: models.StatusPending,
		ToStatus:   models.StatusExpired,
		Actor:      "sweeper",
		Message:    "payment window closed without settlement",
		CreatedAt:  s.now(),
	}
	if err := s.store.AppendAudit(ctx, rec); err != nil {
		logger.Error("Audit write failed", logger.Fields{
			"payment_id": p.PaymentID,
			"error":      err.Error(),
		})
	}

	event := models.NotificationEvent{
		EventType: models.EventPaymentExpired,
		PaymentID: p.PaymentID,
		UserID:    p.UserID,
		Status:    models.StatusExpired,
		Message:   "payment window closed without settlement",
		Timestamp: s.now(),
	}
	if err := s.notifier.SendNotification(ctx, event); err != nil {
		logger.Error("Expiry notification failed", logger.Fields{
			"payment_id": p.PaymentID,
			"error":      err.Error(),
		})
	}
	return nil
}
