package verify

import (
	"context"
	"time"

	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
)

// AdminStore is the persistence surface for operator actions
type AdminStore interface {
	TransitionStatus(ctx context.Context, paymentID string, from, to models.PaymentStatus) error
	AppendAudit(ctx context.Context, rec models.AuditRecord) error
}

// Admin executes operator decisions on late payments and manages the
// sender blacklist. Every action lands in the audit trail with the
// operator recorded as actor.
type Admin struct {
	store    AdminStore
	ledger   ledger.Ledger
	notifier Notifier

	now func() time.Time
}

// NewAdmin creates the operator action service
func NewAdmin(store AdminStore, l ledger.Ledger, notifier Notifier) *Admin {
	return &Admin{
		store:    store,
		ledger:   l,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApproveLatePayment promotes a late-settled payment to paid, releasing
// it to the activation workflow.
func (a *Admin) ApproveLatePayment(ctx context.Context, p *models.PaymentRequest, actor string) error {
	if err := a.store.TransitionStatus(ctx, p.PaymentID, models.StatusPaidLate, models.StatusPaid); err != nil {
		return err
	}

	a.auditAction(ctx, p, models.StatusPaidLate, models.StatusPaid, actor, "late payment approved")

	event := models.NotificationEvent{
		EventType: models.EventPaymentVerified,
		PaymentID: p.PaymentID,
		UserID:    p.UserID,
		Status:    models.StatusPaid,
		TxHash:    p.TxHash,
		Amount:    p.AmountReceived.String(),
		Message:   "late payment approved",
		Timestamp: a.now(),
	}
	if err := a.notifier.SendNotification(ctx, event); err != nil {
		logger.Error("Approval notification failed", logger.Fields{
			"payment_id": p.PaymentID,
			"error":      err.Error(),
		})
	}
	return nil
}

// RejectLatePayment declines a late-settled payment. The transaction
// hash stays consumed in the ledger so it cannot be replayed against
// another request.
func (a *Admin) RejectLatePayment(ctx context.Context, p *models.PaymentRequest, actor string) error {
	if err := a.store.TransitionStatus(ctx, p.PaymentID, models.StatusPaidLate, models.StatusLateRejected); err != nil {
		return err
	}

	a.auditAction(ctx, p, models.StatusPaidLate, models.StatusLateRejected, actor, "late payment rejected")
	return nil
}

// BlacklistAddress marks a sender address as suspicious for all future
// fraud scoring
func (a *Admin) BlacklistAddress(ctx context.Context, address, actor string) error {
	if err := a.ledger.AddSuspiciousAddress(ctx, address); err != nil {
		return err
	}
	logger.Info("Sender address blacklisted", logger.Fields{
		"address": address,
		"actor":   actor,
	})
	return nil
}

// LedgerStats returns security-ledger counters for dashboards
func (a *Admin) LedgerStats(ctx context.Context) (ledger.Stats, error) {
	return a.ledger.Stats(ctx)
}

func (a *Admin) auditAction(ctx context.Context, p *models.PaymentRequest, from, to models.PaymentStatus, actor, message string) {
	rec := models.AuditRecord{
		PaymentID:  p.PaymentID,
		UserID:     p.UserID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		TxHash:     p.TxHash,
		Message:    message,
		CreatedAt:  a.now(),
	}
	if err := a.store.AppendAudit(ctx, rec); err != nil {
		logger.Error("Audit write failed", logger.Fields{
			"payment_id": p.PaymentID,
			"actor":      actor,
			"error":      err.Error(),
		})
	}
}
