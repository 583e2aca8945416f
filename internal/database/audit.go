package database

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/google/uuid"

	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/models"
)

// auditItem mirrors models.AuditRecord with a string timestamp for the
// same reasons as paymentItem
type auditItem struct {
	AuditID    string  `dynamodbav:"audit_id"`
	PaymentID  string  `dynamodbav:"payment_id"`
	UserID     string  `dynamodbav:"user_id"`
	FromStatus string  `dynamodbav:"from_status,omitempty"`
	ToStatus   string  `dynamodbav:"to_status,omitempty"`
	Actor      string  `dynamodbav:"actor"`
	TxHash     string  `dynamodbav:"tx_hash,omitempty"`
	Outcome    string  `dynamodbav:"outcome,omitempty"`
	FraudScore float64 `dynamodbav:"fraud_score"`
	Message    string  `dynamodbav:"message,omitempty"`
	CreatedAt  string  `dynamodbav:"created_at"`
}

// AppendAudit writes one audit row. Audit failures are reported but never
// roll back the decision they describe; callers log and continue.
func (s *Store) AppendAudit(ctx context.Context, rec models.AuditRecord) error {
	if rec.AuditID == "" {
		rec.AuditID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	item := auditItem{
		AuditID:    rec.AuditID,
		PaymentID:  rec.PaymentID,
		UserID:     rec.UserID,
		FromStatus: string(rec.FromStatus),
		ToStatus:   string(rec.ToStatus),
		Actor:      rec.Actor,
		TxHash:     rec.TxHash,
		Outcome:    rec.Outcome,
		FraudScore: rec.FraudScore,
		Message:    rec.Message,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
	}

	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return errors.ErrDatabaseOperation("marshal_audit", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.auditTable),
		Item:      av,
	}
	if _, err := s.client.PutItemWithContext(ctx, input); err != nil {
		return errors.ErrDatabaseOperation("append_audit", err)
	}
	return nil
}
