package database

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/shopspring/decimal"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/models"
)

const txHashIndex = "tx_hash-index"

// Store wraps DynamoDB access for payment requests and the audit trail
type Store struct {
	client       *dynamodb.DynamoDB
	paymentTable string
	auditTable   string
}

// NewStore creates a new DynamoDB store
func NewStore(cfg *config.Config) (*Store, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.AWS.Region),
	}
	if cfg.Database.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Database.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("create_session", err)
	}

	return &Store{
		client:       dynamodb.New(sess),
		paymentTable: cfg.Database.PaymentTable,
		auditTable:   cfg.Database.AuditTable,
	}, nil
}

// paymentItem is the stored shape of a payment request. Amounts are kept
// as exact decimal strings and timestamps as RFC3339 strings, which keeps
// range filters on expiry lexicographic and avoids any float rounding in
// the table.
type paymentItem struct {
	PaymentID      string `dynamodbav:"payment_id"`
	UserID         string `dynamodbav:"user_id"`
	ExpectedAmount string `dynamodbav:"expected_amount"`
	TokenContract  string `dynamodbav:"token_contract"`
	WalletAddress  string `dynamodbav:"wallet_address"`
	Status         string `dynamodbav:"status"`
	TxHash         string `dynamodbav:"tx_hash,omitempty"`
	AmountReceived string `dynamodbav:"amount_received"`
	CreatedAt      string `dynamodbav:"created_at"`
	ExpiresAt      string `dynamodbav:"expires_at"`
	UpdatedAt      string `dynamodbav:"updated_at"`
	VerifiedAt     string `dynamodbav:"verified_at,omitempty"`
}

func toItem(p *models.PaymentRequest) paymentItem {
	item := paymentItem{
		PaymentID:      p.PaymentID,
		UserID:         p.UserID,
		ExpectedAmount: p.ExpectedAmount.String(),
		TokenContract:  p.TokenContract,
		WalletAddress:  p.WalletAddress,
		Status:         string(p.Status),
		TxHash:         p.TxHash,
		AmountReceived: p.AmountReceived.String(),
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:      p.ExpiresAt.UTC().Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.VerifiedAt != nil {
		item.VerifiedAt = p.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func fromItem(item paymentItem) (*models.PaymentRequest, error) {
	expected, err := decimal.NewFromString(item.ExpectedAmount)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("decode_expected_amount", err)
	}
	received := decimal.Zero
	if item.AmountReceived != "" {
		if received, err = decimal.NewFromString(item.AmountReceived); err != nil {
			return nil, errors.ErrDatabaseOperation("decode_amount_received", err)
		}
	}

	createdAt, err := time.Parse(time.RFC3339, item.CreatedAt)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("decode_created_at", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, item.ExpiresAt)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("decode_expires_at", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, item.UpdatedAt)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("decode_updated_at", err)
	}

	p := &models.PaymentRequest{
		PaymentID:      item.PaymentID,
		UserID:         item.UserID,
		ExpectedAmount: expected,
		TokenContract:  item.TokenContract,
		WalletAddress:  item.WalletAddress,
		Status:         models.PaymentStatus(item.Status),
		TxHash:         item.TxHash,
		AmountReceived: received,
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
		UpdatedAt:      updatedAt,
	}
	if item.VerifiedAt != "" {
		verifiedAt, err := time.Parse(time.RFC3339, item.VerifiedAt)
		if err != nil {
			return nil, errors.ErrDatabaseOperation("decode_verified_at", err)
		}
		p.VerifiedAt = &verifiedAt
	}
	return p, nil
}

// CreatePayment stores a new payment request. Fails if a payment with the
// same id already exists.
func (s *Store) CreatePayment(ctx context.Context, p *models.PaymentRequest) error {
	av, err := dynamodbattribute.MarshalMap(toItem(p))
	if err != nil {
		return errors.ErrDatabaseOperation("marshal_payment", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.paymentTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(payment_id)"),
	}

	if _, err := s.client.PutItemWithContext(ctx, input); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return errors.ErrStatusConflict(p.PaymentID, "new")
		}
		return errors.ErrDatabaseOperation("create_payment", err)
	}
	return nil
}

// GetPayment retrieves a payment request by id
func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.PaymentRequest, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.paymentTable),
		Key: map[string]*dynamodb.AttributeValue{
			"payment_id": {S: aws.String(paymentID)},
		},
	}

	result, err := s.client.GetItemWithContext(ctx, input)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("get_payment", err)
	}
	if result.Item == nil {
		return nil, errors.ErrPaymentNotFound(paymentID)
	}

	var item paymentItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, errors.ErrDatabaseOperation("unmarshal_payment", err)
	}
	return fromItem(item)
}

// GetPaymentByTxHash looks up a payment already settled with the given
// transaction hash via the tx_hash global secondary index.
func (s *Store) GetPaymentByTxHash(ctx context.Context, txHash string) (*models.PaymentRequest, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.paymentTable),
		IndexName:              aws.String(txHashIndex),
		KeyConditionExpression: aws.String("tx_hash = :tx_hash"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":tx_hash": {S: aws.String(txHash)},
		},
		Limit: aws.Int64(1),
	}

	result, err := s.client.QueryWithContext(ctx, input)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("get_payment_by_tx_hash", err)
	}
	if len(result.Items) == 0 {
		return nil, errors.ErrPaymentNotFound(txHash)
	}

	var item paymentItem
	if err := dynamodbattribute.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, errors.ErrDatabaseOperation("unmarshal_payment", err)
	}
	return fromItem(item)
}

// TransitionStatus moves a payment from one status to another with an
// optimistic condition on the current status. Returns STATUS_CONFLICT
// when the payment is no longer in the expected status.
func (s *Store) TransitionStatus(ctx context.Context, paymentID string, from, to models.PaymentStatus) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.paymentTable),
		Key: map[string]*dynamodb.AttributeValue{
			"payment_id": {S: aws.String(paymentID)},
		},
		UpdateExpression:    aws.String("SET #status = :to, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(payment_id) AND #status = :from"),
		ExpressionAttributeNames: map[string]*string{
			"#status": aws.String("status"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":to":   {S: aws.String(string(to))},
			":from": {S: aws.String(string(from))},
			":now":  {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	if _, err := s.client.UpdateItemWithContext(ctx, input); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return errors.ErrStatusConflict(paymentID, string(from))
		}
		return errors.ErrDatabaseOperation("transition_status", err)
	}
	return nil
}

// SettlePayment records the settlement details while transitioning the
// payment status, under the same optimistic condition as TransitionStatus.
func (s *Store) SettlePayment(ctx context.Context, paymentID string, from, to models.PaymentStatus, txHash string, amount decimal.Decimal, verifiedAt time.Time) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.paymentTable),
		Key: map[string]*dynamodb.AttributeValue{
			"payment_id": {S: aws.String(paymentID)},
		},
		UpdateExpression:    aws.String("SET #status = :to, tx_hash = :tx_hash, amount_received = :amount, verified_at = :verified_at, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(payment_id) AND #status = :from"),
		ExpressionAttributeNames: map[string]*string{
			"#status": aws.String("status"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":to":          {S: aws.String(string(to))},
			":from":        {S: aws.String(string(from))},
			":tx_hash":     {S: aws.String(txHash)},
			":amount":      {S: aws.String(amount.String())},
			":verified_at": {S: aws.String(verifiedAt.UTC().Format(time.RFC3339))},
			":now":         {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	if _, err := s.client.UpdateItemWithContext(ctx, input); err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return errors.ErrStatusConflict(paymentID, string(from))
		}
		return errors.ErrDatabaseOperation("settle_payment", err)
	}
	return nil
}

// ListExpiredPending returns pending payments whose window closed before
// cutoff. RFC3339 strings in UTC compare lexicographically, so the
// filter is a plain string comparison.
func (s *Store) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*models.PaymentRequest, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.paymentTable),
		FilterExpression: aws.String("#status = :pending AND expires_at < :cutoff"),
		ExpressionAttributeNames: map[string]*string{
			"#status": aws.String("status"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pending": {S: aws.String(string(models.StatusPending))},
			":cutoff":  {S: aws.String(cutoff.UTC().Format(time.RFC3339))},
		},
	}

	var payments []*models.PaymentRequest
	err := s.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, raw := range page.Items {
			var item paymentItem
			if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			p, err := fromItem(item)
			if err != nil {
				continue
			}
			payments = append(payments, p)
		}
		return true
	})
	if err != nil {
		return nil, errors.ErrDatabaseOperation("list_expired_pending", err)
	}
	return payments, nil
}
