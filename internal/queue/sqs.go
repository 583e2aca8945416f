package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
)

// Client wraps SQS access for the verification and notification queues
type Client struct {
	client               *sqs.SQS
	verificationQueueURL string
	notificationQueueURL string
}

// NewClient creates a new SQS client
func NewClient(cfg *config.Config) (*Client, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.AWS.Region),
	}
	if cfg.Queue.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Queue.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.ErrQueueOperation("create_session", err)
	}

	return &Client{
		client:               sqs.New(sess),
		verificationQueueURL: cfg.Queue.VerificationQueueURL,
		notificationQueueURL: cfg.Queue.NotificationQueueURL,
	}, nil
}

// SendVerificationJob enqueues a verification attempt. delay postpones
// delivery for retryable outcomes; SQS caps it at 15 minutes.
func (c *Client) SendVerificationJob(ctx context.Context, job models.VerificationJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return errors.ErrQueueOperation("marshal_job", err)
	}

	delaySeconds := int64(delay / time.Second)
	if delaySeconds > 900 {
		delaySeconds = 900
	}
	if delaySeconds < 0 {
		delaySeconds = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(c.verificationQueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: aws.Int64(delaySeconds),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"payment_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(job.PaymentID),
			},
		},
	}

	result, err := c.client.SendMessageWithContext(ctx, input)
	if err != nil {
		return errors.ErrQueueOperation("send_verification_job", err)
	}

	logger.Debug("Verification job enqueued", logger.Fields{
		"payment_id": job.PaymentID,
		"message_id": aws.StringValue(result.MessageId),
		"delay_s":    delaySeconds,
	})
	return nil
}

// SendNotification publishes a settlement or lifecycle event for the
// downstream activation and admin workflows.
func (c *Client) SendNotification(ctx context.Context, event models.NotificationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.ErrQueueOperation("marshal_notification", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.notificationQueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.EventType),
			},
		},
	}

	result, err := c.client.SendMessageWithContext(ctx, input)
	if err != nil {
		return errors.ErrQueueOperation("send_notification", err)
	}

	logger.Debug("Notification published", logger.Fields{
		"event_type": event.EventType,
		"payment_id": event.PaymentID,
		"message_id": aws.StringValue(result.MessageId),
	})
	return nil
}
