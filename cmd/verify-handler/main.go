package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/database"
	"github.com/yourusername/usdt-verification/internal/errors"
	"github.com/yourusername/usdt-verification/internal/fraud"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/models"
	"github.com/yourusername/usdt-verification/internal/queue"
	"github.com/yourusername/usdt-verification/internal/tron"
	"github.com/yourusername/usdt-verification/internal/validator"
	"github.com/yourusername/usdt-verification/internal/verify"
)

// retryDelay is the SQS redelivery delay for retryable outcomes
const retryDelay = 5 * time.Minute

// Handler manages the verification Lambda dependencies
type Handler struct {
	store   *database.Store
	queue   *queue.Client
	engine  *verify.Engine
	scanner *verify.Scanner
	cfg     *config.Config
}

// NewHandler wires the verification pipeline from configuration
func NewHandler(ctx context.Context, cfg *config.Config) (*Handler, error) {
	store, err := database.NewStore(cfg)
	if err != nil {
		return nil, err
	}

	q, err := queue.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.GetTronGridAPIKey(ctx, cfg.AWS.Region)
	if err != nil {
		logger.Warn("TronGrid API key unavailable, requests go unkeyed", logger.Fields{
			"error": err.Error(),
		})
	}

	gateways := []tron.Gateway{
		tron.NewTronGrid(cfg.Tron.TronGridBaseURL, apiKey, cfg.Tron.RequestTimeout),
	}
	for _, baseURL := range cfg.Tron.TronScanBaseURLs {
		gateways = append(gateways, tron.NewTronScan(baseURL, cfg.Tron.RequestTimeout))
	}
	pool := tron.NewPool(gateways...)

	var l ledger.Ledger
	if cfg.Redis.Addr != "" {
		r := ledger.NewRedis(cfg.Redis)
		if err := r.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable at startup", logger.Fields{"error": err.Error()})
		}
		l = r
	} else {
		logger.Warn("REDIS_ADDR not set, using process-local security ledger")
		l = ledger.NewMemory()
	}

	fetcher := tron.NewFetcher(pool, cfg.Tron.TokenContract)
	scorer := fraud.NewScorer(cfg.Policy, l)
	engine := verify.NewEngine(fetcher, scorer, l, store, q, cfg.Policy)
	scanner := verify.NewScanner(pool, engine)

	return &Handler{
		store:   store,
		queue:   q,
		engine:  engine,
		scanner: scanner,
		cfg:     cfg,
	}, nil
}

// HandleRequest processes SQS messages containing verification jobs
func (h *Handler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	logger.Info("Received SQS event", logger.Fields{
		"record_count": len(sqsEvent.Records),
	})

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			logger.Error("Failed to process record", logger.Fields{
				"error":      err.Error(),
				"message_id": record.MessageId,
			})
			return err
		}
	}

	return nil
}

// processRecord runs one verification job. Retryable outcomes are
// re-enqueued with a delivery delay rather than failing the batch, so a
// pending transaction does not block the queue.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var job models.VerificationJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		logger.Error("Failed to unmarshal verification job", logger.Fields{
			"error": err.Error(),
		})
		// Malformed messages would fail forever; drop them.
		return nil
	}

	req, err := h.store.GetPayment(ctx, job.PaymentID)
	if err != nil {
		if errors.IsCode(err, errors.CodePaymentNotFound) {
			logger.Warn("Verification job references unknown payment", logger.Fields{
				"payment_id": job.PaymentID,
			})
			return nil
		}
		return err
	}

	if req.Status != models.StatusPending {
		logger.Info("Payment no longer pending, skipping", logger.Fields{
			"payment_id": req.PaymentID,
			"status":     string(req.Status),
		})
		return nil
	}

	if err := validator.ValidatePaymentRequest(req); err != nil {
		logger.Error("Stored payment failed validation, skipping", logger.Fields{
			"payment_id": req.PaymentID,
			"error":      err.Error(),
		})
		return nil
	}

	var outcomes []models.VerificationOutcome
	if job.TxHash != "" {
		if err := validator.ValidateTxHash(job.TxHash); err != nil {
			logger.Warn("Verification job carries malformed tx hash", logger.Fields{
				"payment_id": job.PaymentID,
			})
			return nil
		}
		// Cheap duplicate pre-check against settled rows; the ledger
		// insert at settle time remains the authoritative guard.
		if existing, err := h.store.GetPaymentByTxHash(ctx, job.TxHash); err == nil && existing.PaymentID != req.PaymentID {
			logger.Warn("Transaction hash already settled another payment", logger.Fields{
				"payment_id": req.PaymentID,
				"settled_by": existing.PaymentID,
			})
			return nil
		}
		outcomes = []models.VerificationOutcome{h.engine.VerifyByHash(ctx, req, job.TxHash)}
	} else {
		outcomes = h.scanner.VerifyByScan(ctx, req, h.cfg.Policy.ScanWindowHours)
	}

	for _, outcome := range outcomes {
		if outcome.Retryable() {
			if err := h.queue.SendVerificationJob(ctx, job, retryDelay); err != nil {
				return err
			}
			break
		}
	}

	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", logger.Fields{"error": err.Error()})
		panic(err)
	}

	log := logger.NewFromString(cfg.Logging.Level)
	logger.SetDefault(log)

	handler, err := NewHandler(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to create handler", logger.Fields{"error": err.Error()})
		panic(err)
	}

	lambda.Start(handler.HandleRequest)
}
