package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/yourusername/usdt-verification/internal/config"
	"github.com/yourusername/usdt-verification/internal/database"
	"github.com/yourusername/usdt-verification/internal/fraud"
	"github.com/yourusername/usdt-verification/internal/ledger"
	"github.com/yourusername/usdt-verification/internal/logger"
	"github.com/yourusername/usdt-verification/internal/queue"
	"github.com/yourusername/usdt-verification/internal/tron"
	"github.com/yourusername/usdt-verification/internal/verify"
)

// Handler manages the scheduled sweep Lambda dependencies
type Handler struct {
	sweeper *verify.Sweeper
}

// NewHandler wires the sweep job from configuration
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
	sweeper := verify.NewSweeper(store, scanner, q, cfg.Policy)

	return &Handler{sweeper: sweeper}, nil
}

// HandleRequest runs one sweep over expired pending payments. Triggered
// by a CloudWatch schedule; the event payload is ignored.
func (h *Handler) HandleRequest(ctx context.Context) (verify.SweepReport, error) {
	return h.sweeper.Sweep(ctx)
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
