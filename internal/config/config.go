package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	AWS      AWSConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Tron     TronConfig
	Policy   Policy
	Logging  LoggingConfig
}

// AWSConfig holds AWS-specific configuration
type AWSConfig struct {
	Region string
}

// DatabaseConfig holds DynamoDB configuration
type DatabaseConfig struct {
	PaymentTable string
	AuditTable   string
	Endpoint     string // For local testing
}

// QueueConfig holds SQS configuration
type QueueConfig struct {
	VerificationQueueURL string
	NotificationQueueURL string
	Endpoint             string // For local testing
}

// RedisConfig holds the optional Redis-backed security ledger settings.
// An empty Addr selects the in-memory ledger.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TronConfig holds blockchain gateway configuration
type TronConfig struct {
	TronGridBaseURL  string
	TronScanBaseURLs []string
	TokenContract    string
	WalletAddress    string
	RequestTimeout   time.Duration
}

// Policy holds the verification policy parameters. The weights and windows
// were chosen empirically in production; they are configuration, not code,
// so they can be tuned without a deploy.
type Policy struct {
	MinConfirmations     int64
	FraudGate            float64
	BlacklistWeight      float64
	UnderpaymentWeight   float64
	OverpaymentWeight    float64
	EarlyTimestampWeight float64
	RateLimitWeight      float64
	ConfirmationWeight   float64
	UnderpaymentRatio    float64
	OverpaymentRatio     float64
	AmountTolerance      float64
	ScanTolerance        float64
	EarlyWindow          time.Duration
	RateWindow           time.Duration
	RateLimit            int
	LatePaymentGrace     time.Duration
	ScanLookback         time.Duration
	ScanWindowHours      int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AWS: AWSConfig{
			Region: getEnv("AWS_REGION", "us-east-1"),
		},
		Database: DatabaseConfig{
			PaymentTable: getEnv("PAYMENT_TABLE", "crypto_payments"),
			AuditTable:   getEnv("AUDIT_TABLE", "verification_audit"),
			Endpoint:     getEnv("DYNAMODB_ENDPOINT", ""), // Empty for AWS, set for local
		},
		Queue: QueueConfig{
			VerificationQueueURL: getEnv("VERIFICATION_QUEUE_URL", ""),
			NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
			Endpoint:             getEnv("SQS_ENDPOINT", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Tron: TronConfig{
			TronGridBaseURL:  getEnv("TRONGRID_BASE_URL", "https://api.trongrid.io"),
			TronScanBaseURLs: splitList(getEnv("TRONSCAN_BASE_URLS", "https://apilist.tronscanapi.com,https://apilist.tronscan.org")),
			TokenContract:    getEnv("USDT_CONTRACT_ADDRESS", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"),
			WalletAddress:    getEnv("MERCHANT_WALLET_ADDRESS", ""),
			RequestTimeout:   getEnvDuration("GATEWAY_TIMEOUT", 12*time.Second),
		},
		Policy:  LoadPolicy(),
		Logging: LoggingConfig{Level: getEnv("LOG_LEVEL", "INFO")},
	}

	// Validate required fields
	if cfg.Tron.WalletAddress == "" {
		return nil, fmt.Errorf("MERCHANT_WALLET_ADDRESS is required")
	}

	if cfg.Database.PaymentTable == "" {
		return nil, fmt.Errorf("PAYMENT_TABLE is required")
	}

	return cfg, nil
}

// LoadPolicy loads the verification policy from environment variables with
// the production defaults.
func LoadPolicy() Policy {
	return Policy{
		MinConfirmations:     int64(getEnvInt("MIN_CONFIRMATIONS", 20)),
		FraudGate:            getEnvFloat("FRAUD_GATE", 0.7),
		BlacklistWeight:      getEnvFloat("FRAUD_WEIGHT_BLACKLIST", 0.8),
		UnderpaymentWeight:   getEnvFloat("FRAUD_WEIGHT_UNDERPAYMENT", 0.6),
		OverpaymentWeight:    getEnvFloat("FRAUD_WEIGHT_OVERPAYMENT", 0.2),
		EarlyTimestampWeight: getEnvFloat("FRAUD_WEIGHT_EARLY_TIMESTAMP", 0.4),
		RateLimitWeight:      getEnvFloat("FRAUD_WEIGHT_RATE_LIMIT", 0.3),
		ConfirmationWeight:   getEnvFloat("FRAUD_WEIGHT_CONFIRMATIONS", 0.1),
		UnderpaymentRatio:    getEnvFloat("UNDERPAYMENT_RATIO", 0.95),
		OverpaymentRatio:     getEnvFloat("OVERPAYMENT_RATIO", 1.10),
		AmountTolerance:      getEnvFloat("AMOUNT_TOLERANCE", 0.01),
		ScanTolerance:        getEnvFloat("SCAN_TOLERANCE", 0.05),
		EarlyWindow:          getEnvDuration("EARLY_TIMESTAMP_WINDOW", 5*time.Minute),
		RateWindow:           getEnvDuration("RATE_WINDOW", time.Hour),
		RateLimit:            getEnvInt("RATE_LIMIT", 5),
		LatePaymentGrace:     getEnvDuration("LATE_PAYMENT_GRACE", 12*time.Hour),
		ScanLookback:         getEnvDuration("SCAN_LOOKBACK", 30*time.Minute),
		ScanWindowHours:      getEnvInt("SCAN_WINDOW_HOURS", 2),
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
