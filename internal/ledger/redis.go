package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/usdt-verification/internal/config"
	apperrors "github.com/yourusername/usdt-verification/internal/errors"
)

const (
	verifiedKeyPrefix = "ledger:verified:"
	suspiciousSetKey  = "ledger:suspicious"
	attemptsKeyPrefix = "ledger:attempts:"
	trackedUsersKey   = "ledger:tracked_users"

	// Consumed hashes are kept for 90 days. A replay of a transaction
	// older than that would fail the confirmation-freshness checks long
	// before reaching the ledger.
	verifiedTTL = 90 * 24 * time.Hour
)

// Redis is a ledger shared across verifier instances. MarkVerified uses
// SETNX so concurrent verifications of the same hash resolve to a single
// winner regardless of which instance they run on.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed ledger
func NewRedis(cfg config.RedisConfig) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Ping verifies connectivity at startup
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.ErrLedgerOperation("ping", err)
	}
	return nil
}

func (r *Redis) SeenVerified(ctx context.Context, txHash string) (bool, error) {
	n, err := r.client.Exists(ctx, verifiedKeyPrefix+txHash).Result()
	if err != nil {
		return false, apperrors.ErrLedgerOperation("seen_verified", err)
	}
	return n > 0, nil
}

func (r *Redis) MarkVerified(ctx context.Context, txHash string) (bool, error) {
	inserted, err := r.client.SetNX(ctx, verifiedKeyPrefix+txHash, time.Now().UTC().Format(time.RFC3339), verifiedTTL).Result()
	if err != nil {
		return false, apperrors.ErrLedgerOperation("mark_verified", err)
	}
	return inserted, nil
}

func (r *Redis) IsSuspicious(ctx context.Context, address string) (bool, error) {
	member, err := r.client.SIsMember(ctx, suspiciousSetKey, address).Result()
	if err != nil {
		return false, apperrors.ErrLedgerOperation("is_suspicious", err)
	}
	return member, nil
}

func (r *Redis) AddSuspiciousAddress(ctx context.Context, address string) error {
	if err := r.client.SAdd(ctx, suspiciousSetKey, address).Err(); err != nil {
		return apperrors.ErrLedgerOperation("add_suspicious", err)
	}
	return nil
}

// RecordAttempt keeps attempts in a sorted set scored by unix
// milliseconds, trimming entries older than the window before counting.
func (r *Redis) RecordAttempt(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	key := attemptsKeyPrefix + userID
	cutoff := at.Add(-window).UnixMilli()
	member := fmt.Sprintf("%d-%s", at.UnixNano(), userID)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member})
	pipe.Expire(ctx, key, window)
	pipe.SAdd(ctx, trackedUsersKey, userID)
	count := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperrors.ErrLedgerOperation("record_attempt", err)
	}
	return int(count.Val()), nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	suspicious, err := r.client.SCard(ctx, suspiciousSetKey).Result()
	if err != nil {
		return Stats{}, apperrors.ErrLedgerOperation("stats", err)
	}
	tracked, err := r.client.SCard(ctx, trackedUsersKey).Result()
	if err != nil {
		return Stats{}, apperrors.ErrLedgerOperation("stats", err)
	}

	// Counting verified keys needs a SCAN; cheap enough for an admin
	// stats call but not for hot paths.
	var verified int64
	iter := r.client.Scan(ctx, 0, verifiedKeyPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		verified++
	}
	if err := iter.Err(); err != nil {
		return Stats{}, apperrors.ErrLedgerOperation("stats", err)
	}

	return Stats{
		VerifiedCount:   verified,
		SuspiciousCount: suspicious,
		TrackedUsers:    tracked,
	}, nil
}
