package ledger

import (
	"context"
	"sync"
	"time"
)

// Ledger is the security ledger backing replay protection, the sender
// blacklist, and per-user rate accounting. Implementations must make
// MarkVerified atomic: exactly one caller wins for a given hash.
type Ledger interface {
	// SeenVerified reports whether the transaction hash was already
	// consumed by a successful verification.
	SeenVerified(ctx context.Context, txHash string) (bool, error)

	// MarkVerified records the hash as consumed. Returns true when this
	// call inserted it, false when another verification got there first.
	MarkVerified(ctx context.Context, txHash string) (bool, error)

	// IsSuspicious reports whether the sender address is blacklisted
	IsSuspicious(ctx context.Context, address string) (bool, error)

	// AddSuspiciousAddress blacklists a sender address
	AddSuspiciousAddress(ctx context.Context, address string) error

	// RecordAttempt appends a verification attempt for the user and
	// returns the attempt count within the trailing window, including
	// this one.
	RecordAttempt(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error)

	// Stats returns coarse counters for operational visibility
	Stats(ctx context.Context) (Stats, error)
}

// Stats holds ledger counters
type Stats struct {
	VerifiedCount   int64 `json:"verified_count"`
	SuspiciousCount int64 `json:"suspicious_count"`
	TrackedUsers    int64 `json:"tracked_users"`
}

// Memory is a process-local ledger. Atomicity holds within one process
// only; deployments running concurrent verifier instances use the Redis
// ledger instead.
type Memory struct {
	mu         sync.Mutex
	verified   map[string]struct{}
	suspicious map[string]struct{}
	attempts   map[string][]time.Time
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{
		verified:   make(map[string]struct{}),
		suspicious: make(map[string]struct{}),
		attempts:   make(map[string][]time.Time),
	}
}

func (m *Memory) SeenVerified(_ context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.verified[txHash]
	return ok, nil
}

func (m *Memory) MarkVerified(_ context.Context, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verified[txHash]; ok {
		return false, nil
	}
	m.verified[txHash] = struct{}{}
	return true, nil
}

func (m *Memory) IsSuspicious(_ context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.suspicious[address]
	return ok, nil
}

func (m *Memory) AddSuspiciousAddress(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspicious[address] = struct{}{}
	return nil
}

func (m *Memory) RecordAttempt(_ context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := at.Add(-window)
	kept := m.attempts[userID][:0]
	for _, t := range m.attempts[userID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	m.attempts[userID] = kept
	return len(kept), nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		VerifiedCount:   int64(len(m.verified)),
		SuspiciousCount: int64(len(m.suspicious)),
		TrackedUsers:    int64(len(m.attempts)),
	}, nil
}
