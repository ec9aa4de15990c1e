// Package progress tracks in-flight generation runs. Records are ephemeral:
// they live in Redis with a bounded TTL, so a crashed run can never block
// future runs for longer than the TTL window.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Status is the coarse phase of a generation run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusSaving     Status = "saving"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether the status denotes a run currently in flight.
// The control surface refuses to start a second run while one is active.
func (s Status) Active() bool {
	switch s {
	case StatusStarting, StatusAnalyzing, StatusGenerating, StatusSaving:
		return true
	default:
		return false
	}
}

// Record is the latest progress snapshot of a run, keyed by solution id.
type Record struct {
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// IdleRecord is returned when no record exists for a solution. Absence of a
// record is semantically equivalent to idle.
func IdleRecord() Record {
	return Record{Status: StatusIdle, Progress: 0, Message: "No generation in progress"}
}

// TTL bounds the lifetime of progress records and run locks. A stale entry
// from a crashed run expires on its own within this window.
const TTL = 600 * time.Second

// Store reads and writes progress records and mediates the right to run a
// generation for a given solution id.
type Store interface {
	// Get returns the current record and whether one exists.
	Get(ctx context.Context, solutionID uuid.UUID) (Record, bool, error)

	// Set writes the record, refreshing the TTL.
	Set(ctx context.Context, solutionID uuid.UUID, rec Record) error

	// Acquire atomically claims the right to run a generation for the
	// solution. Returns false if a run is already in flight. The claim
	// expires after TTL if never released.
	Acquire(ctx context.Context, solutionID uuid.UUID) (bool, error)

	// Release gives up a previously acquired claim.
	Release(ctx context.Context, solutionID uuid.UUID) error
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a progress store backed by the given Redis client.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.Named("progress"),
	}
}

func recordKey(solutionID uuid.UUID) string {
	return fmt.Sprintf("solution:progress:%s", solutionID)
}

func lockKey(solutionID uuid.UUID) string {
	return fmt.Sprintf("solution:generation_lock:%s", solutionID)
}

func (s *RedisStore) Get(ctx context.Context, solutionID uuid.UUID) (Record, bool, error) {
	raw, err := s.client.Get(ctx, recordKey(solutionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get progress record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// A corrupt record is treated as absent; it will expire on its own.
		s.logger.Warn("discarding malformed progress record",
			zap.String("solution_id", solutionID.String()),
			zap.Error(err))
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *RedisStore) Set(ctx context.Context, solutionID uuid.UUID, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(solutionID), raw, TTL).Err(); err != nil {
		return fmt.Errorf("set progress record: %w", err)
	}

	s.logger.Debug("progress updated",
		zap.String("solution_id", solutionID.String()),
		zap.String("status", string(rec.Status)),
		zap.Int("progress", rec.Progress))
	return nil
}

// Acquire uses SET NX so the claim is a single atomic operation rather than
// a read-then-write pair. The key carries its own TTL for self-healing.
func (s *RedisStore) Acquire(ctx context.Context, solutionID uuid.UUID) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(solutionID), time.Now().UTC().Format(time.RFC3339), TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire generation lock: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, solutionID uuid.UUID) error {
	if err := s.client.Del(ctx, lockKey(solutionID)).Err(); err != nil {
		return fmt.Errorf("release generation lock: %w", err)
	}
	return nil
}
