// Package cache stores export payloads in Redis under date-stamped
// versions and provides the distributed lock guarding export runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abdullah0297445/clickup-exporter/internal/logging"
)

// Status classifies a stored export envelope.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusError      Status = "error"
	StatusSuccess    Status = "success"
)

// Envelope is the cached record for one export version.
type Envelope struct {
	Status     Status          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

// VersionFor formats the export version for a point in time. Versions
// are UTC date stamps, so one export version exists per day and
// lexical order matches chronology.
func VersionFor(t time.Time) string {
	return t.UTC().Format("20060102")
}

// Store wraps a Redis client with the exporter's key scheme.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewStore creates a store over an established Redis client.
func NewStore(rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{
		rdb:    rdb,
		logger: logging.Component(logger, "cache"),
	}
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func exportKey(teamID, version string) string {
	return fmt.Sprintf("export:%s:%s", teamID, version)
}

func lockKey(teamID string) string {
	return "lock:" + teamID
}

// Set stores an envelope for the given team and version. Entries
// carry no Redis TTL; pruning is the only expiry.
func (s *Store) Set(ctx context.Context, teamID, version string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: marshal envelope: %w", err)
	}
	if err := s.rdb.Set(ctx, exportKey(teamID, version), payload, 0).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", exportKey(teamID, version), err)
	}
	return nil
}

// Get returns the envelope for a team and version, or nil when none
// is stored.
func (s *Store) Get(ctx context.Context, teamID, version string) (*Envelope, error) {
	raw, err := s.rdb.Get(ctx, exportKey(teamID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", exportKey(teamID, version), err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", exportKey(teamID, version), err)
	}
	return &env, nil
}

// Delete removes one stored version.
func (s *Store) Delete(ctx context.Context, teamID, version string) error {
	return s.rdb.Del(ctx, exportKey(teamID, version)).Err()
}

// Versions lists stored versions for a team in ascending order.
func (s *Store) Versions(ctx context.Context, teamID string) ([]string, error) {
	prefix := exportKey(teamID, "")
	var versions []string

	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		versions = append(versions, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan versions: %w", err)
	}

	sort.Strings(versions)
	return versions, nil
}

// Latest returns the newest stored version, or "" when none exist.
func (s *Store) Latest(ctx context.Context, teamID string) (string, error) {
	versions, err := s.Versions(ctx, teamID)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[len(versions)-1], nil
}

// Prune deletes all but the newest keepLast versions and reports how
// many were removed.
func (s *Store) Prune(ctx context.Context, teamID string, keepLast int) (int, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	versions, err := s.Versions(ctx, teamID)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keepLast {
		return 0, nil
	}

	expired := versions[:len(versions)-keepLast]
	for _, version := range expired {
		if err := s.Delete(ctx, teamID, version); err != nil {
			return 0, fmt.Errorf("cache: prune %s: %w", version, err)
		}
	}
	s.logger.Info("pruned export versions",
		slog.String("team_id", teamID),
		slog.Int("deleted", len(expired)),
		slog.Int("kept", keepLast))
	return len(expired), nil
}

// AcquireLock takes the per-team export lock. It reports false when
// another run holds it. The TTL bounds how long a crashed run can
// block the next one.
func (s *Store) AcquireLock(ctx context.Context, teamID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(teamID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock drops the per-team export lock.
func (s *Store) ReleaseLock(ctx context.Context, teamID string) error {
	return s.rdb.Del(ctx, lockKey(teamID)).Err()
}
