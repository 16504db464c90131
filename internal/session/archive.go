package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oakmere/prospector/internal/metrics"
	"github.com/oakmere/prospector/internal/models"
)

// RedisArchive snapshots session state into Redis so finished sessions can
// be inspected after the process exits. The in-memory session stays the
// source of truth; the archive is write-only from the manager's view.
type RedisArchive struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// RedisArchiveConfig configures the archive sink.
type RedisArchiveConfig struct {
	Addr string
	TTL  time.Duration
}

// NewRedisArchive connects to Redis and verifies the connection.
func NewRedisArchive(cfg RedisArchiveConfig, logger *zap.Logger) (*RedisArchive, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisArchive{client: client, ttl: ttl, logger: logger}, nil
}

type snapshot struct {
	SessionID  string                     `json:"session_id"`
	ArchivedAt time.Time                  `json:"archived_at"`
	Entries    []models.QueryHistoryEntry `json:"entries"`
	Statistics models.SessionStatistics   `json:"statistics"`
}

// Snapshot serializes the session and writes it under
// "prospector:session:<id>" with the configured TTL.
func (a *RedisArchive) Snapshot(ctx context.Context, sessionID string, entries []models.QueryHistoryEntry, stats models.SessionStatistics) error {
	payload, err := json.Marshal(snapshot{
		SessionID:  sessionID,
		ArchivedAt: time.Now(),
		Entries:    entries,
		Statistics: stats,
	})
	if err != nil {
		metrics.ArchiveWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	if err := a.client.Set(ctx, a.key(sessionID), payload, a.ttl).Err(); err != nil {
		metrics.ArchiveWrites.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("write session snapshot: %w", err)
	}

	metrics.ArchiveWrites.WithLabelValues("redis", "ok").Inc()
	a.logger.Debug("Session snapshot archived",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Load reads a previously archived snapshot, for inspection tooling.
func (a *RedisArchive) Load(ctx context.Context, sessionID string) ([]models.QueryHistoryEntry, models.SessionStatistics, error) {
	raw, err := a.client.Get(ctx, a.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, models.SessionStatistics{}, fmt.Errorf("session %s not archived", sessionID)
	}
	if err != nil {
		return nil, models.SessionStatistics{}, fmt.Errorf("read session snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, models.SessionStatistics{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	return snap.Entries, snap.Statistics, nil
}

// Close releases the Redis connection.
func (a *RedisArchive) Close() error {
	return a.client.Close()
}

func (a *RedisArchive) key(sessionID string) string {
	return "prospector:session:" + sessionID
}
