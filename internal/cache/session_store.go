package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/pkg/interfaces"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	summaryKeyPrefix = "optionscope:session:"
	recentTickersKey = "optionscope:recent_tickers"
)

var (
	_ interfaces.SessionStore = (*RedisSessionStore)(nil)
	_ interfaces.SessionStore = (*InMemorySessionStore)(nil)
)

// SessionStoreStats tracks store usage.
type SessionStoreStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

type statsCounter struct {
	mu    sync.Mutex
	stats SessionStoreStats
}

func (s *statsCounter) hit()  { s.mu.Lock(); s.stats.Hits++; s.mu.Unlock() }
func (s *statsCounter) miss() { s.mu.Lock(); s.stats.Misses++; s.mu.Unlock() }
func (s *statsCounter) set()  { s.mu.Lock(); s.stats.Sets++; s.mu.Unlock() }

func (s *statsCounter) snapshot() SessionStoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// RedisSessionStore keeps session summaries and recent tickers in Redis.
type RedisSessionStore struct {
	redis      redis.Cmdable
	ttl        time.Duration
	maxRecent  int
	logger     *logrus.Logger
	statistics statsCounter
}

// NewRedisSessionStore creates a Redis backed store. Summaries expire after
// ttl; at most maxRecent tickers are remembered.
func NewRedisSessionStore(client redis.Cmdable, ttl time.Duration, maxRecent int, logger *logrus.Logger) *RedisSessionStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxRecent <= 0 {
		maxRecent = 10
	}
	return &RedisSessionStore{
		redis:     client,
		ttl:       ttl,
		maxRecent: maxRecent,
		logger:    logger,
	}
}

// SaveSummary stores summary under its session id, refreshing the TTL.
func (s *RedisSessionStore) SaveSummary(ctx context.Context, summary models.SessionSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize session summary: %w", err)
	}
	if err := s.redis.Set(ctx, summaryKeyPrefix+summary.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session summary %s: %w", summary.ID, err)
	}
	s.statistics.set()
	return nil
}

// GetSummary returns interfaces.ErrSummaryNotFound when nothing is stored.
func (s *RedisSessionStore) GetSummary(ctx context.Context, id string) (*models.SessionSummary, error) {
	data, err := s.redis.Get(ctx, summaryKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		s.statistics.miss()
		return nil, interfaces.ErrSummaryNotFound
	}
	if err != nil {
		s.statistics.miss()
		return nil, fmt.Errorf("failed to read session summary %s: %w", id, err)
	}

	var summary models.SessionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		s.statistics.miss()
		s.logger.WithError(err).WithField("session_id", id).Warn("Discarding unreadable session summary")
		return nil, interfaces.ErrSummaryNotFound
	}
	s.statistics.hit()
	return &summary, nil
}

// DeleteSummary removes a summary. Deleting a missing summary is not an error.
func (s *RedisSessionStore) DeleteSummary(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, summaryKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session summary %s: %w", id, err)
	}
	return nil
}

// PushRecentTicker moves ticker to the front of the recent list.
func (s *RedisSessionStore) PushRecentTicker(ctx context.Context, ticker string) error {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, recentTickersKey, 0, ticker)
		pipe.LPush(ctx, recentTickersKey, ticker)
		pipe.LTrim(ctx, recentTickersKey, 0, int64(s.maxRecent-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record recent ticker %s: %w", ticker, err)
	}
	return nil
}

// RecentTickers returns up to limit tickers, most recent first.
func (s *RedisSessionStore) RecentTickers(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > s.maxRecent {
		limit = s.maxRecent
	}
	tickers, err := s.redis.LRange(ctx, recentTickersKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent tickers: %w", err)
	}
	return tickers, nil
}

// GetStats returns current store statistics.
func (s *RedisSessionStore) GetStats() SessionStoreStats {
	return s.statistics.snapshot()
}

type memorySummary struct {
	summary   models.SessionSummary
	expiresAt time.Time
}

// InMemorySessionStore is used when Redis is disabled.
type InMemorySessionStore struct {
	mu         sync.RWMutex
	summaries  map[string]memorySummary
	recent     []string
	ttl        time.Duration
	maxRecent  int
	now        func() time.Time
	statistics statsCounter
}

// NewInMemorySessionStore creates a process local store.
func NewInMemorySessionStore(ttl time.Duration, maxRecent int) *InMemorySessionStore {
	if maxRecent <= 0 {
		maxRecent = 10
	}
	return &InMemorySessionStore{
		summaries: make(map[string]memorySummary),
		ttl:       ttl,
		maxRecent: maxRecent,
		now:       time.Now,
	}
}

func (s *InMemorySessionStore) SaveSummary(_ context.Context, summary models.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memorySummary{summary: summary}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.summaries[summary.ID] = entry
	s.statistics.set()
	return nil
}

func (s *InMemorySessionStore) GetSummary(_ context.Context, id string) (*models.SessionSummary, error) {
	s.mu.RLock()
	entry, ok := s.summaries[id]
	s.mu.RUnlock()

	if !ok || (!entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)) {
		s.statistics.miss()
		return nil, interfaces.ErrSummaryNotFound
	}
	s.statistics.hit()
	summary := entry.summary
	return &summary, nil
}

func (s *InMemorySessionStore) DeleteSummary(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, id)
	return nil
}

func (s *InMemorySessionStore) PushRecentTicker(_ context.Context, ticker string) error {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = slices.DeleteFunc(s.recent, func(t string) bool { return t == ticker })
	s.recent = slices.Insert(s.recent, 0, ticker)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[:s.maxRecent]
	}
	return nil
}

func (s *InMemorySessionStore) RecentTickers(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	return slices.Clone(s.recent[:limit]), nil
}

// GetStats returns current store statistics.
func (s *InMemorySessionStore) GetStats() SessionStoreStats {
	return s.statistics.snapshot()
}
