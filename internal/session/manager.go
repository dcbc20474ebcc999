// Package session keeps per-conversation state in Redis: identity, turn
// history, and the clarification round counter. The counter is a separate
// Redis key bumped with INCR so it is monotonic even under concurrent turns;
// nothing in the pipeline can forge it backwards.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/metrics"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Turn is one completed exchange kept in session history.
type Turn struct {
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	Intent      string    `json:"intent"`
	TraceID     string    `json:"trace_id"`
	ClarifyUsed bool      `json:"clarify_used"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the per-conversation record.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RiskAppetite string    `json:"risk_appetite,omitempty"`
	PendingQ     string    `json:"pending_question,omitempty"`
	History      []Turn    `json:"history"`
}

func (s *Session) IsExpired() bool { return time.Now().After(s.ExpiresAt) }

const maxHistory = 50

// Manager stores sessions in Redis with a small local read cache.
type Manager struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	mu       sync.RWMutex
	cache    map[string]*Session
	maxCache int
}

// NewManager connects to Redis and verifies the connection.
func NewManager(redisAddr string, ttl time.Duration, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Manager{
		client:   client,
		logger:   logger,
		ttl:      ttl,
		cache:    make(map[string]*Session),
		maxCache: 10000,
	}, nil
}

// GetOrCreate returns the session when it exists and belongs to userID,
// otherwise creates a fresh one. A session ID owned by a different user is
// never reused; the caller gets a new session instead.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID, userID string) (*Session, error) {
	if sessionID != "" {
		existing, err := m.Get(ctx, sessionID)
		switch {
		case err == nil && existing.UserID == userID:
			return existing, nil
		case err == nil:
			m.logger.Warn("session id owned by another user, issuing new session",
				zap.String("requested_session_id", sessionID),
				zap.String("requesting_user", userID))
		case !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired):
			return nil, err
		}
	}

	s := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		ExpiresAt: time.Now().Add(m.ttl),
		History:   []Turn{},
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	metrics.SessionsCreated.Inc()
	m.logger.Info("created session",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID))
	return s, nil
}

// Get loads a session, local cache first.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.cache[sessionID]
	m.mu.RUnlock()
	if ok {
		metrics.SessionCacheHits.Inc()
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrExpired
		}
		return cached, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if s.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrExpired
	}

	m.mu.Lock()
	m.cache[sessionID] = &s
	m.evictIfFull()
	m.mu.Unlock()
	return &s, nil
}

// Save persists the session and refreshes the local cache.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	s.UpdatedAt = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	if err := m.client.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	m.mu.Lock()
	m.cache[s.ID] = s
	m.mu.Unlock()
	return nil
}

// Delete removes a session everywhere.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, sessionKey(sessionID), clarifyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.mu.Lock()
	delete(m.cache, sessionID)
	m.mu.Unlock()
	return nil
}

// ClarifyRound returns how many clarifying questions were already asked in
// this conversation.
func (m *Manager) ClarifyRound(ctx context.Context, sessionID string) (int, error) {
	n, err := m.client.Get(ctx, clarifyKey(sessionID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get clarify round: %w", err)
	}
	return n, nil
}

// BumpClarifyRound atomically increments the round counter and returns the
// new value. The key shares the session TTL so abandoned conversations decay.
func (m *Manager) BumpClarifyRound(ctx context.Context, sessionID string) (int, error) {
	n, err := m.client.Incr(ctx, clarifyKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("bump clarify round: %w", err)
	}
	_ = m.client.Expire(ctx, clarifyKey(sessionID), m.ttl).Err()
	return int(n), nil
}

// AppendTurn records a completed exchange, trimming old history.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.History = append(s.History, turn)
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
	return m.Save(ctx, s)
}

// SetRiskAppetite stores the declared risk appetite for later turns.
func (m *Manager) SetRiskAppetite(ctx context.Context, sessionID, appetite string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.RiskAppetite = appetite
	return m.Save(ctx, s)
}

// Close releases the Redis connection.
func (m *Manager) Close() error { return m.client.Close() }

// Ping reports Redis health for the readiness endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func sessionKey(id string) string { return "advisor:session:" + id }
func clarifyKey(id string) string { return "advisor:clarify:" + id }

// evictIfFull drops half the cache when it outgrows maxCache. Caller holds
// m.mu. Eviction order is map order; correctness comes from Redis, the cache
// is only a read accelerator.
func (m *Manager) evictIfFull() {
	if len(m.cache) <= m.maxCache {
		return
	}
	toRemove := m.maxCache / 2
	for id := range m.cache {
		if toRemove == 0 {
			break
		}
		delete(m.cache, id)
		toRemove--
	}
}
