package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis, suitable for deployments where a
// transport layer polls history from a different process than the one
// running the agents. Sequences come from INCR, so they stay a strict
// per-session total order across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
	cap    int
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration for the channel store.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "agentcore:channel:").
	Prefix string
	// HistoryCap bounds each per-channel list (default: DefaultHistoryCap).
	HistoryCap int
	// TTL is the per-session key expiry (0 = never expire; the janitor
	// sweep still applies).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a Redis-backed channel store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client, cfg), nil
}

// NewRedisStoreFromClient creates a store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	return newRedisStore(client, cfg)
}

func newRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentcore:channel:"
	}
	historyCap := cfg.HistoryCap
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		cap:    historyCap,
		ttl:    cfg.TTL,
	}
}

// Key helpers
func (s *RedisStore) seqKey(sessionID string) string {
	return s.prefix + "seq:" + sessionID
}

func (s *RedisStore) msgsKey(sessionID string, c Channel) string {
	return s.prefix + "msgs:" + sessionID + ":" + string(c)
}

func (s *RedisStore) visKey(sessionID string) string {
	return s.prefix + "vis:" + sessionID
}

func (s *RedisStore) activityKey() string {
	return s.prefix + "active"
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("redis channel store is closed")
	}
	return nil
}

// Append stores the message and assigns its sequence via INCR.
func (s *RedisStore) Append(ctx context.Context, msg *Message) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	sessionID := msg.Metadata.SessionID
	seq, err := s.client.Incr(ctx, s.seqKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("assign sequence: %w", err)
	}
	msg.Metadata.Sequence = uint64(seq)

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}

	key := s.msgsKey(sessionID, msg.Channel)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.cap), -1)
	pipe.ZAdd(ctx, s.activityKey(), redis.Z{
		Score:  float64(time.Now().UTC().Unix()),
		Member: sessionID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, s.seqKey(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}

	return uint64(seq), nil
}

// History returns stored messages matching the query in sequence order.
func (s *RedisStore) History(ctx context.Context, sessionID string, q HistoryQuery) ([]*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	channels := q.Channels
	if len(channels) == 0 {
		channels = AllChannels
	}

	var out []*Message
	for _, c := range channels {
		data, err := s.client.LRange(ctx, s.msgsKey(sessionID, c), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("load %s history: %w", c, err)
		}
		for _, d := range data {
			var m Message
			if err := json.Unmarshal([]byte(d), &m); err != nil {
				return nil, fmt.Errorf("unmarshal message: %w", err)
			}
			if m.Metadata.Sequence > q.SinceSequence {
				out = append(out, &m)
			}
		}
	}
	sortBySequence(out)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

// SetVisibility stores the session's display preferences.
func (s *RedisStore) SetVisibility(ctx context.Context, sessionID string, vis Visibility) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(vis)
	if err != nil {
		return fmt.Errorf("marshal visibility: %w", err)
	}

	pipe := s.client.Pipeline()
	if s.ttl > 0 {
		pipe.Set(ctx, s.visKey(sessionID), data, s.ttl)
	} else {
		pipe.Set(ctx, s.visKey(sessionID), data, 0)
	}
	pipe.ZAdd(ctx, s.activityKey(), redis.Z{
		Score:  float64(time.Now().UTC().Unix()),
		Member: sessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save visibility: %w", err)
	}
	return nil
}

// GetVisibility returns the session's preferences or the defaults.
func (s *RedisStore) GetVisibility(ctx context.Context, sessionID string) (Visibility, error) {
	if err := s.checkOpen(); err != nil {
		return Visibility{}, err
	}

	data, err := s.client.Get(ctx, s.visKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DefaultVisibility(), nil
		}
		return Visibility{}, fmt.Errorf("get visibility: %w", err)
	}

	var vis Visibility
	if err := json.Unmarshal(data, &vis); err != nil {
		return Visibility{}, fmt.Errorf("unmarshal visibility: %w", err)
	}
	return vis, nil
}

// ClearSession removes all stored messages and preferences for a session.
func (s *RedisStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, c := range AllChannels {
		pipe.Del(ctx, s.msgsKey(sessionID, c))
	}
	pipe.Del(ctx, s.seqKey(sessionID))
	pipe.Del(ctx, s.visKey(sessionID))
	pipe.ZRem(ctx, s.activityKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CleanupOlderThan removes sessions idle for longer than age.
func (s *RedisStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-age).Unix()
	ids, err := s.client.ZRangeByScore(ctx, s.activityKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	for _, id := range ids {
		if err := s.ClearSession(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}
