package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/observability"
	"github.com/wobblecap/wobblecap/pkg/retry"
)

const (
	backendRedis = "redis"

	// DefaultRedisPrefix namespaces challenge keys.
	DefaultRedisPrefix = "wobblecap:challenge:"

	// DefaultConnectDelay is the first backoff step of DialRedis.
	DefaultConnectDelay = 250 * time.Millisecond
)

// RedisConfig holds connection settings for [DialRedis].
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	// ConnectAttempts bounds the initial PING attempts. Zero means one.
	ConnectAttempts int
	// ConnectDelay is the wait before the second attempt; it doubles after
	// each failure. Zero means DefaultConnectDelay.
	ConnectDelay time.Duration
}

// RedisStore keeps challenges in Redis. Keys carry the challenge TTL, so
// Redis evicts expired challenges itself and Cleanup is a no-op.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to Redis and verifies the connection with a PING,
// retrying with backoff up to cfg.ConnectAttempts times.
func DialRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "redis address is required")
	}
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = DefaultConnectDelay
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	err := retry.Do(ctx, cfg.ConnectAttempts, cfg.ConnectDelay, func(ctx context.Context) error {
		return retry.Transient(client.Ping(ctx).Err())
	})
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.ErrCodeResourceUnavailable, err, "connect to redis at %s", cfg.Addr)
	}
	return NewRedisStore(client, cfg.Prefix), nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Challenge, error) {
	return s.fetch(ctx, id, s.client.Get)
}

func (s *RedisStore) Take(ctx context.Context, id string) (*Challenge, error) {
	return s.fetch(ctx, id, s.client.GetDel)
}

func (s *RedisStore) fetch(ctx context.Context, id string, cmd func(context.Context, string) *redis.StringCmd) (*Challenge, error) {
	if !ValidID(id) {
		observability.Store().OnChallengeMiss(ctx, backendRedis)
		return nil, ErrNotFound
	}
	data, err := cmd(ctx, s.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		observability.Store().OnChallengeMiss(ctx, backendRedis)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "redis get challenge")
	}

	var c Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "parse challenge")
	}
	// ExpiresAt is authoritative; the key TTL only bounds storage.
	if c.IsExpired() {
		observability.Store().OnChallengeMiss(ctx, backendRedis)
		return nil, ErrExpired
	}
	observability.Store().OnChallengeHit(ctx, backendRedis)
	return &c, nil
}

func (s *RedisStore) Set(ctx context.Context, c *Challenge) error {
	now := time.Now()
	if err := checkSet(c, now); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "marshal challenge")
	}
	if err := s.client.Set(ctx, s.key(c.ID), data, c.ExpiresAt.Sub(now)).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "redis set challenge")
	}
	observability.Store().OnChallengeSet(ctx, backendRedis)
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "redis delete challenge")
	}
	return nil
}

func (s *RedisStore) Cleanup(context.Context) error { return nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
