package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, e.g. "portal:profile:default"

	// Client overrides Addr/DB, mainly for tests.
	Client redis.UniversalClient
}

// redisChange is the pub/sub payload announcing a committed batch.
type redisChange struct {
	Writer string   `json:"writer"`
	Keys   []string `json:"keys"`
}

// RedisStorage keeps a profile in a redis hash and announces every batch on a
// pub/sub channel, so instances on different hosts can share one profile.
type RedisStorage struct {
	id      string
	client  redis.UniversalClient
	ownsCli bool
	hashKey string
	channel string
	timeout time.Duration

	mu        sync.Mutex
	listeners listeners
	closed    bool

	pubsub *redis.PubSub
	doneCh chan struct{}
}

var _ Storage = (*RedisStorage)(nil)

// OpenRedis connects to redis and subscribes to the profile's change channel.
func OpenRedis(opts RedisOptions) (*RedisStorage, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "portal:profile:default"
	}

	client := opts.Client
	owns := false
	if client == nil {
		if opts.Addr == "" {
			return nil, fmt.Errorf("redis address is empty")
		}
		client = redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
		owns = true
	}

	s := &RedisStorage{
		id:      uuid.NewString(),
		client:  client,
		ownsCli: owns,
		hashKey: prefix + ":items",
		channel: prefix + ":changes",
		timeout: 5 * time.Second,
		doneCh:  make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if owns {
			_ = client.Close()
		}
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	s.pubsub = client.Subscribe(context.Background(), s.channel)
	// Wait for the subscription confirmation so no change published after
	// OpenRedis returns can be missed.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		if owns {
			_ = client.Close()
		}
		return nil, fmt.Errorf("failed to subscribe to profile changes: %w", err)
	}

	go s.receiveLoop(s.pubsub.Channel())

	slog.Debug("redis storage opened", "prefix", prefix, "instance", s.id)
	return s, nil
}

func (s *RedisStorage) ID() string { return s.id }

func (s *RedisStorage) Get(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := s.client.HGet(ctx, s.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return v, true, nil
}

// GetMany uses a single HMGET, which redis executes atomically.
func (s *RedisStorage) GetMany(keys ...string) (map[string]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	vals, err := s.client.HMGet(ctx, s.hashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

// Apply commits the batch in a MULTI/EXEC transaction together with the change
// announcement.
func (s *RedisStorage) Apply(b Batch) error {
	if s.isClosed() {
		return ErrClosed
	}
	keys := b.Keys()
	if len(keys) == 0 {
		return nil
	}

	payload, err := json.Marshal(redisChange{Writer: s.id, Keys: keys})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(b.Remove) > 0 {
			pipe.HDel(ctx, s.hashKey, b.Remove...)
		}
		if len(b.Set) > 0 {
			values := make(map[string]any, len(b.Set))
			for k, v := range b.Set {
				values[k] = v
			}
			pipe.HSet(ctx, s.hashKey, values)
		}
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

func (s *RedisStorage) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.listeners.add(fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners.fns, id)
		s.mu.Unlock()
	}
}

func (s *RedisStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.pubsub.Close()
	<-s.doneCh
	if s.ownsCli {
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *RedisStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *RedisStorage) receiveLoop(ch <-chan *redis.Message) {
	defer close(s.doneCh)
	for msg := range ch {
		var rc redisChange
		if err := json.Unmarshal([]byte(msg.Payload), &rc); err != nil {
			slog.Warn("ignoring malformed profile change", "channel", msg.Channel, "error", err)
			continue
		}
		if rc.Writer == s.id {
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		fns := s.listeners.snapshot()
		s.mu.Unlock()

		change := Change{Keys: rc.Keys, Writer: rc.Writer}
		for _, fn := range fns {
			fn(change)
		}
	}
}
