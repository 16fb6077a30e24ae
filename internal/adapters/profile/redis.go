package profile

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ecoquest"

// Connect returns a client for addr, or nil when addr is empty.
func Connect(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisStore keeps each profile in a hash at <prefix>:profile:<user>.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces the profile hashes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":profile:" + userID
}

// Fetch returns every field of the user's hash. A missing user yields an empty map.
func (s *RedisStore) Fetch(ctx context.Context, userID string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hgetall %s: %w", ErrRemoteCall, userID, err)
	}
	return fields, nil
}

// Update writes fields into the user's hash.
func (s *RedisStore) Update(ctx context.Context, userID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := s.client.HSet(ctx, s.key(userID), values).Err(); err != nil {
		return fmt.Errorf("%w: hset %s: %w", ErrRemoteCall, userID, err)
	}
	return nil
}

// Ping checks the backend.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrRemoteCall, err)
	}
	return nil
}
