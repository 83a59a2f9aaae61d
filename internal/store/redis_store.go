package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration for the identity store.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string        // defaults to "identity"
	TTL       time.Duration // 0 means no expiry
}

// redisStore implements IdentityStore using Redis.
type redisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a new Redis-backed identity store.
func NewRedisStore(cfg RedisConfig) (IdentityStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "identity"
	}

	return &redisStore{
		client:    client,
		keyPrefix: prefix,
		ttl:       cfg.TTL,
	}, nil
}

// Redis key pattern:
// {prefix}:{client_uid}:{room_code}   STRING<username>
func (s *redisStore) identityKey(clientUID, roomCode string) string {
	return fmt.Sprintf("%s:%s:%s", s.keyPrefix, clientUID, roomCode)
}

func (s *redisStore) Remember(ctx context.Context, clientUID, roomCode, username string) error {
	return s.client.Set(ctx, s.identityKey(clientUID, roomCode), username, s.ttl).Err()
}

func (s *redisStore) Lookup(ctx context.Context, clientUID, roomCode string) (string, error) {
	val, err := s.client.Get(ctx, s.identityKey(clientUID, roomCode)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *redisStore) Forget(ctx context.Context, clientUID, roomCode string) error {
	return s.client.Del(ctx, s.identityKey(clientUID, roomCode)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
