// Package cache is the Redis-backed real-time cache adapter
// (BackendRole = cache). It fronts the transactional store with a
// read-through JSON document cache plus pub/sub invalidation.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ltmc-engine/internal/config"
	"ltmc-engine/internal/errors"
)

const invalidationChannel = "ltmc:invalidate"

// Store wraps a Redis client for document caching and change notification.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Open connects to Redis and verifies connectivity.
func Open(ctx context.Context, cfg *config.CacheConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.New(errors.KindUnavailable, "cache", "Open", err)
	}

	return &Store{client: client, ttl: cfg.TTL}, nil
}

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Set stores v as JSON under key with the configured TTL.
func (s *Store) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.New(errors.KindValidation, "cache", "Set", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.New(errors.KindUnavailable, "cache", "Set", err)
	}
	return nil
}

// Get reads key and unmarshals it into dest. Returns a KindNotFound error
// on cache miss so callers can fall through to the primary store.
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.New(errors.KindNotFound, "cache", "Get", err)
		}
		return errors.New(errors.KindUnavailable, "cache", "Get", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.New(errors.KindInternal, "cache", "Get", err)
	}
	return nil
}

// Delete removes a cached key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.New(errors.KindUnavailable, "cache", "Delete", err)
	}
	return nil
}

// PublishInvalidation notifies other instances that docID has changed and
// their cached copy should be dropped.
func (s *Store) PublishInvalidation(ctx context.Context, docID string) error {
	if err := s.client.Publish(ctx, invalidationChannel, docID).Err(); err != nil {
		return errors.New(errors.KindUnavailable, "cache", "PublishInvalidation", err)
	}
	return nil
}

// SubscribeInvalidations returns a channel of invalidated document IDs.
// Callers should evict their local state for each received ID.
func (s *Store) SubscribeInvalidations(ctx context.Context) <-chan string {
	sub := s.client.Subscribe(ctx, invalidationChannel)
	out := make(chan string)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- msg.Payload
			}
		}
	}()
	return out
}

// HealthCheck verifies Redis connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.New(errors.KindUnavailable, "cache", "HealthCheck", err)
	}
	return nil
}
