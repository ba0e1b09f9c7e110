package orderflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "orderflow:session:"

// RedisSessionStore keeps sessions in Redis so an active order flow survives
// process restarts. Sessions expire after ttl; an expired session simply
// looks absent to the engine and the user starts over.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.SessionID, err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+sess.SessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
