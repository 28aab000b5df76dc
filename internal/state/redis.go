package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "askdocs:state:"

// RedisStore keeps state in redis and fans change notifications out over
// pub/sub, so every connected process sees other processes' writes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func changeChannel(key string) string {
	return redisKeyPrefix + "changed:" + key
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := s.client.Publish(ctx, changeChannel(key), key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("publish state change failed")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if err := s.client.Publish(ctx, changeChannel(key), key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("publish state change failed")
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context, key string) (<-chan Event, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe state channel: %w", err)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- Event{Key: msg.Payload}:
				default:
					log.Warn().Str("key", key).Msg("state watcher buffer full, dropping event")
				}
			}
		}
	}()

	return ch, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
