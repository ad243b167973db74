package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"referral-platform/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens and pings a Redis connection
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Connected to Redis")
	return rdb, nil
}

// RedisOTPStore keeps one-time codes in Redis with an expiry.
type RedisOTPStore struct {
	rdb *redis.Client
}

// NewRedisOTPStore creates a Redis-backed OTP store
func NewRedisOTPStore(rdb *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{rdb: rdb}
}

func (s *RedisOTPStore) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, "otp:"+key, code, ttl).Err()
}

func (s *RedisOTPStore) Get(ctx context.Context, key string) (string, error) {
	code, err := s.rdb.Get(ctx, "otp:"+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return code, err
}

func (s *RedisOTPStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, "otp:"+key).Err()
}
