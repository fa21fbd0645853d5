package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paasify/cfvault/internal/cfauth"
	"github.com/paasify/cfvault/internal/session"
)

// KeyPrefix namespaces session records in Redis.
const KeyPrefix = "cfvault:token:"

// tokenRecord is the Redis representation of a session entry.
type tokenRecord struct {
	Token        string    `json:"token"`
	Kind         string    `json:"kind"`
	LeaseSeconds int64     `json:"lease_seconds"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// Redis shares session tokens between replicas. Records expire with the
// token lease; fixed tokens never expire.
type Redis struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(addr string, db int, password string, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{redis: rdb, logger: logger}, nil
}

func (s *Redis) Load(ctx context.Context, key string) (session.Entry, bool, error) {
	data, err := s.redis.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Entry{}, false, nil
	}
	if err != nil {
		return session.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.Entry{}, false, fmt.Errorf("decode token record %s: %w", key, err)
	}
	tok, err := rec.token()
	if err != nil {
		return session.Entry{}, false, fmt.Errorf("decode token record %s: %w", key, err)
	}
	return session.Entry{Token: tok, ObtainedAt: rec.ObtainedAt}, true, nil
}

func (s *Redis) Save(ctx context.Context, key string, entry session.Entry) error {
	lease, _ := entry.Token.LeaseDuration()
	rec := tokenRecord{
		Token:        entry.Token.Secret(),
		Kind:         entry.Token.Kind().String(),
		LeaseSeconds: int64(lease / time.Second),
		ObtainedAt:   entry.ObtainedAt.UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if lease > 0 {
		ttl = lease
	}
	if err := s.redis.Set(ctx, KeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	s.logger.Debug("store.token_saved",
		zap.String("key", key),
		zap.Object("token", entry.Token),
		zap.Duration("ttl", ttl))
	return nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, KeyPrefix+key).Err()
}

func (s *Redis) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *Redis) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func (r tokenRecord) token() (cfauth.Token, error) {
	if r.Token == "" {
		return cfauth.Token{}, fmt.Errorf("empty token")
	}
	lease := time.Duration(r.LeaseSeconds) * time.Second
	switch r.Kind {
	case cfauth.TokenFixed.String():
		return cfauth.FixedToken(r.Token), nil
	case cfauth.TokenLeased.String():
		return cfauth.LeasedToken(r.Token, lease), nil
	case cfauth.TokenRenewable.String():
		return cfauth.RenewableToken(r.Token, lease), nil
	default:
		return cfauth.Token{}, fmt.Errorf("unknown token kind %q", r.Kind)
	}
}
