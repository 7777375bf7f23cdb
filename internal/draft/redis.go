package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTTL bounds how long an abandoned draft survives in Redis.
const DefaultTTL = 2 * time.Hour

// RedisStore keeps drafts in Redis with a sliding expiry, so a draft never
// outlives the browsing session that wrote it by more than ttl.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore wraps client. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("draft: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("cardio.internal.draft.redis"),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "draft.get", trace.WithAttributes(attribute.String("draft.key", key)))
	defer span.End()

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("draft: redis get: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := s.tracer.Start(ctx, "draft.set", trace.WithAttributes(
		attribute.String("draft.key", key),
		attribute.Int("draft.bytes", len(value)),
	))
	defer span.End()

	if err := s.redis.Set(ctx, key, value, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("draft: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "draft.delete", trace.WithAttributes(attribute.String("draft.key", key)))
	defer span.End()

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("draft: redis delete: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
