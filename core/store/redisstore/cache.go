// Package redisstore keeps a write-through copy of active conversations in
// redis in front of a durable session store.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-relay/core/store/redisstore"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	DefaultKeyPrefix = "ema:session:"
	DefaultTTL       = 2 * time.Hour
)

// Cache serves conversation loads from redis and writes every change to
// both redis and the wrapped store. Redis failures are logged and never fail
// an operation, the wrapped store stays the source of truth.
type Cache struct {
	next   store.SessionStore
	client redis.UniversalClient

	keyPrefix string
	ttl       time.Duration
}

type Option func(*Cache)

func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.keyPrefix = prefix
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func New(next store.SessionStore, client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{
		next:      next,
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		ttl:       DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ store.SessionStore = (*Cache)(nil)

// Ping checks that redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *Cache) key(callID string) string {
	return c.keyPrefix + callID
}

func (c *Cache) Load(ctx context.Context, callID string) (conversations.Log, error) {
	ctx, span := tracer.Start(ctx, "load cached session", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	if log, ok := c.cached(ctx, span, callID); ok {
		return log, nil
	}

	log, err := c.next.Load(ctx, callID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, callID, log)
	return log, nil
}

// cached returns the conversation kept in redis for callID. Undecodable
// entries are dropped and count as a miss.
func (c *Cache) cached(ctx context.Context, span trace.Span, callID string) (conversations.Log, bool) {
	cached, err := c.client.Get(ctx, c.key(callID)).Bytes()
	switch {
	case err == nil:
		log := conversations.Log{}
		if err := json.Unmarshal(cached, &log); err != nil {
			logger.WarnContext(ctx, "dropping undecodable cached conversation", "call_id", callID, "error", err)
			c.client.Del(ctx, c.key(callID))
			break
		}
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return log, true
	case !errors.Is(err, redis.Nil):
		span.RecordError(err)
		logger.WarnContext(ctx, "redis get failed, falling back to store", "call_id", callID, "error", err)
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	return nil, false
}

func (c *Cache) Save(ctx context.Context, callID string, log conversations.Log) error {
	if err := c.next.Save(ctx, callID, log); err != nil {
		// The cached copy may now be ahead of or behind the store.
		c.client.Del(ctx, c.key(callID))
		return err
	}
	c.put(ctx, callID, log)
	return nil
}

// CreateIfAbsent serves a resumed call from redis. Only calls missing from
// the cache reach the wrapped store.
func (c *Cache) CreateIfAbsent(ctx context.Context, userID, callID string) (conversations.Log, error) {
	ctx, span := tracer.Start(ctx, "create cached session", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	if log, ok := c.cached(ctx, span, callID); ok {
		return log, nil
	}

	log, err := c.next.CreateIfAbsent(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, callID, log)
	return log, nil
}

func (c *Cache) SaveSummary(ctx context.Context, callID string, summary string) error {
	return c.next.SaveSummary(ctx, callID, summary)
}

func (c *Cache) put(ctx context.Context, callID string, log conversations.Log) {
	encoded, err := json.Marshal(log)
	if err != nil {
		logger.WarnContext(ctx, "failed to encode conversation for cache", "call_id", callID, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(callID), encoded, c.ttl).Err(); err != nil {
		logger.WarnContext(ctx, "redis set failed", "call_id", callID, "error", err)
	}
}
