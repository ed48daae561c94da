package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cachePrefix = "analytics"
	// InvalidationChannel carries tenant ids whose reports must be dropped.
	InvalidationChannel = "analytics.invalidate"
	defaultMaxAge       = 300 * time.Second
	scanBatch           = 200
)

// Cache is the report cache contract. Implementations never return errors:
// backend failures degrade to a miss or a no-op.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// NopCache is used when no cache backend is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NopCache) Set(context.Context, string, []byte, time.Duration) {}

func (NopCache) Invalidate(context.Context, string) {}

// Fingerprint builds a deterministic cache key. The tenant, report and branch
// stay readable so keys can be matched by pattern; everything else is hashed.
func Fingerprint(report string, scope Scope, parts ...string) string {
	branch := scope.BranchID
	if branch == "" {
		branch = "-"
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return strings.Join([]string{cachePrefix, scope.TenantID, report, branch, hex.EncodeToString(sum[:16])}, ":")
}

// TenantPattern matches every cached report of a tenant.
func TenantPattern(tenantID string) string {
	return cachePrefix + ":" + tenantID + ":*"
}

type envelope struct {
	StoredAt int64           `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// RedisCache stores reports in Redis wrapped with their write time. Entries
// older than maxAge are treated as misses regardless of the backend TTL.
type RedisCache struct {
	client  *redis.Client
	maxAge  time.Duration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// RedisOption customises a RedisCache.
type RedisOption func(*RedisCache)

// WithMaxAge overrides the freshness ceiling.
func WithMaxAge(d time.Duration) RedisOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithCacheLogger sets the logger used for degraded operations.
func WithCacheLogger(logger *slog.Logger) RedisOption {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheMetrics records backend errors.
func WithCacheMetrics(m *Metrics) RedisOption {
	return func(c *RedisCache) { c.metrics = m }
}

// WithCacheClock replaces the clock used for freshness checks.
func WithCacheClock(now func() time.Time) RedisOption {
	return func(c *RedisCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewRedisCache wraps a go-redis client.
func NewRedisCache(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		maxAge: defaultMaxAge,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the payload stored under key when present and fresh.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.degraded("get", key, err)
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.degraded("decode", key, err)
		return nil, false
	}
	if c.now().Sub(time.UnixMilli(env.StoredAt)) > c.maxAge {
		return nil, false
	}
	return env.Payload, true
}

// Set stores value under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(envelope{StoredAt: c.now().UnixMilli(), Payload: value})
	if err != nil {
		c.degraded("encode", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.degraded("set", key, err)
	}
}

// Invalidate deletes every key matching pattern using SCAN.
func (c *RedisCache) Invalidate(ctx context.Context, pattern string) {
	if c == nil || c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			c.degraded("del", pattern, err)
		}
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			flush()
		}
	}
	if err := iter.Err(); err != nil {
		c.degraded("scan", pattern, err)
	}
	flush()
}

// PublishInvalidation asks every listener to drop the tenant's reports.
func (c *RedisCache) PublishInvalidation(ctx context.Context, tenantID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Publish(ctx, InvalidationChannel, tenantID).Err()
}

// ListenForInvalidation subscribes to tenant invalidation messages until ctx
// is done. It returns once the subscription is confirmed.
func (c *RedisCache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				tenant := strings.TrimSpace(msg.Payload)
				if tenant == "" {
					continue
				}
				c.Invalidate(ctx, TenantPattern(tenant))
				c.logger.Info("analytics cache invalidated", slog.String("tenant", tenant))
			}
		}
	}()
	return nil
}

func (c *RedisCache) degraded(op, key string, err error) {
	c.metrics.cacheError(op)
	c.logger.Warn("analytics cache degraded", slog.String("op", op), slog.String("key", key), slog.Any("error", err))
}
