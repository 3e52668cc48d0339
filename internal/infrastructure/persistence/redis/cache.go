package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// DefaultContentTTL 未配置时小节内容的缓存时长
const DefaultContentTTL = 7 * 24 * time.Hour

// ContentCache 以提纲快照和小节标识为键缓存已生成的小节正文
type ContentCache struct {
	client *Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewContentCache 创建小节内容缓存
func NewContentCache(client *Client, prefix string, ttl time.Duration) *ContentCache {
	if ttl <= 0 {
		ttl = DefaultContentTTL
	}
	return &ContentCache{client: client, prefix: prefix, ttl: ttl}
}

// Key 构建完整的 Redis 键
func (c *ContentCache) Key(key string) string {
	return BuildContentKey(c.prefix, key)
}

// BuildContentKey 构建小节内容缓存键
func BuildContentKey(prefix, key string) string {
	if prefix == "" {
		return "content:" + key
	}
	return prefix + ":content:" + key
}

// Get 读取缓存；未命中时返回 ok=false 且 err 为 nil。相同键的并发读取合并为一次
func (c *ContentCache) Get(ctx context.Context, key string) (string, bool, error) {
	full := c.Key(key)
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", full)))
	defer span.End()

	v, err, _ := c.group.Do(full, func() (any, error) {
		val, err := c.client.Get(ctx, full)
		if err != nil {
			if IsNil(err) {
				return nil, nil
			}
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", false, err
	}
	if v == nil {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return "", false, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return v.(string), true, nil
}

// Set 写入缓存
func (c *ContentCache) Set(ctx context.Context, key, content string) error {
	return c.client.Set(ctx, c.Key(key), content, c.ttl)
}

// Purge 删除当前前缀下的全部小节缓存，返回删除的键数
func (c *ContentCache) Purge(ctx context.Context) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Purge")
	defer span.End()

	pattern := c.Key("*")
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			span.RecordError(err)
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				span.RecordError(err)
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("cache.deleted", deleted))
	return deleted, nil
}
