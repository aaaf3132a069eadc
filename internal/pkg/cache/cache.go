package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache 基于 Redis 的缓存，带命名空间版本号：
// 递增版本后旧 key 不再可达，等待 TTL 自然过期，无需逐个删除。
type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *Cache) versionKey(namespace string) string {
	return c.prefix + ":ver:" + namespace
}

// Get 读取缓存，未命中返回 false
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache: %w", err)
	}
	return true, nil
}

// Set 写入缓存
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// Version 获取命名空间当前版本，不存在时为 0
func (c *Cache) Version(ctx context.Context, namespace string) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(namespace)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cache version: %w", err)
	}
	return v, nil
}

// BumpVersion 递增命名空间版本，使该命名空间下的旧缓存失效
func (c *Cache) BumpVersion(ctx context.Context, namespace string) (int64, error) {
	return c.client.Incr(ctx, c.versionKey(namespace)).Result()
}

// VersionedKey 拼接带版本号的 key
func (c *Cache) VersionedKey(ctx context.Context, namespace, key string) (string, error) {
	v, err := c.Version(ctx, namespace)
	if err != nil {
		return "", err
	}
	return namespace + ":v" + strconv.FormatInt(v, 10) + ":" + key, nil
}

// PostsNamespace 文章相关缓存
const PostsNamespace = "posts"

// CommentsNamespace 某篇文章的评论列表缓存
func CommentsNamespace(postID int64) string {
	return "comments:post:" + strconv.FormatInt(postID, 10)
}
