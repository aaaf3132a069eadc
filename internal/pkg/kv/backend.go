package kv

import (
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/inkpress/internal/pkg/oss"
)

const ossPrefix = "kv"

// New 按 backend 选择存储，oss 后端要求已配置对象存储
func New(backend string, rdb *redis.Client, ossClient *oss.Client) (Store, error) {
	switch backend {
	case "", "redis":
		return NewRedisStore(rdb), nil
	case "oss":
		if ossClient == nil {
			return nil, fmt.Errorf("kv backend %q requires OSS configuration", backend)
		}
		return NewOSSStore(ossClient, ossPrefix), nil
	default:
		return nil, fmt.Errorf("unknown kv backend: %s", backend)
	}
}
