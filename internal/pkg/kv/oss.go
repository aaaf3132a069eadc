package kv

import (
	"context"
	"errors"
	"path"

	"github.com/qs3c/inkpress/internal/pkg/oss"
)

// OSSStore 用对象存储保存较大的 blob
type OSSStore struct {
	client *oss.Client
	prefix string
}

func NewOSSStore(client *oss.Client, prefix string) *OSSStore {
	return &OSSStore{client: client, prefix: prefix}
}

func (s *OSSStore) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

func (s *OSSStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetObject(ctx, s.objectKey(key))
	if err != nil {
		if errors.Is(err, oss.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, value []byte) error {
	return s.client.PutObject(ctx, s.objectKey(key), value, "application/octet-stream")
}

func (s *OSSStore) Delete(ctx context.Context, key string) error {
	return s.client.Delete(ctx, s.objectKey(key))
}
