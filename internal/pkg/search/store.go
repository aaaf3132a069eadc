package search

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/qs3c/inkpress/internal/pkg/kv"
)

// Meta 索引元数据，version 变化即表示 blob 已更新
type Meta struct {
	Version   string `json:"version"`
	Size      int    `json:"size"` // 压缩后字节数
	Documents int    `json:"documents"`
}

// Store 把整个索引作为一个 gzip blob 存在 KV 中，
// 进程内按版本号缓存反序列化后的索引。
type Store struct {
	kv       kv.Store
	indexKey string
	metaKey  string
	logger   *zap.Logger
	now      func() time.Time

	group singleflight.Group

	mu          sync.Mutex
	cached      *Index
	version     string
	generation  uint64
	lastVersion int64
}

func NewStore(store kv.Store, indexKey, metaKey string, logger *zap.Logger) *Store {
	return &Store{
		kv:       store,
		indexKey: indexKey,
		metaKey:  metaKey,
		logger:   logger.Named("search"),
		now:      time.Now,
	}
}

// Get 返回可查询的索引。加载失败时返回空索引而不是错误。
func (s *Store) Get(ctx context.Context) *Index {
	meta, err := kv.GetJSON[Meta](ctx, s.kv, s.metaKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.Warn("Failed to read search index meta", zap.Error(err))
	}

	s.mu.Lock()
	cached, version, gen := s.cached, s.version, s.generation
	s.mu.Unlock()

	if meta == nil {
		if cached != nil {
			return cached
		}
		return NewIndex()
	}

	if cached != nil && version == meta.Version {
		return cached
	}

	// 同一版本的并发冷加载只触发一次读取
	loadCtx := context.WithoutCancel(ctx)
	v, _, _ := s.group.Do(meta.Version, func() (interface{}, error) {
		return s.load(loadCtx, meta.Version, gen), nil
	})
	return v.(*Index)
}

func (s *Store) load(ctx context.Context, version string, gen uint64) *Index {
	data, err := s.kv.Get(ctx, s.indexKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Error("Failed to fetch search index", zap.Error(err))
		}
		return NewIndex()
	}

	idx, err := decode(data)
	if err != nil {
		s.logger.Error("Failed to decode search index, starting empty",
			zap.String("version", version),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return NewIndex()
	}

	s.mu.Lock()
	// 加载期间本进程已持久化了更新的索引，不覆盖
	if s.generation == gen {
		s.cached = idx
		s.version = version
	}
	s.mu.Unlock()

	s.logger.Debug("Loaded search index",
		zap.String("version", version),
		zap.Int("documents", idx.Len()))
	return idx
}

// Persist 压缩写入索引并更新元数据，同时刷新进程内缓存
func (s *Store) Persist(ctx context.Context, idx *Index) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to marshal search index: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return fmt.Errorf("failed to compress search index: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress search index: %w", err)
	}

	if err := s.kv.Put(ctx, s.indexKey, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write search index: %w", err)
	}

	version := s.nextVersion()
	meta := Meta{Version: version, Size: buf.Len(), Documents: idx.Len()}
	if err := kv.PutJSON(ctx, s.kv, s.metaKey, meta); err != nil {
		return fmt.Errorf("failed to write search index meta: %w", err)
	}

	s.mu.Lock()
	s.cached = idx
	s.version = version
	s.generation++
	s.mu.Unlock()

	s.logger.Info("Persisted search index",
		zap.String("version", version),
		zap.Int("bytes", meta.Size),
		zap.Int("documents", meta.Documents))
	return nil
}

// nextVersion 以毫秒时间戳作为版本号，同一进程内严格递增
func (s *Store) nextVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.now().UnixMilli()
	if v <= s.lastVersion {
		v = s.lastVersion + 1
	}
	s.lastVersion = v
	return strconv.FormatInt(v, 10)
}

// decode 优先按 gzip 解压，失败时按未压缩的旧格式 JSON 处理
func decode(data []byte) (*Index, error) {
	payload := data
	if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
		if inflated, err := io.ReadAll(zr); err == nil {
			payload = inflated
		}
		zr.Close()
	}

	idx := NewIndex()
	if err := json.Unmarshal(payload, idx); err != nil {
		return nil, err
	}
	return idx, nil
}
