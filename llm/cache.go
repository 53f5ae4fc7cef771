package llm

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss 两级缓存都未命中
var ErrCacheMiss = errors.New("llm: cache miss")

// CacheEntry 缓存的一次补全结果
type CacheEntry struct {
	Response  *ChatResponse `json:"response"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	HitCount  int           `json:"hit_count"`
}

// CacheConfig 两级缓存参数，LocalMaxSize 为 0 时关闭本地层
type CacheConfig struct {
	LocalMaxSize int           `json:"local_max_size" yaml:"local_max_size"`
	LocalTTL     time.Duration `json:"local_ttl" yaml:"local_ttl"`
	RedisTTL     time.Duration `json:"redis_ttl" yaml:"redis_ttl"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     time.Hour,
		KeyPrefix:    "consultflow:llm:",
	}
}

// ResponseCache ResilientProvider 使用的缓存接口
type ResponseCache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
}

// MultiLevelCache 进程内 LRU 在前，Redis 在后。Redis 不可用时
// 只记日志并按未命中处理，不影响补全请求。
type MultiLevelCache struct {
	local  *LRUCache
	rdb    *redis.Client
	cfg    CacheConfig
	logger *zap.Logger
}

// NewMultiLevelCache rdb 为 nil 时只有本地层
func NewMultiLevelCache(rdb *redis.Client, cfg *CacheConfig, logger *zap.Logger) *MultiLevelCache {
	if cfg == nil {
		cfg = DefaultCacheConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MultiLevelCache{
		rdb:    rdb,
		cfg:    *cfg,
		logger: logger.With(zap.String("component", "llm_cache")),
	}
	if cfg.LocalMaxSize > 0 {
		c.local = NewLRUCache(cfg.LocalMaxSize, cfg.LocalTTL)
	}
	return c
}

// Get 先查本地，再查 Redis；Redis 命中会回填本地层
func (c *MultiLevelCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	if c.local != nil {
		if e, ok := c.local.Get(key); ok {
			return e, nil
		}
	}
	if c.rdb == nil {
		return nil, ErrCacheMiss
	}

	raw, err := c.rdb.Get(ctx, c.cfg.KeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis 读取失败", zap.String("key", key), zap.Error(err))
		}
		return nil, ErrCacheMiss
	}
	e := new(CacheEntry)
	if err := json.Unmarshal(raw, e); err != nil {
		c.logger.Warn("缓存条目无法解析", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}
	if c.local != nil {
		c.local.Set(key, e)
	}
	return e, nil
}

// Set 写入两级缓存，过期时间以 RedisTTL 为准
func (c *MultiLevelCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	entry.CreatedAt = time.Now()
	entry.ExpiresAt = entry.CreatedAt.Add(c.cfg.RedisTTL)
	if c.local != nil {
		c.local.Set(key, entry)
	}
	if c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.rdb.Set(ctx, c.cfg.KeyPrefix+key, raw, c.cfg.RedisTTL).Err()
}

// cacheKeyFields 参与缓存键的请求字段，TraceID 与 Metadata 不参与
type cacheKeyFields struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
}

// GenerateKey 请求内容的 128 位摘要
func GenerateKey(req *ChatRequest) string {
	raw, _ := json.Marshal(cacheKeyFields{req.Model, req.Messages, req.MaxTokens, req.Temperature})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

// IsCacheable Metadata["cache"]="off" 的请求绕过缓存
func IsCacheable(req *ChatRequest) bool {
	return req.Metadata["cache"] != "off"
}

// LRUCache 定长 LRU，条目各自过期；过期条目在读取时惰性删除
type LRUCache struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	order *list.List // 队首最近使用
	index map[string]*list.Element
}

type lruItem struct {
	key     string
	entry   *CacheEntry
	expires time.Time
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		size:  max(size, 1),
		ttl:   ttl,
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Get 命中时累加 HitCount 并提到队首
func (c *LRUCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	it := el.Value.(*lruItem)
	if c.ttl > 0 && time.Now().After(it.expires) {
		c.order.Remove(el)
		delete(c.index, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	it.entry.HitCount++
	return it.entry, true
}

func (c *LRUCache) Set(key string, entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := time.Now().Add(c.ttl)
	if el, ok := c.index[key]; ok {
		it := el.Value.(*lruItem)
		it.entry, it.expires = entry, expires
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*lruItem).key)
	}
	c.index[key] = c.order.PushFront(&lruItem{key: key, entry: entry, expires: expires})
}

// Len 包含尚未被清理的过期条目
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
