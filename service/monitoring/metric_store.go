/*
 * @module service/monitoring/metric_store
 * @description 指标存储，基于内存的TTL键值缓存，保存原始样本、聚合指标、告警和规则
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 写入(带TTL) -> 读取时惰性过期 -> 可选的定期清扫
 * @rules 过期条目只在读取时删除；ttl 为 0 表示永不过期
 * @dependencies github.com/patrickmn/go-cache
 */

package monitoring

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MetricStore 指标存储接口，测试中可替换为确定性的实现
type MetricStore interface {
	Set(key string, value interface{}, ttl time.Duration)
	Get(key string) (interface{}, bool)
	Delete(key string) bool
	DeleteExpired()
	Flush()
}

// MemoryStore 基于 go-cache 的进程内存储
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore 创建内存存储
// sweepInterval <= 0 时不启动后台清扫，完全依赖读取时的惰性过期
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = -1
	}
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, sweepInterval),
	}
}

// Set 写入条目
func (s *MemoryStore) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, value, ttl)
}

// Get 读取条目，已过期的条目会被删除并返回未命中
func (s *MemoryStore) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, found := s.cache.Get(key)
	if !found {
		// go-cache 对过期条目只返回未命中，这里顺便删除
		s.cache.Delete(key)
		return nil, false
	}
	return value, true
}

// Delete 删除条目，返回删除前是否存在未过期的条目
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, found := s.cache.Get(key)
	s.cache.Delete(key)
	return found
}

// DeleteExpired 主动清理所有过期条目
func (s *MemoryStore) DeleteExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.DeleteExpired()
}

// Flush 清空存储
func (s *MemoryStore) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Flush()
}

// Len 返回当前条目数（包含尚未被读取淘汰的过期条目）
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.ItemCount()
}
