package cache

import (
	"context"
	"sync"
	"time"
)

// Memory 进程内缓存实现，适用于单实例部署和测试。
// 过期采用惰性清理：读到过期条目时删除；Set 时顺带做一轮小规模回收。
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

// NewMemory 创建进程内缓存。
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expireAt) {
		delete(m.entries, key)
		return nil, false
	}

	// 返回副本，避免调用方改动缓存内部数据
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	// 顺带回收一小批过期条目，防止只写不读导致无限增长
	now := time.Now()
	scanned := 0
	for k, e := range m.entries {
		if now.After(e.expireAt) {
			delete(m.entries, k)
		}
		scanned++
		if scanned >= 32 {
			break
		}
	}

	m.entries[key] = memoryEntry{value: v, expireAt: now.Add(ttl)}
}

func (m *Memory) Invalidate(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len 当前条目数（含尚未回收的过期条目），仅用于观测/测试。
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
