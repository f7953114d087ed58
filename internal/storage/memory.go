package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore 内存键值存储，供测试与演示使用
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]json.RawMessage
	listeners []func(keys []string)
}

// NewMemoryStore 创建内存存储实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

// Get 读取键集
func (m *MemoryStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set 写入键值并通知监听器
func (m *MemoryStore) Set(ctx context.Context, values map[string]any) error {
	changed := make([]string, 0, len(values))
	m.mu.Lock()
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.data[k] = b
		changed = append(changed, k)
	}
	ls := m.listeners
	m.mu.Unlock()
	for _, fn := range ls {
		fn(changed)
	}
	return nil
}

// Remove 删除键集并通知监听器
func (m *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	ls := m.listeners
	m.mu.Unlock()
	for _, fn := range ls {
		fn(keys)
	}
	return nil
}

// OnChange 注册变更监听器
func (m *MemoryStore) OnChange(fn func(keys []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}
