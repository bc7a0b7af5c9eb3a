package store

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryStore 进程内存储，值以序列化形式保存，读取时与文件存储行为一致
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get 实现core.Store接口
func (s *MemoryStore) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// Set 实现core.Store接口
func (s *MemoryStore) Set(key string, value any) error {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

// SetRaw 直接写入未经校验的原始内容
func (s *MemoryStore) SetRaw(key string, raw []byte) {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), raw...)
	s.mu.Unlock()
}

// Keys 返回已写入的键数量
func (s *MemoryStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
