// Copyright 2026 fanjia1024
// In-memory secret store (tests and local runs)

package secrets

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 进程内 secret store，按键名保存模型 API Key 等密钥
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 创建内存 secret store，seed 中的键值被复制一份作为初始内容
func NewMemoryStore(seed map[string]string) *MemoryStore {
	m := &MemoryStore{secrets: make(map[string]string, len(seed))}
	for k, v := range seed {
		m.secrets[k] = v
	}
	return m
}

// Get 读取密钥；空值与不存在同样返回错误
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v := m.secrets[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

// Set 写入或覆盖密钥
func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	m.secrets[key] = value
	m.mu.Unlock()
}
