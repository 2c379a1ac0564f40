// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
)

type envStore struct {
	prefix string
}

// NewEnvStore 创建环境变量 secret store；prefix 非空时先查 prefix+key（如 SUPPORT_AGENT_OPENAI_API_KEY），再查 key
func NewEnvStore(prefix string) Store {
	return &envStore{prefix: prefix}
}

func (e *envStore) Get(_ context.Context, key string) (string, error) {
	if e.prefix != "" {
		if v := os.Getenv(e.prefix + key); v != "" {
			return v, nil
		}
	}
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	if e.prefix != "" {
		return "", fmt.Errorf("environment variable not set: %s%s or %s", e.prefix, key, key)
	}
	return "", fmt.Errorf("environment variable not set: %s", key)
}
