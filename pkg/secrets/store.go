// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// Store 只读 Secret 来源，按键名解析模型 API Key
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider  string      `yaml:"provider"` // vault | env | memory
	EnvPrefix string      `yaml:"env_prefix"`
	Vault     VaultConfig `yaml:"vault"`
}

// NewStore 创建 Secret Store；空 Provider 视为 env
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(nil), nil
	case "", "env":
		return NewEnvStore(config.EnvPrefix), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// ProviderKeyName 模型提供商 API Key 在 secret store 中的键名，如 openai -> OPENAI_API_KEY
func ProviderKeyName(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// ResolveAPIKey 解析模型 API Key：配置值已是明文时直接使用，
// 为空或仍为未展开的 ${VAR} 占位时从 store 读取 ProviderKeyName(provider)
func ResolveAPIKey(ctx context.Context, store Store, provider, configured string) (string, error) {
	if configured != "" && !strings.HasPrefix(configured, "$") {
		return configured, nil
	}
	if store == nil {
		return "", fmt.Errorf("no secret store for provider %s", provider)
	}
	return store.Get(ctx, ProviderKeyName(provider))
}
