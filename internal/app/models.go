// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"fmt"

	"support-agent/internal/model/llm"
	"support-agent/pkg/config"
	"support-agent/pkg/log"
	"support-agent/pkg/secrets"
)

// NewLLMClientFromConfig 根据 config.Model 的 defaults.llm 创建 LLM 客户端（如 "openai.gpt_4o_mini"）。
// 未配置默认模型时返回 nil, nil，调用方走关键词分类与模板回复。
// 返回的客户端依次包装：provider 客户端 -> 限流 -> 熔断
func NewLLMClientFromConfig(ctx context.Context, cfg *config.Config, store secrets.Store, logger *log.Logger) (llm.Client, error) {
	if cfg == nil || cfg.Model.Defaults.LLM == "" {
		return nil, nil
	}
	provider, modelKey, err := llm.ParseDefaultKey(cfg.Model.Defaults.LLM)
	if err != nil {
		return nil, err
	}
	pc, ok := cfg.Model.LLM.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("LLM provider %q 未配置", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, fmt.Errorf("LLM model %q 未在 provider %q 中配置", modelKey, provider)
	}
	apiKey, err := secrets.ResolveAPIKey(ctx, store, provider, pc.APIKey)
	if err != nil {
		return nil, fmt.Errorf("LLM provider %q 的 api_key 解析失败: %w", provider, err)
	}
	base, err := llm.NewClient(ctx, provider, mi.Name, apiKey, pc.BaseURL)
	if err != nil {
		return nil, err
	}

	limited := llm.NewRateLimitedClient(base, newLLMRateLimiter(cfg))
	breakerCfg := llm.BreakerConfig{
		MaxFailures: cfg.Agent.Breaker.MaxFailures,
		OpenTimeout: config.ParseDuration(cfg.Agent.Breaker.OpenTimeout, 0),
	}
	if logger != nil {
		breakerCfg.OnStateChange = func(name, from, to string) {
			logger.Warn("LLM 熔断状态变化", "name", name, "from", from, "to", to)
		}
	}
	return llm.NewBreakerClient(limited, breakerCfg), nil
}

// newLLMRateLimiter 将 rate_limits.llm 转为按 provider 的限流器
func newLLMRateLimiter(cfg *config.Config) *llm.LLMRateLimiter {
	limits := make(map[string]llm.LLMLimitConfig, len(cfg.RateLimits.LLM))
	for provider, rl := range cfg.RateLimits.LLM {
		limits[provider] = llm.LLMLimitConfig{
			TokensPerMinute:   rl.TokensPerMinute,
			RequestsPerMinute: rl.RequestsPerMinute,
			MaxConcurrent:     rl.MaxConcurrent,
		}
	}
	return llm.NewLLMRateLimiter(limits, nil)
}

// newSecretStore 根据 secrets 配置创建密钥来源，空类型为环境变量
func newSecretStore(cfg *config.Config) (secrets.Store, error) {
	if cfg == nil {
		return secrets.NewEnvStore(""), nil
	}
	return secrets.NewStore(secrets.Config{
		Provider:  cfg.Secrets.Type,
		EnvPrefix: cfg.Secrets.EnvPrefix,
		Vault:     secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
}
