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
	"time"

	"support-agent/internal/agent"
	"support-agent/internal/agent/intent"
	"support-agent/internal/agent/reply"
	"support-agent/internal/kb"
	"support-agent/internal/model/llm"
	"support-agent/internal/storage/cache"
	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/config"
	"support-agent/pkg/log"
	"support-agent/pkg/secrets"
	"support-agent/pkg/utils"
)

// Bootstrap 统一初始化：供 api 与 cli 复用，避免在 cmd 内装配存储与模型
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Secrets secrets.Store
	Store   helpdesk.Store
	Cache   cache.Store
	KB      *kb.KnowledgeBase
	LLM     llm.Client // 未配置默认模型时为 nil
}

// NewBootstrap 根据配置创建 Bootstrap（日志/密钥/存储/缓存/知识库/模型）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	secretStore, err := newSecretStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化密钥存储失败: %w", err)
	}

	store, err := helpdesk.NewStore(ctx, cfg.Storage.Helpdesk)
	if err != nil {
		return nil, fmt.Errorf("初始化工单存储失败: %w", err)
	}

	claims, err := cache.NewCache(ctx, cfg.Storage.Cache)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	dir := utils.CoalesceString(cfg.KB.Dir, kb.DefaultDir)
	knowledge, err := kb.Init(dir, kb.WithLogger(logger))
	if err != nil {
		// 目录缺失时知识库为空，不阻断启动
		logger.Warn("知识库加载失败，以空知识库启动", "dir", dir, "error", err)
	}

	client, err := NewLLMClientFromConfig(ctx, cfg, secretStore, logger)
	if err != nil {
		logger.Warn("LLM 客户端初始化失败，使用关键词分类与模板回复", "error", err)
		client = nil
	}

	return &Bootstrap{
		Config:  cfg,
		Logger:  logger,
		Secrets: secretStore,
		Store:   store,
		Cache:   claims,
		KB:      knowledge,
		LLM:     client,
	}, nil
}

// NewAgent 按 agent 配置装配分类器、回复生成器与审批默认值
func (b *Bootstrap) NewAgent() *agent.Agent {
	cfg := b.Config.Agent
	classifierOpts := []intent.Option{
		intent.WithLogger(b.Logger),
		intent.WithTimeout(config.ParseDuration(cfg.Classifier.Timeout, 10*time.Second)),
	}
	replyOpts := []reply.Option{
		reply.WithLogger(b.Logger),
		reply.WithTimeout(config.ParseDuration(cfg.Reply.Timeout, 30*time.Second)),
		reply.WithSampling(cfg.Reply.MaxTokens, cfg.Reply.Temperature),
		reply.WithOrgName(cfg.OrgName),
	}
	if b.LLM != nil {
		if cfg.Classifier.UseLLM {
			classifierOpts = append(classifierOpts, intent.WithLLM(b.LLM))
		}
		if cfg.Reply.UseLLM {
			replyOpts = append(replyOpts, reply.WithLLM(b.LLM))
		}
	}
	return agent.New(b.Store, b.KB,
		agent.WithClassifier(intent.NewClassifier(classifierOpts...)),
		agent.WithReplyGenerator(reply.New(replyOpts...)),
		agent.WithClaims(b.Cache),
		agent.WithApprovalDefault(cfg.ApprovalRequired()),
		agent.WithTopK(b.topK()),
		agent.WithLogger(b.Logger),
	)
}

func (b *Bootstrap) topK() int {
	return utils.PositiveInt(b.Config.KB.TopK, kb.DefaultTopK)
}

// Close 释放存储与缓存连接
func (b *Bootstrap) Close() error {
	var firstErr error
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			firstErr = err
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
