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

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"support-agent/pkg/metrics"
)

// ErrUnavailable LLM 不可用（熔断打开、超时或调用失败），调用方应走确定性降级
var ErrUnavailable = errors.New("llm unavailable")

// BreakerConfig 熔断与单次调用超时配置
type BreakerConfig struct {
	Name        string
	MaxFailures uint32        // 连续失败达到该值后打开，默认 5
	OpenTimeout time.Duration // 打开后多久进入半开，默认 30s
	CallTimeout time.Duration // 单次调用超时，<=0 不额外限制
	// OnStateChange 可选，状态切换回调（如记录日志）
	OnStateChange func(name string, from, to string)
}

// BreakerClient 为任意 Client 增加熔断与单次超时；失败统一包装为 ErrUnavailable
type BreakerClient struct {
	inner       Client
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewBreakerClient 创建带熔断的客户端
func NewBreakerClient(inner Client, cfg BreakerConfig) *BreakerClient {
	if cfg.Name == "" {
		cfg.Name = "llm:" + inner.Provider()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	maxFailures := cfg.MaxFailures
	onChange := cfg.OnStateChange
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			if onChange != nil {
				onChange(name, from.String(), to.String())
			}
		},
	})
	return &BreakerClient{inner: inner, cb: cb, callTimeout: cfg.CallTimeout}
}

// State 当前熔断状态（closed / half-open / open）
func (c *BreakerClient) State() string {
	return c.cb.State().String()
}

func (c *BreakerClient) call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if c.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit open: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s, _ := out.(string)
	return s, nil
}

// Generate 实现 Client.Generate
func (c *BreakerClient) Generate(prompt string, options GenerateOptions) (string, error) {
	return c.GenerateWithContext(context.Background(), prompt, options)
}

// GenerateWithContext 实现 Client.GenerateWithContext
func (c *BreakerClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.call(ctx, func(ctx context.Context) (string, error) {
		return c.inner.GenerateWithContext(ctx, prompt, options)
	})
}

// Chat 实现 Client.Chat
func (c *BreakerClient) Chat(messages []Message, options GenerateOptions) (string, error) {
	return c.ChatWithContext(context.Background(), messages, options)
}

// ChatWithContext 实现 Client.ChatWithContext
func (c *BreakerClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	return c.call(ctx, func(ctx context.Context) (string, error) {
		return c.inner.ChatWithContext(ctx, messages, options)
	})
}

// Model 返回底层 Client 的模型名称
func (c *BreakerClient) Model() string { return c.inner.Model() }

// Provider 返回底层 Client 的提供商名称
func (c *BreakerClient) Provider() string { return c.inner.Provider() }

// SetModel 代理到底层 Client
func (c *BreakerClient) SetModel(model string) { c.inner.SetModel(model) }

// SetAPIKey 代理到底层 Client
func (c *BreakerClient) SetAPIKey(apiKey string) { c.inner.SetAPIKey(apiKey) }
