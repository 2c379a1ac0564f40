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

package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"support-agent/internal/model/llm"
	"support-agent/pkg/log"
	"support-agent/pkg/metrics"
	"support-agent/pkg/tracing"
)

// Classifier 意图分类器：优先 LLM，失败时回落到关键词规则
type Classifier struct {
	client  llm.Client
	timeout time.Duration
	logger  *log.Logger
}

// Option 分类器选项
type Option func(*Classifier)

// WithLLM 启用 LLM 分类；client 为 nil 时仅使用关键词规则
func WithLLM(client llm.Client) Option {
	return func(c *Classifier) { c.client = client }
}

// WithTimeout 单次 LLM 分类超时
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier 创建分类器
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{timeout: 10 * time.Second, logger: log.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify 返回消息意图；永不返回错误，LLM 的任何失败都回落到关键词规则
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if c.client != nil {
		res, err := c.classifyLLM(ctx, text)
		if err == nil {
			metrics.ClassifyTotal.WithLabelValues(string(SourceLLM)).Inc()
			return res
		}
		c.logger.Warn("LLM 意图分类失败，使用关键词规则", "error", err)
	}
	metrics.ClassifyTotal.WithLabelValues(string(SourceKeyword)).Inc()
	return ClassifyKeywords(text)
}

// systemPrompt 要求模型只输出严格 JSON
func systemPrompt() string {
	labels := make([]string, len(All))
	for i, in := range All {
		labels[i] = "- " + string(in)
	}
	return "You are an intent classifier for a customer support system.\n" +
		"Classify the customer message into exactly one of these intents:\n" +
		strings.Join(labels, "\n") + "\n\n" +
		`Respond with JSON only: {"intent": "<intent>", "confidence": <0.0-1.0>}`
}

// llmAnswer 模型输出；指针字段用于区分缺失与零值
type llmAnswer struct {
	Intent     *string  `json:"intent"`
	Confidence *float64 `json:"confidence"`
}

func (c *Classifier) classifyLLM(ctx context.Context, text string) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, span := tracing.StartLLMSpan(ctx, "classify", c.client.Model())
	defer span.End()

	reply, err := c.client.ChatWithContext(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt()),
		llm.UserMessage(text),
	}, llm.GenerateOptions{MaxTokens: 100, Temperature: 0.1})
	if err != nil {
		return Result{}, fmt.Errorf("意图分类 LLM 调用失败: %w", err)
	}
	return parseAnswer(reply)
}

// parseAnswer 从模型回复中提取 JSON（可能被 markdown 包裹）并校验
func parseAnswer(reply string) (Result, error) {
	reply = strings.TrimSpace(reply)
	if idx := strings.Index(reply, "{"); idx >= 0 {
		if end := strings.LastIndex(reply, "}"); end > idx {
			reply = reply[idx : end+1]
		}
	}
	var ans llmAnswer
	if err := json.Unmarshal([]byte(reply), &ans); err != nil {
		return Result{}, fmt.Errorf("解析意图 JSON 失败: %w", err)
	}
	if ans.Intent == nil || ans.Confidence == nil {
		return Result{}, fmt.Errorf("意图 JSON 缺少字段: %s", reply)
	}
	in, ok := Parse(*ans.Intent)
	if !ok {
		return Result{}, fmt.Errorf("未知意图标签: %q", *ans.Intent)
	}
	conf := *ans.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return Result{Intent: in, Confidence: conf, Source: SourceLLM}, nil
}
