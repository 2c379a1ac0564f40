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

// Package reply 基于执行上下文生成客服回复
package reply

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"support-agent/internal/agent/executor"
	"support-agent/internal/agent/tools"
	"support-agent/internal/model/llm"
	"support-agent/pkg/log"
	"support-agent/pkg/metrics"
	"support-agent/pkg/tracing"
)

const (
	maxSources      = 3
	maxKBSnippets   = 3
	maxTicketsShown = 2
)

// Input 回复生成输入；Context 只读，任意字段可为 nil
type Input struct {
	CustomerName    string
	CustomerMessage string
	Intent          string
	Context         *executor.RunContext
	CompanyName     string
}

// Generator 回复生成器：优先 LLM，失败或未配置时使用确定性模板
type Generator struct {
	client      llm.Client
	timeout     time.Duration
	maxTokens   int
	temperature float64
	orgName     string
	logger      *log.Logger
}

// Option 生成器选项
type Option func(*Generator)

// WithLLM 启用 LLM 生成
func WithLLM(client llm.Client) Option {
	return func(g *Generator) { g.client = client }
}

// WithTimeout 单次 LLM 调用超时
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithSampling 设置 max_tokens 与 temperature；非正值保持默认
func WithSampling(maxTokens int, temperature float64) Option {
	return func(g *Generator) {
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
		if temperature > 0 {
			g.temperature = temperature
		}
	}
}

// WithOrgName 设置客服所代表的组织名，写入系统提示
func WithOrgName(name string) Option {
	return func(g *Generator) { g.orgName = name }
}

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New 创建回复生成器
func New(opts ...Option) *Generator {
	g := &Generator{
		timeout:     30 * time.Second,
		maxTokens:   200,
		temperature: 0.7,
		logger:      log.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

const systemPrompt = `You are a friendly and professional customer support agent.
Your goal is to provide helpful, concise, and empathetic responses.
Keep responses brief (2-4 sentences) and actionable.
Always address the customer by name and maintain a warm tone.
If documentation was provided, reference it naturally (e.g., "Based on our help docs...").
Do NOT include a sources section - that will be added automatically.`

// Generate 生成回复并附加来源脚注；永不返回错误
func (g *Generator) Generate(ctx context.Context, in Input) string {
	if g.client != nil {
		text, err := g.generateLLM(ctx, in)
		if err == nil {
			metrics.ReplyTotal.WithLabelValues("llm").Inc()
			return text + Sources(in.Context)
		}
		g.logger.Warn("LLM 回复生成失败，使用模板回复", "error", err)
	}
	metrics.ReplyTotal.WithLabelValues("template").Inc()
	return Fallback(in) + Sources(in.Context)
}

func (g *Generator) generateLLM(ctx context.Context, in Input) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ctx, span := tracing.StartLLMSpan(ctx, "reply", g.client.Model())
	defer span.End()

	out, err := g.client.ChatWithContext(ctx, []llm.Message{
		llm.SystemMessage(g.systemPrompt()),
		llm.UserMessage(UserPrompt(in)),
	}, llm.GenerateOptions{MaxTokens: g.maxTokens, Temperature: g.temperature})
	if err != nil {
		return "", fmt.Errorf("回复生成 LLM 调用失败: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("LLM 返回空回复")
	}
	return out, nil
}

func (g *Generator) systemPrompt() string {
	if g.orgName == "" {
		return systemPrompt
	}
	return fmt.Sprintf("You work on the support team at %s.\n%s", g.orgName, systemPrompt)
}

// UserPrompt 组装发送给模型的上下文提示
func UserPrompt(in Input) string {
	lines := []string{"Customer: " + in.CustomerName}
	if in.CompanyName != "" {
		lines = append(lines, "Company: "+in.CompanyName)
	}
	lines = append(lines, "Intent: "+in.Intent)

	var kbInfo strings.Builder
	if rc := in.Context; rc != nil {
		if rc.CustomerProfile != nil {
			since := "Unknown"
			if p, ok := tools.ProfileFrom(rc.CustomerProfile); ok && p.CreatedAt != "" {
				since = p.CreatedAt
			}
			lines = append(lines, "Customer since: "+since)
		}
		if tickets := tools.OpenTicketsFrom(rc.OpenTickets); len(tickets) > 0 {
			lines = append(lines, fmt.Sprintf("Open tickets: %d", len(tickets)))
			for i, t := range tickets {
				if i == maxTicketsShown {
					break
				}
				lines = append(lines, fmt.Sprintf("  - %s (%s, %s)", t.Title, t.Status, t.Priority))
			}
		}
		if results := tools.KBResultsFrom(rc.KBResults); len(results) > 0 {
			kbInfo.WriteString("\n\nRelevant documentation:\n")
			for i, r := range results {
				if i == maxKBSnippets {
					break
				}
				heading := r.Heading
				if heading == "" {
					heading = "Unknown"
				}
				fmt.Fprintf(&kbInfo, "- %s: %s\n", heading, r.Snippet)
			}
		}
	}

	return "Context:\n" + strings.Join(lines, "\n") + "\n" + kbInfo.String() +
		"\nCustomer message: " + in.CustomerMessage +
		"\n\nGenerate a helpful, personalized support reply:"
}

var genericReplies = []string{
	"Thank you for reaching out, %s! I'd be happy to help you with that.",
	"Hi %s, thanks for your message. Let me look into this for you.",
	"Hello %s! I appreciate you contacting us. I'll assist you right away.",
	"Thanks for your question, %s. Our team is reviewing it and will follow up shortly.",
}

// Fallback 确定性模板回复：同一输入总是得到同一回复，不含来源脚注
func Fallback(in Input) string {
	name := in.CustomerName
	if name == "" {
		name = "there"
	}
	results := tools.KBResultsFrom(kbPayload(in.Context))
	if len(results) > 0 {
		topic := results[0].Heading
		if topic == "" {
			topic = "our documentation"
		}
		reply := fmt.Sprintf("Hi %s! Based on our help docs about %s, here's what I found:", name, topic)
		if s := strings.TrimSpace(results[0].Snippet); s != "" {
			reply += " " + s
		}
		return reply
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(in.CustomerMessage))
	return fmt.Sprintf(genericReplies[h.Sum32()%uint32(len(genericReplies))], name)
}

// Sources 生成 "Sources used" 脚注：按 source_file 去重，最多 3 条；无结果返回空串
func Sources(rc *executor.RunContext) string {
	results := tools.KBResultsFrom(kbPayload(rc))
	seen := make(map[string]struct{}, len(results))
	var b strings.Builder
	n := 0
	for _, r := range results {
		if r.SourceFile == "" {
			continue
		}
		if _, ok := seen[r.SourceFile]; ok {
			continue
		}
		seen[r.SourceFile] = struct{}{}
		if n == maxSources {
			break
		}
		b.WriteString("- " + r.SourceFile)
		if r.Heading != "" {
			b.WriteString(" (" + r.Heading + ")")
		}
		b.WriteString("\n")
		n++
	}
	if n == 0 {
		return ""
	}
	return "\n\n---\n**Sources used:**\n" + b.String()
}

func kbPayload(rc *executor.RunContext) tools.Payload {
	if rc == nil {
		return nil
	}
	return rc.KBResults
}
