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
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient 基于 eino ChatModel 的 Client 实现
type EinoClient struct {
	chatModel model.BaseChatModel
	model     string
	apiKey    string
	baseURL   string
}

// NewEinoClient 创建基于 eino-ext OpenAI ChatModel 的客户端
func NewEinoClient(ctx context.Context, modelName, apiKey, baseURL string) (*EinoClient, error) {
	if modelName == "" {
		modelName = "gpt-3.5-turbo"
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   modelName,
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return &EinoClient{chatModel: cm, model: modelName, apiKey: apiKey, baseURL: baseURL}, nil
}

// NewEinoClientFromModel 使用已有 ChatModel 构造（测试或自定义组件）
func NewEinoClientFromModel(cm model.BaseChatModel, modelName string) *EinoClient {
	return &EinoClient{chatModel: cm, model: modelName}
}

// Generate 生成文本
func (c *EinoClient) Generate(prompt string, options GenerateOptions) (string, error) {
	return c.GenerateWithContext(context.Background(), prompt, options)
}

// GenerateWithContext 使用上下文生成文本
func (c *EinoClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.ChatWithContext(ctx, []Message{UserMessage(prompt)}, options)
}

// Chat 聊天
func (c *EinoClient) Chat(messages []Message, options GenerateOptions) (string, error) {
	return c.ChatWithContext(context.Background(), messages, options)
}

// ChatWithContext 使用上下文聊天
func (c *EinoClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	input := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		input = append(input, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}
	out, err := c.chatModel.Generate(ctx, input, toEinoOptions(options)...)
	if err != nil {
		return "", fmt.Errorf("eino ChatModel 调用失败: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("eino ChatModel 没有返回结果")
	}
	return out.Content, nil
}

func toEinoOptions(o GenerateOptions) []model.Option {
	opts := []model.Option{model.WithTemperature(float32(o.Temperature))}
	if o.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(o.MaxTokens))
	}
	if o.TopP > 0 {
		opts = append(opts, model.WithTopP(float32(o.TopP)))
	}
	if len(o.Stop) > 0 {
		opts = append(opts, model.WithStop(o.Stop))
	}
	return opts
}

// Model 返回模型名称
func (c *EinoClient) Model() string { return c.model }

// Provider 返回提供商名称
func (c *EinoClient) Provider() string { return "eino" }

// SetModel 设置模型；底层 ChatModel 不可变，仅在通过 NewEinoClient 构造时重建
func (c *EinoClient) SetModel(modelName string) {
	c.model = modelName
	c.rebuild()
}

// SetAPIKey 设置 API Key
func (c *EinoClient) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
	c.rebuild()
}

func (c *EinoClient) rebuild() {
	if c.apiKey == "" {
		return
	}
	if cm, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		Model:   c.model,
		APIKey:  c.apiKey,
		BaseURL: c.baseURL,
	}); err == nil {
		c.chatModel = cm
	}
}
