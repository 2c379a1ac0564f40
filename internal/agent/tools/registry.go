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

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"support-agent/pkg/metrics"
	"support-agent/pkg/tracing"
)

// Registry 计划执行器可调用的只读工具注册表
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	auditor *Auditor
}

// NewRegistry 创建新 Registry；auditor 为 nil 时不写审计
func NewRegistry(auditor *Auditor) *Registry {
	return &Registry{tools: make(map[string]Tool), auditor: auditor}
}

// Register 注册工具
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List 按名称排序返回所有已注册工具
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// ToolSchemaForLLM 工具描述
type ToolSchemaForLLM struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SchemasForLLM 返回所有工具的 Schema 列表（JSON）
func (r *Registry) SchemasForLLM() ([]byte, error) {
	tools := r.List()
	list := make([]ToolSchemaForLLM, 0, len(tools))
	for _, t := range tools {
		list = append(list, ToolSchemaForLLM{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return json.Marshal(list)
}

// Invoke 调用工具并写入恰好一条审计记录；未注册的工具返回 ErrorPayload 且不审计
func (r *Registry) Invoke(ctx context.Context, runID, name string, params map[string]any) Payload {
	t, ok := r.Get(name)
	if !ok {
		return ErrorPayload("Unknown tool: " + name)
	}
	ctx, span := tracing.StartToolSpan(ctx, name, runID)
	defer span.End()

	start := time.Now()
	out := safeExecute(ctx, t, runID, params)
	metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	success := !out.Failed()
	metrics.ToolTotal.WithLabelValues(name, metrics.BoolLabel(success)).Inc()

	r.auditor.Record(ctx, runID, name, params, out, success)
	return out
}

// safeExecute 执行工具，panic 转为 ErrorPayload
func safeExecute(ctx context.Context, t Tool, runID string, params map[string]any) (out Payload) {
	defer func() {
		if rec := recover(); rec != nil {
			out = ErrorPayload(fmt.Sprintf("tool %s panicked: %v", t.Name(), rec))
		}
	}()
	out = t.Execute(ctx, runID, params)
	if out == nil {
		out = Payload{}
	}
	return out
}
