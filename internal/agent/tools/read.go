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
	"time"

	"support-agent/internal/agent/planner"
	"support-agent/internal/kb"
	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/errors"
)

// Profile 客户资料输出
type Profile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	CreatedAt string `json:"created_at"`
}

// TicketSummary 未关闭工单摘要
type TicketSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	CreatedAt   string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// CustomerProfileTool get_customer_profile
type CustomerProfileTool struct {
	store helpdesk.Store
}

// NewCustomerProfileTool 创建客户资料工具
func NewCustomerProfileTool(store helpdesk.Store) *CustomerProfileTool {
	return &CustomerProfileTool{store: store}
}

func (t *CustomerProfileTool) Name() string { return string(planner.ActionGetCustomerProfile) }
func (t *CustomerProfileTool) Description() string {
	return "Fetch customer profile and history"
}
func (t *CustomerProfileTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"customer_id": map[string]any{"type": "integer"}},
		"required":   []string{"customer_id"},
	}
}

// Execute 返回 {id, name, email, company, created_at}；客户不存在返回 {"error":"Customer not found"}
func (t *CustomerProfileTool) Execute(ctx context.Context, _ string, params map[string]any) Payload {
	id := planner.ParamInt64(params, "customer_id", 0)
	c, err := t.store.GetCustomer(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return ErrorPayload("Customer not found")
	}
	if err != nil {
		return ErrorPayload(err.Error())
	}
	return Payload{
		"id":         c.ID,
		"name":       c.Name,
		"email":      c.Email,
		"company":    c.Company,
		"created_at": formatTime(c.CreatedAt),
	}
}

// OpenTicketsTool get_open_tickets
type OpenTicketsTool struct {
	store helpdesk.Store
}

// NewOpenTicketsTool 创建未关闭工单查询工具
func NewOpenTicketsTool(store helpdesk.Store) *OpenTicketsTool {
	return &OpenTicketsTool{store: store}
}

func (t *OpenTicketsTool) Name() string        { return string(planner.ActionGetOpenTickets) }
func (t *OpenTicketsTool) Description() string { return "List open and in-progress tickets, newest first" }
func (t *OpenTicketsTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"customer_id": map[string]any{"type": "integer"}},
		"required":   []string{"customer_id"},
	}
}

// Execute 返回 {tickets:[...], count}
func (t *OpenTicketsTool) Execute(ctx context.Context, _ string, params map[string]any) Payload {
	id := planner.ParamInt64(params, "customer_id", 0)
	list, err := t.store.ListTickets(ctx, helpdesk.TicketFilter{CustomerID: id, Statuses: helpdesk.OpenStatuses})
	if err != nil {
		return ErrorPayload(err.Error())
	}
	out := make([]TicketSummary, 0, len(list))
	for _, tk := range list {
		out = append(out, TicketSummary{
			ID:          tk.ID,
			Title:       tk.Title,
			Description: tk.Description,
			Status:      tk.Status,
			Priority:    tk.Priority,
			CreatedAt:   formatTime(tk.CreatedAt),
		})
	}
	return Payload{"tickets": out, "count": len(out)}
}

// SearchKBTool search_kb
type SearchKBTool struct {
	kb   *kb.KnowledgeBase
	topK int
}

// NewSearchKBTool 创建知识库检索工具；topK<=0 使用 kb.DefaultTopK
func NewSearchKBTool(k *kb.KnowledgeBase, topK int) *SearchKBTool {
	if topK <= 0 {
		topK = kb.DefaultTopK
	}
	return &SearchKBTool{kb: k, topK: topK}
}

func (t *SearchKBTool) Name() string        { return string(planner.ActionSearchKB) }
func (t *SearchKBTool) Description() string { return "Keyword search over help-center articles" }
func (t *SearchKBTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
}

// Execute 返回 {results:[...], count, query}
func (t *SearchKBTool) Execute(_ context.Context, _ string, params map[string]any) Payload {
	query := planner.ParamString(params, "query", "")
	results := t.kb.Search(query, t.topK)
	return Payload{"results": results, "count": len(results), "query": query}
}

// RegisterReadTools 注册三个只读工具
func RegisterReadTools(reg *Registry, store helpdesk.Store, k *kb.KnowledgeBase, topK int) {
	reg.Register(NewCustomerProfileTool(store))
	reg.Register(NewOpenTicketsTool(store))
	reg.Register(NewSearchKBTool(k, topK))
}

// decode 通过 JSON 将工具输出转换为具体类型，兼容进程内值与反序列化后的 map
func decode(v any, dst any) bool {
	if v == nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

// ProfileFrom 从 get_customer_profile 输出中解析客户资料；失败输出返回 false
func ProfileFrom(p Payload) (Profile, bool) {
	var out Profile
	if p == nil || p.Failed() {
		return out, false
	}
	return out, decode(map[string]any(p), &out)
}

// OpenTicketsFrom 从 get_open_tickets 输出中解析工单列表
func OpenTicketsFrom(p Payload) []TicketSummary {
	var out []TicketSummary
	if p == nil || p.Failed() {
		return nil
	}
	if !decode(p["tickets"], &out) {
		return nil
	}
	return out
}

// KBResultsFrom 从 search_kb 输出中解析检索结果
func KBResultsFrom(p Payload) []kb.SearchResult {
	var out []kb.SearchResult
	if p == nil || p.Failed() {
		return nil
	}
	if !decode(p["results"], &out) {
		return nil
	}
	return out
}
