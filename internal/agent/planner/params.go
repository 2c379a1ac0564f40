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

package planner

import (
	"encoding/json"
	"strconv"
	"strings"
)

// 工单默认值
const (
	DefaultTicketTitle    = "Support Ticket"
	DefaultTicketPriority = "medium"
	DefaultTicketCategory = "general"
	DefaultEscalateReason = "Customer requested escalation"
	DefaultEscalateDesc   = "Customer requested escalation to human support"
)

// validPriorities create_ticket 接受的优先级
var validPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}

// ValidPriority 优先级是否合法
func ValidPriority(p string) bool { return validPriorities[p] }

// CreateTicketParams create_ticket 参数
type CreateTicketParams struct {
	CustomerID  int64
	Title       string
	Description string
	Priority    string
	Category    string
}

// DecodeCreateTicket 解析 create_ticket 参数并填充默认值；非法优先级归为 medium
func DecodeCreateTicket(params map[string]any, defaultCustomerID int64) CreateTicketParams {
	p := CreateTicketParams{
		CustomerID:  ParamInt64(params, "customer_id", defaultCustomerID),
		Title:       ParamString(params, "title", DefaultTicketTitle),
		Description: ParamString(params, "description", ""),
		Priority:    ParamString(params, "priority", DefaultTicketPriority),
		Category:    ParamString(params, "category", DefaultTicketCategory),
	}
	if !ValidPriority(p.Priority) {
		p.Priority = DefaultTicketPriority
	}
	return p
}

// EscalateParams escalate_to_human 参数
type EscalateParams struct {
	CustomerID int64
	Reason     string
}

// DecodeEscalate 解析 escalate_to_human 参数；reason 为空串时保持为空
func DecodeEscalate(params map[string]any, defaultCustomerID int64) EscalateParams {
	return EscalateParams{
		CustomerID: ParamInt64(params, "customer_id", defaultCustomerID),
		Reason:     ParamString(params, "reason", ""),
	}
}

// ToTicket 将升级请求转换为紧急工单参数
func (e EscalateParams) ToTicket() CreateTicketParams {
	title, desc := DefaultEscalateReason, DefaultEscalateDesc
	if e.Reason != "" {
		title, desc = e.Reason, e.Reason
	}
	return CreateTicketParams{
		CustomerID:  e.CustomerID,
		Title:       "ESCALATION: " + title,
		Description: desc,
		Priority:    "urgent",
		Category:    "escalation",
	}
}

// ParamString 读取字符串参数；缺失或非字符串返回 def
func ParamString(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// ParamInt64 读取整数参数，兼容 JSON 解码后的各种数字表示；缺失或无法解析返回 def
func ParamInt64(params map[string]any, key string, def int64) int64 {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return def
}
