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
	"fmt"
	"math"
)

// Action 计划步骤可调用的动作（封闭集合）
type Action string

const (
	ActionGetCustomerProfile Action = "get_customer_profile"
	ActionGetOpenTickets     Action = "get_open_tickets"
	ActionSearchKB           Action = "search_kb"
	ActionGenerateResponse   Action = "generate_response"
	ActionCreateTicket       Action = "create_ticket"
	ActionEscalateToHuman    Action = "escalate_to_human"
)

// StepKind 步骤类型：read 立即执行，write 需审批
type StepKind string

const (
	KindRead  StepKind = "read"
	KindWrite StepKind = "write"
)

// StepStatus 写步骤状态
type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusExecuted StepStatus = "executed"
)

// Kind 动作对应的步骤类型
func (a Action) Kind() StepKind {
	switch a {
	case ActionCreateTicket, ActionEscalateToHuman:
		return KindWrite
	}
	return KindRead
}

// IsWrite 是否为写动作
func (a Action) IsWrite() bool { return a.Kind() == KindWrite }

// PlanStep 计划中的单步；仅 Status 会在审批执行后变化
type PlanStep struct {
	Step        int            `json:"step"`
	Action      Action         `json:"action"`
	Type        StepKind       `json:"type"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
	Status      StepStatus     `json:"status,omitempty"`
}

// IsPendingWrite 是否为尚未执行的写步骤
func (s PlanStep) IsPendingWrite() bool {
	return s.Type == KindWrite && s.Status == StatusPending
}

// Plan 有序步骤列表，最后一步总是 generate_response
type Plan []PlanStep

// PendingWrites 返回全部待执行的写步骤
func (p Plan) PendingWrites() []PlanStep {
	var out []PlanStep
	for _, s := range p {
		if s.IsPendingWrite() {
			out = append(out, s)
		}
	}
	return out
}

// MarkExecuted 将指定步骤号的写步骤标记为已执行；未找到或非写步骤返回 false
func (p Plan) MarkExecuted(step int) bool {
	for i := range p {
		if p[i].Step == step && p[i].Type == KindWrite {
			p[i].Status = StatusExecuted
			return true
		}
	}
	return false
}

// Marshal 序列化为 JSON（供 AgentRun.PlanJSON 保存）
func (p Plan) Marshal() ([]byte, error) {
	if p == nil {
		p = Plan{}
	}
	return json.Marshal(p)
}

// Unmarshal 从 JSON 反序列化；整数值参数还原为 int64
func Unmarshal(data []byte) (Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("解析计划 JSON 失败: %w", err)
	}
	for i := range p {
		if p[i].Params == nil {
			p[i].Params = map[string]any{}
			continue
		}
		for k, v := range p[i].Params {
			p[i].Params[k] = normalizeValue(v)
		}
	}
	return p, nil
}

// normalizeValue JSON 数字默认解码为 float64，整数还原为 int64
func normalizeValue(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return v
}

// NormalizeParams 对外部传入的 JSON 参数做与 Unmarshal 相同的数字还原
func NormalizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}
