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

// Package executor 按顺序执行计划：读步骤立即执行，写步骤挂起等待审批
package executor

import (
	"context"

	"support-agent/internal/agent/planner"
	"support-agent/internal/agent/tools"
	"support-agent/pkg/log"
)

// Invoker 按名称调用工具并负责审计（tools.Registry 满足该接口）
type Invoker interface {
	Invoke(ctx context.Context, runID, name string, params map[string]any) tools.Payload
}

// PendingWrite 等待审批的写步骤
type PendingWrite struct {
	Step        int                `json:"step"`
	Action      planner.Action     `json:"action"`
	Description string             `json:"description"`
	Params      map[string]any     `json:"params"`
	Status      planner.StepStatus `json:"status"`
}

// RunContext 读步骤收集到的上下文；未执行的字段为 nil
type RunContext struct {
	CustomerProfile tools.Payload  `json:"customer_profile"`
	OpenTickets     tools.Payload  `json:"open_tickets"`
	KBResults       tools.Payload  `json:"kb_results"`
	PendingWrites   []PendingWrite `json:"pending_writes"`
}

// PlanExecutor 计划执行器
type PlanExecutor struct {
	tools  Invoker
	logger *log.Logger
}

// New 创建计划执行器
func New(invoker Invoker, logger *log.Logger) *PlanExecutor {
	if logger == nil {
		logger = log.Nop()
	}
	return &PlanExecutor{tools: invoker, logger: logger}
}

// Execute 顺序执行计划。写步骤在本轮从不执行：skipWrites 为 true 时原样记入 PendingWrites，否则忽略。
// 读步骤按动作分发，每次分发恰好产生一条审计；generate_response 与未知动作被跳过
func (e *PlanExecutor) Execute(ctx context.Context, plan planner.Plan, customerID int64, runID string, skipWrites bool) *RunContext {
	rc := &RunContext{PendingWrites: []PendingWrite{}}
	for _, step := range plan {
		if step.Type == planner.KindWrite {
			if skipWrites {
				rc.PendingWrites = append(rc.PendingWrites, PendingWrite{
					Step:        step.Step,
					Action:      step.Action,
					Description: step.Description,
					Params:      copyParams(step.Params),
					Status:      planner.StatusPending,
				})
			}
			continue
		}

		switch step.Action {
		case planner.ActionGetCustomerProfile:
			id := planner.ParamInt64(step.Params, "customer_id", customerID)
			rc.CustomerProfile = e.tools.Invoke(ctx, runID, string(step.Action), map[string]any{"customer_id": id})
		case planner.ActionGetOpenTickets:
			id := planner.ParamInt64(step.Params, "customer_id", customerID)
			rc.OpenTickets = e.tools.Invoke(ctx, runID, string(step.Action), map[string]any{"customer_id": id})
		case planner.ActionSearchKB:
			q := planner.ParamString(step.Params, "query", "")
			rc.KBResults = e.tools.Invoke(ctx, runID, string(step.Action), map[string]any{"query": q})
		case planner.ActionGenerateResponse:
		default:
			e.logger.Debug("跳过未知读步骤", "run_id", runID, "step", step.Step, "action", step.Action)
		}
	}
	return rc
}

func copyParams(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
