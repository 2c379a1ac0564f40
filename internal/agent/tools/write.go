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
	"fmt"

	"support-agent/internal/agent/planner"
	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/log"
	"support-agent/pkg/metrics"
	"support-agent/pkg/tracing"
)

// WriteRunner 执行已审批的写动作；不做幂等，重复执行会产生重复工单
type WriteRunner struct {
	store   helpdesk.Store
	auditor *Auditor
	logger  *log.Logger
}

// NewWriteRunner 创建写动作执行器
func NewWriteRunner(store helpdesk.Store, auditor *Auditor, logger *log.Logger) *WriteRunner {
	if logger == nil {
		logger = log.Nop()
	}
	return &WriteRunner{store: store, auditor: auditor, logger: logger}
}

// Run 执行写动作并追加一条审计记录（未知动作同样审计），审计输入为调用方原始参数
func (w *WriteRunner) Run(ctx context.Context, action planner.Action, params map[string]any, runID string) Payload {
	ctx, span := tracing.StartToolSpan(ctx, string(action), runID)
	defer span.End()

	var out Payload
	switch action {
	case planner.ActionCreateTicket:
		out = w.createTicket(ctx, planner.DecodeCreateTicket(params, 0))
	case planner.ActionEscalateToHuman:
		out = w.createTicket(ctx, planner.DecodeEscalate(params, 0).ToTicket())
	default:
		out = ErrorPayload("Unknown write action: " + string(action))
	}

	success := !out.Failed()
	metrics.WriteActionTotal.WithLabelValues(string(action), metrics.BoolLabel(success)).Inc()
	if !success {
		w.logger.Warn("写动作执行失败", "run_id", runID, "action", action, "error", out.Error())
	}
	w.auditor.Record(ctx, runID, string(action), params, out, success)
	return out
}

func (w *WriteRunner) createTicket(ctx context.Context, p planner.CreateTicketParams) Payload {
	if p.CustomerID <= 0 {
		return ErrorPayload("customer_id is required")
	}
	t := &helpdesk.Ticket{
		CustomerID:  p.CustomerID,
		Title:       p.Title,
		Description: p.Description,
		Status:      helpdesk.TicketOpen,
		Priority:    p.Priority,
		Category:    p.Category,
	}
	if err := w.store.CreateTicket(ctx, t); err != nil {
		return ErrorPayload(err.Error())
	}
	return Payload{
		"ticket_id":   t.ID,
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"priority":    t.Priority,
		"category":    t.Category,
		"created_at":  formatTime(t.CreatedAt),
		"message":     fmt.Sprintf("Ticket #%d created successfully", t.ID),
	}
}
