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

	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/log"
)

// AuditSink 审计记录落盘目标（helpdesk.Store 满足该接口）
type AuditSink interface {
	AppendAudit(ctx context.Context, e *helpdesk.AuditEntry) error
}

// Auditor 将工具调用写入只增的审计轨迹
type Auditor struct {
	sink   AuditSink
	logger *log.Logger
}

// NewAuditor 创建审计器；sink 为 nil 时不落盘
func NewAuditor(sink AuditSink, logger *log.Logger) *Auditor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Auditor{sink: sink, logger: logger}
}

// Record 追加一条审计记录；落盘失败只记日志，不影响调用方
func (a *Auditor) Record(ctx context.Context, runID, toolName string, input, output any, success bool) {
	if a == nil || a.sink == nil {
		return
	}
	e := &helpdesk.AuditEntry{
		RunID:      runID,
		ToolName:   toolName,
		InputJSON:  marshalJSON(input),
		OutputJSON: marshalJSON(output),
		Success:    success,
	}
	if err := a.sink.AppendAudit(ctx, e); err != nil {
		a.logger.Error("写入审计记录失败", "run_id", runID, "tool", toolName, "error", err)
	}
}

func marshalJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"unserializable"}`
	}
	return string(b)
}
