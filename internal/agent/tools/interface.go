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

// Package tools 提供计划步骤调用的只读工具、写动作执行器与审计
package tools

import (
	"context"
)

// Payload 工具输出；失败时包含 "error" 键
type Payload map[string]any

// ErrorKey 失败输出中的错误键
const ErrorKey = "error"

// ErrorPayload 构造失败输出
func ErrorPayload(msg string) Payload {
	return Payload{ErrorKey: msg}
}

// Failed 输出是否表示失败
func (p Payload) Failed() bool {
	if p == nil {
		return false
	}
	_, ok := p[ErrorKey]
	return ok
}

// Error 返回错误信息；成功时为空串
func (p Payload) Error() string {
	if s, ok := p[ErrorKey].(string); ok {
		return s
	}
	return ""
}

// Tool 计划步骤可调用的工具；Execute 不返回 error，失败以 ErrorPayload 表达
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, runID string, params map[string]any) Payload
}
