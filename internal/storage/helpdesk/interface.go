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

// Package helpdesk 持久化客户、工单、会话消息、Agent Run 与审计记录
package helpdesk

import (
	"context"
	"time"
)

// Store 客服数据存储接口；查询不到时返回包装了 errors.ErrNotFound 的错误
type Store interface {
	// CreateCustomer 创建客户，ID 为 0 时自动分配
	CreateCustomer(ctx context.Context, c *Customer) error
	// GetCustomer 根据 ID 获取客户
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	// ListCustomers 按 ID 升序列出客户
	ListCustomers(ctx context.Context) ([]*Customer, error)

	// CreateTicket 创建工单，自动分配 ID 与时间
	CreateTicket(ctx context.Context, t *Ticket) error
	// GetTicket 根据 ID 获取工单
	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	// ListTickets 按创建时间倒序列出工单
	ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error)
	// CloseTicket 关闭工单并记录关闭时间
	CloseTicket(ctx context.Context, id int64) (*Ticket, error)

	// SaveMessage 保存一条入站或出站消息
	SaveMessage(ctx context.Context, m *Message) error
	// ListMessages 按时间升序列出客户的消息
	ListMessages(ctx context.Context, customerID int64) ([]*Message, error)

	// CreateRun 创建 Agent Run
	CreateRun(ctx context.Context, r *AgentRun) error
	// GetRun 根据 ID 获取 Run
	GetRun(ctx context.Context, id string) (*AgentRun, error)
	// LatestRun 获取客户最近一次 Run
	LatestRun(ctx context.Context, customerID int64) (*AgentRun, error)
	// UpdateRunPlan 更新 Run 的计划 JSON（写步骤状态变化后持久化）
	UpdateRunPlan(ctx context.Context, runID string, planJSON string) error
	// UpdateRunReply 保存 Run 的最终回复
	UpdateRunReply(ctx context.Context, runID string, reply string) error

	// AppendAudit 追加一条审计记录，只增不改
	AppendAudit(ctx context.Context, e *AuditEntry) error
	// ListAudit 按追加顺序列出 Run 的审计记录
	ListAudit(ctx context.Context, runID string) ([]*AuditEntry, error)

	// Close 关闭存储连接
	Close() error
}

// 工单状态
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// 消息方向
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Customer 客户
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
}

// Ticket 工单
type Ticket struct {
	ID          int64      `json:"id"`
	CustomerID  int64      `json:"customer_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// IsOpen 工单是否仍在处理中（open 或 in_progress）
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketOpen || t.Status == TicketInProgress
}

// TicketFilter 工单过滤条件；零值表示不过滤
type TicketFilter struct {
	CustomerID int64    `json:"customer_id"`
	Statuses   []string `json:"statuses"`
}

func (f TicketFilter) match(t *Ticket) bool {
	if f.CustomerID != 0 && t.CustomerID != f.CustomerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// OpenStatuses 视为未关闭的工单状态
var OpenStatuses = []string{TicketOpen, TicketInProgress}

// Message 客户会话消息
type Message struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Direction  string    `json:"direction"`
	Channel    string    `json:"channel"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// AgentRun 一次消息处理的记录
type AgentRun struct {
	ID         string    `json:"id"`
	CustomerID int64     `json:"customer_id"`
	InputText  string    `json:"input_text"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	PlanJSON   string    `json:"plan_json"`
	FinalReply string    `json:"final_reply"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry 工具调用审计记录
type AuditEntry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	ToolName   string    `json:"tool_name"`
	InputJSON  string    `json:"input_json"`
	OutputJSON string    `json:"output_json"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}
