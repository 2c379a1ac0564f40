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

package helpdesk

import (
	"context"
	"sort"
	"sync"
	"time"

	"support-agent/pkg/errors"
)

// MemoryStore 内存存储实现，用于开发与测试
type MemoryStore struct {
	mu sync.RWMutex

	customers map[int64]*Customer
	tickets   map[int64]*Ticket
	messages  []*Message
	runs      map[string]*AgentRun
	runOrder  []string
	audit     map[string][]*AuditEntry

	nextCustomer int64
	nextTicket   int64
	nextMessage  int64
	nextAudit    int64
	now          func() time.Time
}

// NewMemoryStore 创建新的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[int64]*Customer),
		tickets:   make(map[int64]*Ticket),
		runs:      make(map[string]*AgentRun),
		audit:     make(map[string][]*AuditEntry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateCustomer 创建客户
func (s *MemoryStore) CreateCustomer(ctx context.Context, c *Customer) error {
	if c == nil {
		return errors.Wrap(errors.ErrInvalidArg, "customer is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextCustomer++
		c.ID = s.nextCustomer
	} else if c.ID > s.nextCustomer {
		s.nextCustomer = c.ID
	}
	if _, exists := s.customers[c.ID]; exists {
		return errors.Wrapf(errors.ErrConflict, "customer %d", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	cp := *c
	s.customers[c.ID] = &cp
	return nil
}

// GetCustomer 根据 ID 获取客户
func (s *MemoryStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "customer %d", id)
	}
	cp := *c
	return &cp, nil
}

// ListCustomers 列出客户
func (s *MemoryStore) ListCustomers(ctx context.Context) ([]*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Customer, 0, len(s.customers))
	for _, c := range s.customers {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateTicket 创建工单
func (s *MemoryStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if t == nil {
		return errors.Wrap(errors.ErrInvalidArg, "ticket is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTicket++
	t.ID = s.nextTicket
	now := s.now()
	if t.Status == "" {
		t.Status = TicketOpen
	}
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

// GetTicket 根据 ID 获取工单
func (s *MemoryStore) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "ticket %d", id)
	}
	cp := *t
	return &cp, nil
}

// ListTickets 列出工单，新建在前
func (s *MemoryStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Ticket, 0)
	for _, t := range s.tickets {
		if filter.match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CloseTicket 关闭工单
func (s *MemoryStore) CloseTicket(ctx context.Context, id int64) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "ticket %d", id)
	}
	now := s.now()
	t.Status = TicketClosed
	t.UpdatedAt = now
	t.ClosedAt = &now
	cp := *t
	return &cp, nil
}

// SaveMessage 保存消息
func (s *MemoryStore) SaveMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return errors.Wrap(errors.ErrInvalidArg, "message is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessage++
	m.ID = s.nextMessage
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

// ListMessages 列出客户消息
func (s *MemoryStore) ListMessages(ctx context.Context, customerID int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Message, 0)
	for _, m := range s.messages {
		if m.CustomerID == customerID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CreateRun 创建 Run
func (s *MemoryStore) CreateRun(ctx context.Context, r *AgentRun) error {
	if r == nil || r.ID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "run id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; exists {
		return errors.Wrapf(errors.ErrConflict, "run %s", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	cp := *r
	s.runs[r.ID] = &cp
	s.runOrder = append(s.runOrder, r.ID)
	return nil
}

// GetRun 获取 Run
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*AgentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	cp := *r
	return &cp, nil
}

// LatestRun 客户最近一次 Run（按创建顺序）
func (s *MemoryStore) LatestRun(ctx context.Context, customerID int64) (*AgentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		r := s.runs[s.runOrder[i]]
		if r.CustomerID == customerID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "run for customer %d", customerID)
}

// UpdateRunPlan 更新计划 JSON
func (s *MemoryStore) UpdateRunPlan(ctx context.Context, runID string, planJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	r.PlanJSON = planJSON
	return nil
}

// UpdateRunReply 保存最终回复
func (s *MemoryStore) UpdateRunReply(ctx context.Context, runID string, reply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	r.FinalReply = reply
	return nil
}

// AppendAudit 追加审计记录
func (s *MemoryStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e == nil {
		return errors.Wrap(errors.ErrInvalidArg, "audit entry is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAudit++
	e.ID = s.nextAudit
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	cp := *e
	s.audit[e.RunID] = append(s.audit[e.RunID], &cp)
	return nil
}

// ListAudit 列出审计记录
func (s *MemoryStore) ListAudit(ctx context.Context, runID string) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[runID]
	out := make([]*AuditEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	return nil
}
