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
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"support-agent/pkg/errors"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tickets (
	id BIGSERIAL PRIMARY KEY,
	customer_id BIGINT NOT NULL REFERENCES customers(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	category TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tickets_customer ON tickets(customer_id, status);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	customer_id BIGINT NOT NULL,
	direction TEXT NOT NULL,
	channel TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_customer ON messages(customer_id);

CREATE TABLE IF NOT EXISTS agent_runs (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	customer_id BIGINT NOT NULL,
	input_text TEXT NOT NULL,
	intent TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	plan_json TEXT NOT NULL,
	final_reply TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_customer ON agent_runs(customer_id, seq);

CREATE TABLE IF NOT EXISTS tool_audit (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input_json TEXT NOT NULL,
	output_json TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_run ON tool_audit(run_id, id);
`

// PgStore PostgreSQL 实现，API 多实例共享
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的存储；poolSize<=0 时使用 pgxpool 默认值
func NewPgStore(ctx context.Context, dsn string, poolSize int) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("初始化 postgres 表结构失败: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

func pgNotFound(err error, format string, args ...interface{}) error {
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(errors.ErrNotFound, format, args...)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateCustomer 创建客户
func (s *PgStore) CreateCustomer(ctx context.Context, c *Customer) error {
	if c == nil {
		return errors.Wrap(errors.ErrInvalidArg, "customer is nil")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var err error
	if c.ID != 0 {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO customers (id, name, email, company, created_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.Name, c.Email, c.Company, c.CreatedAt)
	} else {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO customers (name, email, company, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			c.Name, c.Email, c.Company, c.CreatedAt).Scan(&c.ID)
	}
	if isUniqueViolation(err) {
		return errors.Wrapf(errors.ErrConflict, "customer %d", c.ID)
	}
	return err
}

// GetCustomer 获取客户
func (s *PgStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, company, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Company, &c.CreatedAt)
	if err != nil {
		return nil, pgNotFound(err, "customer %d", id)
	}
	return &c, nil
}

// ListCustomers 列出客户
func (s *PgStore) ListCustomers(ctx context.Context) ([]*Customer, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, email, company, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Customer, 0)
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanPgTicket(r pgx.Row) (*Ticket, error) {
	var t Ticket
	if err := r.Scan(&t.ID, &t.CustomerID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Category,
		&t.CreatedAt, &t.UpdatedAt, &t.ClosedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicket 创建工单
func (s *PgStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if t == nil {
		return errors.Wrap(errors.ErrInvalidArg, "ticket is nil")
	}
	if t.Status == "" {
		t.Status = TicketOpen
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	return s.pool.QueryRow(ctx,
		`INSERT INTO tickets (customer_id, title, description, status, priority, category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		t.CustomerID, t.Title, t.Description, t.Status, t.Priority, t.Category, now).Scan(&t.ID)
}

// GetTicket 获取工单
func (s *PgStore) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	t, err := scanPgTicket(s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "ticket %d", id)
	}
	return t, nil
}

// ListTickets 列出工单，新建在前
func (s *PgStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(` AND customer_id = $%d`, len(args))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, filter.Statuses)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Ticket, 0)
	for rows.Next() {
		t, err := scanPgTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CloseTicket 关闭工单
func (s *PgStore) CloseTicket(ctx context.Context, id int64) (*Ticket, error) {
	t, err := scanPgTicket(s.pool.QueryRow(ctx,
		`UPDATE tickets SET status = $1, updated_at = now(), closed_at = now() WHERE id = $2 RETURNING `+ticketColumns,
		TicketClosed, id))
	if err != nil {
		return nil, pgNotFound(err, "ticket %d", id)
	}
	return t, nil
}

// SaveMessage 保存消息
func (s *PgStore) SaveMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return errors.Wrap(errors.ErrInvalidArg, "message is nil")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO messages (customer_id, direction, channel, subject, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		m.CustomerID, m.Direction, m.Channel, m.Subject, m.Body, m.CreatedAt).Scan(&m.ID)
}

// ListMessages 列出客户消息
func (s *PgStore) ListMessages(ctx context.Context, customerID int64) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_id, direction, channel, subject, body, created_at FROM messages WHERE customer_id = $1 ORDER BY id`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Direction, &m.Channel, &m.Subject, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CreateRun 创建 Run
func (s *PgStore) CreateRun(ctx context.Context, r *AgentRun) error {
	if r == nil || r.ID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "run id is empty")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_runs (id, customer_id, input_text, intent, confidence, plan_json, final_reply, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.CustomerID, r.InputText, r.Intent, r.Confidence, r.PlanJSON, r.FinalReply, r.CreatedAt)
	if isUniqueViolation(err) {
		return errors.Wrapf(errors.ErrConflict, "run %s", r.ID)
	}
	return err
}

func scanPgRun(row pgx.Row) (*AgentRun, error) {
	var r AgentRun
	if err := row.Scan(&r.ID, &r.CustomerID, &r.InputText, &r.Intent, &r.Confidence,
		&r.PlanJSON, &r.FinalReply, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun 获取 Run
func (s *PgStore) GetRun(ctx context.Context, id string) (*AgentRun, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err, "run %s", id)
	}
	return r, nil
}

// LatestRun 客户最近一次 Run
func (s *PgStore) LatestRun(ctx context.Context, customerID int64) (*AgentRun, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE customer_id = $1 ORDER BY seq DESC LIMIT 1`, customerID))
	if err != nil {
		return nil, pgNotFound(err, "run for customer %d", customerID)
	}
	return r, nil
}

// UpdateRunPlan 更新计划 JSON
func (s *PgStore) UpdateRunPlan(ctx context.Context, runID string, planJSON string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE agent_runs SET plan_json = $1 WHERE id = $2`, planJSON, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	return nil
}

// UpdateRunReply 保存最终回复
func (s *PgStore) UpdateRunReply(ctx context.Context, runID string, reply string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE agent_runs SET final_reply = $1 WHERE id = $2`, reply, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	return nil
}

// AppendAudit 追加审计记录
func (s *PgStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e == nil {
		return errors.Wrap(errors.ErrInvalidArg, "audit entry is nil")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO tool_audit (run_id, tool_name, input_json, output_json, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.RunID, e.ToolName, e.InputJSON, e.OutputJSON, e.Success, e.CreatedAt).Scan(&e.ID)
}

// ListAudit 列出审计记录
func (s *PgStore) ListAudit(ctx context.Context, runID string) ([]*AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, tool_name, input_json, output_json, success, created_at FROM tool_audit WHERE run_id = $1 ORDER BY id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.ToolName, &e.InputJSON, &e.OutputJSON, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
