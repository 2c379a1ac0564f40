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
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"support-agent/pkg/errors"
)

// sqliteSchema 时间列以 UTC 纳秒整数保存
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER NOT NULL REFERENCES customers(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	category TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	closed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tickets_customer ON tickets(customer_id, status);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id INTEGER NOT NULL,
	direction TEXT NOT NULL,
	channel TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_customer ON messages(customer_id);

CREATE TABLE IF NOT EXISTS agent_runs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	customer_id INTEGER NOT NULL,
	input_text TEXT NOT NULL,
	intent TEXT NOT NULL,
	confidence REAL NOT NULL,
	plan_json TEXT NOT NULL,
	final_reply TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_customer ON agent_runs(customer_id);

CREATE TABLE IF NOT EXISTS tool_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input_json TEXT NOT NULL,
	output_json TEXT NOT NULL,
	success INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_run ON tool_audit(run_id);
`

// SQLiteStore 基于 modernc.org/sqlite 的单文件存储
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 打开或创建 SQLite 数据库并初始化表结构
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	// 单写者，避免 database is locked
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化 sqlite 表结构失败: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path 数据库文件路径
func (s *SQLiteStore) Path() string { return s.path }

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nowUTC() time.Time { return time.Now().UTC() }

// notFound 将 sql.ErrNoRows 转为 ErrNotFound
func notFound(err error, format string, args ...interface{}) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(errors.ErrNotFound, format, args...)
	}
	return err
}

// CreateCustomer 创建客户
func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *Customer) error {
	if c == nil {
		return errors.Wrap(errors.ErrInvalidArg, "customer is nil")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = nowUTC()
	}
	var (
		res sql.Result
		err error
	)
	if c.ID != 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO customers (id, name, email, company, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Email, c.Company, toNanos(c.CreatedAt))
	} else {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO customers (name, email, company, created_at) VALUES (?, ?, ?, ?)`,
			c.Name, c.Email, c.Company, toNanos(c.CreatedAt))
	}
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return errors.Wrapf(errors.ErrConflict, "customer %d", c.ID)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// GetCustomer 获取客户
func (s *SQLiteStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, company, created_at FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Company, &created)
	if err != nil {
		return nil, notFound(err, "customer %d", id)
	}
	c.CreatedAt = fromNanos(created)
	return &c, nil
}

// ListCustomers 列出客户
func (s *SQLiteStore) ListCustomers(ctx context.Context) ([]*Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, company, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Customer, 0)
	for rows.Next() {
		var c Customer
		var created int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Company, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = fromNanos(created)
		out = append(out, &c)
	}
	return out, rows.Err()
}

const ticketColumns = `id, customer_id, title, description, status, priority, category, created_at, updated_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(r rowScanner) (*Ticket, error) {
	var t Ticket
	var created, updated int64
	var closed sql.NullInt64
	if err := r.Scan(&t.ID, &t.CustomerID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Category,
		&created, &updated, &closed); err != nil {
		return nil, err
	}
	t.CreatedAt, t.UpdatedAt = fromNanos(created), fromNanos(updated)
	if closed.Valid {
		ct := fromNanos(closed.Int64)
		t.ClosedAt = &ct
	}
	return &t, nil
}

// CreateTicket 创建工单
func (s *SQLiteStore) CreateTicket(ctx context.Context, t *Ticket) error {
	if t == nil {
		return errors.Wrap(errors.ErrInvalidArg, "ticket is nil")
	}
	if t.Status == "" {
		t.Status = TicketOpen
	}
	now := nowUTC()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (customer_id, title, description, status, priority, category, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.CustomerID, t.Title, t.Description, t.Status, t.Priority, t.Category, toNanos(now), toNanos(now))
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTicket 获取工单
func (s *SQLiteStore) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	t, err := scanSQLiteTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "ticket %d", id)
	}
	return t, nil
}

// ListTickets 列出工单，新建在前
func (s *SQLiteStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any
	if filter.CustomerID != 0 {
		query += ` AND customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(filter.Statuses)-1) + `)`
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Ticket, 0)
	for rows.Next() {
		t, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CloseTicket 关闭工单
func (s *SQLiteStore) CloseTicket(ctx context.Context, id int64) (*Ticket, error) {
	now := toNanos(nowUTC())
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ?, closed_at = ? WHERE id = ?`, TicketClosed, now, now, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "ticket %d", id)
	}
	return s.GetTicket(ctx, id)
}

// SaveMessage 保存消息
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return errors.Wrap(errors.ErrInvalidArg, "message is nil")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = nowUTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (customer_id, direction, channel, subject, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.CustomerID, m.Direction, m.Channel, m.Subject, m.Body, toNanos(m.CreatedAt))
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListMessages 列出客户消息
func (s *SQLiteStore) ListMessages(ctx context.Context, customerID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, direction, channel, subject, body, created_at FROM messages WHERE customer_id = ? ORDER BY id`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*Message, 0)
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Direction, &m.Channel, &m.Subject, &m.Body, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = fromNanos(created)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CreateRun 创建 Run
func (s *SQLiteStore) CreateRun(ctx context.Context, r *AgentRun) error {
	if r == nil || r.ID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "run id is empty")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = nowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, customer_id, input_text, intent, confidence, plan_json, final_reply, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CustomerID, r.InputText, r.Intent, r.Confidence, r.PlanJSON, r.FinalReply, toNanos(r.CreatedAt))
	return err
}

const runColumns = `id, customer_id, input_text, intent, confidence, plan_json, final_reply, created_at`

func scanSQLiteRun(r rowScanner) (*AgentRun, error) {
	var run AgentRun
	var created int64
	if err := r.Scan(&run.ID, &run.CustomerID, &run.InputText, &run.Intent, &run.Confidence,
		&run.PlanJSON, &run.FinalReply, &created); err != nil {
		return nil, err
	}
	run.CreatedAt = fromNanos(created)
	return &run, nil
}

// GetRun 获取 Run
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*AgentRun, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "run %s", id)
	}
	return r, nil
}

// LatestRun 客户最近一次 Run
func (s *SQLiteStore) LatestRun(ctx context.Context, customerID int64) (*AgentRun, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM agent_runs WHERE customer_id = ? ORDER BY seq DESC LIMIT 1`, customerID))
	if err != nil {
		return nil, notFound(err, "run for customer %d", customerID)
	}
	return r, nil
}

func (s *SQLiteStore) updateRun(ctx context.Context, runID, column, value string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agent_runs SET `+column+` = ? WHERE id = ?`, value, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	return nil
}

// UpdateRunPlan 更新计划 JSON
func (s *SQLiteStore) UpdateRunPlan(ctx context.Context, runID string, planJSON string) error {
	return s.updateRun(ctx, runID, "plan_json", planJSON)
}

// UpdateRunReply 保存最终回复
func (s *SQLiteStore) UpdateRunReply(ctx context.Context, runID string, reply string) error {
	return s.updateRun(ctx, runID, "final_reply", reply)
}

// AppendAudit 追加审计记录
func (s *SQLiteStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	if e == nil {
		return errors.Wrap(errors.ErrInvalidArg, "audit entry is nil")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = nowUTC()
	}
	success := 0
	if e.Success {
		success = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_audit (run_id, tool_name, input_json, output_json, success, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.ToolName, e.InputJSON, e.OutputJSON, success, toNanos(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListAudit 列出审计记录
func (s *SQLiteStore) ListAudit(ctx context.Context, runID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, tool_name, input_json, output_json, success, created_at FROM tool_audit WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		var success int
		var created int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.ToolName, &e.InputJSON, &e.OutputJSON, &success, &created); err != nil {
			return nil, err
		}
		e.Success = success != 0
		e.CreatedAt = fromNanos(created)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
