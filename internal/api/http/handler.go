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

package http

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"support-agent/internal/agent"
	"support-agent/internal/agent/planner"
	"support-agent/internal/kb"
	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/errors"
	"support-agent/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	agent *agent.Agent
	store helpdesk.Store
	kb    *kb.KnowledgeBase
	topK  int
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(a *agent.Agent, store helpdesk.Store, knowledge *kb.KnowledgeBase) *Handler {
	return &Handler{agent: a, store: store, kb: knowledge, topK: kb.DefaultTopK}
}

// SetTopK 设置 /api/kb/search 返回条数
func (h *Handler) SetTopK(k int) {
	if k > 0 {
		h.topK = k
	}
}

// writeError 将领域错误映射为 HTTP 状态码
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, errors.ErrInvalidArg):
		status = consts.StatusBadRequest
	case errors.Is(err, errors.ErrConflict):
		status = consts.StatusConflict
	default:
		hlog.CtxErrorf(ctx, "request %s failed: %v", c.Path(), err)
	}
	c.JSON(status, map[string]string{"error": err.Error()})
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, map[string]string{"error": msg})
}

func paramID(c *app.RequestContext, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}
	if h.kb != nil {
		body["kb"] = map[string]interface{}{"state": h.kb.State().String(), "chunks": h.kb.Len()}
	}
	c.JSON(consts.StatusOK, body)
}

// Metrics 输出 Prometheus 文本格式指标
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// ListCustomers GET /api/customers
func (h *Handler) ListCustomers(ctx context.Context, c *app.RequestContext) {
	list, err := h.store.ListCustomers(ctx)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if list == nil {
		list = []*helpdesk.Customer{}
	}
	c.JSON(consts.StatusOK, list)
}

type createCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

// CreateCustomer POST /api/customers
func (h *Handler) CreateCustomer(ctx context.Context, c *app.RequestContext) {
	var req createCustomerRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		badRequest(c, "name and email are required")
		return
	}
	cust := &helpdesk.Customer{Name: req.Name, Email: req.Email, Company: req.Company}
	if err := h.store.CreateCustomer(ctx, cust); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, cust)
}

// ListMessages GET /api/customers/:id/messages
func (h *Handler) ListMessages(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetCustomer(ctx, id); err != nil {
		writeError(ctx, c, err)
		return
	}
	list, err := h.store.ListMessages(ctx, id)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if list == nil {
		list = []*helpdesk.Message{}
	}
	c.JSON(consts.StatusOK, list)
}

// CreateMessage POST /api/customers/:id/messages：保存消息并运行 Agent
func (h *Handler) CreateMessage(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req agent.MessageRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(c, "text is required")
		return
	}
	res, err := h.agent.HandleMessage(ctx, id, req)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

type approveRequest struct {
	DraftText string `json:"draft_text"`
}

// Approve POST /api/customers/:id/approve：发送草稿并执行待审批写动作
func (h *Handler) Approve(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req approveRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DraftText) == "" {
		badRequest(c, "draft_text is required")
		return
	}
	res, err := h.agent.Approve(ctx, id, req.DraftText)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// LatestRun GET /api/customers/:id/latest-agent-run
func (h *Handler) LatestRun(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	run, err := h.agent.LatestRun(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		c.JSON(consts.StatusOK, map[string]interface{}{"agent_run": nil})
		return
	}
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"agent_run": run})
}

type executeActionRequest struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
}

// ExecuteAction POST /api/agent-runs/:id/execute-action
func (h *Handler) ExecuteAction(ctx context.Context, c *app.RequestContext) {
	runID := c.Param("id")
	var req executeActionRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Action == "" {
		badRequest(c, "action is required")
		return
	}
	res, err := h.agent.ExecuteAction(ctx, runID, req.Action, planner.NormalizeParams(req.Params))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// statusFilter 解析 ?status=open|closed|all
func statusFilter(c *app.RequestContext, def string) ([]string, bool) {
	s := c.Query("status")
	if s == "" {
		s = def
	}
	switch s {
	case "open":
		return helpdesk.OpenStatuses, true
	case "closed":
		return []string{helpdesk.TicketClosed}, true
	case "all":
		return nil, true
	}
	badRequest(c, "status must be one of open, closed, all")
	return nil, false
}

// ListTickets GET /api/tickets?status=all
func (h *Handler) ListTickets(ctx context.Context, c *app.RequestContext) {
	statuses, ok := statusFilter(c, "all")
	if !ok {
		return
	}
	h.writeTickets(ctx, c, helpdesk.TicketFilter{Statuses: statuses})
}

// ListCustomerTickets GET /api/customers/:id/tickets?status=open
func (h *Handler) ListCustomerTickets(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	statuses, ok := statusFilter(c, "open")
	if !ok {
		return
	}
	if _, err := h.store.GetCustomer(ctx, id); err != nil {
		writeError(ctx, c, err)
		return
	}
	h.writeTickets(ctx, c, helpdesk.TicketFilter{CustomerID: id, Statuses: statuses})
}

func (h *Handler) writeTickets(ctx context.Context, c *app.RequestContext, f helpdesk.TicketFilter) {
	list, err := h.store.ListTickets(ctx, f)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if list == nil {
		list = []*helpdesk.Ticket{}
	}
	c.JSON(consts.StatusOK, list)
}

type createTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

// CreateTicket POST /api/customers/:id/tickets：人工创建工单
func (h *Handler) CreateTicket(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req createTicketRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		badRequest(c, "title is required")
		return
	}
	if _, err := h.store.GetCustomer(ctx, id); err != nil {
		writeError(ctx, c, err)
		return
	}
	params := map[string]any{"title": req.Title, "description": req.Description}
	if req.Priority != "" {
		params["priority"] = req.Priority
	}
	if req.Category != "" {
		params["category"] = req.Category
	}
	p := planner.DecodeCreateTicket(params, id)
	t := &helpdesk.Ticket{
		CustomerID:  id,
		Title:       p.Title,
		Description: p.Description,
		Status:      helpdesk.TicketOpen,
		Priority:    p.Priority,
		Category:    p.Category,
	}
	if err := h.store.CreateTicket(ctx, t); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, t)
}

// CloseCustomerTicket POST /api/customers/:id/tickets/:ticket_id/close
func (h *Handler) CloseCustomerTicket(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ticketID, ok := paramID(c, "ticket_id")
	if !ok {
		return
	}
	t, err := h.store.GetTicket(ctx, ticketID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if t.CustomerID != id {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	h.closeTicket(ctx, c, ticketID)
}

// CloseTicket POST /api/tickets/:id/close
func (h *Handler) CloseTicket(ctx context.Context, c *app.RequestContext) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.closeTicket(ctx, c, id)
}

func (h *Handler) closeTicket(ctx context.Context, c *app.RequestContext, id int64) {
	t, err := h.store.CloseTicket(ctx, id)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, t)
}

// KBSearch GET /api/kb/search?q=
func (h *Handler) KBSearch(ctx context.Context, c *app.RequestContext) {
	q := c.Query("q")
	results := []kb.SearchResult{}
	if strings.TrimSpace(q) != "" {
		if found := h.kb.Search(strings.TrimSpace(q), h.topK); found != nil {
			results = found
		}
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"results": results, "query": q})
}

// KBReload POST /api/kb/reload：重新读取知识库目录
func (h *Handler) KBReload(ctx context.Context, c *app.RequestContext) {
	if err := h.kb.Reload(); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "reloaded",
		"chunks":    h.kb.Len(),
		"loaded_at": h.kb.LoadedAt(),
	})
}
