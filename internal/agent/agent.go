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

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"support-agent/internal/agent/executor"
	"support-agent/internal/agent/intent"
	"support-agent/internal/agent/planner"
	"support-agent/internal/agent/reply"
	"support-agent/internal/agent/tools"
	"support-agent/internal/kb"
	"support-agent/internal/storage/cache"
	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/errors"
	"support-agent/pkg/log"
	"support-agent/pkg/metrics"
	"support-agent/pkg/tracing"
)

// ChannelChat 聊天渠道
const ChannelChat = "chat"

// Status 消息处理结果状态
type Status string

const (
	StatusSent            Status = "sent"
	StatusPendingApproval Status = "pending_approval"
)

// RunView 返回给调用方的 Run 视图（含按顺序排列的审计记录）
type RunView struct {
	ID            string                  `json:"id"`
	CustomerID    int64                   `json:"customer_id"`
	InputText     string                  `json:"input_text"`
	Intent        string                  `json:"intent"`
	Confidence    float64                 `json:"confidence"`
	PlanJSON      string                  `json:"plan_json"`
	FinalReply    string                  `json:"final_reply"`
	CreatedAt     time.Time               `json:"created_at"`
	AuditLogs     []*helpdesk.AuditEntry  `json:"audit_logs"`
	PendingWrites []executor.PendingWrite `json:"pending_writes,omitempty"`
}

// MessageRequest 入站消息；RequiresApproval 为 nil 时使用默认配置
type MessageRequest struct {
	Text             string `json:"text"`
	RequiresApproval *bool  `json:"requires_approval,omitempty"`
}

// MessageResult 单条消息的处理结果
type MessageResult struct {
	Status          Status                  `json:"status"`
	CustomerMessage *helpdesk.Message       `json:"customer_message"`
	AgentMessage    *helpdesk.Message       `json:"agent_message,omitempty"`
	DraftReply      string                  `json:"draft_reply,omitempty"`
	AgentRun        *RunView                `json:"agent_run"`
	PendingWrites   []executor.PendingWrite `json:"pending_writes,omitempty"`
}

// ExecutedAction 审批时执行的写步骤
type ExecutedAction struct {
	Action planner.Action `json:"action"`
	Step   int            `json:"step"`
	Result tools.Payload  `json:"result"`
}

// ApproveResult 审批结果
type ApproveResult struct {
	Status          Status            `json:"status"`
	AgentMessage    *helpdesk.Message `json:"agent_message"`
	ExecutedActions []ExecutedAction  `json:"executed_actions"`
}

// ActionResult 直接执行写动作的结果
type ActionResult struct {
	Success bool          `json:"success"`
	Action  string        `json:"action"`
	Result  tools.Payload `json:"result"`
}

// Agent 客服消息流水线：分类 -> 计划 -> 执行读步骤 -> 生成回复 -> 审批后执行写步骤
type Agent struct {
	store           helpdesk.Store
	claims          cache.Store
	classifier      *intent.Classifier
	replies         *reply.Generator
	executor        *executor.PlanExecutor
	writes          *tools.WriteRunner
	auditor         *tools.Auditor
	requireApproval bool
	claimTTL        time.Duration
	topK            int
	logger          *log.Logger
}

// Option 可选配置
type Option func(*Agent)

// WithClassifier 设置意图分类器
func WithClassifier(c *intent.Classifier) Option {
	return func(a *Agent) { a.classifier = c }
}

// WithReplyGenerator 设置回复生成器
func WithReplyGenerator(g *reply.Generator) Option {
	return func(a *Agent) { a.replies = g }
}

// WithClaims 设置审批认领使用的缓存（多实例部署时应为共享的 redis）
func WithClaims(c cache.Store) Option {
	return func(a *Agent) { a.claims = c }
}

// WithApprovalDefault 请求未指定时是否需要审批
func WithApprovalDefault(required bool) Option {
	return func(a *Agent) { a.requireApproval = required }
}

// WithClaimTTL 审批认领的过期时间
func WithClaimTTL(d time.Duration) Option {
	return func(a *Agent) { a.claimTTL = d }
}

// WithTopK 知识库检索条数
func WithTopK(k int) Option {
	return func(a *Agent) { a.topK = k }
}

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New 创建 Agent；只读工具注册到内部 Registry，审计写入 store
func New(store helpdesk.Store, knowledge *kb.KnowledgeBase, opts ...Option) *Agent {
	a := &Agent{
		store:           store,
		requireApproval: true,
		claimTTL:        24 * time.Hour,
		topK:            kb.DefaultTopK,
		logger:          log.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.classifier == nil {
		a.classifier = intent.NewClassifier(intent.WithLogger(a.logger))
	}
	if a.replies == nil {
		a.replies = reply.New(reply.WithLogger(a.logger))
	}
	if a.claims == nil {
		a.claims = cache.NewMemoryStore()
	}
	a.auditor = tools.NewAuditor(store, a.logger)
	reg := tools.NewRegistry(a.auditor)
	tools.RegisterReadTools(reg, store, knowledge, a.topK)
	a.executor = executor.New(reg, a.logger)
	a.writes = tools.NewWriteRunner(store, a.auditor, a.logger)
	return a
}

// HandleMessage 处理一条客户消息并返回回复（或待审批草稿）
func (a *Agent) HandleMessage(ctx context.Context, customerID int64, req MessageRequest) (*MessageResult, error) {
	customer, err := a.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	inbound := &helpdesk.Message{CustomerID: customerID, Direction: helpdesk.DirectionInbound, Channel: ChannelChat, Body: req.Text}
	if err := a.store.SaveMessage(ctx, inbound); err != nil {
		return nil, errors.Wrap(err, "保存入站消息失败")
	}

	runID := uuid.NewString()
	ctx, span := tracing.StartRunSpan(ctx, runID, customerID)
	defer span.End()

	cls := a.classifier.Classify(ctx, req.Text)
	plan := planner.Build(cls.Intent, req.Text, customerID)
	planJSON, err := plan.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "序列化计划失败")
	}
	run := &helpdesk.AgentRun{
		ID:         runID,
		CustomerID: customerID,
		InputText:  req.Text,
		Intent:     string(cls.Intent),
		Confidence: cls.Confidence,
		PlanJSON:   string(planJSON),
	}
	if err := a.store.CreateRun(ctx, run); err != nil {
		return nil, errors.Wrap(err, "创建 Agent Run 失败")
	}
	metrics.RunTotal.WithLabelValues(string(cls.Intent)).Inc()
	a.logger.Info("开始处理客户消息", "run_id", runID, "customer_id", customerID, "intent", cls.Intent, "confidence", cls.Confidence, "source", cls.Source)

	rc := a.executor.Execute(ctx, plan, customerID, runID, true)

	replyText := a.replies.Generate(ctx, reply.Input{
		CustomerName:    customer.Name,
		CustomerMessage: req.Text,
		Intent:          string(cls.Intent),
		Context:         rc,
		CompanyName:     customer.Company,
	})
	a.auditor.Record(ctx, runID, string(planner.ActionGenerateResponse), map[string]any{
		"customer_id":    customerID,
		"latest_message": req.Text,
		"context": map[string]any{
			"customer_profile": rc.CustomerProfile,
			"kb_results":       rc.KBResults,
		},
	}, map[string]any{"reply_text": replyText}, true)

	if err := a.store.UpdateRunReply(ctx, runID, replyText); err != nil {
		return nil, errors.Wrap(err, "保存回复失败")
	}
	run.FinalReply = replyText

	view, err := a.runView(ctx, run)
	if err != nil {
		return nil, err
	}
	view.PendingWrites = rc.PendingWrites

	requires := a.requireApproval
	if req.RequiresApproval != nil {
		requires = *req.RequiresApproval
	}
	if requires {
		return &MessageResult{
			Status:          StatusPendingApproval,
			CustomerMessage: inbound,
			DraftReply:      replyText,
			AgentRun:        view,
			PendingWrites:   rc.PendingWrites,
		}, nil
	}

	outbound := &helpdesk.Message{CustomerID: customerID, Direction: helpdesk.DirectionOutbound, Channel: ChannelChat, Body: replyText}
	if err := a.store.SaveMessage(ctx, outbound); err != nil {
		return nil, errors.Wrap(err, "保存出站消息失败")
	}
	return &MessageResult{
		Status:          StatusSent,
		CustomerMessage: inbound,
		AgentMessage:    outbound,
		AgentRun:        view,
	}, nil
}

// Approve 发送审批后的草稿，并执行客户最近一次 Run 中仍待执行的写步骤。
// 每个步骤先通过 claims 认领，成功后标记 executed 并持久化计划，保证至多执行一次
func (a *Agent) Approve(ctx context.Context, customerID int64, draft string) (*ApproveResult, error) {
	if _, err := a.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	outbound := &helpdesk.Message{CustomerID: customerID, Direction: helpdesk.DirectionOutbound, Channel: ChannelChat, Body: draft}
	if err := a.store.SaveMessage(ctx, outbound); err != nil {
		return nil, errors.Wrap(err, "保存出站消息失败")
	}

	result := &ApproveResult{Status: StatusSent, AgentMessage: outbound, ExecutedActions: []ExecutedAction{}}
	run, err := a.store.LatestRun(ctx, customerID)
	if errors.Is(err, errors.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	plan, err := planner.Unmarshal([]byte(run.PlanJSON))
	if err != nil {
		a.logger.Warn("计划 JSON 无法解析，跳过写步骤", "run_id", run.ID, "error", err)
		return result, nil
	}

	for _, step := range plan.PendingWrites() {
		key := claimKey(run.ID, step.Step)
		ok, err := a.claims.SetNX(ctx, key, outbound.ID, a.claimTTL)
		if err != nil {
			a.logger.Warn("认领写步骤失败", "run_id", run.ID, "step", step.Step, "error", err)
			continue
		}
		if !ok {
			a.logger.Info("写步骤已被认领，跳过", "run_id", run.ID, "step", step.Step)
			continue
		}

		out := a.writes.Run(ctx, step.Action, step.Params, run.ID)
		result.ExecutedActions = append(result.ExecutedActions, ExecutedAction{Action: step.Action, Step: step.Step, Result: out})
		if out.Failed() {
			if err := a.claims.Delete(ctx, key); err != nil {
				a.logger.Warn("释放写步骤认领失败", "run_id", run.ID, "step", step.Step, "error", err)
			}
			continue
		}
		if err := a.markExecuted(ctx, run.ID, step.Step); err != nil {
			a.logger.Error("持久化写步骤状态失败", "run_id", run.ID, "step", step.Step, "error", err)
		}
	}
	return result, nil
}

// markExecuted 重新读取计划后标记步骤，减少并发审批互相覆盖
func (a *Agent) markExecuted(ctx context.Context, runID string, step int) error {
	run, err := a.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	plan, err := planner.Unmarshal([]byte(run.PlanJSON))
	if err != nil {
		return err
	}
	if !plan.MarkExecuted(step) {
		return fmt.Errorf("步骤 %d 不是写步骤", step)
	}
	data, err := plan.Marshal()
	if err != nil {
		return err
	}
	return a.store.UpdateRunPlan(ctx, runID, string(data))
}

func claimKey(runID string, step int) string {
	return fmt.Sprintf("claim:%s:%d", runID, step)
}

// ExecuteAction 在指定 Run 下直接执行写动作（审计归属该 Run）
func (a *Agent) ExecuteAction(ctx context.Context, runID string, action string, params map[string]any) (*ActionResult, error) {
	if _, err := a.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	out := a.writes.Run(ctx, planner.Action(action), params, runID)
	return &ActionResult{Success: !out.Failed(), Action: action, Result: out}, nil
}

// LatestRun 返回客户最近一次 Run 及其审计记录；不存在时返回 ErrNotFound
func (a *Agent) LatestRun(ctx context.Context, customerID int64) (*RunView, error) {
	run, err := a.store.LatestRun(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return a.runView(ctx, run)
}

func (a *Agent) runView(ctx context.Context, run *helpdesk.AgentRun) (*RunView, error) {
	entries, err := a.store.ListAudit(ctx, run.ID)
	if err != nil {
		return nil, errors.Wrap(err, "读取审计记录失败")
	}
	if entries == nil {
		entries = []*helpdesk.AuditEntry{}
	}
	return &RunView{
		ID:         run.ID,
		CustomerID: run.CustomerID,
		InputText:  run.InputText,
		Intent:     run.Intent,
		Confidence: run.Confidence,
		PlanJSON:   run.PlanJSON,
		FinalReply: run.FinalReply,
		CreatedAt:  run.CreatedAt,
		AuditLogs:  entries,
	}, nil
}
