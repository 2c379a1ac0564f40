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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-agent/internal/agent/planner"
	"support-agent/internal/kb"
	"support-agent/internal/storage/cache"
	"support-agent/internal/storage/helpdesk"
	"support-agent/pkg/errors"
	"support-agent/pkg/log"
)

func newTestAgent(t *testing.T, opts ...Option) (*Agent, *helpdesk.MemoryStore, int64) {
	t.Helper()
	ctx := context.Background()
	store := helpdesk.NewMemoryStore()
	c := &helpdesk.Customer{Name: "Sarah Chen", Email: "sarah@example.com", Company: "TechStart"}
	require.NoError(t, store.CreateCustomer(ctx, c))

	dir := t.TempDir()
	docs := map[string]string{
		"pricing.md": "# Pricing\n\n## Free Trial\n\nEvery plan includes a 14-day free trial with full access to all features.\n\n" +
			"## Student Discount\n\nStudents get 50% off any subscription plan with a valid student email.\n",
		"troubleshooting.md": "# Troubleshooting\n\n## Export Errors\n\nIf an export fails with an error, clear the browser cache and retry the export.\n",
	}
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return New(store, kb.New(dir), opts...), store, c.ID
}

func boolPtr(b bool) *bool { return &b }

func toolNames(entries []*helpdesk.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ToolName
	}
	return out
}

func TestHandleMessage_PricingSent(t *testing.T) {
	ctx := context.Background()
	a, store, id := newTestAgent(t)

	res, err := a.HandleMessage(ctx, id, MessageRequest{Text: "Is there a free trial for students?", RequiresApproval: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)
	require.NotNil(t, res.AgentMessage)
	assert.Equal(t, helpdesk.DirectionOutbound, res.AgentMessage.Direction)
	assert.Contains(t, res.AgentMessage.Body, "**Sources used:**")
	assert.Contains(t, res.AgentMessage.Body, "- pricing.md")

	run := res.AgentRun
	assert.Equal(t, "pricing_inquiry", run.Intent)
	assert.Equal(t, 0.7, run.Confidence)
	assert.Equal(t, res.AgentMessage.Body, run.FinalReply)
	assert.Equal(t, []string{"get_customer_profile", "search_kb", "generate_response"}, toolNames(run.AuditLogs))
	assert.Empty(t, run.PendingWrites)

	var input map[string]any
	require.NoError(t, json.Unmarshal([]byte(run.AuditLogs[2].InputJSON), &input))
	assert.Equal(t, "Is there a free trial for students?", input["latest_message"])
	assert.Contains(t, input["context"], "kb_results")
	assert.JSONEq(t, `{"reply_text":`+mustJSON(t, run.FinalReply)+`}`, run.AuditLogs[2].OutputJSON)

	msgs, _ := store.ListMessages(ctx, id)
	require.Len(t, msgs, 2)
	assert.Equal(t, helpdesk.DirectionInbound, msgs[0].Direction)
	assert.Equal(t, ChannelChat, msgs[0].Channel)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHandleMessage_BugPendingThenApprove(t *testing.T) {
	ctx := context.Background()
	a, store, id := newTestAgent(t)

	res, err := a.HandleMessage(ctx, id, MessageRequest{Text: "The export button is broken and shows an error"})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, res.Status, "approval is required by default")
	assert.Nil(t, res.AgentMessage)
	assert.NotEmpty(t, res.DraftReply)
	require.Len(t, res.PendingWrites, 1)
	assert.Equal(t, planner.ActionCreateTicket, res.PendingWrites[0].Action)
	assert.Equal(t, []string{"get_customer_profile", "get_open_tickets", "search_kb", "generate_response"}, toolNames(res.AgentRun.AuditLogs))

	tickets, _ := store.ListTickets(ctx, helpdesk.TicketFilter{})
	assert.Empty(t, tickets)
	msgs, _ := store.ListMessages(ctx, id)
	assert.Len(t, msgs, 1, "draft is not sent before approval")

	approved, err := a.Approve(ctx, id, res.DraftReply)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, approved.Status)
	assert.Equal(t, res.DraftReply, approved.AgentMessage.Body)
	require.Len(t, approved.ExecutedActions, 1)
	act := approved.ExecutedActions[0]
	assert.Equal(t, 4, act.Step)
	assert.False(t, act.Result.Failed())
	assert.Equal(t, "high", act.Result["priority"])
	assert.Equal(t, "bug", act.Result["category"])

	latest, err := a.LatestRun(ctx, id)
	require.NoError(t, err)
	plan, err := planner.Unmarshal([]byte(latest.PlanJSON))
	require.NoError(t, err)
	assert.Equal(t, planner.StatusExecuted, plan[3].Status)
	assert.Empty(t, plan.PendingWrites())
	assert.Equal(t, "create_ticket", latest.AuditLogs[len(latest.AuditLogs)-1].ToolName)

	again, err := a.Approve(ctx, id, "second approval")
	require.NoError(t, err)
	assert.Empty(t, again.ExecutedActions)
	tickets, _ = store.ListTickets(ctx, helpdesk.TicketFilter{CustomerID: id})
	assert.Len(t, tickets, 1)
}

func TestApprove_ConcurrentExecutesOnce(t *testing.T) {
	ctx := context.Background()
	a, store, id := newTestAgent(t)
	_, err := a.HandleMessage(ctx, id, MessageRequest{Text: "I would like a dark mode feature"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Approve(ctx, id, "ok")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tickets, _ := store.ListTickets(ctx, helpdesk.TicketFilter{CustomerID: id})
	require.Len(t, tickets, 1)
	assert.Equal(t, "feature", tickets[0].Category)
	assert.True(t, strings.HasPrefix(tickets[0].Title, "Feature Request: "))
}

func TestApprove_MalformedPlanAndNoRun(t *testing.T) {
	ctx := context.Background()
	a, store, id := newTestAgent(t)

	res, err := a.Approve(ctx, id, "no run yet")
	require.NoError(t, err)
	assert.Empty(t, res.ExecutedActions)

	require.NoError(t, store.CreateRun(ctx, &helpdesk.AgentRun{ID: "bad", CustomerID: id, PlanJSON: "{not json"}))
	res, err = a.Approve(ctx, id, "still sent")
	require.NoError(t, err)
	assert.Empty(t, res.ExecutedActions)
	msgs, _ := store.ListMessages(ctx, id)
	assert.Len(t, msgs, 2)
}

func TestUnknownCustomer(t *testing.T) {
	a, _, _ := newTestAgent(t)
	_, err := a.HandleMessage(context.Background(), 999, MessageRequest{Text: "hi"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = a.Approve(context.Background(), 999, "hi")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = a.LatestRun(context.Background(), 999)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestExecuteAction(t *testing.T) {
	ctx := context.Background()
	a, _, id := newTestAgent(t, WithApprovalDefault(false))
	res, err := a.HandleMessage(ctx, id, MessageRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, res.Status)

	_, err = a.ExecuteAction(ctx, "missing", "create_ticket", nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	out, err := a.ExecuteAction(ctx, res.AgentRun.ID, "escalate_to_human", map[string]any{"customer_id": id, "reason": "Needs a manager"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "ESCALATION: Needs a manager", out.Result["title"])

	out, err = a.ExecuteAction(ctx, res.AgentRun.ID, "refund_everything", nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Unknown write action: refund_everything", out.Result.Error())

	latest, err := a.LatestRun(ctx, id)
	require.NoError(t, err)
	names := toolNames(latest.AuditLogs)
	assert.Equal(t, []string{"escalate_to_human", "refund_everything"}, names[len(names)-2:])
}

type stuckClaims struct {
	cache.Store
}

func (stuckClaims) Delete(context.Context, string) error {
	return errors.Wrap(errors.ErrUnavailable, "cache offline")
}

func TestApprove_LogsClaimReleaseFailure(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	a, store, id := newTestAgent(t,
		WithClaims(stuckClaims{cache.NewMemoryStore()}),
		WithLogger(log.NewWithWriter(&buf, slog.LevelDebug)),
	)

	plan := planner.Plan{
		{Step: 1, Action: planner.ActionCreateTicket, Type: planner.KindWrite, Params: map[string]any{"title": "no customer"}, Status: planner.StatusPending},
		{Step: 2, Action: planner.ActionGenerateResponse, Type: planner.KindRead, Params: map[string]any{}},
	}
	data, err := plan.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(ctx, &helpdesk.AgentRun{ID: "run-stuck", CustomerID: id, PlanJSON: string(data)}))

	res, err := a.Approve(ctx, id, "ok")
	require.NoError(t, err)
	require.Len(t, res.ExecutedActions, 1)
	assert.True(t, res.ExecutedActions[0].Result.Failed())
	assert.Contains(t, buf.String(), "释放写步骤认领失败")
	assert.Contains(t, buf.String(), "run-stuck")
}
