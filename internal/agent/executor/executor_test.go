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

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-agent/internal/agent/intent"
	"support-agent/internal/agent/planner"
	"support-agent/internal/agent/tools"
	"support-agent/internal/kb"
	"support-agent/internal/storage/helpdesk"
)

type fixture struct {
	store      *helpdesk.MemoryStore
	exec       *PlanExecutor
	customerID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := helpdesk.NewMemoryStore()
	c := &helpdesk.Customer{Name: "Sarah Chen", Email: "sarah@example.com", Company: "TechStart"}
	require.NoError(t, store.CreateCustomer(ctx, c))

	dir := t.TempDir()
	doc := "# Pricing\n\n## Free Trial\n\nEvery plan includes a 14-day free trial with full access to all features.\n\n" +
		"## Student Discount\n\nStudents get 50% off any subscription plan with a valid student email.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.md"), []byte(doc), 0o644))

	reg := tools.NewRegistry(tools.NewAuditor(store, nil))
	tools.RegisterReadTools(reg, store, kb.New(dir), 3)
	return &fixture{store: store, exec: New(reg, nil), customerID: c.ID}
}

func TestExecute_PricingScenario(t *testing.T) {
	f := newFixture(t)
	res := intent.ClassifyKeywords("Is there a free trial for students?")
	require.Equal(t, intent.PricingInquiry, res.Intent)
	require.Equal(t, 0.7, res.Confidence)

	plan := planner.Build(res.Intent, "Is there a free trial for students?", f.customerID)
	rc := f.exec.Execute(context.Background(), plan, f.customerID, "run-1", true)

	assert.Empty(t, rc.PendingWrites)
	assert.NotNil(t, rc.PendingWrites)
	require.NotNil(t, rc.CustomerProfile)
	assert.Equal(t, "Sarah Chen", rc.CustomerProfile["name"])
	assert.Nil(t, rc.OpenTickets, "pricing plan does not read tickets")
	require.NotNil(t, rc.KBResults)
	assert.NotEmpty(t, tools.KBResultsFrom(rc.KBResults))

	entries, _ := f.store.ListAudit(context.Background(), "run-1")
	require.Len(t, entries, 2)
	assert.Equal(t, "get_customer_profile", entries[0].ToolName)
	assert.Equal(t, "search_kb", entries[1].ToolName)
}

func TestExecute_BugScenarioDefersWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := "The dashboard crashes whenever I export a report and I keep getting an error message on the analytics page"
	res := intent.ClassifyKeywords(text)
	require.Equal(t, intent.BugReport, res.Intent)

	plan := planner.Build(res.Intent, text, f.customerID)
	rc := f.exec.Execute(ctx, plan, f.customerID, "run-2", true)

	require.Len(t, rc.PendingWrites, 1)
	pw := rc.PendingWrites[0]
	assert.Equal(t, planner.ActionCreateTicket, pw.Action)
	assert.Equal(t, planner.StatusPending, pw.Status)
	assert.Equal(t, 4, pw.Step)
	assert.Equal(t, plan[3].Params, pw.Params, "params copied verbatim")
	assert.Equal(t, "high", pw.Params["priority"])
	assert.Equal(t, "bug", pw.Params["category"])
	assert.Equal(t, "Bug Report: "+string([]rune(text)[:80]), pw.Params["title"])

	tickets, _ := f.store.ListTickets(ctx, helpdesk.TicketFilter{})
	assert.Empty(t, tickets, "skipWrites never creates tickets")
	assert.Equal(t, 0, rc.OpenTickets["count"])
}

func TestExecute_DocumentedScenarios(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		intent       intent.Intent
		reads        []string
		pendingTitle string
	}{
		{
			name:   "free trial question",
			text:   "Is there a free trial available?",
			intent: intent.PricingInquiry,
			reads:  []string{"get_customer_profile", "search_kb"},
		},
		{
			name:         "broken dashboard",
			text:         "The dashboard charts are broken and crashing",
			intent:       intent.BugReport,
			reads:        []string{"get_customer_profile", "get_open_tickets", "search_kb"},
			pendingTitle: "Bug Report: The dashboard charts are broken and crashing",
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			runID := "scenario-" + string(rune('a'+i))
			res := intent.ClassifyKeywords(tt.text)
			require.Equal(t, tt.intent, res.Intent)

			rc := f.exec.Execute(ctx, planner.Build(res.Intent, tt.text, f.customerID), f.customerID, runID, true)

			entries, _ := f.store.ListAudit(ctx, runID)
			names := make([]string, len(entries))
			for j, e := range entries {
				names[j] = e.ToolName
			}
			assert.Equal(t, tt.reads, names)

			if tt.pendingTitle == "" {
				assert.Empty(t, rc.PendingWrites)
				assert.NotEmpty(t, tools.KBResultsFrom(rc.KBResults))
				return
			}
			require.Len(t, rc.PendingWrites, 1)
			assert.Equal(t, planner.ActionCreateTicket, rc.PendingWrites[0].Action)
			assert.Equal(t, tt.pendingTitle, rc.PendingWrites[0].Params["title"])
			assert.Equal(t, "high", rc.PendingWrites[0].Params["priority"])
			tickets, _ := f.store.ListTickets(ctx, helpdesk.TicketFilter{})
			assert.Empty(t, tickets)
		})
	}
}

func TestExecute_WritesNeverRunWithoutSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := planner.Build(intent.FeatureRequest, "please add dark mode", f.customerID)
	rc := f.exec.Execute(ctx, plan, f.customerID, "run-3", false)
	assert.Empty(t, rc.PendingWrites)
	tickets, _ := f.store.ListTickets(ctx, helpdesk.TicketFilter{})
	assert.Empty(t, tickets)
}

func TestExecute_DefaultsAndUnknownActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := planner.Plan{
		{Step: 1, Action: planner.ActionGetCustomerProfile, Type: planner.KindRead, Params: map[string]any{}},
		{Step: 2, Action: planner.Action("lookup_weather"), Type: planner.KindRead, Params: map[string]any{}},
		{Step: 3, Action: planner.ActionSearchKB, Type: planner.KindRead, Params: map[string]any{}},
		{Step: 4, Action: planner.ActionGenerateResponse, Type: planner.KindRead, Params: map[string]any{}},
	}
	rc := f.exec.Execute(ctx, plan, f.customerID, "run-4", true)
	assert.Equal(t, "Sarah Chen", rc.CustomerProfile["name"], "customer_id defaults to executor customer")
	assert.Equal(t, "", rc.KBResults["query"])
	assert.Equal(t, 0, rc.KBResults["count"])

	entries, _ := f.store.ListAudit(ctx, "run-4")
	assert.Len(t, entries, 2, "unknown and generate_response steps are not audited here")
}

func TestExecute_MissingCustomer(t *testing.T) {
	f := newFixture(t)
	plan := planner.Build(intent.AccountHelp, "reset my password", 999)
	rc := f.exec.Execute(context.Background(), plan, 999, "run-5", true)
	assert.True(t, rc.CustomerProfile.Failed())
	assert.Equal(t, "Customer not found", rc.CustomerProfile.Error())

	entries, _ := f.store.ListAudit(context.Background(), "run-5")
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success)
}
