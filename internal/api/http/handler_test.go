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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"support-agent/internal/agent"
	"support-agent/internal/api/http/middleware"
	"support-agent/internal/kb"
	"support-agent/internal/storage/helpdesk"
)

type testEnv struct {
	store      *helpdesk.MemoryStore
	router     *Router
	customerID int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := helpdesk.NewMemoryStore()
	c := &helpdesk.Customer{Name: "Sarah Chen", Email: "sarah@example.com", Company: "TechStart"}
	if err := store.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	dir := t.TempDir()
	doc := "# Pricing\n\n## Student Discount\n\nStudents get 50% off any subscription plan with a valid student email.\n"
	if err := os.WriteFile(filepath.Join(dir, "pricing.md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	k := kb.New(dir)
	a := agent.New(store, k)
	h := NewHandler(a, store, k)
	return &testEnv{store: store, router: NewRouter(h, middleware.NewMiddleware()), customerID: c.ID}
}

func do(s *server.Hertz, method, path string, body []byte, headers ...ut.Header) *ut.ResponseRecorder {
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ut.PerformRequest(s.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, headers...)
}

func decodeBody(t *testing.T, w *ut.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Result().Body(), v); err != nil {
		t.Fatalf("decode body %s: %v", w.Result().Body(), err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestEnv(t).router.Build(":0")
	w := do(s, "GET", "/api/health", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ok")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestCreateMessage_SentAndMessages(t *testing.T) {
	env := newTestEnv(t)
	s := env.router.Build(":0")
	path := fmt.Sprintf("/api/customers/%d/messages", env.customerID)

	w := do(s, "POST", path, []byte(`{"text":"Is there a student discount on the pricing?","requires_approval":false}`))
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("status = %d, body %s", got, w.Result().Body())
	}
	var res struct {
		Status       string `json:"status"`
		AgentMessage struct {
			Body string `json:"body"`
		} `json:"agent_message"`
		AgentRun struct {
			Intent    string `json:"intent"`
			AuditLogs []struct {
				ToolName string `json:"tool_name"`
			} `json:"audit_logs"`
		} `json:"agent_run"`
	}
	decodeBody(t, w, &res)
	if res.Status != "sent" || res.AgentRun.Intent != "pricing_inquiry" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !bytes.Contains([]byte(res.AgentMessage.Body), []byte("- pricing.md (Student Discount)")) {
		t.Errorf("reply missing sources footer: %q", res.AgentMessage.Body)
	}
	if len(res.AgentRun.AuditLogs) != 3 {
		t.Errorf("audit logs = %d, want 3", len(res.AgentRun.AuditLogs))
	}

	w = do(s, "GET", path, nil)
	var msgs []helpdesk.Message
	decodeBody(t, w, &msgs)
	if len(msgs) != 2 || msgs[0].Direction != "inbound" || msgs[1].Direction != "outbound" {
		t.Errorf("messages: %+v", msgs)
	}
}

func TestCreateCustomer(t *testing.T) {
	env := newTestEnv(t)
	s := env.router.Build(":0")

	w := do(s, "POST", "/api/customers", []byte(`{"name":"Mike Johnson","email":"mike@example.com","company":"DataFlow"}`))
	if got := w.Result().StatusCode(); got != 201 {
		t.Fatalf("status = %d, body %s", got, w.Result().Body())
	}
	var created helpdesk.Customer
	decodeBody(t, w, &created)
	if created.ID == 0 || created.ID == env.customerID || created.Company != "DataFlow" {
		t.Fatalf("unexpected customer: %+v", created)
	}

	w = do(s, "GET", "/api/customers", nil)
	var list []helpdesk.Customer
	decodeBody(t, w, &list)
	if len(list) != 2 {
		t.Fatalf("customers = %d, want 2", len(list))
	}

	w = do(s, "POST", "/api/customers", []byte(`{"name":"No Email"}`))
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("missing email: status %d, want 400", got)
	}
}

func TestCreateMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	s := env.router.Build(":0")
	cases := []struct {
		path string
		body string
		want int
	}{
		{"/api/customers/999/messages", `{"text":"hi"}`, 404},
		{fmt.Sprintf("/api/customers/%d/messages", env.customerID), `{"text":"  "}`, 400},
		{"/api/customers/abc/messages", `{"text":"hi"}`, 400},
	}
	for _, tc := range cases {
		w := do(s, "POST", tc.path, []byte(tc.body))
		if got := w.Result().StatusCode(); got != tc.want {
			t.Errorf("POST %s %s: status %d, want %d", tc.path, tc.body, got, tc.want)
		}
	}
}

func TestApproveFlow(t *testing.T) {
	env := newTestEnv(t)
	s := env.router.Build(":0")
	base := fmt.Sprintf("/api/customers/%d", env.customerID)

	w := do(s, "GET", base+"/latest-agent-run", nil)
	if !bytes.Contains(w.Result().Body(), []byte(`"agent_run":null`)) {
		t.Fatalf("latest run before any message: %s", w.Result().Body())
	}

	w = do(s, "POST", base+"/messages", []byte(`{"text":"The export is broken and crashes"}`))
	var pending struct {
		Status        string `json:"status"`
		DraftReply    string `json:"draft_reply"`
		PendingWrites []struct {
			Action string `json:"action"`
		} `json:"pending_writes"`
	}
	decodeBody(t, w, &pending)
	if pending.Status != "pending_approval" || len(pending.PendingWrites) != 1 || pending.PendingWrites[0].Action != "create_ticket" {
		t.Fatalf("pending result: %+v", pending)
	}

	body, _ := json.Marshal(map[string]string{"draft_text": pending.DraftReply})
	w = do(s, "POST", base+"/approve", body)
	var approved struct {
		Status          string `json:"status"`
		ExecutedActions []struct {
			Action string                 `json:"action"`
			Result map[string]interface{} `json:"result"`
		} `json:"executed_actions"`
	}
	decodeBody(t, w, &approved)
	if approved.Status != "sent" || len(approved.ExecutedActions) != 1 {
		t.Fatalf("approve result: %+v", approved)
	}

	w = do(s, "GET", base+"/tickets", nil)
	var tickets []helpdesk.Ticket
	decodeBody(t, w, &tickets)
	if len(tickets) != 1 || tickets[0].Category != "bug" {
		t.Fatalf("tickets: %+v", tickets)
	}

	w = do(s, "POST", fmt.Sprintf("/api/tickets/%d/close", tickets[0].ID), nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("close status = %d", got)
	}
	w = do(s, "GET", base+"/tickets?status=open", nil)
	decodeBody(t, w, &tickets)
	if len(tickets) != 0 {
		t.Errorf("open tickets after close: %+v", tickets)
	}
	w = do(s, "GET", "/api/tickets?status=closed", nil)
	decodeBody(t, w, &tickets)
	if len(tickets) != 1 || tickets[0].ClosedAt == nil {
		t.Errorf("closed tickets: %+v", tickets)
	}
	w = do(s, "GET", "/api/tickets?status=bogus", nil)
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bogus status filter = %d, want 400", got)
	}
}

func TestCreateTicketAndExecuteAction(t *testing.T) {
	env := newTestEnv(t)
	s := env.router.Build(":0")
	base := fmt.Sprintf("/api/customers/%d", env.customerID)

	w := do(s, "POST", base+"/tickets", []byte(`{"title":"Manual","description":"by operator"}`))
	var tk helpdesk.Ticket
	decodeBody(t, w, &tk)
	if tk.Priority != "medium" || tk.Category != "general" || tk.Status != "open" {
		t.Errorf("manual ticket defaults: %+v", tk)
	}

	w = do(s, "POST", "/api/agent-runs/nope/execute-action", []byte(`{"action":"create_ticket","params":{}}`))
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("unknown run status = %d", got)
	}

	do(s, "POST", base+"/messages", []byte(`{"text":"hello","requires_approval":false}`))
	w = do(s, "GET", base+"/latest-agent-run", nil)
	var latest struct {
		AgentRun struct {
			ID string `json:"id"`
		} `json:"agent_run"`
	}
	decodeBody(t, w, &latest)

	body := fmt.Sprintf(`{"action":"create_ticket","params":{"customer_id":%d,"title":"From run","priority":"low"}}`, env.customerID)
	w = do(s, "POST", "/api/agent-runs/"+latest.AgentRun.ID+"/execute-action", []byte(body))
	var res struct {
		Success bool                   `json:"success"`
		Result  map[string]interface{} `json:"result"`
	}
	decodeBody(t, w, &res)
	if !res.Success || res.Result["title"] != "From run" {
		t.Errorf("execute-action: %+v", res)
	}
}

func TestKBSearch(t *testing.T) {
	s := newTestEnv(t).router.Build(":0")
	w := do(s, "GET", "/api/kb/search?q=", nil)
	if !bytes.Contains(w.Result().Body(), []byte(`"results":[]`)) {
		t.Errorf("empty query body: %s", w.Result().Body())
	}
	w = do(s, "GET", "/api/kb/search?q=student+discount", nil)
	var res struct {
		Results []kb.SearchResult `json:"results"`
	}
	decodeBody(t, w, &res)
	if len(res.Results) == 0 || res.Results[0].Heading != "Student Discount" {
		t.Errorf("search results: %+v", res.Results)
	}
	w = do(s, "POST", "/api/kb/reload", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("reload status = %d", got)
	}
}

func TestMetricsAndCORS(t *testing.T) {
	s := newTestEnv(t).router.Build(":0")
	w := do(s, "GET", "/metrics", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("metrics status = %d", got)
	}
	w = do(s, "OPTIONS", "/api/customers", nil, ut.Header{Key: "Origin", Value: "http://localhost:3000"})
	if got := w.Result().StatusCode(); got != 204 {
		t.Errorf("preflight status = %d", got)
	}
	if v := w.Result().Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("allow origin = %q", v)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.router.SetRateLimit(1)
	s := env.router.Build(":0")
	first := do(s, "GET", "/api/health", nil).Result().StatusCode()
	second := do(s, "GET", "/api/health", nil).Result().StatusCode()
	if first != 200 || second != 429 {
		t.Errorf("rate limit statuses = %d, %d", first, second)
	}
}

func TestAuthProtectsApproval(t *testing.T) {
	env := newTestEnv(t)
	auth, err := middleware.NewAuth(middleware.AuthConfig{Key: "test-secret", OperatorKey: "letmein", Timeout: time.Minute})
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	env.router.SetAuth(auth)
	s := env.router.Build(":0")
	approve := fmt.Sprintf("/api/customers/%d/approve", env.customerID)

	if got := do(s, "POST", approve, []byte(`{"draft_text":"hi"}`)).Result().StatusCode(); got != 401 {
		t.Fatalf("approve without token = %d, want 401", got)
	}
	if got := do(s, "POST", "/api/auth/login", []byte(`{"operator":"ops","key":"wrong"}`)).Result().StatusCode(); got != 401 {
		t.Fatalf("login with wrong key = %d, want 401", got)
	}

	w := do(s, "POST", "/api/auth/login", []byte(`{"operator":"ops","key":"letmein"}`))
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &login)
	if login.Token == "" {
		t.Fatalf("login body: %s", w.Result().Body())
	}
	w = do(s, "POST", approve, []byte(`{"draft_text":"hi"}`), ut.Header{Key: "Authorization", Value: "Bearer " + login.Token})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("approve with token = %d, body %s", got, w.Result().Body())
	}
	if got := do(s, "GET", "/api/kb/search?q=plan", nil).Result().StatusCode(); got != 200 {
		t.Errorf("read routes stay public, got %d", got)
	}
}
