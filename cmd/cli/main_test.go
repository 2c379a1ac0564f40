package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != 0 || strings.TrimSpace(out) != version {
		t.Fatalf("version: code=%d out=%q", code, out)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "bogus")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "Usage:") {
		t.Fatalf("expected usage on stderr, got %q", errOut)
	}
}

func TestRun_Classify(t *testing.T) {
	code, out, _ := runCLI(t, "classify", "How", "much", "does", "the", "Pro", "plan", "cost?")
	if code != 0 {
		t.Fatalf("classify exit code %d", code)
	}
	var res map[string]interface{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if res["intent"] != "pricing_inquiry" || res["source"] != "keyword" {
		t.Fatalf("unexpected classification: %v", res)
	}

	if code, _, _ := runCLI(t, "classify"); code != 1 {
		t.Fatalf("empty classify should fail, got %d", code)
	}
}

func TestRun_Plan(t *testing.T) {
	code, out, _ := runCLI(t, "plan", "-customer", "7", "the export is broken")
	if code != 0 {
		t.Fatalf("plan exit code %d", code)
	}
	var res struct {
		Intent string `json:"intent"`
		Plan   []struct {
			Step   int                    `json:"step"`
			Action string                 `json:"action"`
			Type   string                 `json:"type"`
			Params map[string]interface{} `json:"params"`
		} `json:"plan"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if res.Intent != "bug_report" {
		t.Fatalf("intent = %s", res.Intent)
	}
	want := []string{"get_customer_profile", "get_open_tickets", "search_kb", "create_ticket", "generate_response"}
	if len(res.Plan) != len(want) {
		t.Fatalf("plan length = %d, want %d", len(res.Plan), len(want))
	}
	for i, step := range res.Plan {
		if step.Step != i+1 || step.Action != want[i] {
			t.Fatalf("step %d = %d/%s, want %s", i, step.Step, step.Action, want[i])
		}
	}
	if res.Plan[3].Type != "write" || res.Plan[0].Params["customer_id"] != float64(7) {
		t.Fatalf("unexpected plan steps: %+v", res.Plan)
	}

	if code, _, _ := runCLI(t, "plan", "-customer", "abc", "hi"); code != 1 {
		t.Fatalf("invalid customer id should fail, got %d", code)
	}
}

func TestRun_KBSearch(t *testing.T) {
	dir := t.TempDir()
	doc := "# Pricing\n\n## Student Discount\nStudents get 50% off the Pro plan with a valid school email.\n\n## Refunds\nRefunds are issued within 14 days.\n"
	if err := os.WriteFile(filepath.Join(dir, "pricing.md"), []byte(doc), 0644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	code, out, errOut := runCLI(t, "kb", "search", "-dir", dir, "student", "discount")
	if code != 0 {
		t.Fatalf("kb search exit code %d: %s", code, errOut)
	}
	var results []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if len(results) == 0 || results[0]["heading"] != "Student Discount" || results[0]["source_file"] != "pricing.md" {
		t.Fatalf("unexpected results: %v", results)
	}

	code, out, _ = runCLI(t, "kb", "search", "-dir", dir, "kubernetes")
	if code != 0 || strings.TrimSpace(out) != "[]" {
		t.Fatalf("no-match search: code=%d out=%q", code, out)
	}

	if code, _, _ := runCLI(t, "kb", "search", "-dir", dir); code != 1 {
		t.Fatalf("missing query should fail, got %d", code)
	}
	if code, _, _ := runCLI(t, "kb"); code != 1 {
		t.Fatalf("kb without subcommand should fail, got %d", code)
	}
}

func TestRun_RemoteSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"sent","agent_message":{"content":"hi"}}`))
	}))
	defer srv.Close()
	t.Setenv("SUPPORT_AGENT_API_URL", srv.URL)
	t.Setenv("SUPPORT_AGENT_TOKEN", "tok")

	code, out, errOut := runCLI(t, "send", "3", "what", "does", "it", "cost")
	if code != 0 {
		t.Fatalf("send exit code %d: %s", code, errOut)
	}
	if gotPath != "/api/customers/3/messages" || gotBody["text"] != "what does it cost" {
		t.Fatalf("unexpected request: path=%s body=%v", gotPath, gotBody)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if !strings.Contains(out, `"status": "sent"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRun_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "bogus" {
			t.Errorf("status query = %q", r.URL.Query().Get("status"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid status"}`))
	}))
	defer srv.Close()
	t.Setenv("SUPPORT_AGENT_API_URL", srv.URL)

	code, _, errOut := runCLI(t, "tickets", "bogus")
	if code != 1 || !strings.Contains(errOut, "400") {
		t.Fatalf("expected failure with status, code=%d stderr=%q", code, errOut)
	}
}
