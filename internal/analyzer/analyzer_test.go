package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

var testDef = agents.Definition{
	Name:            "logic",
	Concern:         agents.ConcernLogic,
	RolePrompt:      "find bugs",
	DefaultSeverity: model.SeverityMedium,
}

func TestParseFindingsArray(t *testing.T) {
	content := `[{"file":"main.go","line":12,"severity":"high","message":"off by one","suggestion":"use <="}]`
	findings, err := parseFindings(content, testDef)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.File != "main.go" || f.Line != 12 || f.Severity != model.SeverityHigh {
		t.Errorf("unexpected finding: %+v", f)
	}
}

func TestParseFindingsFencedAndWrapped(t *testing.T) {
	content := "```json\n{\"issues\":[{\"file\":\"a.go\",\"severity\":\"nonsense\",\"message\":\"m\"}]}\n```"
	findings, err := parseFindings(content, testDef)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	// Unknown severity tokens normalize to the agent's default.
	if findings[0].Severity != model.SeverityMedium {
		t.Errorf("expected medium, got %s", findings[0].Severity)
	}
}

func TestParseFindingsEmptyAndInvalid(t *testing.T) {
	findings, err := parseFindings("[]", testDef)
	if err != nil || len(findings) != 0 {
		t.Errorf("empty array should parse to zero findings, got %v, %v", findings, err)
	}

	if _, err := parseFindings("I found some issues!", testDef); err == nil {
		t.Error("expected error for non-JSON content")
	}
}

func TestParseFindingsDropsEmptyMessages(t *testing.T) {
	content := `[{"file":"a.go","message":""},{"file":"b.go","message":"real"}]`
	findings, err := parseFindings(content, testDef)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || findings[0].File != "b.go" {
		t.Errorf("expected only the non-empty finding, got %+v", findings)
	}
}

const rulesDiff = `diff --git a/server.go b/server.go
index abc1234..def5678 100644
--- a/server.go
+++ b/server.go
@@ -1,2 +1,5 @@
 package main

+var apiKey = "sk-12345"
+// TODO: handle errors
+const PASSWORD = "hunter2"
`

func TestRulesBackend(t *testing.T) {
	doc, err := diff.Parse(rulesDiff)
	if err != nil {
		t.Fatal(err)
	}

	r := NewRules()

	secDef := agents.Definition{Name: "security", Concern: agents.ConcernSecurity, DefaultSeverity: model.SeverityHigh}
	findings, err := r.Analyze(context.Background(), doc, secDef, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) == 0 {
		t.Fatal("expected security findings for hardcoded credentials")
	}
	for _, f := range findings {
		if f.File != "server.go" || f.Line == 0 {
			t.Errorf("finding missing location: %+v", f)
		}
	}

	styleDef := agents.Definition{Name: "style", Concern: agents.ConcernStyle, DefaultSeverity: model.SeverityLow}
	findings, err = r.Analyze(context.Background(), doc, styleDef, "")
	if err != nil {
		t.Fatal(err)
	}
	var sawTodo bool
	for _, f := range findings {
		if f.Line == 4 {
			sawTodo = true
		}
	}
	if !sawTodo {
		t.Errorf("expected a style finding on the TODO line, got %+v", findings)
	}
}

func TestRulesBackendUnknownConcern(t *testing.T) {
	doc, err := diff.Parse(rulesDiff)
	if err != nil {
		t.Fatal(err)
	}
	def := agents.Definition{Name: "docs", Concern: "docs"}
	findings, err := NewRules().Analyze(context.Background(), doc, def, "")
	if err != nil || len(findings) != 0 {
		t.Errorf("unknown concern should yield no findings, got %v, %v", findings, err)
	}
}

func TestOpenAIAnalyze(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `[{"file":"server.go","line":3,"severity":"high","message":"leaked key"}]`,
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a, err := newOpenAI("openai", Options{Model: "gpt-test", BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := diff.Parse(rulesDiff)
	if err != nil {
		t.Fatal(err)
	}

	findings, err := a.Analyze(context.Background(), doc, testDef, "refactor PR")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 || findings[0].Severity != model.SeverityHigh {
		t.Errorf("unexpected findings: %+v", findings)
	}

	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", gotReq.Messages)
	}
	if gotReq.Model != "gpt-test" {
		t.Errorf("expected model gpt-test, got %q", gotReq.Model)
	}
}

func TestOpenAIAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, err := newOpenAI("openai", Options{Model: "m", BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}

	doc, _ := diff.Parse(rulesDiff)
	_, err = a.Analyze(context.Background(), doc, testDef, "")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	var ae *Error
	if !errors.As(err, &ae) {
		t.Errorf("expected *Error, got %T", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("mystery", Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
