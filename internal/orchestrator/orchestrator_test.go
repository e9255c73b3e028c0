package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

const testDiff = `diff --git a/main.go b/main.go
index abc1234..def5678 100644
--- a/main.go
+++ b/main.go
@@ -1,2 +1,5 @@
 package main

+func added1() {}
+func added2() {}
+func added3() {}
`

func parseTestDiff(t *testing.T) *diff.Document {
	t.Helper()
	doc, err := diff.Parse(testDiff)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

// stubAnalyzer is a deterministic analysis capability for tests. Behavior is
// keyed by agent name.
type stubAnalyzer struct {
	calls    atomic.Int64
	findings map[string][]model.Finding
	fail     map[string]bool
	hang     map[string]bool // block until the context is done
	delay    map[string]time.Duration
}

func (s *stubAnalyzer) Name() string { return "stub" }

func (s *stubAnalyzer) Analyze(ctx context.Context, doc *diff.Document, def agents.Definition, reviewCtx string) ([]model.Finding, error) {
	s.calls.Add(1)

	if s.hang[def.Name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d := s.delay[def.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail[def.Name] {
		return nil, fmt.Errorf("stub failure for %s", def.Name)
	}
	return s.findings[def.Name], nil
}

func fourAgentRegistry(t *testing.T) *agents.Registry {
	t.Helper()
	r, err := agents.NewRegistry(
		agents.Definition{Name: "logic", Concern: agents.ConcernLogic},
		agents.Definition{Name: "security", Concern: agents.ConcernSecurity},
		agents.Definition{Name: "performance", Concern: agents.ConcernPerformance},
		agents.Definition{Name: "style", Concern: agents.ConcernStyle},
	)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestReviewEndToEnd(t *testing.T) {
	stub := &stubAnalyzer{findings: map[string][]model.Finding{
		"logic":       {{Severity: model.SeverityHigh, File: "main.go", Line: 3, Message: "logic issue"}},
		"security":    {{Severity: model.SeverityCritical, File: "main.go", Line: 4, Message: "security issue"}},
		"performance": {{Severity: model.SeverityMedium, File: "main.go", Line: 5, Message: "perf issue"}},
		"style":       {{Severity: model.SeverityLow, File: "main.go", Line: 6, Message: "style issue"}},
	}}

	o := New(fourAgentRegistry(t), stub, Config{})
	result, err := o.Review(context.Background(), parseTestDiff(t), "")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}

	if result.Stats.TotalComments != 4 {
		t.Errorf("total = %d, want 4", result.Stats.TotalComments)
	}
	var sum int
	for _, n := range result.Stats.BySeverity {
		sum += n
	}
	if sum != 4 {
		t.Errorf("by_severity sums to %d, want 4", sum)
	}
	for i := 1; i < len(result.Comments); i++ {
		if result.Comments[i].Severity > result.Comments[i-1].Severity {
			t.Errorf("comments not sorted by descending severity: %v", result.Comments)
		}
	}
	if result.RunID == "" {
		t.Error("expected a run ID")
	}
	if stub.calls.Load() != 4 {
		t.Errorf("expected 4 analyzer invocations, got %d", stub.calls.Load())
	}
}

func TestReviewDiffTooLarge(t *testing.T) {
	stub := &stubAnalyzer{}
	o := New(fourAgentRegistry(t), stub, Config{MaxDiffChars: 10})

	_, err := o.Review(context.Background(), parseTestDiff(t), "")

	var tooLarge *DiffTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected DiffTooLargeError, got %v", err)
	}
	if tooLarge.Max != 10 {
		t.Errorf("error reports max %d, want 10", tooLarge.Max)
	}
	if stub.calls.Load() != 0 {
		t.Errorf("admission rejection must not invoke analyzers, got %d calls", stub.calls.Load())
	}
}

func TestReviewSingleAgentFailure(t *testing.T) {
	stub := &stubAnalyzer{
		findings: map[string][]model.Finding{
			"logic":       {{Severity: model.SeverityMedium, File: "main.go", Line: 3, Message: "a"}},
			"performance": {{Severity: model.SeverityMedium, File: "main.go", Line: 4, Message: "b"}},
			"style":       {{Severity: model.SeverityLow, File: "main.go", Line: 5, Message: "c"}},
		},
		fail: map[string]bool{"security": true},
	}

	o := New(fourAgentRegistry(t), stub, Config{})
	result, err := o.Review(context.Background(), parseTestDiff(t), "")
	if err != nil {
		t.Fatalf("one agent failing must not fail the review: %v", err)
	}

	if result.Stats.TotalComments != 3 {
		t.Errorf("expected findings from the 3 surviving agents, got %d", result.Stats.TotalComments)
	}
	if !strings.Contains(result.Summary, "security") {
		t.Errorf("summary should mention the failed agent: %q", result.Summary)
	}
}

func TestReviewAllAgentsFail(t *testing.T) {
	stub := &stubAnalyzer{fail: map[string]bool{
		"logic": true, "security": true, "performance": true, "style": true,
	}}

	o := New(fourAgentRegistry(t), stub, Config{})
	result, err := o.Review(context.Background(), parseTestDiff(t), "")
	if err != nil {
		t.Fatalf("all agents failing must still return a result: %v", err)
	}
	if result.Stats.TotalComments != 0 {
		t.Errorf("expected 0 comments, got %d", result.Stats.TotalComments)
	}
	if result.Summary == "" {
		t.Error("expected a summary describing the failure")
	}
}

func TestReviewAgentTimeout(t *testing.T) {
	stub := &stubAnalyzer{
		findings: map[string][]model.Finding{
			"logic": {{Severity: model.SeverityLow, File: "main.go", Line: 3, Message: "ok finding"}},
		},
		hang: map[string]bool{"security": true},
	}

	r, err := agents.NewRegistry(
		agents.Definition{Name: "logic"},
		agents.Definition{Name: "security"},
	)
	if err != nil {
		t.Fatal(err)
	}

	o := New(r, stub, Config{AgentTimeout: 20 * time.Millisecond})

	var statuses []string
	o.ProgressFunc = func(agent string, status model.OutcomeStatus) {
		if agent == "security" {
			statuses = append(statuses, status.String())
		}
	}

	start := time.Now()
	result, err := o.Review(context.Background(), parseTestDiff(t), "")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("review took %v; a hung agent must be bounded by its timeout", elapsed)
	}

	if result.Stats.TotalComments != 1 {
		t.Errorf("expected the healthy agent's finding, got %d comments", result.Stats.TotalComments)
	}
	if !strings.Contains(result.Summary, "timed out") {
		t.Errorf("summary should mention the timeout: %q", result.Summary)
	}
	if len(statuses) != 1 || statuses[0] != "timed_out" {
		t.Errorf("expected timed_out progress for security, got %v", statuses)
	}
}

func TestReviewEmptyRegistry(t *testing.T) {
	r, err := agents.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	stub := &stubAnalyzer{}

	o := New(r, stub, Config{})
	result, err := o.Review(context.Background(), parseTestDiff(t), "")
	if err != nil {
		t.Fatalf("empty registry must not fail: %v", err)
	}
	if result.Stats.TotalComments != 0 {
		t.Errorf("expected 0 comments, got %d", result.Stats.TotalComments)
	}
	if result.Summary == "" {
		t.Error("expected an explanatory summary")
	}
	if stub.calls.Load() != 0 {
		t.Errorf("empty registry must not invoke analyzers, got %d", stub.calls.Load())
	}
}

func TestReviewDeterministicMergeOrder(t *testing.T) {
	// Both agents report the identical finding, but the first-registered
	// agent finishes last. Outcome collection must follow registry order,
	// so the dedup tie still keeps the first-registered agent.
	shared := model.Finding{Severity: model.SeverityHigh, File: "main.go", Line: 3, Message: "same issue"}
	stub := &stubAnalyzer{
		findings: map[string][]model.Finding{"alpha": {shared}, "beta": {shared}},
		delay:    map[string]time.Duration{"alpha": 30 * time.Millisecond},
	}

	r, err := agents.NewRegistry(
		agents.Definition{Name: "alpha"},
		agents.Definition{Name: "beta"},
	)
	if err != nil {
		t.Fatal(err)
	}

	o := New(r, stub, Config{})
	result, err := o.Review(context.Background(), parseTestDiff(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Comments) != 1 {
		t.Fatalf("expected 1 deduplicated comment, got %d", len(result.Comments))
	}
	if result.Comments[0].Agent != "alpha" {
		t.Errorf("expected registry-order tiebreak (alpha), got %q", result.Comments[0].Agent)
	}
}

func TestReviewCallerCancellation(t *testing.T) {
	stub := &stubAnalyzer{hang: map[string]bool{
		"logic": true, "security": true, "performance": true, "style": true,
	}}

	o := New(fourAgentRegistry(t), stub, Config{AgentTimeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := o.Review(ctx, parseTestDiff(t), "")
	if err == nil {
		t.Fatal("expected an error after caller cancellation")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation must release pending agents promptly")
	}
}
