package aggregate

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/revlab-dev/revpanel/internal/model"
)

func okOutcome(agent string, findings ...model.Finding) model.AgentOutcome {
	return model.AgentOutcome{AgentName: agent, Status: model.StatusOK, Findings: findings}
}

func TestMergeOrdering(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic",
			model.Finding{Severity: model.SeverityLow, File: "a.go", Line: 1, Message: "minor thing"},
			model.Finding{Severity: model.SeverityCritical, File: "b.go", Line: 5, Message: "big thing"},
			model.Finding{Severity: model.SeverityMedium, File: "a.go", Line: 2, Message: "middle thing"},
		),
	}

	result := Merge(outcomes, DefaultOptions())

	got := make([]model.Severity, len(result.Comments))
	for i, c := range result.Comments {
		got[i] = c.Severity
	}
	want := []model.Severity{model.SeverityCritical, model.SeverityMedium, model.SeverityLow}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("severity order = %v, want %v", got, want)
	}
}

func TestMergeOrderingWithinSeverity(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic",
			model.Finding{Severity: model.SeverityHigh, Message: "no location"},
			model.Finding{Severity: model.SeverityHigh, File: "z.go", Line: 9, Message: "z file"},
			model.Finding{Severity: model.SeverityHigh, File: "a.go", Line: 30, Message: "a late"},
			model.Finding{Severity: model.SeverityHigh, File: "a.go", Line: 2, Message: "a early"},
			model.Finding{Severity: model.SeverityHigh, File: "a.go", Message: "a file-level"},
		),
	}

	result := Merge(outcomes, DefaultOptions())

	var got []string
	for _, c := range result.Comments {
		got = append(got, c.Message)
	}
	want := []string{"a early", "a late", "a file-level", "z file", "no location"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestMergeDeduplication(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic", model.Finding{
			Severity: model.SeverityMedium, File: "db.go", Line: 42,
			Message: "SQL query built from user input",
		}),
		okOutcome("security", model.Finding{
			Severity: model.SeverityHigh, File: "db.go", Line: 42,
			Message: "sql query built from user input",
		}),
	}

	result := Merge(outcomes, DefaultOptions())

	if len(result.Comments) != 1 {
		t.Fatalf("expected 1 comment after dedup, got %d", len(result.Comments))
	}
	c := result.Comments[0]
	if c.Severity != model.SeverityHigh {
		t.Errorf("expected the higher severity to win, got %s", c.Severity)
	}
	if c.Agent != "security" {
		t.Errorf("expected the higher-severity agent as primary, got %q", c.Agent)
	}
	if len(c.AlsoFlaggedBy) != 1 || c.AlsoFlaggedBy[0] != "logic" {
		t.Errorf("expected logic in AlsoFlaggedBy, got %v", c.AlsoFlaggedBy)
	}
	if result.Stats.TotalComments != 1 {
		t.Errorf("stats.total = %d, want 1", result.Stats.TotalComments)
	}
}

func TestMergeDeduplicationSeverityTie(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic", model.Finding{Severity: model.SeverityHigh, File: "x.go", Line: 1, Message: "Same issue"}),
		okOutcome("security", model.Finding{Severity: model.SeverityHigh, File: "x.go", Line: 1, Message: "same issue"}),
	}

	result := Merge(outcomes, DefaultOptions())
	if len(result.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(result.Comments))
	}
	if result.Comments[0].Agent != "logic" {
		t.Errorf("tie should keep first in outcome order, got %q", result.Comments[0].Agent)
	}
}

func TestMergeNoFalseDedup(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic", model.Finding{Severity: model.SeverityHigh, File: "x.go", Line: 1, Message: "same issue"}),
		okOutcome("security", model.Finding{Severity: model.SeverityHigh, File: "x.go", Line: 2, Message: "same issue"}),
		okOutcome("style", model.Finding{Severity: model.SeverityHigh, File: "x.go", Line: 1, Message: "entirely different problem"}),
	}

	result := Merge(outcomes, DefaultOptions())
	if len(result.Comments) != 3 {
		t.Errorf("distinct locations/messages must not collapse, got %d comments", len(result.Comments))
	}
}

func TestMergeNearDuplicateThreshold(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic", model.Finding{Severity: model.SeverityMedium, File: "x.go", Line: 1,
			Message: "missing nil check on user input value"}),
		okOutcome("security", model.Finding{Severity: model.SeverityMedium, File: "x.go", Line: 1,
			Message: "missing nil check on the user input value"}),
	}

	// Exact matching keeps both.
	result := Merge(outcomes, Options{SimilarityThreshold: 1.0})
	if len(result.Comments) != 2 {
		t.Errorf("exact matching should keep both, got %d", len(result.Comments))
	}

	// Token-overlap matching collapses them.
	result = Merge(outcomes, Options{SimilarityThreshold: 0.8})
	if len(result.Comments) != 1 {
		t.Errorf("near-duplicate matching should collapse, got %d", len(result.Comments))
	}
}

func TestMergeStatsZeroFilled(t *testing.T) {
	result := Merge([]model.AgentOutcome{okOutcome("logic",
		model.Finding{Severity: model.SeverityHigh, Message: "x"},
	)}, DefaultOptions())

	for _, key := range []string{"low", "medium", "high", "critical"} {
		if _, ok := result.Stats.BySeverity[key]; !ok {
			t.Errorf("by_severity missing key %q", key)
		}
	}
	if result.Stats.BySeverity["high"] != 1 {
		t.Errorf("by_severity[high] = %d, want 1", result.Stats.BySeverity["high"])
	}
	if result.Stats.ByAgent["logic"] != 1 {
		t.Errorf("by_agent[logic] = %d, want 1", result.Stats.ByAgent["logic"])
	}
}

func TestMergeFailedAgentsInSummary(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic", model.Finding{Severity: model.SeverityLow, File: "a.go", Line: 1, Message: "m"}),
		{AgentName: "security", Status: model.StatusFailed, ErrDetail: "boom"},
		{AgentName: "performance", Status: model.StatusTimedOut},
	}

	result := Merge(outcomes, DefaultOptions())

	if !strings.Contains(result.Summary, "security") {
		t.Errorf("summary should name the failed agent: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "performance") {
		t.Errorf("summary should name the timed-out agent: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "partial") {
		t.Errorf("summary should note partial coverage: %q", result.Summary)
	}
	// Failed agents contribute no findings but do not sink the review.
	if result.Stats.TotalComments != 1 {
		t.Errorf("expected 1 comment, got %d", result.Stats.TotalComments)
	}
}

func TestMergeAllFailed(t *testing.T) {
	outcomes := []model.AgentOutcome{
		{AgentName: "logic", Status: model.StatusFailed},
		{AgentName: "security", Status: model.StatusFailed},
	}

	result := Merge(outcomes, DefaultOptions())
	if result.Stats.TotalComments != 0 {
		t.Errorf("expected 0 comments, got %d", result.Stats.TotalComments)
	}
	if !strings.Contains(result.Summary, "none of the 2 agent(s)") {
		t.Errorf("summary should note full analysis failure: %q", result.Summary)
	}
}

func TestMergeEmptyOutcomes(t *testing.T) {
	result := Merge(nil, DefaultOptions())
	if result.Stats.TotalComments != 0 {
		t.Errorf("expected 0 comments, got %d", result.Stats.TotalComments)
	}
	if result.Summary == "" {
		t.Error("expected an explanatory summary for an empty panel")
	}
}

func TestMergeIdempotent(t *testing.T) {
	outcomes := []model.AgentOutcome{
		okOutcome("logic",
			model.Finding{Severity: model.SeverityMedium, File: "a.go", Line: 3, Message: "m1"},
			model.Finding{Severity: model.SeverityCritical, File: "b.go", Line: 7, Message: "m2"},
		),
		okOutcome("security", model.Finding{Severity: model.SeverityMedium, File: "a.go", Line: 3, Message: "M1"}),
		{AgentName: "style", Status: model.StatusFailed, ErrDetail: "x"},
	}

	first, err := json.Marshal(Merge(outcomes, DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(Merge(outcomes, DefaultOptions()))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("merge is not deterministic:\n%s\n%s", first, second)
	}
}
