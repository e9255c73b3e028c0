// Package aggregate merges per-agent outcomes into one deduplicated,
// ordered review result. It is pure: no I/O, and identical inputs always
// produce identical output.
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/revlab-dev/revpanel/internal/model"
)

// Options tunes the merge.
type Options struct {
	// SimilarityThreshold controls near-duplicate message matching on
	// same-location comments. 1.0 (the default) means case-insensitive
	// exact match only; lower values enable token-overlap matching.
	SimilarityThreshold float64
}

// DefaultOptions returns the conservative defaults.
func DefaultOptions() Options {
	return Options{SimilarityThreshold: 1.0}
}

// Merge flattens, deduplicates, orders, and summarizes agent outcomes.
// Outcomes must already be in registry order; that order is the tiebreak
// everywhere, which keeps the result deterministic regardless of which
// agent finished first.
func Merge(outcomes []model.AgentOutcome, opts Options) *model.ReviewResult {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 1.0
	}

	comments := flatten(outcomes)
	comments = deduplicate(comments, opts.SimilarityThreshold)
	sortComments(comments)

	stats := computeStats(comments)
	summary := buildSummary(comments, stats, outcomes)

	return &model.ReviewResult{
		Summary:  summary,
		Comments: comments,
		Stats:    stats,
	}
}

func flatten(outcomes []model.AgentOutcome) []model.ReviewComment {
	var comments []model.ReviewComment
	for _, o := range outcomes {
		if o.Status != model.StatusOK {
			continue
		}
		for _, f := range o.Findings {
			comments = append(comments, model.ReviewComment{
				Agent:      o.AgentName,
				Severity:   f.Severity,
				File:       f.File,
				Line:       f.Line,
				Message:    f.Message,
				Suggestion: f.Suggestion,
			})
		}
	}
	return comments
}

// deduplicate collapses comments at the same (file, line) whose messages are
// equivalent. The higher-severity instance wins (first-in-order on ties) and
// the losing agent is recorded on the keeper, so agreement between two
// specialists stays visible.
func deduplicate(comments []model.ReviewComment, threshold float64) []model.ReviewComment {
	var kept []model.ReviewComment

	for _, c := range comments {
		merged := false
		for i := range kept {
			k := &kept[i]
			if k.File != c.File || k.Line != c.Line {
				continue
			}
			if !equivalent(k.Message, c.Message, threshold) {
				continue
			}

			if c.Severity > k.Severity {
				// The newcomer is the instance worth keeping; remember who
				// else flagged the spot.
				prev := k.Agent
				also := k.AlsoFlaggedBy
				*k = c
				k.AlsoFlaggedBy = appendAgent(also, prev, k.Agent)
			} else {
				k.AlsoFlaggedBy = appendAgent(k.AlsoFlaggedBy, c.Agent, k.Agent)
			}
			merged = true
			break
		}
		if !merged {
			kept = append(kept, c)
		}
	}

	return kept
}

func appendAgent(list []string, agent, primary string) []string {
	if agent == "" || agent == primary {
		return list
	}
	for _, a := range list {
		if a == agent {
			return list
		}
	}
	return append(list, agent)
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// equivalent reports whether two messages describe the same issue:
// case-insensitive exact match, or token Jaccard similarity at or above the
// threshold when near-duplicate matching is enabled.
func equivalent(a, b string, threshold float64) bool {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == lb {
		return true
	}
	if threshold >= 1.0 {
		return false
	}
	return jaccard(tokens(la), tokens(lb)) >= threshold
}

func tokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range nonWord.Split(s, -1) {
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	var intersection int
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// sortComments orders by descending severity, then file path (unset last),
// then ascending line (unset last). The sort is stable, so flatten order
// breaks remaining ties.
func sortComments(comments []model.ReviewComment) {
	sort.SliceStable(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.File != b.File {
			if a.File == "" {
				return false
			}
			if b.File == "" {
				return true
			}
			return a.File < b.File
		}
		if a.Line != b.Line {
			if a.Line == 0 {
				return false
			}
			if b.Line == 0 {
				return true
			}
			return a.Line < b.Line
		}
		return false
	})
}

func computeStats(comments []model.ReviewComment) model.ReviewStats {
	bySeverity := make(map[string]int, len(model.Severities))
	for _, s := range model.Severities {
		bySeverity[s.String()] = 0
	}

	byAgent := make(map[string]int)
	for _, c := range comments {
		bySeverity[c.Severity.String()]++
		byAgent[c.Agent]++
	}

	return model.ReviewStats{
		TotalComments: len(comments),
		BySeverity:    bySeverity,
		ByAgent:       byAgent,
	}
}

func buildSummary(comments []model.ReviewComment, stats model.ReviewStats, outcomes []model.AgentOutcome) string {
	if len(outcomes) == 0 {
		return "No review agents are configured; nothing was analyzed."
	}

	var failed, timedOut []string
	ok := 0
	for _, o := range outcomes {
		switch o.Status {
		case model.StatusFailed:
			failed = append(failed, o.AgentName)
		case model.StatusTimedOut:
			timedOut = append(timedOut, o.AgentName)
		default:
			ok++
		}
	}

	var b strings.Builder

	if ok == 0 {
		fmt.Fprintf(&b, "Code review failed: none of the %d agent(s) completed.", len(outcomes))
		appendCoverageNotes(&b, failed, timedOut)
		return b.String()
	}

	if len(comments) == 0 {
		b.WriteString("Code review complete. No significant issues found.")
		appendCoverageNotes(&b, failed, timedOut)
		return b.String()
	}

	fmt.Fprintf(&b, "Code review complete. Found %d issue(s):", stats.TotalComments)
	for _, s := range model.Severities {
		if n := stats.BySeverity[s.String()]; n > 0 {
			fmt.Fprintf(&b, "\n  %d %s severity", n, s)
		}
	}

	// Comments are already sorted most severe first.
	b.WriteString("\n\nKey findings:")
	for i, c := range comments {
		if i == 3 {
			break
		}
		loc := c.File
		if loc == "" {
			loc = "general"
		}
		fmt.Fprintf(&b, "\n  - [%s] %s: %s", c.Agent, loc, truncate(c.Message, 80))
	}

	appendCoverageNotes(&b, failed, timedOut)
	return b.String()
}

func appendCoverageNotes(b *strings.Builder, failed, timedOut []string) {
	if len(failed) > 0 {
		fmt.Fprintf(b, "\n\nAgent(s) failed: %s.", strings.Join(failed, ", "))
	}
	if len(timedOut) > 0 {
		sep := "\n\n"
		if len(failed) > 0 {
			sep = "\n"
		}
		fmt.Fprintf(b, "%sAgent(s) timed out: %s.", sep, strings.Join(timedOut, ", "))
	}
	if len(failed)+len(timedOut) > 0 {
		b.WriteString(" Coverage of this review is partial.")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
