// Package model defines the core data types shared across revpanel.
package model

import "strings"

// Severity categorizes how serious a finding is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Severities lists all severity values from most to least severe.
// Stats and report rendering iterate this so every level always appears.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity maps free-form analyzer output onto a Severity. Agent output
// is untrusted, so unknown tokens normalize to the fallback instead of
// failing the review.
func ParseSeverity(s string, fallback Severity) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info", "minor":
		return SeverityLow
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "high", "major", "error":
		return SeverityHigh
	case "critical", "blocker":
		return SeverityCritical
	default:
		return fallback
	}
}

// MarshalText implements encoding.TextMarshaler so severities serialize as
// their names in JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text), SeverityMedium)
	return nil
}

// OutcomeStatus is the terminal state of one agent dispatch.
type OutcomeStatus int

const (
	StatusOK OutcomeStatus = iota
	StatusFailed
	StatusTimedOut
)

func (o OutcomeStatus) String() string {
	switch o {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Finding is one raw issue reported by a single analyzer before merging.
// File and Line are optional: a zero Line means the finding is file-level
// (or global when File is empty too).
type Finding struct {
	Severity   Severity `json:"severity"`
	File       string   `json:"file,omitempty"`
	Line       int      `json:"line,omitempty"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// AgentOutcome is the per-agent terminal result of one dispatch. Findings is
// empty unless Status is StatusOK.
type AgentOutcome struct {
	AgentName string
	Status    OutcomeStatus
	Findings  []Finding
	ErrDetail string
}

// ReviewComment is one issue in the final, deduplicated review output. It
// may represent several collapsed findings; agents whose duplicate finding
// was folded into this one are listed in AlsoFlaggedBy.
type ReviewComment struct {
	Agent         string   `json:"agent"`
	AlsoFlaggedBy []string `json:"also_flagged_by,omitempty"`
	Severity      Severity `json:"severity"`
	File          string   `json:"file,omitempty"`
	Line          int      `json:"line,omitempty"`
	Message       string   `json:"message"`
	Suggestion    string   `json:"suggestion,omitempty"`
}

// ReviewStats summarizes the merged comment list. BySeverity always carries
// all four severity keys, zero-filled, for a stable schema.
type ReviewStats struct {
	TotalComments int            `json:"total_comments"`
	BySeverity    map[string]int `json:"by_severity"`
	ByAgent       map[string]int `json:"by_agent,omitempty"`
}

// ReviewResult is the final output of one review request. Immutable once
// returned.
type ReviewResult struct {
	RunID    string          `json:"run_id,omitempty"`
	Summary  string          `json:"summary"`
	Comments []ReviewComment `json:"comments"`
	Stats    ReviewStats     `json:"stats"`
}

// MaxSeverity returns the highest severity among the comments, and false
// when there are none.
func (r *ReviewResult) MaxSeverity() (Severity, bool) {
	if len(r.Comments) == 0 {
		return SeverityLow, false
	}
	max := r.Comments[0].Severity
	for _, c := range r.Comments[1:] {
		if c.Severity > max {
			max = c.Severity
		}
	}
	return max, true
}
