package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

// rule is one pattern-based check applied to added lines.
type rule struct {
	pattern    *regexp.Regexp
	message    string
	severity   model.Severity
	suggestion string
}

// Rules is a deterministic, offline analyzer backend. It applies a fixed set
// of per-concern patterns to added lines, so reviews work without any remote
// model and tests have a real non-stub backend to exercise.
type Rules struct {
	byConcern map[agents.Concern][]rule
}

// NewRules creates the rule-based backend with the built-in rule sets.
func NewRules() *Rules {
	return &Rules{byConcern: builtinRules()}
}

func (r *Rules) Name() string { return "rules" }

func (r *Rules) Analyze(ctx context.Context, doc *diff.Document, def agents.Definition, reviewCtx string) ([]model.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rules := r.byConcern[def.Concern]
	if len(rules) == 0 {
		return nil, nil
	}

	var findings []model.Finding
	seen := make(map[string]bool)

	for i := range doc.Files {
		f := &doc.Files[i]
		name := f.Name()
		for _, h := range f.Hunks {
			for _, line := range h.Lines {
				if line.Kind != diff.LineAdded {
					continue
				}
				trimmed := strings.TrimSpace(line.Content)
				// Comment-only lines are noise for security matching, but
				// the style rules exist precisely to inspect comments.
				if def.Concern == agents.ConcernSecurity && isComment(trimmed) {
					continue
				}
				for _, ru := range rules {
					if !ru.pattern.MatchString(line.Content) {
						continue
					}
					msg := fmt.Sprintf("%s: %s", ru.message, trimmed)
					key := fmt.Sprintf("%s:%d:%s", name, line.NewLine, msg)
					if seen[key] {
						continue
					}
					seen[key] = true
					findings = append(findings, model.Finding{
						Severity:   ru.severity,
						File:       name,
						Line:       line.NewLine,
						Message:    msg,
						Suggestion: ru.suggestion,
					})
					break // one finding per line per concern
				}
			}
		}
	}

	return findings, nil
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "/*")
}

func builtinRules() map[agents.Concern][]rule {
	return map[agents.Concern][]rule{
		agents.ConcernSecurity: {
			{
				pattern:    regexp.MustCompile(`(?i)(PRIVATE|SECRET|PASSWORD|TOKEN|API.?KEY)\s*[:=]\s*["']`),
				message:    "Possible hardcoded credential",
				severity:   model.SeverityCritical,
				suggestion: "Load secrets from the environment or a secret store instead of source code.",
			},
			{
				pattern:    regexp.MustCompile(`(?i)InsecureSkipVerify|disable.?ssl|verify.?ssl.*false`),
				message:    "TLS verification disabled",
				severity:   model.SeverityHigh,
				suggestion: "Keep certificate verification enabled outside of tests.",
			},
			{
				pattern:    regexp.MustCompile(`(?i)(exec\.Command|os\.system|subprocess|child_process|shell_exec|\beval\()`),
				message:    "Subprocess or dynamic execution",
				severity:   model.SeverityHigh,
				suggestion: "Validate and constrain any input reaching command execution.",
			},
			{
				pattern:  regexp.MustCompile(`(?i)(db\.exec|db\.query|cursor\.execute|connection\.execute)`),
				message:  "Direct database statement",
				severity: model.SeverityMedium,
				suggestion: "Use parameterized queries; never interpolate user input into SQL.",
			},
			{
				pattern:  regexp.MustCompile(`(?i)(auth|password|credential|jwt|oauth|session)`),
				message:  "Security-sensitive code path touched",
				severity: model.SeverityMedium,
			},
		},
		agents.ConcernLogic: {
			{
				pattern:    regexp.MustCompile(`(?i)except\s*:|except\s+Exception\s*:|catch\s*\(\s*(Exception|Error|e)\s*\)|catch\s*\{|rescue\s+StandardError`),
				message:    "Broad exception handling",
				severity:   model.SeverityMedium,
				suggestion: "Catch the specific error types this code can actually recover from.",
			},
			{
				pattern:    regexp.MustCompile(`_\s*=\s*err\b|err\s*==?\s*nil\s*\{\s*return\s*\}`),
				message:    "Error silently discarded",
				severity:   model.SeverityMedium,
				suggestion: "Handle or propagate the error instead of dropping it.",
			},
			{
				pattern:  regexp.MustCompile(`==\s*(0\.\d+|\d+\.\d+)`),
				message:  "Exact floating-point comparison",
				severity: model.SeverityLow,
			},
		},
		agents.ConcernPerformance: {
			{
				pattern:    regexp.MustCompile(`(?i)\bSELECT\s+\*`),
				message:    "SELECT * query",
				severity:   model.SeverityLow,
				suggestion: "Select only the columns this code reads.",
			},
			{
				pattern:    regexp.MustCompile(`time\.Sleep|sleep\(`),
				message:    "Sleep call in production path",
				severity:   model.SeverityMedium,
				suggestion: "Prefer tickers, timers, or condition-based waits over fixed sleeps.",
			},
		},
		agents.ConcernStyle: {
			{
				pattern:  regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b`),
				message:  "Work marker left in change",
				severity: model.SeverityLow,
			},
			{
				pattern:  regexp.MustCompile(`^\s*(?://|#)\s*(?:func |def |class |if |for |while |return |import |const |let |var )`),
				message:  "Commented-out code",
				severity: model.SeverityLow,
				suggestion: "Delete dead code; version control keeps the history.",
			},
		},
	}
}
