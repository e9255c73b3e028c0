// Package analyzer implements the analysis capability: given a diff and a
// specialist role, return zero or more findings within a deadline. Backends
// are swappable; the orchestrator depends only on the Analyzer interface.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

// Analyzer is the capability contract. Implementations must honor ctx
// cancellation and deadlines and must not mutate doc.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, doc *diff.Document, def agents.Definition, reviewCtx string) ([]model.Finding, error)
}

// Error wraps a backend failure with the provider that produced it.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analyzer %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures backend construction.
type Options struct {
	Model   string
	BaseURL string // override for OpenAI-compatible endpoints (OpenRouter, Ollama, ...)
	APIKey  string
}

// New creates an analyzer backend by provider name.
func New(provider string, opts Options) (Analyzer, error) {
	switch provider {
	case "openai", "openrouter", "ollama":
		return newOpenAI(provider, opts)
	case "anthropic":
		return newAnthropic(opts)
	case "rules":
		return NewRules(), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider: %s", provider)
	}
}

// maxPromptChars bounds the diff text in a single model request. Diffs past
// it are split at hunk boundaries and reviewed chunk by chunk.
const maxPromptChars = 60_000

// buildUserPrompt renders one diff chunk and optional free-text context into
// the user message sent alongside the agent's role prompt.
func buildUserPrompt(diffText string, def agents.Definition, reviewCtx string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this code diff for %s issues:\n\n", def.Concern)
	b.WriteString(diffText)
	b.WriteString("\n")
	if reviewCtx != "" {
		fmt.Fprintf(&b, "\nContext: %s\n", reviewCtx)
	}
	b.WriteString("\nReturn a JSON array of issues found. If no issues, return an empty array [].\n")
	b.WriteString("\nIMPORTANT: Return ONLY valid JSON, no markdown formatting, no code blocks.")
	return b.String()
}

// rawFinding is the JSON shape models are asked to produce.
type rawFinding struct {
	Severity   string `json:"severity"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// parseFindings decodes a model response into findings. Responses are
// untrusted free-form content: markdown fences are stripped, an object with
// an "issues" key is accepted in place of a bare array, and unknown severity
// tokens normalize to the agent's default.
func parseFindings(content string, def agents.Definition) ([]model.Finding, error) {
	content = stripFences(strings.TrimSpace(content))

	var raw []rawFinding
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		var wrapped struct {
			Issues []rawFinding `json:"issues"`
		}
		if err2 := json.Unmarshal([]byte(content), &wrapped); err2 != nil {
			return nil, fmt.Errorf("invalid findings JSON: %w", err)
		}
		raw = wrapped.Issues
	}

	findings := make([]model.Finding, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Message) == "" {
			continue
		}
		line := r.Line
		if line < 0 {
			line = 0
		}
		findings = append(findings, model.Finding{
			Severity:   model.ParseSeverity(r.Severity, def.DefaultSeverity),
			File:       r.File,
			Line:       line,
			Message:    r.Message,
			Suggestion: r.Suggestion,
		})
	}
	return findings, nil
}

func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}
