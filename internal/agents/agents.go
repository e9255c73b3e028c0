// Package agents defines the review panel: the set of specialist agent
// definitions dispatched against each diff.
package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/revlab-dev/revpanel/internal/model"
)

// Concern is the area a specialist focuses on. The set is open: custom
// registries may introduce their own concerns.
type Concern string

const (
	ConcernLogic       Concern = "logic"
	ConcernSecurity    Concern = "security"
	ConcernPerformance Concern = "performance"
	ConcernStyle       Concern = "style"
)

// Definition describes one specialist agent. Definitions are loaded at
// startup and immutable for the lifetime of a request.
type Definition struct {
	Name            string         `yaml:"name"`
	Concern         Concern        `yaml:"concern"`
	RolePrompt      string         `yaml:"role_prompt"`
	DefaultSeverity model.Severity `yaml:"default_severity"`
	Temperature     float64        `yaml:"temperature"`
}

// Registry holds agent definitions in registration order. The order is the
// dispatch and merge order, so it must be deterministic across runs.
type Registry struct {
	defs []Definition
}

// NewRegistry creates a registry from the given definitions, preserving
// their order. Duplicate names are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("agent definition with empty name")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate agent name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return &Registry{defs: append([]Definition(nil), defs...)}, nil
}

// List returns the definitions in registration order. The returned slice is
// a copy; callers cannot mutate the registry through it.
func (r *Registry) List() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.defs)
}

// registryFile is the YAML shape of an agents config file.
type registryFile struct {
	Agents []Definition `yaml:"agents"`
}

// LoadFile reads a registry from a YAML file. Adding or removing an agent is
// a configuration change, never a code change.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents file: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing agents file %s: %w", path, err)
	}

	for i := range f.Agents {
		applyDefaults(&f.Agents[i])
	}
	return NewRegistry(f.Agents...)
}

func applyDefaults(d *Definition) {
	if d.Concern == "" {
		d.Concern = Concern(d.Name)
	}
	if d.RolePrompt == "" {
		d.RolePrompt = fmt.Sprintf("You are a senior engineer reviewing code changes for %s issues.\n%s", d.Concern, outputContract)
	}
	if d.Temperature == 0 {
		d.Temperature = 0.2
	}
}

// outputContract is appended to every role prompt so all agents speak the
// same findings schema.
const outputContract = `Provide specific, actionable feedback. For each issue found, specify:
- The file and approximate line number
- The severity (low, medium, high, critical)
- A clear description of the problem
- A suggested fix

Format your response as a JSON array of objects with keys: file, line, severity, message, suggestion.
If no issues are found, return an empty array []. Return ONLY valid JSON, no markdown formatting.`

// Default returns the standard four-agent panel.
func Default() *Registry {
	r, err := NewRegistry(
		Definition{
			Name:            "logic",
			Concern:         ConcernLogic,
			DefaultSeverity: model.SeverityMedium,
			Temperature:     0.3,
			RolePrompt: `You are a senior software engineer reviewing code changes for logical correctness.
Focus on:
- Logic errors and potential bugs
- Edge cases not being handled
- Incorrect algorithms or data structures
- Off-by-one errors
- Null/undefined reference issues
- Race conditions or concurrency issues
- Incorrect assumptions

` + outputContract,
		},
		Definition{
			Name:            "security",
			Concern:         ConcernSecurity,
			DefaultSeverity: model.SeverityHigh,
			Temperature:     0.2,
			RolePrompt: `You are a security expert reviewing code changes for vulnerabilities.
Focus on:
- SQL injection vulnerabilities
- XSS (Cross-Site Scripting) risks
- Authentication and authorization issues
- Insecure data storage or transmission
- Hardcoded credentials or secrets
- Input validation issues
- Insecure deserialization
- Path traversal issues
- Cryptographic weaknesses

Prioritize actual security vulnerabilities over theoretical concerns.

` + outputContract,
		},
		Definition{
			Name:            "performance",
			Concern:         ConcernPerformance,
			DefaultSeverity: model.SeverityMedium,
			Temperature:     0.2,
			RolePrompt: `You are a performance optimization expert reviewing code changes.
Focus on:
- Inefficient algorithms (quadratic where linear is possible)
- Unnecessary database queries (N+1 queries)
- Memory leaks or excessive memory usage
- Blocking operations that could be concurrent
- Inefficient data structures
- Missing caching opportunities
- Heavy computations in hot paths
- Redundant API calls

Focus on significant performance issues, not micro-optimizations.

` + outputContract,
		},
		Definition{
			Name:            "style",
			Concern:         ConcernStyle,
			DefaultSeverity: model.SeverityLow,
			Temperature:     0.2,
			RolePrompt: `You are a code quality expert reviewing code changes for style and best practices.
Focus on:
- Code readability and clarity
- Naming conventions
- Code duplication
- Function length and complexity
- Missing documentation
- Error handling patterns
- Testing best practices

Be constructive and focus on significant issues, not nitpicks.

` + outputContract,
		},
	)
	if err != nil {
		panic(err) // static definitions, cannot collide
	}
	return r
}
