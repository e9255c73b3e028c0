// Package orchestrator coordinates one review request: admission control,
// concurrent dispatch to every registered agent, failure isolation, and
// aggregation of the collected outcomes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/revlab-dev/revpanel/internal/agents"
	"github.com/revlab-dev/revpanel/internal/aggregate"
	"github.com/revlab-dev/revpanel/internal/analyzer"
	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

// DiffTooLargeError is the admission-control rejection. It is raised once,
// before any agent dispatch, so an oversized diff never costs N analyzer
// calls.
type DiffTooLargeError struct {
	Size int
	Max  int
}

func (e *DiffTooLargeError) Error() string {
	return fmt.Sprintf("diff too large (%d chars, max %d)", e.Size, e.Max)
}

// Config bounds a review request. Zero values pick up defaults.
type Config struct {
	MaxDiffChars        int           // admission limit on the serialized diff
	AgentTimeout        time.Duration // per-agent deadline
	SimilarityThreshold float64       // near-duplicate matching, 1.0 = exact
}

const (
	DefaultMaxDiffChars = 100_000
	DefaultAgentTimeout = 90 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxDiffChars <= 0 {
		c.MaxDiffChars = DefaultMaxDiffChars
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = DefaultAgentTimeout
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 1.0
	}
	return c
}

// Orchestrator fans one review request out to every registered agent and
// fans the outcomes back in. It owns the in-flight outcomes for a request;
// nothing else mutates them.
type Orchestrator struct {
	registry *agents.Registry
	backend  analyzer.Analyzer
	cfg      Config

	// ProgressFunc, if set, is called as each agent reaches a terminal
	// state. Calls may arrive from concurrent goroutines.
	ProgressFunc func(agent string, status model.OutcomeStatus)
}

// New creates an Orchestrator.
func New(registry *agents.Registry, backend analyzer.Analyzer, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		backend:  backend,
		cfg:      cfg.withDefaults(),
	}
}

// Review runs the full panel against doc. For a size-admissible diff it
// always returns a result: individual agent failures and timeouts degrade
// coverage (noted in the summary) but never fail the request, even when
// every agent fails.
func (o *Orchestrator) Review(ctx context.Context, doc *diff.Document, reviewCtx string) (*model.ReviewResult, error) {
	if size := len(doc.PromptText()); size > o.cfg.MaxDiffChars {
		return nil, &DiffTooLargeError{Size: size, Max: o.cfg.MaxDiffChars}
	}

	outcomes := o.dispatch(ctx, doc, reviewCtx)
	if err := ctx.Err(); err != nil {
		// The caller gave up; aggregating a partial panel now would hand
		// back a result nobody is waiting for.
		return nil, err
	}

	result := aggregate.Merge(outcomes, aggregate.Options{SimilarityThreshold: o.cfg.SimilarityThreshold})
	result.RunID = uuid.NewString()
	return result, nil
}

// dispatch runs every agent concurrently and collects outcomes in registry
// order. Each goroutine writes only its own slot, so the g.Wait barrier is
// the sole synchronization point and no locks are needed around findings.
func (o *Orchestrator) dispatch(ctx context.Context, doc *diff.Document, reviewCtx string) []model.AgentOutcome {
	defs := o.registry.List()
	outcomes := make([]model.AgentOutcome, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		g.Go(func() error {
			outcomes[i] = o.invoke(gctx, doc, def, reviewCtx)
			o.emit(outcomes[i])
			// Always nil: one agent's failure must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// invoke runs a single agent under its own deadline and converts any error
// into a terminal outcome. A slow agent exhausts only its own timeout.
func (o *Orchestrator) invoke(ctx context.Context, doc *diff.Document, def agents.Definition, reviewCtx string) model.AgentOutcome {
	agentCtx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
	defer cancel()

	findings, err := o.backend.Analyze(agentCtx, doc, def, reviewCtx)
	if err != nil {
		status := model.StatusFailed
		if errors.Is(err, context.DeadlineExceeded) && agentCtx.Err() != nil && ctx.Err() == nil {
			status = model.StatusTimedOut
		}
		return model.AgentOutcome{
			AgentName: def.Name,
			Status:    status,
			ErrDetail: err.Error(),
		}
	}

	return model.AgentOutcome{
		AgentName: def.Name,
		Status:    model.StatusOK,
		Findings:  findings,
	}
}

func (o *Orchestrator) emit(outcome model.AgentOutcome) {
	if o.ProgressFunc != nil {
		o.ProgressFunc(outcome.AgentName, outcome.Status)
	}
}
