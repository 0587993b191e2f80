// Package attractor is the small public facade over this module's
// internal/attractor tree. Run parses, validates, and executes a DOT
// pipeline; Prepare exposes the parse+transform+validate phases alone, for
// callers (e.g. a `validate` or `plan` CLI front-end) that want
// diagnostics without executing anything.
package attractor

import (
	"context"

	"github.com/attractor-run/attractor/internal/attractor/config"
	"github.com/attractor-run/attractor/internal/attractor/engine"
	"github.com/attractor-run/attractor/internal/attractor/event"
	"github.com/attractor-run/attractor/internal/attractor/handler"
	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/validate"
)

// RunOptions configures a Run call.
type RunOptions struct {
	// Config carries the ambient engine settings (workdir, dry_run,
	// max_budget_usd, max_steps, logs_root, event_buffer_size,
	// retry_backoff); see internal/attractor/config.
	Config config.EngineConfig

	// Registry resolves node handler types to their executors. If nil,
	// engine.NewDefaultRegistry() is used, which only covers the trivial
	// start/exit/conditional handlers; register any codergen/tool/
	// wait.human/parallel/stack.manager_loop handlers your graph needs
	// before calling Run.
	Registry *handler.Registry

	// Events receives every lifecycle event this run publishes. If nil, a
	// private channel is created and discarded with the run.
	Events *event.Channel
}

// Result is the outcome of a completed run.
type Result = engine.Result

// Diagnostic is one validator finding.
type Diagnostic = validate.Diagnostic

// Prepare parses dotSource, applies the stylesheet/${var} transforms, and
// validates the resulting graph, returning every diagnostic found. A
// non-nil error means the DOT failed to parse, a transform (such as the
// stylesheet) failed, or at least one Error-severity diagnostic was
// present; in the last case diags is still returned so callers can report
// every finding, not just the first.
func Prepare(dotSource []byte) (*model.PipelineGraph, []Diagnostic, error) {
	return engine.Prepare(dotSource)
}

// Run parses, validates, and executes dotSource to completion (or to its
// first terminal error).
func Run(ctx context.Context, dotSource []byte, opts RunOptions) (*Result, error) {
	g, _, err := engine.Prepare(dotSource)
	if err != nil {
		return nil, err
	}
	return RunGraph(ctx, g, opts)
}

// RunGraph executes an already-prepared graph (e.g. one a caller built
// itself, or mutated after Prepare) through phases 2-5.
func RunGraph(ctx context.Context, g *model.PipelineGraph, opts RunOptions) (*Result, error) {
	eng := engine.New(g, opts.Registry, opts.Config, opts.Events)
	return eng.Run(ctx)
}

// Resume continues dotSource's pipeline from the checkpoint saved under
// opts.Config.LogsRoot. With no checkpoint on disk it behaves exactly like
// Run.
func Resume(ctx context.Context, dotSource []byte, opts RunOptions) (*Result, error) {
	g, _, err := engine.Prepare(dotSource)
	if err != nil {
		return nil, err
	}
	eng := engine.New(g, opts.Registry, opts.Config, opts.Events)
	return eng.Resume(ctx)
}
