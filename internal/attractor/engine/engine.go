package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/attractor-run/attractor/internal/attractor/apperr"
	"github.com/attractor-run/attractor/internal/attractor/checkpoint"
	"github.com/attractor-run/attractor/internal/attractor/config"
	"github.com/attractor-run/attractor/internal/attractor/dot"
	"github.com/attractor-run/attractor/internal/attractor/event"
	"github.com/attractor-run/attractor/internal/attractor/goalgate"
	"github.com/attractor-run/attractor/internal/attractor/handler"
	"github.com/attractor-run/attractor/internal/attractor/model"
	"github.com/attractor-run/attractor/internal/attractor/retry"
	"github.com/attractor-run/attractor/internal/attractor/runtime"
	"github.com/attractor-run/attractor/internal/attractor/selectedge"
	"github.com/attractor-run/attractor/internal/attractor/transform"
	"github.com/attractor-run/attractor/internal/attractor/validate"
)

// NewDefaultRegistry returns a handler.Registry carrying only the trivial
// built-in handlers: start/exit/conditional. Every other handler type in
// the shape table (codergen, wait.human, tool, parallel, parallel.fan_in,
// stack.manager_loop) shells out to an external collaborator (an LLM CLI,
// a human prompt, a sub-process); callers register those themselves via
// Registry.Register before running a graph that uses them.
func NewDefaultRegistry() *handler.Registry {
	reg := handler.NewRegistry()
	reg.Register(StartHandler{})
	reg.Register(ExitHandler{})
	reg.Register(ConditionalHandler{})
	return reg
}

// Result is what the finalize phase returns.
type Result struct {
	RunID          string
	CompletedNodes []string
	NodeOutcomes   map[string]runtime.Outcome
	FinalContext   map[string]any
	Steps          int
	TotalCostUSD   float64
}

// Engine owns one run's mutable traversal state. Cost, step count, and the
// completed-node list all live in the run frame; there is no global
// mutable state.
type Engine struct {
	RunID    string
	Graph    *model.PipelineGraph
	Registry *handler.Registry
	Context  *runtime.Context
	Events   *event.Channel
	Config   config.EngineConfig

	retryPolicy retry.Policy
}

// New constructs an Engine ready to Run against g. reg must at minimum
// resolve a handler for every handler type the graph's nodes require
// (NewDefaultRegistry covers start/exit/conditional; register the rest
// yourself). If events is nil, a private Channel is created using
// cfg.EventBufferSize.
func New(g *model.PipelineGraph, reg *handler.Registry, cfg config.EngineConfig, events *event.Channel) *Engine {
	if reg == nil {
		reg = NewDefaultRegistry()
	}
	if events == nil {
		events = event.NewChannel(cfg.EventBufferSize)
	}
	return &Engine{
		RunID:       uuid.NewString(),
		Graph:       g,
		Registry:    reg,
		Context:     runtime.NewContext(),
		Events:      events,
		Config:      cfg,
		retryPolicy: retry.Exponential{Base: cfg.RetryBackoff.BaseDuration(), Max: cfg.RetryBackoff.MaxDuration()},
	}
}

// Prepare runs the pre-execution pipeline: parse the DOT subset, lower it
// to a typed PipelineGraph, apply the built-in transforms (stylesheet
// application, then ${var} prompt expansion), and validate, aborting on
// any Error-severity diagnostic.
func Prepare(dotSource []byte) (*model.PipelineGraph, []validate.Diagnostic, error) {
	g, err := dot.ParseAndBuild(dotSource)
	if err != nil {
		return nil, nil, err
	}
	if err := transform.Run(g, transform.DefaultSteps()); err != nil {
		return g, nil, err
	}
	diags := validate.Validate(g)
	if err := validate.ValidateOrRaise(g); err != nil {
		return g, diags, err
	}
	return g, diags, nil
}

// Run executes e.Graph: validate,
// initialize, execute (the traversal loop), finalize. Callers normally
// build e.Graph via Prepare first; Run re-validates regardless, since the
// graph may have been constructed or mutated by a caller that skipped
// Prepare.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := validate.ValidateOrRaise(e.Graph); err != nil {
		return nil, err
	}

	startID, ok := e.Graph.StartNodeID()
	if !ok {
		return nil, apperr.New(apperr.KindOther, "no unique start node resolvable")
	}

	e.initialize()
	e.Events.Emit(event.NewPipelineStarted(e.RunID, e.Graph.Name, startID))

	res, err := e.execute(ctx, startID, nil, map[string]runtime.Outcome{}, 0, 0)
	if err != nil {
		e.Events.Emit(event.NewPipelineFailed(e.RunID, e.Context.GetString("current_node", ""), err.Error()))
		return nil, err
	}
	e.Events.Emit(event.NewPipelineCompleted(e.RunID, res.CompletedNodes, res.Steps, res.TotalCostUSD))
	return res, nil
}

// Resume continues a run from the checkpoint saved under Config.LogsRoot.
// With no checkpoint on disk it behaves exactly like Run. The restored
// context snapshot, completed-node history, and per-node outcomes pick up
// where the interrupted run left off; step and cost counters resume from
// the snapshot's step_count/total_cost keys.
func (e *Engine) Resume(ctx context.Context) (*Result, error) {
	cp, err := checkpoint.Load(e.Config.LogsRoot)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return e.Run(ctx)
	}
	if err := validate.ValidateOrRaise(e.Graph); err != nil {
		return nil, err
	}
	if _, ok := e.Graph.Node(cp.CurrentNodeID); !ok {
		return nil, apperr.Newf(apperr.KindOther, "checkpoint names unknown node %q", cp.CurrentNodeID)
	}

	e.initialize()
	e.Context.ApplyUpdates(cp.ContextSnapshot)

	completed := append([]string{}, cp.CompletedNodes...)
	nodeOutcomes := make(map[string]runtime.Outcome, len(cp.NodeOutcomes))
	for id, raw := range cp.NodeOutcomes {
		outcome, err := decodeOutcome(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindOther, fmt.Sprintf("checkpoint outcome for node %q", id), err)
		}
		nodeOutcomes[id] = outcome
	}
	stepsRaw, _ := e.Context.Get("step_count")
	steps, _ := numberAsInt(stepsRaw)
	costRaw, _ := e.Context.Get("total_cost")
	totalCost, _ := numberAsFloat(costRaw)

	e.Events.Emit(event.NewPipelineStarted(e.RunID, e.Graph.Name, cp.CurrentNodeID))
	res, err := e.execute(ctx, cp.CurrentNodeID, completed, nodeOutcomes, totalCost, steps)
	if err != nil {
		e.Events.Emit(event.NewPipelineFailed(e.RunID, e.Context.GetString("current_node", ""), err.Error()))
		return nil, err
	}
	e.Events.Emit(event.NewPipelineCompleted(e.RunID, res.CompletedNodes, res.Steps, res.TotalCostUSD))
	return res, nil
}

// decodeOutcome rebuilds a runtime.Outcome from the untyped JSON value a
// loaded checkpoint carries.
func decodeOutcome(raw any) (runtime.Outcome, error) {
	if o, ok := raw.(runtime.Outcome); ok {
		return o, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return runtime.Outcome{}, err
	}
	var o runtime.Outcome
	if err := json.Unmarshal(b, &o); err != nil {
		return runtime.Outcome{}, err
	}
	return o, nil
}

// initialize merges every graph-scope attribute into the context, seeds
// the safety caps from the caller's Config, and zeroes the run counters.
func (e *Engine) initialize() {
	e.Context.Set("workdir", e.Config.Workdir)
	e.Context.Set("dry_run", e.Config.DryRun)
	maxBudget := e.Config.MaxBudgetUSD
	if maxBudget == 0 {
		maxBudget = 200.0
	}
	maxSteps := e.Config.MaxSteps
	if maxSteps == 0 {
		maxSteps = 200
	}
	e.Context.Set("max_budget_usd", maxBudget)
	e.Context.Set("max_steps", maxSteps)

	for k, v := range e.Graph.Attrs {
		if j, ok := attrToJSON(v); ok {
			e.Context.Set(k, j)
		}
	}
	e.Context.Set("goal", e.Graph.Goal)

	e.Context.Set("total_cost", 0.0)
	e.Context.Set("step_count", 0)
	e.Context.Set("completed_nodes", []string{})
}

// execute is the traversal loop. completed/nodeOutcomes/totalCost/steps
// are zero for a fresh run and non-zero when resuming from a checkpoint.
func (e *Engine) execute(ctx context.Context, start string, completed []string, nodeOutcomes map[string]runtime.Outcome, totalCost float64, steps int) (*Result, error) {
	current := start
	if nodeOutcomes == nil {
		nodeOutcomes = map[string]runtime.Outcome{}
	}

	maxBudgetRaw, _ := e.Context.Get("max_budget_usd")
	maxBudgetF, _ := numberAsFloat(maxBudgetRaw)
	maxStepsRaw, _ := e.Context.Get("max_steps")
	maxStepsI, _ := numberAsInt(maxStepsRaw)

	for {
		steps++
		e.Context.Set("step_count", steps)
		if steps > maxStepsI {
			return nil, apperr.New(apperr.KindOther, fmt.Sprintf("maximum step count exceeded (%d)", maxStepsI))
		}
		if totalCost > maxBudgetF {
			return nil, apperr.New(apperr.KindOther, fmt.Sprintf("exceeded budget (max %.2f)", maxBudgetF))
		}

		node, ok := e.Graph.Node(current)
		if !ok {
			return nil, apperr.New(apperr.KindOther, fmt.Sprintf("missing node: %s", current))
		}

		prev := ""
		if len(completed) > 0 {
			prev = completed[len(completed)-1]
		}
		e.Context.Set("previous_node", prev)
		e.Context.Set("current_node", current)
		e.Context.Set("completed_nodes", append([]string{}, completed...))

		if model.IsTerminal(node) {
			retryTarget, _, err := goalgate.Enforce(e.Graph, visitedFromCompleted(completed, nodeOutcomes))
			if err != nil {
				e.Events.Emit(event.NewGoalGateChecked(current, false, ""))
				return nil, err
			}
			if retryTarget != "" {
				e.Events.Emit(event.NewGoalGateChecked(current, false, retryTarget))
				e.checkpointNow(retryTarget, completed, nodeOutcomes)
				current = retryTarget
				continue // goal-gate retry does NOT clear history
			}
			e.Events.Emit(event.NewGoalGateChecked(current, true, ""))

			outcome, err := e.dispatch(ctx, node, steps)
			if err != nil {
				return nil, err
			}
			completed = append(completed, node.ID)
			nodeOutcomes[node.ID] = outcome
			e.applyOutcome(node.ID, outcome, &totalCost)
			break
		}

		outcome, err := e.dispatch(ctx, node, steps)
		if err != nil {
			return nil, err
		}

		completed = append(completed, node.ID)
		nodeOutcomes[node.ID] = outcome
		e.applyOutcome(node.ID, outcome, &totalCost)

		resolve := e.resolver(outcome)
		edge, err := selectedge.Select(e.Graph, node.ID, outcome, resolve)
		if err != nil {
			return nil, err
		}
		if edge == nil {
			if outcome.Status == runtime.StatusFail {
				return nil, apperr.New(apperr.KindOther, fmt.Sprintf("handler failed with no outgoing edge at node %q", node.ID))
			}
			break
		}
		e.Events.Emit(event.NewEdgeSelected(edge.From, edge.To, selectionReason(e.Graph, node.ID, outcome, edge)))

		if edge.LoopRestart {
			completed = nil
			nodeOutcomes = map[string]runtime.Outcome{}
		}

		if _, ok := e.Graph.Node(edge.To); !ok {
			return nil, apperr.New(apperr.KindOther, fmt.Sprintf("edge targets unknown node: %s", edge.To))
		}
		e.checkpointNow(edge.To, completed, nodeOutcomes)
		current = edge.To
	}

	e.clearCheckpoint()

	return &Result{
		RunID:          e.RunID,
		CompletedNodes: completed,
		NodeOutcomes:   nodeOutcomes,
		FinalContext:   e.Context.Snapshot(),
		Steps:          steps,
		TotalCostUSD:   totalCost,
	}, nil
}

// dispatch resolves node's handler via the registry and runs it through
// the retry wrapper, emitting stage lifecycle events.
func (e *Engine) dispatch(ctx context.Context, node *model.PipelineNode, step int) (runtime.Outcome, error) {
	h, handlerType, ok := e.Registry.Resolve(node)
	if !ok {
		return runtime.Outcome{}, apperr.HandlerError(node.ID, fmt.Sprintf("no handler registered for type %q", handlerType))
	}

	fn := func(_ context.Context, attempt int) (runtime.Outcome, error) {
		e.Events.Emit(event.NewStageStarted(node.ID, handlerType, attempt))
		execCtx := ctx
		if node.Timeout != nil {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, *node.Timeout)
			defer cancel()
		}
		outcome, err := h.Execute(execCtx, node, e.Context, e.Graph)
		if err != nil {
			e.Events.Emit(event.NewStageFailed(node.ID, err.Error()))
			return runtime.Outcome{}, err
		}
		outcome, canonErr := outcome.Canonicalize()
		if canonErr != nil {
			return runtime.Outcome{}, apperr.Wrap(apperr.KindHandlerError, "invalid outcome", canonErr)
		}
		if err := outcome.Validate(); err != nil {
			return runtime.Outcome{}, apperr.HandlerError(node.ID, err.Error())
		}
		if outcome.Status == runtime.StatusRetry {
			e.Events.Emit(event.NewStageRetrying(node.ID, attempt, e.retryPolicy.Delay(attempt)))
		} else {
			e.Events.Emit(event.NewStageCompleted(node.ID, string(outcome.Status)))
		}
		return outcome, nil
	}

	outcome, err := retry.ExecuteWithRetry(ctx, fn, int(node.MaxRetries), e.retryPolicy, node.ID)
	if err != nil {
		return runtime.Outcome{}, err
	}
	return outcome, nil
}

// applyOutcome folds cost into the running total, applies context_updates
// atomically, and publishes the derived outcome/preferred_label context
// keys edges can reference.
func (e *Engine) applyOutcome(nodeID string, outcome runtime.Outcome, totalCost *float64) {
	updates := outcome.ContextUpdates
	if updates == nil {
		updates = map[string]any{}
	}
	if raw, ok := updates[nodeID+".cost_usd"]; ok {
		if cost, ok := numberAsFloat(raw); ok {
			*totalCost += cost
		}
	}
	e.Context.ApplyUpdates(updates)
	e.Context.Set("outcome", string(outcome.Status))
	e.Context.Set("preferred_label", outcome.PreferredLabel)
	e.Context.Set("failure_reason", outcome.FailureReason)
	e.Context.Set("total_cost", *totalCost)

	if len(updates) > 0 {
		keys := make([]string, 0, len(updates))
		for k := range updates {
			keys = append(keys, k)
		}
		e.Events.Emit(event.NewContextUpdated(keys))
	}
}

// resolver builds the resolve(key) closure edge conditions evaluate
// against: "outcome" maps to the status string, "preferred_label" to the
// outcome's label, otherwise a context snapshot lookup coerced to its
// string form.
func (e *Engine) resolver(outcome runtime.Outcome) selectedge.Resolver {
	snap := e.Context.Snapshot()
	return func(key string) string {
		switch key {
		case "outcome":
			return string(outcome.Status)
		case "preferred_label":
			return outcome.PreferredLabel
		default:
			v, ok := snap[key]
			if !ok {
				return ""
			}
			return coerceToString(v)
		}
	}
}

// checkpointNow persists the run state with currentNodeID naming the node
// about to execute NEXT - never one already present in completed - so a
// later Resume picks up exactly where this run left off instead of
// re-dispatching finished work.
func (e *Engine) checkpointNow(currentNodeID string, completed []string, nodeOutcomes map[string]runtime.Outcome) {
	if strings.TrimSpace(e.Config.LogsRoot) == "" {
		return
	}
	outcomesJSON := make(map[string]any, len(nodeOutcomes))
	for k, v := range nodeOutcomes {
		outcomesJSON[k] = v
	}
	cp := checkpoint.New(currentNodeID, append([]string{}, completed...), outcomesJSON, e.Context.Snapshot())
	if err := checkpoint.Save(cp, e.Config.LogsRoot); err != nil {
		return
	}
	e.Events.Emit(event.NewCheckpointSaved(e.Config.LogsRoot, currentNodeID))
}

// clearCheckpoint removes the checkpoint file once a run completes, so a
// finished pipeline leaves no stale resume state behind.
func (e *Engine) clearCheckpoint() {
	if strings.TrimSpace(e.Config.LogsRoot) == "" {
		return
	}
	_ = checkpoint.Clear(e.Config.LogsRoot)
}

// visitedFromCompleted derives the goal-gate scan list from nodeOutcomes -
// the LATEST outcome recorded for each node, not every historical visit -
// since a retried or re-looped node's earlier failing outcome must not keep
// failing its gate after a later pass through the same node has fixed it.
// Order follows each id's first appearance in completed.
func visitedFromCompleted(completed []string, nodeOutcomes map[string]runtime.Outcome) []goalgate.VisitedOutcome {
	seen := make(map[string]bool, len(completed))
	visited := make([]goalgate.VisitedOutcome, 0, len(nodeOutcomes))
	for _, id := range completed {
		if seen[id] {
			continue
		}
		seen[id] = true
		visited = append(visited, goalgate.VisitedOutcome{NodeID: id, Outcome: nodeOutcomes[id]})
	}
	return visited
}

// selectionReason reconstructs which cascade step picked edge, purely for
// event/diagnostic labeling - it never influences routing.
func selectionReason(g *model.PipelineGraph, nodeID string, outcome runtime.Outcome, edge *model.PipelineEdge) string {
	if strings.TrimSpace(edge.Condition) != "" {
		return "conditional"
	}
	if want := strings.ToLower(strings.TrimSpace(outcome.PreferredLabel)); want != "" {
		if strings.ToLower(strings.TrimSpace(edge.Label)) == want {
			return "preferred_label"
		}
	}
	for _, id := range outcome.SuggestedNextIDs {
		if id == edge.To {
			return "suggested_next_id"
		}
	}
	for _, e := range g.Outgoing(nodeID) {
		if strings.TrimSpace(e.Condition) == "" {
			return "weight"
		}
	}
	return "fallback"
}

func attrToJSON(v model.AttributeValue) (any, bool) {
	switch v.Kind() {
	case model.KindString:
		s, _ := v.AsString()
		return s, true
	case model.KindInteger:
		i, _ := v.AsInteger()
		return i, true
	case model.KindFloat:
		f, _ := v.AsFloat()
		return f, true
	case model.KindBoolean:
		b, _ := v.AsBoolean()
		return b, true
	case model.KindDuration:
		d, _ := v.AsDuration()
		return d.String(), true
	default:
		return nil, false
	}
}

func numberAsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func numberAsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func coerceToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Duration:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
