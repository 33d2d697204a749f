// Package plan implements the execution plan scheduler (spec §4.7): DAG
// validation and leveling over PipelineExecutions, parent→child globals
// inheritance, and level-parallel dispatch bounded by a worker count.
package plan

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/pctx"
	"github.com/jriewerts/metalus/internal/pipeline"
	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/resolver"
	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

// PipelineExecution is one node in the plan DAG (spec §3).
type PipelineExecution struct {
	ID                 string
	Pipelines          []*model.Pipeline
	Parents            []string
	Globals            map[string]value.Value
	PipelineParameters map[string]value.Value

	Listener        pctx.PipelineListener
	SecurityManager pctx.SecurityManager
	ParameterMapper pctx.ParameterMapper
	StepPackages    []string
}

// ExecutionState is an execution's terminal (or pending) state.
type ExecutionState string

const (
	ExecutionPending  ExecutionState = "PENDING"
	ExecutionComplete ExecutionState = "COMPLETE"
	ExecutionPaused   ExecutionState = "PAUSED"
	ExecutionErrored  ExecutionState = "ERRORED"
	ExecutionSkipped  ExecutionState = "SKIPPED"
)

// Outcome is the recorded result of running one PipelineExecution.
type Outcome struct {
	ID         string
	State      ExecutionState
	LastStepID string
	Message    string
	Err        error

	// Context is the execution's final, immutable PipelineContext. Nil for
	// a SKIPPED execution (spec §3 invariant: a skipped execution produces
	// no context).
	Context *pctx.PipelineContext
}

// Plan is a validated, leveled DAG of executions, ready to run.
type Plan struct {
	executions map[string]*PipelineExecution
	levels     [][]string
}

// Scheduler runs Plans.
type Scheduler struct {
	Registry        *registry.Registry
	Resolver        *resolver.Resolver
	PipelineManager pctx.PipelineManager
	Executor        *pipeline.Executor

	// Workers bounds the number of executions dispatched concurrently
	// within a level. Zero means unbounded (spec §4.7 "bounds concurrency
	// by available workers").
	Workers int
}

// New builds a Scheduler.
func New(reg *registry.Registry, res *resolver.Resolver, mgr pctx.PipelineManager, workers int) *Scheduler {
	return &Scheduler{
		Registry:        reg,
		Resolver:        res,
		PipelineManager: mgr,
		Executor:        pipeline.New(reg, res, workers),
		Workers:         workers,
	}
}

// Build validates acyclicity (spec §3 invariant, §4.7 Startup) and computes
// a topological leveling via Kahn's algorithm: every execution in level N
// has every parent in a level strictly less than N, so running levels in
// order satisfies "a child waits until all parents reach a terminal state"
// without per-node synchronization.
func Build(executions []*PipelineExecution) (*Plan, error) {
	byID := make(map[string]*PipelineExecution, len(executions))
	for _, e := range executions {
		if e.ID == "" {
			return nil, metalerrors.NewConfigError("executions", "execution id is required", nil)
		}
		if _, dup := byID[e.ID]; dup {
			return nil, metalerrors.NewConfigError("executions", fmt.Sprintf("duplicate execution id %q", e.ID), nil)
		}
		byID[e.ID] = e
	}

	indegree := make(map[string]int, len(byID))
	dependents := make(map[string][]string, len(byID))
	for id := range byID {
		indegree[id] = 0
	}
	for id, e := range byID {
		for _, parentID := range e.Parents {
			if parentID == id {
				return nil, metalerrors.NewConfigError("parents", fmt.Sprintf("execution %q cannot depend on itself", id), nil)
			}
			if _, ok := byID[parentID]; !ok {
				return nil, metalerrors.NewConfigError("parents", fmt.Sprintf("execution %q references unknown parent %q", id, parentID), nil)
			}
			indegree[id]++
			dependents[parentID] = append(dependents[parentID], id)
		}
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string
	for len(queue) > 0 {
		current := append([]string(nil), queue...)
		levels = append(levels, current)

		var next []string
		for _, id := range current {
			processed++
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	if processed != len(byID) {
		return nil, metalerrors.NewConfigError("executions", "circular dependency among execution parents", nil)
	}

	return &Plan{executions: byID, levels: levels}, nil
}

// Run dispatches plan level by level, bounding in-level concurrency by
// Workers, merging completed parents' globals into each child before it
// starts (spec §4.7 Dispatch), and skipping the transitive descendants of
// any PAUSED or ERRORED execution.
func (s *Scheduler) Run(ctx context.Context, p *Plan, applicationGlobals map[string]value.Value) (map[string]*Outcome, error) {
	outcomes := make(map[string]*Outcome, len(p.executions))

	for _, level := range p.levels {
		group, groupCtx := errgroup.WithContext(ctx)
		if s.Workers > 0 {
			group.SetLimit(s.Workers)
		}

		// Each goroutine owns a distinct slice index; outcomes itself is
		// only written back on the main goroutine after Wait, since
		// concurrent writes to a shared map (even at distinct keys) are a
		// data race.
		results := make([]*Outcome, len(level))
		for i, id := range level {
			i, id := i, id
			group.Go(func() error {
				results[i] = s.runExecution(groupCtx, p.executions[id], outcomes, applicationGlobals)
				return nil
			})
		}
		_ = group.Wait() // execution failures are recorded per-outcome, not propagated as a group error

		for _, o := range results {
			outcomes[o.ID] = o
		}
	}

	return outcomes, nil
}

func (s *Scheduler) runExecution(ctx context.Context, e *PipelineExecution, outcomes map[string]*Outcome, applicationGlobals map[string]value.Value) *Outcome {
	if skipped, cause := anyParentSkipped(e, outcomes); skipped {
		return &Outcome{ID: e.ID, State: ExecutionSkipped, Message: fmt.Sprintf("parent %q did not complete", cause)}
	}

	seeded, err := pctx.MergeGlobals(applicationGlobals, e.Globals)
	if err != nil {
		return &Outcome{ID: e.ID, State: ExecutionErrored, Err: metalerrors.NewFatalError(e.ID, err), Message: err.Error()}
	}

	for _, parentID := range e.Parents {
		parentOutcome := outcomes[parentID]
		if parentOutcome == nil || parentOutcome.Context == nil {
			continue
		}
		parentGlobals, _, parentParams := parentOutcome.Context.Snapshot()
		seeded[parentID] = value.MapOf(map[string]value.Value{
			"globals":            value.MapOf(parentGlobals),
			"pipelineParameters": value.MapOf(parentParams),
		})
	}

	c := pctx.New(seeded, s.PipelineManager, e.StepPackages)
	if e.SecurityManager != nil {
		c.SecurityManager = e.SecurityManager
	}
	if e.ParameterMapper != nil {
		c.ParameterMapper = e.ParameterMapper
	}
	if e.Listener != nil {
		c.Listener = e.Listener
	}
	for k, v := range e.PipelineParameters {
		c.PipelineParameters[k] = v
	}
	pctx.StripReservedGlobals(c.Globals)

	var last pipeline.Result
	for _, p := range e.Pipelines {
		last = s.Executor.Run(ctx, c, p)
		if last.State != pipeline.StateComplete {
			break
		}
	}

	return &Outcome{
		ID:         e.ID,
		State:      executionStateFor(last),
		LastStepID: last.LastStepID,
		Message:    last.Message,
		Err:        last.Err,
		Context:    c,
	}
}

func executionStateFor(last pipeline.Result) ExecutionState {
	switch last.State {
	case pipeline.StatePaused:
		return ExecutionPaused
	case pipeline.StateErrored:
		return ExecutionErrored
	default:
		return ExecutionComplete
	}
}

// anyParentSkipped reports whether e has a parent that is SKIPPED, PAUSED,
// or ERRORED — in which case e itself must be SKIPPED without running
// (spec §4.7 Dispatch, §8 property 4).
func anyParentSkipped(e *PipelineExecution, outcomes map[string]*Outcome) (bool, string) {
	for _, parentID := range e.Parents {
		parent := outcomes[parentID]
		if parent == nil {
			return true, parentID
		}
		switch parent.State {
		case ExecutionComplete:
			continue
		default:
			return true, parentID
		}
	}
	return false, ""
}

// Outcome returns the plan's overall terminal state: COMPLETE iff every
// execution is COMPLETE, otherwise the first non-complete state in
// topological order (spec §4.7 "Terminal state of the plan").
func (p *Plan) Outcome(outcomes map[string]*Outcome) ExecutionState {
	for _, level := range p.levels {
		for _, id := range level {
			if o := outcomes[id]; o != nil && o.State != ExecutionComplete {
				return o.State
			}
		}
	}
	return ExecutionComplete
}
