// Package pipeline implements the pipeline executor (spec §4.4), the
// step-group executor (spec §4.5), and the fork/join flow-control
// extension described in the expanded specification's supplemented
// features.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/pctx"
	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/resolver"
	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

// State is a pipeline's terminal state (spec §4.4).
type State string

const (
	StateComplete State = "COMPLETE"
	StatePaused   State = "PAUSED"
	StateErrored  State = "ERRORED"
)

// Result is the outcome of running one pipeline to a terminal state.
type Result struct {
	State      State
	LastStepID string
	Message    string
	Err        error
}

// Executor runs a pipeline's step graph against a PipelineContext.
type Executor struct {
	Registry *registry.Registry
	Resolver *resolver.Resolver

	// Workers bounds the number of fork branches dispatched concurrently,
	// matching the execution-plan scheduler's own worker limit (expanded
	// spec, fork/join). Zero means unbounded.
	Workers int
}

// New builds an Executor. workers bounds fork-branch concurrency; pass the
// same value given to plan.New so a fork step never outruns the plan's own
// worker budget.
func New(reg *registry.Registry, res *resolver.Resolver, workers int) *Executor {
	return &Executor{Registry: reg, Resolver: res, Workers: workers}
}

// Run drives the START → RUNNING → COMPLETE/PAUSED/ERRORED state machine
// for pipeline against ctx (spec §4.4).
func (e *Executor) Run(ctx context.Context, c *pctx.PipelineContext, pipeline *model.Pipeline) Result {
	if err := validateForkJoin(pipeline); err != nil {
		return Result{State: StateErrored, Err: err, Message: err.Error()}
	}

	c.Listener.PipelineStarted(pipeline.ID)

	step, _ := pipeline.FirstStep()
	for step != nil {
		next, terminal := e.runStep(ctx, c, pipeline, step)
		if terminal != nil {
			switch terminal.State {
			case StatePaused:
				c.Listener.PipelinePaused(pipeline.ID, terminal.LastStepID, terminal.Message)
			case StateErrored:
				c.Listener.PipelineErrored(pipeline.ID, terminal.LastStepID, terminal.Err)
			}
			return *terminal
		}
		step = next
	}

	c.Listener.PipelineFinished(pipeline.ID)
	return Result{State: StateComplete}
}

// runStep executes one step (including its executeIfEmpty short-circuit)
// and returns either the next step to run or a terminal Result.
func (e *Executor) runStep(ctx context.Context, c *pctx.PipelineContext, pipeline *model.Pipeline, step *model.PipelineStep) (*model.PipelineStep, *Result) {
	c.Listener.StepStarted(pipeline.ID, step.ID)

	if step.ExecuteIfEmpty != nil {
		seeded, ok, err := e.Resolver.ResolveExecuteIfEmpty(c, pipeline.ID, step.ExecuteIfEmpty)
		if err != nil {
			return nil, errored(step, err)
		}
		if ok && value.ShouldSkipForEmpty(seeded) {
			resp := value.Wrap(seeded)
			c.SetResult(pipeline.ID, step.ID, resp)
			c.Listener.StepFinished(pipeline.ID, step.ID, resp)
			return advance(pipeline, step, resp)
		}
	}

	switch step.Type {
	case model.StepTypeStepGroup:
		return e.runStepGroup(ctx, c, pipeline, step)
	case model.StepTypeFork:
		return e.runFork(ctx, c, pipeline, step)
	case model.StepTypeJoin:
		return nil, errored(step, metalerrors.NewConfigError(step.ID, "join step reached without a matching fork", nil))
	default:
		return e.runCallable(c, pipeline, step)
	}
}

// runCallable resolves step's params and invokes its registered body (spec
// §4.4 RUNNING(s)).
func (e *Executor) runCallable(c *pctx.PipelineContext, pipeline *model.Pipeline, step *model.PipelineStep) (*model.PipelineStep, *Result) {
	args := make(map[string]value.Value, len(step.Params))
	for _, p := range step.Params {
		resolved, err := e.Resolver.Resolve(c, pipeline.ID, p)
		if err != nil {
			return nil, errored(step, err)
		}
		args[p.Name] = resolved
	}

	injected := map[string]any{registry.PipelineContextKey: c}
	resp, err := e.Registry.Resolve(c.StepPackages, step.EngineMeta.ObjectFunction, args, injected, c.ValidateStepParameterTypes)
	if err != nil {
		return nil, errored(step, err)
	}

	c.SetResult(pipeline.ID, step.ID, resp)
	c.Listener.StepFinished(pipeline.ID, step.ID, resp)
	return advance(pipeline, step, resp)
}

// runStepGroup runs an embedded pipeline in an isolated child context and
// projects its outcome back onto the owning step (spec §4.5).
func (e *Executor) runStepGroup(ctx context.Context, c *pctx.PipelineContext, pipeline *model.Pipeline, step *model.PipelineStep) (*model.PipelineStep, *Result) {
	childGlobals := map[string]value.Value{}
	if step.PipelineMapping != nil {
		resolved, err := e.Resolver.Resolve(c, pipeline.ID, *step.PipelineMapping)
		if err != nil {
			return nil, errored(step, err)
		}
		if resolved.Kind == value.KindMap {
			childGlobals = resolved.Map
		}
	}

	childPipeline, err := resolveEmbeddedPipeline(c, step)
	if err != nil {
		return nil, errored(step, err)
	}

	child := c.NewChild(childGlobals)
	childResult := e.Run(ctx, child, childPipeline)

	resp := projectStepGroupResponse(child, childPipeline)
	c.SetResult(pipeline.ID, step.ID, resp)
	c.Listener.StepFinished(pipeline.ID, step.ID, resp)

	if childResult.State != StateComplete {
		return nil, &Result{
			State:      childResult.State,
			LastStepID: step.ID,
			Message:    childResult.Message,
			Err:        childResult.Err,
		}
	}
	return advance(pipeline, step, resp)
}

func resolveEmbeddedPipeline(c *pctx.PipelineContext, step *model.PipelineStep) (*model.Pipeline, error) {
	if step.EngineMeta.InlinePipeline != nil {
		return step.EngineMeta.InlinePipeline, nil
	}
	if step.EngineMeta.PipelineID != "" && c.PipelineManager != nil {
		if p, ok := c.PipelineManager.Get(step.EngineMeta.PipelineID); ok {
			return p, nil
		}
	}
	return nil, metalerrors.NewConfigError(step.ID, "step-group references an unresolved pipeline", nil)
}

func projectStepGroupResponse(child *pctx.PipelineContext, childPipeline *model.Pipeline) value.PipelineStepResponse {
	named := make(map[string]value.Value, len(childPipeline.Steps))
	for _, s := range childPipeline.Steps {
		if resp, ok := child.GetResult(childPipeline.ID, s.ID); ok {
			named[s.ID] = resp.ToValue()
		}
	}

	if childPipeline.StepGroupResult != "" {
		if resp, ok := child.GetResult(childPipeline.ID, childPipeline.StepGroupResult); ok {
			return value.PipelineStepResponse{PrimaryReturn: resp.PrimaryReturn, NamedReturns: named}
		}
		return value.PipelineStepResponse{PrimaryReturn: value.Absent(), NamedReturns: named}
	}

	all := make(map[string]value.Value, len(named))
	for id, v := range named {
		all[id] = v
	}
	return value.PipelineStepResponse{PrimaryReturn: value.MapOf(all), NamedReturns: named}
}

// runFork resolves the fork step's "values" list, runs the forked segment
// once per element in a child context overlaid with forkValue, and joins
// the branch results at the paired join step (expanded spec, fork/join).
func (e *Executor) runFork(ctx context.Context, c *pctx.PipelineContext, pipeline *model.Pipeline, fork *model.PipelineStep) (*model.PipelineStep, *Result) {
	segment, join, err := collectForkSegment(pipeline, fork)
	if err != nil {
		return nil, errored(fork, err)
	}

	var valuesParam *model.Parameter
	for i := range fork.Params {
		if fork.Params[i].Name == "values" {
			valuesParam = &fork.Params[i]
			break
		}
	}
	if valuesParam == nil {
		return nil, errored(fork, metalerrors.NewConfigError(fork.ID, `fork step requires a "values" list parameter`, nil))
	}

	resolvedValues, err := e.Resolver.Resolve(c, pipeline.ID, *valuesParam)
	if err != nil {
		return nil, errored(fork, err)
	}
	if resolvedValues.Kind != value.KindList {
		return nil, errored(fork, metalerrors.NewConfigError(fork.ID, `fork "values" parameter did not resolve to a list`, nil))
	}

	baseGlobals, _, _ := c.Snapshot()

	branches := make([]value.PipelineStepResponse, len(resolvedValues.List))
	branchResults := make([]Result, len(resolvedValues.List))

	group, groupCtx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		group.SetLimit(e.Workers)
	}
	for i, v := range resolvedValues.List {
		i, v := i, v
		group.Go(func() error {
			merged, mergeErr := pctx.MergeGlobals(baseGlobals, map[string]value.Value{"forkValue": v})
			if mergeErr != nil {
				branchResults[i] = Result{State: StateErrored, LastStepID: fork.ID, Err: mergeErr}
				return nil
			}
			branchCtx := c.NewChild(merged)
			resp, result := e.runSegment(groupCtx, branchCtx, pipeline, segment, join.ID)
			branches[i] = resp
			branchResults[i] = result
			return nil
		})
	}
	_ = group.Wait() // branch failures are carried per-branch in branchResults, not via the group's error

	joinResp := joinResponse(branches)
	c.SetResult(pipeline.ID, join.ID, joinResp)
	c.Listener.StepFinished(pipeline.ID, join.ID, joinResp)

	for _, r := range branchResults {
		if r.State != "" && r.State != StateComplete {
			return nil, &Result{State: r.State, LastStepID: join.ID, Message: r.Message, Err: r.Err}
		}
	}

	return advance(pipeline, join, joinResp)
}

// runSegment runs the steps strictly between a fork and its join,
// sequentially, inside a branch's own child context.
func (e *Executor) runSegment(ctx context.Context, c *pctx.PipelineContext, pipeline *model.Pipeline, segment []*model.PipelineStep, joinID string) (value.PipelineStepResponse, Result) {
	var last value.PipelineStepResponse
	if len(segment) == 0 {
		return last, Result{State: StateComplete}
	}

	step := segment[0]
	for step != nil {
		next, terminal := e.runStep(ctx, c, pipeline, step)
		if terminal != nil {
			return last, *terminal
		}
		if resp, ok := c.GetResult(pipeline.ID, step.ID); ok {
			last = resp
		}
		if next != nil && next.ID == joinID {
			step = nil
		} else {
			step = next
		}
	}
	return last, Result{State: StateComplete}
}

// validateForkJoin rejects fork/join misuse eagerly, at the point the
// pipeline is first loaded by the executor (expanded spec, fork/join): a
// fork with no matching join before the pipeline ends, or a fork nested
// inside another fork's segment, are both ConfigErrors raised here rather
// than discovered lazily while a fork step is running.
func validateForkJoin(pipeline *model.Pipeline) error {
	for i := range pipeline.Steps {
		fork := &pipeline.Steps[i]
		if fork.Type != model.StepTypeFork {
			continue
		}
		if err := validateForkSegment(pipeline, fork); err != nil {
			return err
		}
	}
	return nil
}

func validateForkSegment(pipeline *model.Pipeline, fork *model.PipelineStep) error {
	if fork.NextStepID == nil || *fork.NextStepID == "" {
		return metalerrors.NewConfigError(fork.ID, "fork step has no nextStepId leading to a join", nil)
	}

	id := *fork.NextStepID
	for {
		step, ok := pipeline.StepByID(id)
		if !ok {
			return metalerrors.NewConfigError(fork.ID, fmt.Sprintf("fork segment references unknown step %q", id), nil)
		}
		if step.Type == model.StepTypeJoin {
			return nil
		}
		if step.Type == model.StepTypeFork {
			return metalerrors.NewConfigError(fork.ID, "nested fork/join is not supported", nil)
		}
		if step.NextStepID == nil || *step.NextStepID == "" {
			return metalerrors.NewConfigError(fork.ID, "fork step has no matching join", nil)
		}
		id = *step.NextStepID
	}
}

// collectForkSegment walks nextStepId links from fork until it reaches a
// join-typed step, returning the steps strictly in between.
func collectForkSegment(pipeline *model.Pipeline, fork *model.PipelineStep) ([]*model.PipelineStep, *model.PipelineStep, error) {
	if fork.NextStepID == nil || *fork.NextStepID == "" {
		return nil, nil, metalerrors.NewConfigError(fork.ID, "fork step has no nextStepId leading to a join", nil)
	}

	var segment []*model.PipelineStep
	id := *fork.NextStepID
	for {
		step, ok := pipeline.StepByID(id)
		if !ok {
			return nil, nil, metalerrors.NewConfigError(fork.ID, fmt.Sprintf("fork segment references unknown step %q", id), nil)
		}
		if step.Type == model.StepTypeJoin {
			return segment, step, nil
		}
		segment = append(segment, step)
		if step.NextStepID == nil || *step.NextStepID == "" {
			return nil, nil, metalerrors.NewConfigError(fork.ID, "fork step has no matching join", nil)
		}
		id = *step.NextStepID
	}
}

func joinResponse(branches []value.PipelineStepResponse) value.PipelineStepResponse {
	primary := make([]value.Value, len(branches))
	named := make(map[string]value.Value, len(branches))
	for i, b := range branches {
		primary[i] = b.PrimaryReturn
		named[strconv.Itoa(i)] = value.MapOf(b.NamedReturns)
	}
	return value.PipelineStepResponse{PrimaryReturn: value.ListOf(primary...), NamedReturns: named}
}

// advance computes a step's next step per its type's flow-control rule
// (spec §4.4 nextStepId rules).
func advance(pipeline *model.Pipeline, step *model.PipelineStep, resp value.PipelineStepResponse) (*model.PipelineStep, *Result) {
	next, err := nextStepFor(step, resp, pipeline)
	if err != nil {
		return nil, errored(step, err)
	}
	return next, nil
}

func nextStepFor(step *model.PipelineStep, resp value.PipelineStepResponse, pipeline *model.Pipeline) (*model.PipelineStep, error) {
	if step.Type == model.StepTypeBranch {
		branchKey, _ := resp.PrimaryReturn.AsString()
		for _, p := range step.Params {
			if p.Name != branchKey {
				continue
			}
			nextID, ok := p.Value.AsString()
			if !ok {
				return nil, metalerrors.NewConfigError(step.ID, "branch target must be a string step id", nil)
			}
			next, found := pipeline.StepByID(nextID)
			if !found {
				return nil, metalerrors.NewConfigError(step.ID, fmt.Sprintf("branch target %q not found", nextID), nil)
			}
			return next, nil
		}
		return nil, nil
	}

	if step.NextStepID == nil || *step.NextStepID == "" {
		return nil, nil
	}
	next, ok := pipeline.StepByID(*step.NextStepID)
	if !ok {
		return nil, metalerrors.NewConfigError(step.ID, fmt.Sprintf("nextStepId %q not found", *step.NextStepID), nil)
	}
	return next, nil
}

// errored classifies a step failure into a terminal Result: a StepError
// becomes PAUSED or ERRORED per its kind, anything else is wrapped as a
// FatalError and ERRORED (spec §4.4, §7).
func errored(step *model.PipelineStep, err error) *Result {
	var stepErr *metalerrors.StepError
	if errors.As(err, &stepErr) {
		state := StateErrored
		if stepErr.Kind == metalerrors.StepKindPause {
			state = StatePaused
		}
		return &Result{State: state, LastStepID: step.ID, Message: stepErr.Message, Err: err}
	}

	wrapped := metalerrors.NewFatalError(step.ID, err)
	return &Result{State: StateErrored, LastStepID: step.ID, Message: err.Error(), Err: wrapped}
}
