package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/pctx"
	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/resolver"
	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

const testPkg = "com.acxiom.pipeline.steps"

func newExecutor(t *testing.T) (*Executor, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	res := resolver.New(reg)
	return New(reg, res, 0), reg
}

func strPtr(s string) *string { return &s }

func TestExecutorLinearPipelineRecordsEachStepOnce(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	require.NoError(t, reg.Register(testPkg, "Echo", "run", registry.Overload{
		Params: []registry.ParamSpec{{Name: "in", Kind: value.KindString, Required: true}},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return args["in"], nil
		},
	}))

	p := &model.Pipeline{
		ID: "p1",
		Steps: []model.PipelineStep{
			{
				ID:         "s1",
				Type:       model.StepTypeDefault,
				EngineMeta: model.EngineMeta{ObjectFunction: "Echo.run"},
				Params:     []model.Parameter{{Name: "in", Value: value.StringOf("hello")}},
				NextStepID: nil,
			},
		},
	}

	c := pctx.New(nil, nil, []string{testPkg})
	result := e.Run(context.Background(), c, p)
	require.Equal(t, StateComplete, result.State)

	resp, ok := c.GetResult("p1", "s1")
	require.True(t, ok)
	require.Equal(t, "hello", resp.PrimaryReturn.Str)
}

func TestExecutorBranchSkipsUntakenPath(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	require.NoError(t, reg.Register(testPkg, "Branch", "decide", registry.Overload{
		Adapter: func(map[string]value.Value, map[string]any) (value.Value, error) {
			return value.StringOf("left"), nil
		},
	}))
	require.NoError(t, reg.Register(testPkg, "Echo", "run", registry.Overload{
		Params: []registry.ParamSpec{{Name: "in", Kind: value.KindString}},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return args["in"], nil
		},
	}))

	p := &model.Pipeline{
		ID: "p1",
		Steps: []model.PipelineStep{
			{
				ID:         "s1",
				Type:       model.StepTypeBranch,
				EngineMeta: model.EngineMeta{ObjectFunction: "Branch.decide"},
				Params: []model.Parameter{
					{Name: "left", Value: value.StringOf("s2")},
					{Name: "right", Value: value.StringOf("s3")},
				},
			},
			{
				ID:         "s2",
				Type:       model.StepTypeDefault,
				EngineMeta: model.EngineMeta{ObjectFunction: "Echo.run"},
				Params:     []model.Parameter{{Name: "in", Value: value.StringOf("took-left")}},
			},
			{
				ID:         "s3",
				Type:       model.StepTypeDefault,
				EngineMeta: model.EngineMeta{ObjectFunction: "Echo.run"},
				Params:     []model.Parameter{{Name: "in", Value: value.StringOf("took-right")}},
			},
		},
	}

	c := pctx.New(nil, nil, []string{testPkg})
	result := e.Run(context.Background(), c, p)
	require.Equal(t, StateComplete, result.State)

	_, ranS2 := c.GetResult("p1", "s2")
	_, ranS3 := c.GetResult("p1", "s3")
	require.True(t, ranS2)
	require.False(t, ranS3)
}

func TestExecutorExecuteIfEmptySkipsStepBody(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	invoked := false
	require.NoError(t, reg.Register(testPkg, "Reader", "read", registry.Overload{
		Adapter: func(map[string]value.Value, map[string]any) (value.Value, error) {
			invoked = true
			return value.StringOf("freshly-read"), nil
		},
	}))

	p1 := &model.Pipeline{
		ID: "p1",
		Steps: []model.PipelineStep{
			{ID: "readDF", Type: model.StepTypeDefault, EngineMeta: model.EngineMeta{ObjectFunction: "Reader.read"}},
		},
	}
	p2 := &model.Pipeline{
		ID: "p2",
		Steps: []model.PipelineStep{
			{
				ID:             "read",
				Type:           model.StepTypeDefault,
				EngineMeta:     model.EngineMeta{ObjectFunction: "Reader.read"},
				ExecuteIfEmpty: &model.Parameter{Value: value.StringOf("@p1.readDF")},
			},
		},
	}

	c := pctx.New(nil, nil, []string{testPkg})
	invoked = false
	require.Equal(t, StateComplete, e.Run(context.Background(), c, p1).State)
	require.True(t, invoked)

	invoked = false
	require.Equal(t, StateComplete, e.Run(context.Background(), c, p2).State)
	require.False(t, invoked, "step body must not run when executeIfEmpty resolves to a non-empty value")

	resp, ok := c.GetResult("p2", "read")
	require.True(t, ok)
	require.Equal(t, "freshly-read", resp.PrimaryReturn.Str)
}

func TestExecutorStepErrorPauses(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	require.NoError(t, reg.Register(testPkg, "Gate", "check", registry.Overload{
		Adapter: func(map[string]value.Value, map[string]any) (value.Value, error) {
			return value.Absent(), metalerrors.NewStepError("s1", metalerrors.StepKindPause, "waiting for approval", nil)
		},
	}))

	p := &model.Pipeline{
		ID: "p1",
		Steps: []model.PipelineStep{
			{ID: "s1", Type: model.StepTypeDefault, EngineMeta: model.EngineMeta{ObjectFunction: "Gate.check"}, NextStepID: strPtr("s2")},
			{ID: "s2", Type: model.StepTypeDefault, EngineMeta: model.EngineMeta{ObjectFunction: "Gate.check"}},
		},
	}

	c := pctx.New(nil, nil, []string{testPkg})
	result := e.Run(context.Background(), c, p)
	require.Equal(t, StatePaused, result.State)
	require.Equal(t, "s1", result.LastStepID)

	_, ranS2 := c.GetResult("p1", "s2")
	require.False(t, ranS2)
}

func TestExecutorUnexpectedErrorBecomesFatal(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	require.NoError(t, reg.Register(testPkg, "Boom", "go", registry.Overload{
		Adapter: func(map[string]value.Value, map[string]any) (value.Value, error) {
			return value.Absent(), errors.New("disk full")
		},
	}))

	p := &model.Pipeline{
		ID:    "p1",
		Steps: []model.PipelineStep{{ID: "s1", Type: model.StepTypeDefault, EngineMeta: model.EngineMeta{ObjectFunction: "Boom.go"}}},
	}

	c := pctx.New(nil, nil, []string{testPkg})
	result := e.Run(context.Background(), c, p)
	require.Equal(t, StateErrored, result.State)

	var fatal *metalerrors.FatalError
	require.ErrorAs(t, result.Err, &fatal)
}

type mapPipelineManager map[string]*model.Pipeline

func (m mapPipelineManager) Get(id string) (*model.Pipeline, bool) {
	p, ok := m[id]
	return p, ok
}

func TestExecutorStepGroupIsolatesChildContext(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	require.NoError(t, reg.Register(testPkg, "Echo", "run", registry.Overload{
		Params: []registry.ParamSpec{{Name: "in", Kind: value.KindString}},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return args["in"], nil
		},
	}))

	child := &model.Pipeline{
		ID:              "child",
		Category:        "step-group",
		StepGroupResult: "inner",
		Steps: []model.PipelineStep{
			{
				ID:         "inner",
				Type:       model.StepTypeDefault,
				EngineMeta: model.EngineMeta{ObjectFunction: "Echo.run"},
				Params:     []model.Parameter{{Name: "in", Value: value.StringOf("!seed")}},
			},
		},
	}

	parent := &model.Pipeline{
		ID: "parent",
		Steps: []model.PipelineStep{
			{
				ID:         "group",
				Type:       model.StepTypeStepGroup,
				EngineMeta: model.EngineMeta{PipelineID: "child"},
				PipelineMapping: &model.Parameter{Value: value.MapOf(map[string]value.Value{
					"seed": value.StringOf("!outerSeed"),
				})},
			},
		},
	}

	mgr := mapPipelineManager{"child": child}
	c := pctx.New(map[string]value.Value{"outerSeed": value.StringOf("from-parent")}, mgr, []string{testPkg})

	result := e.Run(context.Background(), c, parent)
	require.Equal(t, StateComplete, result.State)

	resp, ok := c.GetResult("parent", "group")
	require.True(t, ok)
	require.Equal(t, "from-parent", resp.PrimaryReturn.Str)

	_, hasSeedAtParent := c.Global("seed")
	require.False(t, hasSeedAtParent, "child globals must not leak into the parent context")
}

func TestExecutorForkJoinRunsEachElement(t *testing.T) {
	t.Parallel()

	e, reg := newExecutor(t)
	require.NoError(t, reg.Register(testPkg, "Echo", "run", registry.Overload{
		Params: []registry.ParamSpec{{Name: "in", Any: true}},
		Adapter: func(args map[string]value.Value, injected map[string]any) (value.Value, error) {
			c := injected[registry.PipelineContextKey].(*pctx.PipelineContext)
			v, _ := c.Global("forkValue")
			return v, nil
		},
	}))

	p := &model.Pipeline{
		ID: "p1",
		Steps: []model.PipelineStep{
			{
				ID:         "fork1",
				Type:       model.StepTypeFork,
				Params:     []model.Parameter{{Name: "values", Value: value.ListOf(value.IntOf(1), value.IntOf(2), value.IntOf(3))}},
				NextStepID: strPtr("branchStep"),
			},
			{
				ID:         "branchStep",
				Type:       model.StepTypeDefault,
				EngineMeta: model.EngineMeta{ObjectFunction: "Echo.run"},
				Params:     []model.Parameter{{Name: "in", Value: value.StringOf("!forkValue")}},
				NextStepID: strPtr("join1"),
			},
			{
				ID:   "join1",
				Type: model.StepTypeJoin,
			},
		},
	}

	c := pctx.New(nil, nil, []string{testPkg})
	result := e.Run(context.Background(), c, p)
	require.Equal(t, StateComplete, result.State)

	resp, ok := c.GetResult("p1", "join1")
	require.True(t, ok)
	require.Len(t, resp.PrimaryReturn.List, 3)

	seen := map[int64]bool{}
	for _, v := range resp.PrimaryReturn.List {
		seen[v.Int] = true
	}
	require.True(t, seen[1] && seen[2] && seen[3])
}
