package pctx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jriewerts/metalus/internal/value"
)

func TestSetResultThenGetResult(t *testing.T) {
	t.Parallel()

	ctx := New(nil, nil, nil)
	ctx.SetResult("p1", "s1", value.Wrap(value.StringOf("DF1")))

	resp, ok := ctx.GetResult("p1", "s1")
	require.True(t, ok)
	require.Equal(t, "DF1", resp.PrimaryReturn.Str)
}

func TestStripReservedGlobals(t *testing.T) {
	t.Parallel()

	globals := map[string]value.Value{
		ReservedApplicationJSON:       value.StringOf("{}"),
		ReservedApplicationConfigPath: value.StringOf("/tmp/app.json"),
		"keep":                        value.IntOf(1),
	}
	StripReservedGlobals(globals)
	require.Len(t, globals, 1)
	require.Contains(t, globals, "keep")
}

func TestNewChildIsIsolated(t *testing.T) {
	t.Parallel()

	parent := New(map[string]value.Value{"a": value.IntOf(1)}, nil, []string{"pkg"})
	parent.SetResult("p1", "s1", value.Wrap(value.IntOf(1)))

	child := parent.NewChild(map[string]value.Value{"forkValue": value.IntOf(5)})
	require.Len(t, child.Globals, 1)
	require.Empty(t, child.Parameters)
	_, hasA := child.Global("a")
	require.False(t, hasA)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	t.Parallel()

	ctx := New(map[string]value.Value{"x": value.IntOf(1)}, nil, nil)
	globals, _, _ := ctx.Snapshot()
	ctx.SetGlobal("x", value.IntOf(2))
	require.Equal(t, int64(1), globals["x"].Int)
}

func TestAuditingListenerRecordsEntries(t *testing.T) {
	t.Parallel()

	ctx := New(nil, nil, nil)
	listener := NewAuditingListener(ctx, zerolog.Nop())

	listener.PipelineStarted("p1")
	listener.StepStarted("p1", "s1")
	listener.StepFinished("p1", "s1", value.Wrap(value.StringOf("ok")))
	listener.PipelineFinished("p1")

	audits := ctx.Audits()
	require.Len(t, audits, 4)
	require.Equal(t, "pipelineStarted", audits[0].Event)
	require.NotEmpty(t, audits[0].ID)
}
