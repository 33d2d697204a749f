package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldSkipForEmpty(t *testing.T) {
	t.Parallel()

	require.False(t, ShouldSkipForEmpty(Absent()))
	require.False(t, ShouldSkipForEmpty(StringOf("")))
	require.False(t, ShouldSkipForEmpty(ListOf()))
	require.False(t, ShouldSkipForEmpty(MapOf(nil)))
	require.True(t, ShouldSkipForEmpty(StringOf("DF1")))
	require.True(t, ShouldSkipForEmpty(IntOf(0)))
	require.True(t, ShouldSkipForEmpty(Null()))
}

func TestEqualDeepCompare(t *testing.T) {
	t.Parallel()

	a := MapOf(map[string]Value{
		"x": IntOf(42),
		"y": ListOf(StringOf("a"), StringOf("b")),
	})
	b := MapOf(map[string]Value{
		"y": ListOf(StringOf("a"), StringOf("b")),
		"x": IntOf(42),
	})
	require.True(t, Equal(a, b))

	c := MapOf(map[string]Value{"x": IntOf(43)})
	require.False(t, Equal(a, c))
}

func TestFieldAndKeyLookupAbsence(t *testing.T) {
	t.Parallel()

	obj := ObjectOf("com.acxiom.Widget", map[string]Value{"name": StringOf("hi")})
	require.True(t, Equal(StringOf("hi"), obj.Field("name")))
	require.True(t, obj.Field("missing").IsAbsent())
	require.True(t, obj.Key("name").IsAbsent())

	m := MapOf(map[string]Value{"name": StringOf("hi")})
	require.True(t, Equal(StringOf("hi"), m.Key("name")))
	require.True(t, m.Field("name").IsAbsent())
}

func TestPipelineStepResponseRoundTrip(t *testing.T) {
	t.Parallel()

	resp := PipelineStepResponse{
		PrimaryReturn: StringOf("DF1"),
		NamedReturns:  map[string]Value{"count": IntOf(3)},
	}
	v := resp.ToValue()
	got, ok := AsResponse(v)
	require.True(t, ok)
	require.True(t, Equal(resp.PrimaryReturn, got.PrimaryReturn))
	require.True(t, Equal(IntOf(3), got.NamedReturns["count"]))
}

func TestWrapPreservesAbsentPrimary(t *testing.T) {
	t.Parallel()

	resp := Wrap(Absent())
	require.True(t, resp.PrimaryReturn.IsAbsent())
}
