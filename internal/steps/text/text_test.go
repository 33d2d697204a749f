package text

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jriewerts/metalus/internal/steps"
	"github.com/jriewerts/metalus/internal/value"
)

func TestTextStepsRegistered(t *testing.T) {
	resp, err := steps.Default.Resolve([]string{steps.PackageName}, "Text.upper", map[string]value.Value{
		"value": value.StringOf("hi"),
	}, nil, true)
	require.NoError(t, err)
	require.Equal(t, "HI", resp.PrimaryReturn.Str)

	resp, err = steps.Default.Resolve([]string{steps.PackageName}, "Text.concat", map[string]value.Value{
		"values":    value.ListOf(value.StringOf("a"), value.StringOf("b")),
		"separator": value.StringOf("-"),
	}, nil, true)
	require.NoError(t, err)
	require.Equal(t, "a-b", resp.PrimaryReturn.Str)
}
