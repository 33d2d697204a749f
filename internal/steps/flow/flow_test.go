package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jriewerts/metalus/internal/steps"
	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

func TestFlowPauseRaisesStepError(t *testing.T) {
	_, err := steps.Default.Resolve([]string{steps.PackageName}, "Flow.pause", map[string]value.Value{
		"message": value.StringOf("waiting"),
	}, nil, true)
	require.Error(t, err)

	var stepErr *metalerrors.StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, metalerrors.StepKindPause, stepErr.Kind)
	require.Equal(t, "waiting", stepErr.Message)
}

func TestFlowFailRaisesStepError(t *testing.T) {
	_, err := steps.Default.Resolve([]string{steps.PackageName}, "Flow.fail", map[string]value.Value{}, nil, true)
	require.Error(t, err)

	var stepErr *metalerrors.StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, metalerrors.StepKindError, stepErr.Kind)
	require.Equal(t, "failed", stepErr.Message)
}
