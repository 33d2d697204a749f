package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("missing executions key")
	err := NewConfigError("executions", "required", underlying)

	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "executions", configErr.Field)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "executions")
}

func TestMappingErrorIncludesClassName(t *testing.T) {
	t.Parallel()

	err := NewMappingError("com.acxiom.Widget", "name", "required field missing", nil)

	var mappingErr *MappingError
	require.ErrorAs(t, err, &mappingErr)
	require.Equal(t, "com.acxiom.Widget", mappingErr.ClassName)
	require.Contains(t, err.Error(), "com.acxiom.Widget.name")
}

func TestStepErrorCarriesKind(t *testing.T) {
	t.Parallel()

	err := NewStepError("s1", StepKindPause, "waiting for approval", nil)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepKindPause, stepErr.Kind)
	require.Equal(t, "s1", stepErr.StepID)
}

func TestFatalErrorUnwrapsToRootCause(t *testing.T) {
	t.Parallel()

	root := stdErrors.New("nil pointer in step body")
	wrapped := fmt.Errorf("invocation failed: %w", root)

	err := NewFatalError("s2", wrapped)

	var fatalErr *FatalError
	require.ErrorAs(t, err, &fatalErr)
	require.Equal(t, root, fatalErr.Err)
	require.True(t, stdErrors.Is(err, root))
}
