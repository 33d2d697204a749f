// Package flow registers structured-stop step bodies under the "Flow"
// object (steps.PackageName): pause and fail, the two ways a step body
// raises a recoverable stop instead of returning a value (spec §4.4).
package flow

import (
	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/steps"
	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

func init() {
	must(steps.Default.Register(steps.PackageName, "Flow", "pause", registry.Overload{
		Params: []registry.ParamSpec{
			{Name: "message", Kind: value.KindString, Default: defaultValue(value.StringOf("paused"))},
		},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return value.Absent(), metalerrors.NewStepError("", metalerrors.StepKindPause, args["message"].Str, nil)
		},
	}))
	must(steps.Default.Register(steps.PackageName, "Flow", "fail", registry.Overload{
		Params: []registry.ParamSpec{
			{Name: "message", Kind: value.KindString, Default: defaultValue(value.StringOf("failed"))},
		},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return value.Absent(), metalerrors.NewStepError("", metalerrors.StepKindError, args["message"].Str, nil)
		},
	}))
}

func defaultValue(v value.Value) *value.Value { return &v }

func must(err error) {
	if err != nil {
		panic(err)
	}
}
