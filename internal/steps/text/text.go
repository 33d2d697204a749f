// Package text registers simple string-transform step bodies under the
// "Text" object (steps.PackageName).
package text

import (
	"strings"

	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/steps"
	"github.com/jriewerts/metalus/internal/value"
)

func init() {
	must(steps.Default.Register(steps.PackageName, "Text", "upper", registry.Overload{
		Params: []registry.ParamSpec{{Name: "value", Kind: value.KindString, Required: true}},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return value.StringOf(strings.ToUpper(args["value"].Str)), nil
		},
	}))
	must(steps.Default.Register(steps.PackageName, "Text", "lower", registry.Overload{
		Params: []registry.ParamSpec{{Name: "value", Kind: value.KindString, Required: true}},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			return value.StringOf(strings.ToLower(args["value"].Str)), nil
		},
	}))
	must(steps.Default.Register(steps.PackageName, "Text", "concat", registry.Overload{
		Params: []registry.ParamSpec{
			{Name: "values", Kind: value.KindList, Required: true},
			{Name: "separator", Kind: value.KindString, Default: defaultValue(value.StringOf(""))},
		},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			parts := make([]string, 0, len(args["values"].List))
			for _, item := range args["values"].List {
				s, _ := item.AsString()
				parts = append(parts, s)
			}
			return value.StringOf(strings.Join(parts, args["separator"].Str)), nil
		},
	}))
}

func defaultValue(v value.Value) *value.Value { return &v }

func must(err error) {
	if err != nil {
		panic(err)
	}
}
