// Package jsonstep registers JSON-document step bodies under the "Json"
// object (steps.PackageName), using the same gjson/sjson pair the config
// package uses to parse the Application document.
package jsonstep

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/steps"
	"github.com/jriewerts/metalus/internal/value"
)

func init() {
	must(steps.Default.Register(steps.PackageName, "Json", "get", registry.Overload{
		Params: []registry.ParamSpec{
			{Name: "document", Kind: value.KindString, Required: true},
			{Name: "path", Kind: value.KindString, Required: true},
		},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			result := gjson.Get(args["document"].Str, args["path"].Str)
			return value.FromJSON(result), nil
		},
	}))
	must(steps.Default.Register(steps.PackageName, "Json", "set", registry.Overload{
		Params: []registry.ParamSpec{
			{Name: "document", Kind: value.KindString, Required: true},
			{Name: "path", Kind: value.KindString, Required: true},
			{Name: "value", Any: true, Required: true},
		},
		Adapter: func(args map[string]value.Value, _ map[string]any) (value.Value, error) {
			updated, err := sjson.Set(args["document"].Str, args["path"].Str, value.ToInterface(args["value"]))
			if err != nil {
				return value.Absent(), err
			}
			return value.StringOf(updated), nil
		},
	}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
