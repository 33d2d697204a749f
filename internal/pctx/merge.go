package pctx

import (
	"dario.cat/mergo"

	"github.com/jriewerts/metalus/internal/value"
)

// MergeGlobals overlays overlay onto a copy of base, used both by the
// execution plan scheduler's startup seeding (application globals overlaid
// with an execution's own globals, spec §4.7) and by the pipeline executor's
// fork branch globals (spec §3 SUPPLEMENTED FEATURES, fork/join). base is
// copied before the overlay is applied, so neither input map is mutated.
func MergeGlobals(base, overlay map[string]value.Value) (map[string]value.Value, error) {
	merged := make(map[string]value.Value, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, overlay, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
