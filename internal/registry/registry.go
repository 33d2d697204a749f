// Package registry implements the step registry (spec §4.2): resolving an
// "Object.function" reference to a callable step body, and resolving a
// className to a constructor for typed-object projection (spec §4.1).
//
// Per the design notes (spec §9), dispatch is NOT reflection-based: every
// overload is registered with explicit parameter metadata (ParamSpec) and a
// typed Adapter that projects Value arguments into whatever native call the
// step author wants to make.
package registry

import (
	"fmt"
	"strings"

	"github.com/jriewerts/metalus/internal/value"
	metalerrors "github.com/jriewerts/metalus/pkg/errors"
)

// PipelineContextKey is the reserved argument name the registry recognizes
// as an injected argument, supplied automatically rather than resolved from
// a step's params (spec §4.2).
const PipelineContextKey = "pipelineContext"

// ParamSpec describes one declared parameter of a registered overload.
type ParamSpec struct {
	Name     string
	Kind     value.Kind
	Any      bool
	Required bool
	Default  *value.Value
}

// Adapter is the native call a registered overload invokes once its
// arguments have been resolved and projected. injected carries values the
// registry supplies automatically (keyed by e.g. PipelineContextKey).
type Adapter func(args map[string]value.Value, injected map[string]any) (value.Value, error)

// Overload is one callable signature — one entry in a function's or
// constructor's overload set.
type Overload struct {
	Params  []ParamSpec
	Adapter Adapter
}

type objectFunctions map[string][]*Overload // functionName -> overloads in declaration order

// Registry resolves Object.function references and className constructors.
type Registry struct {
	// packages[packageName][objectName] -> functions registered on that object.
	packages map[string]map[string]objectFunctions
	// constructors[className] -> overloads in declaration order.
	constructors map[string][]*Overload
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		packages:     make(map[string]map[string]objectFunctions),
		constructors: make(map[string][]*Overload),
	}
}

// Register adds an overload of functionName on objectName within
// packageName. Step implementations call this (typically from an init()
// function in their own package, mirroring the teacher's
// plugin.RegisterPlugin self-registration pattern) to make themselves
// discoverable by stepPackages + "Object.function" references.
func (r *Registry) Register(packageName, objectName, functionName string, overload Overload) error {
	if packageName == "" || objectName == "" || functionName == "" {
		return metalerrors.NewConfigError("register", "package, object, and function names are required", nil)
	}
	if overload.Adapter == nil {
		return metalerrors.NewConfigError("register", fmt.Sprintf("%s.%s.%s: adapter is required", packageName, objectName, functionName), nil)
	}

	pkg, ok := r.packages[packageName]
	if !ok {
		pkg = make(map[string]objectFunctions)
		r.packages[packageName] = pkg
	}
	obj, ok := pkg[objectName]
	if !ok {
		obj = make(objectFunctions)
		pkg[objectName] = obj
	}
	ov := overload
	obj[functionName] = append(obj[functionName], &ov)
	return nil
}

// RegisterConstructor adds an overload for projecting a map into a
// className-tagged typed-object (spec §4.1).
func (r *Registry) RegisterConstructor(className string, overload Overload) error {
	if className == "" {
		return metalerrors.NewConfigError("registerConstructor", "className is required", nil)
	}
	ov := overload
	r.constructors[className] = append(r.constructors[className], &ov)
	return nil
}

// Resolve searches stepPackages in order for the first namespace containing
// objectName, then invokes functionName on it with args, injecting
// injected values for reserved parameter names (spec §4.2).
func (r *Registry) Resolve(stepPackages []string, ref string, args map[string]value.Value, injected map[string]any, strict bool) (value.PipelineStepResponse, error) {
	objectName, functionName, err := splitRef(ref)
	if err != nil {
		return value.PipelineStepResponse{}, err
	}

	var funcs objectFunctions
	found := false
	for _, pkgName := range stepPackages {
		pkg, ok := r.packages[pkgName]
		if !ok {
			continue
		}
		if obj, ok := pkg[objectName]; ok {
			funcs = obj
			found = true
			break
		}
	}
	if !found {
		return value.PipelineStepResponse{}, metalerrors.NewConfigError("stepPackages", fmt.Sprintf("no package on the search path defines object %q", objectName), nil)
	}

	overloads, ok := funcs[functionName]
	if !ok || len(overloads) == 0 {
		return value.PipelineStepResponse{}, metalerrors.NewConfigError("stepPackages", fmt.Sprintf("object %q has no function %q", objectName, functionName), nil)
	}

	overload := chooseOverload(overloads, args)

	finalArgs, err := bindArgs(ref, overload, args, strict)
	if err != nil {
		return value.PipelineStepResponse{}, err
	}

	result, err := overload.Adapter(finalArgs, injected)
	if err != nil {
		return value.PipelineStepResponse{}, err
	}

	if resp, ok := value.AsResponse(result); ok {
		return resp, nil
	}
	return value.Wrap(result), nil
}

// Construct projects fields into a className-tagged typed-object, matching
// map keys to the chosen constructor overload's parameters by name (spec
// §4.1).
func (r *Registry) Construct(className string, fields map[string]value.Value, strict bool) (value.Value, error) {
	overloads, ok := r.constructors[className]
	if !ok || len(overloads) == 0 {
		return value.Absent(), metalerrors.NewConfigError("className", fmt.Sprintf("unresolved className %q", className), nil)
	}

	overload := chooseOverload(overloads, fields)
	finalFields, err := bindArgs(className, overload, fields, strict)
	if err != nil {
		return value.Absent(), err
	}

	if overload.Adapter != nil {
		result, err := overload.Adapter(finalFields, nil)
		if err != nil {
			return value.Absent(), err
		}
		return result, nil
	}
	return value.ObjectOf(className, finalFields), nil
}

func splitRef(ref string) (objectName, functionName string, err error) {
	idx := strings.LastIndex(ref, ".")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", metalerrors.NewConfigError("ref", fmt.Sprintf("%q is not a valid Object.function reference", ref), nil)
	}
	return ref[:idx], ref[idx+1:], nil
}

// chooseOverload implements the tie-break rule: the overload with the
// largest number of argument names whose runtime value is assignable to the
// declared parameter type wins; ties go to the first overload in
// declaration order (spec §4.2, §9 Open Questions).
func chooseOverload(overloads []*Overload, provided map[string]value.Value) *Overload {
	best := overloads[0]
	bestScore := -1
	for _, overload := range overloads {
		score := 0
		for _, p := range overload.Params {
			if p.Name == PipelineContextKey {
				continue
			}
			v, ok := provided[p.Name]
			if ok && assignable(v, p) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = overload
		}
	}
	return best
}

func assignable(v value.Value, p ParamSpec) bool {
	if p.Any {
		return true
	}
	switch p.Kind {
	case value.KindFloat:
		return v.Kind == value.KindFloat || v.Kind == value.KindInt
	case value.KindString, value.KindList, value.KindMap, value.KindObject:
		return v.Kind == p.Kind || v.Kind == value.KindNull
	default:
		return v.Kind == p.Kind
	}
}

func bindArgs(ref string, overload *Overload, provided map[string]value.Value, strict bool) (map[string]value.Value, error) {
	final := make(map[string]value.Value, len(overload.Params))
	for _, p := range overload.Params {
		if p.Name == PipelineContextKey {
			continue
		}
		v, ok := provided[p.Name]
		if !ok {
			if p.Default != nil {
				final[p.Name] = *p.Default
				continue
			}
			if p.Required {
				return nil, metalerrors.NewMappingError(ref, p.Name, "required argument not supplied", nil)
			}
			final[p.Name] = value.Absent()
			continue
		}
		if strict && !assignable(v, p) {
			return nil, metalerrors.NewMappingError(ref, p.Name, fmt.Sprintf("expected %s, got %s", describeKind(p), v.Kind), nil)
		}
		final[p.Name] = v
	}
	return final, nil
}

func describeKind(p ParamSpec) string {
	if p.Any {
		return "any"
	}
	return p.Kind.String()
}
