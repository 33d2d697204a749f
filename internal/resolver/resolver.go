// Package resolver implements the parameter resolver (spec §4.3): the
// sigil-prefixed expression language that maps step inputs from globals,
// prior step results, prior pipeline results, and pipeline-manager-provided
// sub-pipelines.
package resolver

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/pctx"
	"github.com/jriewerts/metalus/internal/registry"
	"github.com/jriewerts/metalus/internal/value"
)

const classPipeline = "com.acxiom.pipeline.Pipeline"

// Resolver evaluates Parameters against a PipelineContext.
type Resolver struct {
	Registry *registry.Registry
	Logger   zerolog.Logger
}

// New builds a Resolver backed by reg.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{Registry: reg, Logger: zerolog.Nop()}
}

// Resolve evaluates param against ctx in the context of currentPipelineID,
// applying the parameter mapper and security hooks last (spec §4.3).
func (r *Resolver) Resolve(ctx *pctx.PipelineContext, currentPipelineID string, param model.Parameter) (value.Value, error) {
	resolved, err := r.resolveValue(ctx, currentPipelineID, param.Value)
	if err != nil {
		return value.Absent(), err
	}
	if resolved.IsAbsent() && param.DefaultValue != nil {
		resolved = *param.DefaultValue
	}

	if ctx.ParameterMapper != nil {
		mapped, err := ctx.ParameterMapper.MapParameter(param, resolved)
		if err != nil {
			return value.Absent(), err
		}
		resolved = mapped
	}

	if ctx.SecurityManager != nil {
		secured, err := ctx.SecurityManager.SecureParameter(resolved)
		if err != nil {
			return value.Absent(), err
		}
		resolved = secured
	}
	return resolved, nil
}

// resolveValue dispatches on v's Kind: a string is an expression (sigil or
// embedded concatenation), a map may be a typed-object or list descriptor,
// otherwise nested maps/lists have their leaves resolved and every other
// Kind passes through as a literal (spec §4.3).
func (r *Resolver) resolveValue(ctx *pctx.PipelineContext, currentPipelineID string, v value.Value) (value.Value, error) {
	switch v.Kind {
	case value.KindString:
		return r.evaluateString(ctx, currentPipelineID, v.Str)
	case value.KindMap:
		return r.resolveMap(ctx, currentPipelineID, v)
	case value.KindList:
		items := make([]value.Value, len(v.List))
		for i, item := range v.List {
			resolved, err := r.resolveValue(ctx, currentPipelineID, item)
			if err != nil {
				return value.Absent(), err
			}
			items[i] = resolved
		}
		return value.ListOf(items...), nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolveMap(ctx *pctx.PipelineContext, currentPipelineID string, v value.Value) (value.Value, error) {
	className, hasClassName := v.Map["className"]
	object, hasObject := v.Map["object"]
	if hasClassName && hasObject && className.Kind == value.KindString {
		return r.resolveTypedObject(ctx, currentPipelineID, className.Str, object)
	}

	if listVal, hasValue := v.Map["value"]; hasValue && listVal.Kind == value.KindList {
		return r.resolveListDescriptor(ctx, currentPipelineID, v, listVal)
	}

	out := make(map[string]value.Value, len(v.Map))
	for k, item := range v.Map {
		resolved, err := r.resolveValue(ctx, currentPipelineID, item)
		if err != nil {
			return value.Absent(), err
		}
		out[k] = resolved
	}
	return value.MapOf(out), nil
}

func (r *Resolver) resolveTypedObject(ctx *pctx.PipelineContext, currentPipelineID, className string, object value.Value) (value.Value, error) {
	resolvedObject, err := r.resolveValue(ctx, currentPipelineID, object)
	if err != nil {
		return value.Absent(), err
	}
	fields := resolvedObject.Map
	if resolvedObject.Kind != value.KindMap {
		fields = map[string]value.Value{}
	}
	return r.Registry.Construct(className, fields, ctx.ValidateStepParameterTypes)
}

func (r *Resolver) resolveListDescriptor(ctx *pctx.PipelineContext, currentPipelineID string, descriptor, listVal value.Value) (value.Value, error) {
	items := make([]value.Value, len(listVal.List))
	for i, item := range listVal.List {
		resolved, err := r.resolveValue(ctx, currentPipelineID, item)
		if err != nil {
			return value.Absent(), err
		}
		items[i] = resolved
	}

	className, hasClassName := descriptor.Map["className"]
	if !hasClassName || className.Kind != value.KindString {
		return value.ListOf(items...), nil
	}

	projected := make([]value.Value, len(items))
	for i, item := range items {
		fields := item.Map
		if item.Kind != value.KindMap {
			fields = map[string]value.Value{}
		}
		v, err := r.Registry.Construct(className.Str, fields, ctx.ValidateStepParameterTypes)
		if err != nil {
			return value.Absent(), err
		}
		projected[i] = v
	}
	return value.ListOf(projected...), nil
}

// evaluateString renders an expression string: embedded ${...}
// concatenation when braces are present, otherwise a whole-value sigil
// substitution when the first character is a sigil, otherwise a literal
// (spec §4.3 Sigils, Embedded concatenation).
func (r *Resolver) evaluateString(ctx *pctx.PipelineContext, currentPipelineID, s string) (value.Value, error) {
	if strings.Contains(s, "${") {
		return r.evaluateEmbedded(ctx, currentPipelineID, s)
	}
	if s != "" && isSigilChar(s[0]) {
		return r.evaluateSigilExpr(ctx, currentPipelineID, s)
	}
	return value.StringOf(s), nil
}

func (r *Resolver) evaluateEmbedded(ctx *pctx.PipelineContext, currentPipelineID, s string) (value.Value, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start

		b.WriteString(rest[:start])
		inner := rest[start+2 : end]

		var innerValue value.Value
		var err error
		if inner != "" && isSigilChar(inner[0]) {
			innerValue, err = r.evaluateSigilExpr(ctx, currentPipelineID, inner)
			if err != nil {
				return value.Absent(), err
			}
		} else {
			innerValue = value.StringOf(inner)
		}

		if str, ok := innerValue.AsString(); ok {
			b.WriteString(str)
		} else {
			r.Logger.Warn().Str("expression", inner).Msg("embedded expression resolved to a non-scalar value; leaving literal text")
			b.WriteString(rest[start : end+1])
		}

		rest = rest[end+1:]
	}
	return value.StringOf(b.String()), nil
}

func (r *Resolver) evaluateSigilExpr(ctx *pctx.PipelineContext, currentPipelineID, expr string) (value.Value, error) {
	sigil := expr[0]
	rest := expr[1:]
	if rest == "" {
		return value.Absent(), nil
	}
	segments := strings.Split(rest, ".")

	switch sigil {
	case '!':
		v, ok := ctx.Global(segments[0])
		if !ok {
			return value.Absent(), nil
		}
		return traversePath(v, segments[1:]), nil

	case '$', '@', '#':
		resp, remaining, ok := lookupResponse(ctx, currentPipelineID, segments)
		if !ok {
			return value.Absent(), nil
		}
		var base value.Value
		switch sigil {
		case '$':
			base = resp.ToValue()
		case '@':
			base = resp.PrimaryReturn
		case '#':
			if resp.NamedReturns == nil {
				base = value.Absent()
			} else {
				base = value.MapOf(resp.NamedReturns)
			}
		}
		return traversePath(base, remaining), nil

	case '&':
		if ctx.PipelineManager == nil {
			return value.Absent(), nil
		}
		p, ok := ctx.PipelineManager.Get(segments[0])
		if !ok {
			return value.Absent(), nil
		}
		return traversePath(pipelineToValue(p), segments[1:]), nil

	default:
		return value.StringOf(expr), nil
	}
}

// lookupResponse disambiguates the "$"/"@"/"#" cross-pipeline form
// ($pipelineId.stepId[.path]) from the same-pipeline form
// ($stepId[.path]): the first segment is treated as a pipeline id only when
// the context already has recorded results under that pipeline id (spec
// §4.3 sigil table, §9 Open Questions).
func lookupResponse(ctx *pctx.PipelineContext, currentPipelineID string, segments []string) (value.PipelineStepResponse, []string, bool) {
	if len(segments) >= 2 && ctx.HasPipeline(segments[0]) {
		resp, ok := ctx.GetResult(segments[0], segments[1])
		return resp, segments[2:], ok
	}
	resp, ok := ctx.GetResult(currentPipelineID, segments[0])
	return resp, segments[1:], ok
}

// traversePath descends dotted path segments into typed-object fields, map
// entries, or list indices, auto-unwrapping one level of absence per
// segment (spec §4.3 Dotted paths).
func traversePath(v value.Value, path []string) value.Value {
	current := v
	for _, seg := range path {
		if current.IsAbsent() {
			return current
		}
		switch current.Kind {
		case value.KindObject:
			current = current.Field(seg)
		case value.KindMap:
			current = current.Key(seg)
		case value.KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(current.List) {
				return value.Absent()
			}
			current = current.List[idx]
		default:
			return value.Absent()
		}
	}
	return current
}

func pipelineToValue(p *model.Pipeline) value.Value {
	if p == nil {
		return value.Absent()
	}
	return value.ObjectOf(classPipeline, map[string]value.Value{
		"id":       value.StringOf(p.ID),
		"name":     value.StringOf(p.Name),
		"category": value.StringOf(p.Category),
	})
}

func isSigilChar(c byte) bool {
	switch c {
	case '!', '$', '@', '#', '&':
		return true
	default:
		return false
	}
}

// ResolveExecuteIfEmpty resolves a step's executeIfEmpty parameter, if
// present, returning ok=false when the step has no such parameter (spec
// §4.3 executeIfEmpty).
func (r *Resolver) ResolveExecuteIfEmpty(ctx *pctx.PipelineContext, currentPipelineID string, param *model.Parameter) (value.Value, bool, error) {
	if param == nil {
		return value.Absent(), false, nil
	}
	v, err := r.Resolve(ctx, currentPipelineID, *param)
	if err != nil {
		return value.Absent(), false, err
	}
	return v, true, nil
}
