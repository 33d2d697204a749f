package value

// ClassPipelineStepResponse is the well-known typed-object class name a step
// adapter may use to return named returns alongside its primary return,
// letting the registry detect pass-through vs. wrap-on-return (spec §4.2
// Result handling) without reflection.
const ClassPipelineStepResponse = "com.acxiom.pipeline.PipelineStepResponse"

// PipelineStepResponse is the canonical step return shape: primary return +
// named returns (spec §3, GLOSSARY).
type PipelineStepResponse struct {
	PrimaryReturn Value
	NamedReturns  map[string]Value
}

// Wrap builds a PipelineStepResponse from a bare returned Value, per the
// registry's "otherwise wrapped" rule (spec §4.2 Result handling). A
// Absent primary return is preserved as PrimaryReturn = Absent(), matching
// "None/absent -> Some(absent)".
func Wrap(v Value) PipelineStepResponse {
	return PipelineStepResponse{PrimaryReturn: v}
}

// AsResponse detects whether v is a typed-object tagged
// ClassPipelineStepResponse and, if so, unpacks it directly instead of
// wrapping — implementing the registry's pass-through rule.
func AsResponse(v Value) (PipelineStepResponse, bool) {
	if v.Kind != KindObject || v.Object == nil || v.Object.ClassName != ClassPipelineStepResponse {
		return PipelineStepResponse{}, false
	}
	resp := PipelineStepResponse{
		PrimaryReturn: v.Object.Fields["primaryReturn"],
	}
	if named := v.Object.Fields["namedReturns"]; named.Kind == KindMap {
		resp.NamedReturns = named.Map
	}
	return resp, true
}

// ToValue converts a PipelineStepResponse into its typed-object
// representation, used when a cross-pipeline `$`/`@`/`#` sigil needs to
// address a stored response as a Value for further path traversal (spec
// §4.3 sigil table).
func (r PipelineStepResponse) ToValue() Value {
	fields := map[string]Value{
		"primaryReturn": r.PrimaryReturn,
	}
	if r.NamedReturns != nil {
		fields["namedReturns"] = MapOf(r.NamedReturns)
	} else {
		fields["namedReturns"] = Absent()
	}
	return ObjectOf(ClassPipelineStepResponse, fields)
}
