package value

import "github.com/tidwall/gjson"

// FromJSON projects a parsed gjson.Result into a Value. It is the bridge
// between the Application JSON document (spec §6) and the Value model used
// everywhere else in the core.
func FromJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.True:
		return BoolOf(true)
	case gjson.False:
		return BoolOf(false)
	case gjson.Number:
		if r.Num == float64(int64(r.Num)) && r.Raw != "" && !hasFloatMarkers(r.Raw) {
			return IntOf(int64(r.Num))
		}
		return FloatOf(r.Num)
	case gjson.String:
		return StringOf(r.String())
	case gjson.JSON:
		if r.IsArray() {
			items := make([]Value, 0)
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, FromJSON(item))
				return true
			})
			return ListOf(items...)
		}
		m := make(map[string]Value)
		r.ForEach(func(key, item gjson.Result) bool {
			m[key.String()] = FromJSON(item)
			return true
		})
		return MapOf(m)
	default:
		return Absent()
	}
}

func hasFloatMarkers(raw string) bool {
	for _, c := range raw {
		if c == '.' || c == 'e' || c == 'E' {
			return true
		}
	}
	return false
}

// ToInterface converts a Value back into plain Go data (map[string]any,
// []any, string, int64, float64, bool, nil) suitable for JSON encoding —
// used when a resolved Value must be handed to external collaborators such
// as a step body's native arguments.
func ToInterface(v Value) any {
	switch v.Kind {
	case KindAbsent, KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = ToInterface(item)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			out[k] = ToInterface(item)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object.Fields)+1)
		out["className"] = v.Object.ClassName
		for k, item := range v.Object.Fields {
			out[k] = ToInterface(item)
		}
		return out
	default:
		return nil
	}
}
