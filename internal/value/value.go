// Package value implements the tagged-variant Value that flows through
// every configuration-carried payload in Metalus (spec §3 Value).
package value

import (
	"fmt"
	"sort"
)

// Kind discriminates the variant a Value currently holds.
type Kind int

const (
	// KindAbsent marks the result of a lookup that found nothing — not the
	// same as an explicit JSON null (KindNull). Path traversal terminates
	// at the first Absent it produces (spec §4.3 Dotted paths).
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// TypedObject is a record tagged by a fully-qualified type name plus a map
// of fields (spec §3 Value).
type TypedObject struct {
	ClassName string
	Fields    map[string]Value
}

// Value is the tagged variant shared by globals, parameters, and step
// results throughout the core.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	List   []Value
	Map    map[string]Value
	Object *TypedObject
}

// Absent returns the absence sentinel.
func Absent() Value { return Value{Kind: KindAbsent} }

// Null returns an explicit null value.
func Null() Value { return Value{Kind: KindNull} }

// BoolOf wraps a boolean.
func BoolOf(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntOf wraps an integer.
func IntOf(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatOf wraps a float.
func FloatOf(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringOf wraps a string.
func StringOf(s string) Value { return Value{Kind: KindString, Str: s} }

// ListOf wraps a slice of values.
func ListOf(items ...Value) Value {
	return Value{Kind: KindList, List: append([]Value(nil), items...)}
}

// MapOf wraps a map of values.
func MapOf(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindMap, Map: m}
}

// ObjectOf wraps a typed-object record.
func ObjectOf(className string, fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindObject, Object: &TypedObject{ClassName: className, Fields: fields}}
}

// IsAbsent reports whether v is the absence sentinel.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// IsEmpty reports whether v is one of the "empty" forms the spec defines for
// executeIfEmpty: empty string, empty list, or empty map. Absent is handled
// separately by callers — it is deliberately not considered empty here
// (spec §4.3 executeIfEmpty: "non-absent and non-empty").
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindString:
		return v.Str == ""
	case KindList:
		return len(v.List) == 0
	case KindMap:
		return len(v.Map) == 0
	default:
		return false
	}
}

// ShouldSkipForEmpty implements the executeIfEmpty short-circuit predicate:
// the step is skipped when the resolved value is both non-absent and
// non-empty (spec §4.3, §8 property 6).
func ShouldSkipForEmpty(v Value) bool {
	return !v.IsAbsent() && !v.IsEmpty()
}

// AsString renders a scalar Value as a string for embedded concatenation
// (spec §4.3 Embedded concatenation). Non-scalar kinds return false.
func (v Value) AsString() (string, bool) {
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindInt:
		return fmt.Sprintf("%d", v.Int), true
	case KindFloat:
		return fmt.Sprintf("%g", v.Float), true
	case KindBool:
		return fmt.Sprintf("%t", v.Bool), true
	case KindNull:
		return "null", true
	case KindAbsent:
		return "", true
	default:
		return "", false
	}
}

// Field looks up a field on a typed-object, returning Absent if v is not an
// object or the field is missing.
func (v Value) Field(name string) Value {
	if v.Kind != KindObject || v.Object == nil {
		return Absent()
	}
	if f, ok := v.Object.Fields[name]; ok {
		return f
	}
	return Absent()
}

// Key looks up an entry on a map, returning Absent if v is not a map or the
// key is missing.
func (v Value) Key(name string) Value {
	if v.Kind != KindMap {
		return Absent()
	}
	if f, ok := v.Map[name]; ok {
		return f
	}
	return Absent()
}

// Equal performs a deep-equal comparison, used by the resolver idempotence
// property (spec §8 property 5) and by scheduler inheritance tests (§8
// property 3).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindAbsent, KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.Str == b.Str
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindObject:
		if a.Object == nil || b.Object == nil {
			return a.Object == b.Object
		}
		if a.Object.ClassName != b.Object.ClassName {
			return false
		}
		if len(a.Object.Fields) != len(b.Object.Fields) {
			return false
		}
		for k, av := range a.Object.Fields {
			bv, ok := b.Object.Fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedMapKeys returns a map's keys in sorted order, for callers that need
// deterministic map iteration.
func SortedMapKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
