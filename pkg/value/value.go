// Package value implements the dynamic Value sum type used for the
// workflow execution context and step parameters.
//
// The source system carries these as untyped dicts; here they are a
// closed algebraic type with a fixed variant set, matching spec.md's
// design note for the execution context.
package value

import (
	"fmt"
	"sort"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is a dynamically-typed value flowing through workflow step
// parameters, results, and the execution context. Exactly one of the
// typed fields is meaningful, selected by Kind.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func List(l []Value) Value       { return Value{kind: KindList, l: l} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)             { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)         { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) List() ([]Value, bool)          { return v.l, v.kind == KindList }
func (v Value) Map() (map[string]Value, bool)  { return v.m, v.kind == KindMap }

// Get performs a map-key lookup, returning (Null, false) for non-map
// values or a missing key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null(), false
	}
	val, ok := v.m[key]
	return val, ok
}

// Index performs a list-index lookup, returning (Null, false) for
// non-list values or an out-of-range index.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.l) {
		return Null(), false
	}
	return v.l[i], true
}

// FromAny converts an untyped Go value (as produced by yaml/json
// unmarshaling) into a Value tree.
func FromAny(a any) Value {
	switch t := a.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return List(out)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return Map(out)
	case map[any]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[fmt.Sprintf("%v", k)] = FromAny(e)
		}
		return Map(out)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// ToAny converts a Value back into an untyped Go value, suitable for
// JSON/YAML marshaling.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// Stringify renders a Value as a human-readable string, used by the
// output extractor and template renderer. This is NOT the canonical
// JSON serialization used for hashing (see pkg/audit for that).
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindList, KindMap:
		return fmt.Sprintf("%v", v.ToAny())
	default:
		return ""
	}
}

// SortedKeys returns a Map value's keys in sorted order, used wherever
// canonical (deterministic) iteration over a map is required.
func (v Value) SortedKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
