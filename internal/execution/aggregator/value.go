package aggregator

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// UnrepresentablePlaceholder replaces values that cannot cross the isolation
// boundary (functions, circular references, oversized payloads). Substituting
// the placeholder keeps the rest of the batch scorable.
const UnrepresentablePlaceholder = "[unserializable]"

// ValueKind discriminates the Value union.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindUnrepresentable
)

// Value is a tagged union for data crossing the sandbox boundary. The
// explicit Unrepresentable variant makes placeholder substitution a typed
// branch instead of an untyped fallback string.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Str    string
	Array  []Value
	Object map[string]Value
}

// Unrepresentable returns the placeholder variant.
func Unrepresentable() Value {
	return Value{Kind: KindUnrepresentable}
}

// ParseValue decodes a JSON document into a Value. Invalid JSON yields the
// Unrepresentable variant rather than an error so a bad payload degrades to
// a placeholder instead of failing the batch.
func ParseValue(raw string) Value {
	var decoded interface{}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Unrepresentable()
	}
	return fromDecoded(decoded)
}

func fromDecoded(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Unrepresentable()
		}
		return Value{Kind: KindNumber, Number: f}
	case string:
		return Value{Kind: KindString, Str: t}
	case []interface{}:
		arr := make([]Value, 0, len(t))
		for _, item := range t {
			arr = append(arr, fromDecoded(item))
		}
		return Value{Kind: KindArray, Array: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			obj[k] = fromDecoded(item)
		}
		return Value{Kind: KindObject, Object: obj}
	default:
		return Unrepresentable()
	}
}

// Native returns the value in its native structure for synchronous callers.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	case KindArray:
		out := make([]interface{}, 0, len(v.Array))
		for _, item := range v.Array {
			out = append(out, item.Native())
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Object))
		for k, item := range v.Object {
			out[k] = item.Native()
		}
		return out
	default:
		return UnrepresentablePlaceholder
	}
}

// DisplaySafe flattens the value to a single string so stores without nested
// collection support can hold it. This is a distinct serialization from
// Native and the two must not be conflated.
func (v Value) DisplaySafe() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindArray:
		parts := make([]string, 0, len(v.Array))
		for _, item := range v.Array {
			parts = append(parts, item.DisplaySafe())
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+v.Object[k].DisplaySafe())
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return UnrepresentablePlaceholder
	}
}
