package scrape

import (
	"encoding/json"
	"fmt"
)

// Value is one node of an extracted payload. The concrete types form a
// closed set: String, Number, Bool, List, Object. A nil Value is null.
// Keeping payloads structural (instead of raw any) lets emptiness and merge
// be defined recursively over a known shape.
type Value interface {
	isValue()
}

// String is a leaf string value.
type String string

// Number is a leaf numeric value.
type Number float64

// Bool is a leaf boolean value.
type Bool bool

// List is an ordered collection of values.
type List []Value

// Object is a keyed collection of values; payloads are Objects at the root.
type Object map[string]Value

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (Object) isValue() {}

// FromAny converts a decoded-JSON value (as produced by encoding/json into
// any) to a Value. Unknown kinds are stringified.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(t)
	case int64:
		return Number(t)
	case bool:
		return Bool(t)
	case []any:
		list := make(List, 0, len(t))
		for _, item := range t {
			list = append(list, FromAny(item))
		}
		return list
	case map[string]any:
		obj := make(Object, len(t))
		for k, item := range t {
			obj[k] = FromAny(item)
		}
		return obj
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	default:
		return String(fmt.Sprint(t))
	}
}

// ToAny converts a Value back to plain Go values suitable for JSON encoding
// or JSONB parameters.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case String:
		return string(t)
	case Number:
		return float64(t)
	case Bool:
		return bool(t)
	case List:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, ToAny(item))
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ToAny(item)
		}
		return out
	default:
		return nil
	}
}

// ObjectFromJSON decodes raw JSON into an Object. Non-object roots are
// wrapped under a "value" key so callers always get an Object back.
func ObjectFromJSON(raw []byte) (Object, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if decoded == nil {
		return nil, nil
	}
	if obj, ok := FromAny(decoded).(Object); ok {
		return obj, nil
	}
	return Object{"value": FromAny(decoded)}, nil
}

// JSON encodes the object for storage.
func (o Object) JSON() ([]byte, error) {
	raw, err := json.Marshal(ToAny(o))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out, _ := FromAny(ToAny(o)).(Object)
	return out
}
