package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FromAny converts a decoded `any` (as produced by encoding/json.Unmarshal
// into an `any`) into a Value. A float64 holding a whole number becomes I64,
// other float64s F64; a json.Number (as Decode produces) becomes I64 when it
// parses as an int64, else F64.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		if i := int64(t); float64(i) == t {
			return I64(i)
		}
		return F64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return I64(i)
		}
		f, _ := t.Float64()
		return F64(f)
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = FromAny(e)
		}
		return Array(elems...)
	case map[string]any:
		pairs := make([]Pair, 0, len(t))
		for k, e := range t {
			pairs = append(pairs, P(k, FromAny(e)))
		}
		return Object(pairs...)
	default:
		return Null
	}
}

// ToAny converts a Value into a plain `any` tree suitable for
// encoding/json.Marshal.
func ToAny(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindI64:
		return v.i
	case KindF64:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToAny(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}

// Decode parses JSON bytes into a Value. Numbers are decoded via
// json.Number to preserve integer precision before classification.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("value: decode json: %w", err)
	}
	return FromAny(raw), nil
}

// Encode renders a Value as JSON bytes. Object key order follows Go's
// encoding/json map ordering (sorted), not insertion order -- callers that
// need the exact decode(encode(v))==v round trip should compare with Equal,
// which ignores object key order, rather than byte equality.
func Encode(v Value) ([]byte, error) {
	return json.Marshal(ToAny(v))
}
