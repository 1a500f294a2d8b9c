package script

import (
	"fmt"
	"strings"

	"github.com/fluxcore/fluxcore/pkg/value"
)

// Func is a pure built-in: given positional arguments, return a value or an
// error. Built-ins must not retain references to argument slices.
type Func func(args []value.Value) (value.Value, error)

// Registry resolves (module, name) to a Func, matching tremor-script's
// module::function invocation syntax (e.g. string::len, math::max).
type Registry struct {
	fns map[string]Func
}

func key(module, name string) string { return module + "::" + name }

// Lookup resolves a built-in by module and name.
func (r *Registry) Lookup(module, name string) (Func, bool) {
	f, ok := r.fns[key(module, name)]
	return f, ok
}

// Register installs fn under module::name, overwriting any prior entry.
func (r *Registry) Register(module, name string, fn Func) {
	if r.fns == nil {
		r.fns = map[string]Func{}
	}
	r.fns[key(module, name)] = fn
}

// StandardLibrary returns a Registry pre-populated with the core string,
// math, array, record, and type built-ins needed by classifier/grouper
// scripts, grounded on tremor-script's stdlib module surface.
func StandardLibrary() *Registry {
	r := &Registry{}

	r.Register("string", "len", func(args []value.Value) (value.Value, error) {
		s, err := arg1Str(args, "string::len")
		if err != nil {
			return value.Value{}, err
		}
		return value.I64(int64(len(s))), nil
	})
	r.Register("string", "upper", func(args []value.Value) (value.Value, error) {
		s, err := arg1Str(args, "string::upper")
		if err != nil {
			return value.Value{}, err
		}
		return value.String(strings.ToUpper(s)), nil
	})
	r.Register("string", "lower", func(args []value.Value) (value.Value, error) {
		s, err := arg1Str(args, "string::lower")
		if err != nil {
			return value.Value{}, err
		}
		return value.String(strings.ToLower(s)), nil
	})
	r.Register("string", "contains", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("script: string::contains expects 2 args")
		}
		s, ok1 := args[0].AsStr()
		sub, ok2 := args[1].AsStr()
		if !ok1 || !ok2 {
			return value.Value{}, fmt.Errorf("script: string::contains expects string args")
		}
		return value.Bool(strings.Contains(s, sub)), nil
	})
	r.Register("string", "trim", func(args []value.Value) (value.Value, error) {
		s, err := arg1Str(args, "string::trim")
		if err != nil {
			return value.Value{}, err
		}
		return value.String(strings.TrimSpace(s)), nil
	})

	r.Register("math", "max", func(args []value.Value) (value.Value, error) {
		a, b, err := arg2Num(args, "math::max")
		if err != nil {
			return value.Value{}, err
		}
		if a > b {
			return args[0], nil
		}
		return args[1], nil
	})
	r.Register("math", "min", func(args []value.Value) (value.Value, error) {
		a, b, err := arg2Num(args, "math::min")
		if err != nil {
			return value.Value{}, err
		}
		if a < b {
			return args[0], nil
		}
		return args[1], nil
	})

	r.Register("array", "len", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("script: array::len expects 1 arg")
		}
		return value.I64(int64(args[0].Len())), nil
	})
	r.Register("array", "contains", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("script: array::contains expects 2 args")
		}
		arr, ok := args[0].AsArray()
		if !ok {
			return value.Value{}, fmt.Errorf("script: array::contains first arg must be an array")
		}
		for _, e := range arr {
			if value.Equal(e, args[1]) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	})

	r.Register("record", "keys", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("script: record::keys expects 1 arg")
		}
		keys := args[0].ObjectKeys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.String(k)
		}
		return value.Array(out...), nil
	})
	r.Register("record", "contains", func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("script: record::contains expects 2 args")
		}
		key, ok := args[1].AsStr()
		if !ok {
			return value.Value{}, fmt.Errorf("script: record::contains second arg must be a string")
		}
		_, present := args[0].Get(key)
		return value.Bool(present), nil
	})

	r.Register("type", "is_string", typeCheck(value.KindString))
	r.Register("type", "is_array", typeCheck(value.KindArray))
	r.Register("type", "is_object", typeCheck(value.KindObject))
	r.Register("type", "is_null", typeCheck(value.KindNull))
	r.Register("type", "is_integer", typeCheck(value.KindI64))
	r.Register("type", "is_float", typeCheck(value.KindF64))
	r.Register("type", "is_bool", typeCheck(value.KindBool))

	return r
}

func typeCheck(k value.Kind) Func {
	return func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("script: type check expects 1 arg")
		}
		return value.Bool(args[0].Kind() == k), nil
	}
}

func arg1Str(args []value.Value, name string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("script: %s expects 1 arg", name)
	}
	s, ok := args[0].AsStr()
	if !ok {
		return "", fmt.Errorf("script: %s expects a string arg, got %s", name, args[0].Kind())
	}
	return s, nil
}

func arg2Num(args []value.Value, name string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("script: %s expects 2 args", name)
	}
	if !numeric(args[0]) || !numeric(args[1]) {
		return 0, 0, fmt.Errorf("script: %s expects numeric args", name)
	}
	return asF64(args[0]), asF64(args[1]), nil
}
