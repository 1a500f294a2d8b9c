package script

import "github.com/fluxcore/fluxcore/pkg/value"

// WildcardPattern matches anything.
type WildcardPattern struct{}

func (WildcardPattern) match(_ *EvalCtx, _ value.Value) (bool, func(*EvalCtx)) {
	return true, nil
}

// LiteralPattern matches a value by structural equality.
type LiteralPattern struct{ Value value.Value }

func (p LiteralPattern) match(_ *EvalCtx, v value.Value) (bool, func(*EvalCtx)) {
	return value.Equal(p.Value, v), nil
}

// KindPattern matches any value of a given Kind ("array", "object", etc.)
// without checking contents; used for `case %[]` / `case %{}` style patterns.
type KindPattern struct{ Kind value.Kind }

func (p KindPattern) match(_ *EvalCtx, v value.Value) (bool, func(*EvalCtx)) {
	return v.Kind() == p.Kind, nil
}

// BindPattern always matches and binds the whole scrutinee to a local slot.
type BindPattern struct{ Idx int }

func (p BindPattern) match(_ *EvalCtx, v value.Value) (bool, func(*EvalCtx)) {
	return true, func(ctx *EvalCtx) { ctx.Locals.Set(p.Idx, v) }
}

// RecordFieldPattern constrains one field of an object scrutinee.
type RecordFieldPattern struct {
	Key       string
	Sub       Pattern
	BindIdx   int // -1 if the field value need not be bound
}

// RecordPattern matches an object whose fields all satisfy their
// sub-patterns; absent fields (beyond what sub-patterns require) are
// permitted unless Closed is true, in which case the object must have
// exactly the named fields and no others.
type RecordPattern struct {
	Fields []RecordFieldPattern
	Closed bool
}

func (p RecordPattern) match(ctx *EvalCtx, v value.Value) (bool, func(*EvalCtx)) {
	obj, ok := v.AsObject()
	if !ok {
		return false, nil
	}
	if p.Closed && len(obj) != len(p.Fields) {
		return false, nil
	}
	var binds []func(*EvalCtx)
	for _, f := range p.Fields {
		fv, present := obj[f.Key]
		if !present {
			return false, nil
		}
		ok, bind := f.Sub.match(ctx, fv)
		if !ok {
			return false, nil
		}
		if f.BindIdx >= 0 {
			idx := f.BindIdx
			val := fv
			binds = append(binds, func(c *EvalCtx) { c.Locals.Set(idx, val) })
		}
		if bind != nil {
			binds = append(binds, bind)
		}
	}
	return true, func(c *EvalCtx) {
		for _, b := range binds {
			b(c)
		}
	}
}

// ArrayElemPattern constrains one element of an array scrutinee by position.
type ArrayElemPattern struct {
	Index   int
	Sub     Pattern
	BindIdx int // -1 if unused
}

// ArrayPattern matches an array whose elements all satisfy their
// sub-patterns; Closed requires the array length to equal len(Elems)
// exactly, otherwise the array must merely be at least that long.
type ArrayPattern struct {
	Elems  []ArrayElemPattern
	Closed bool
}

func (p ArrayPattern) match(ctx *EvalCtx, v value.Value) (bool, func(*EvalCtx)) {
	arr, ok := v.AsArray()
	if !ok {
		return false, nil
	}
	if p.Closed && len(arr) != len(p.Elems) {
		return false, nil
	}
	var binds []func(*EvalCtx)
	for _, e := range p.Elems {
		if e.Index >= len(arr) {
			return false, nil
		}
		ok, bind := e.Sub.match(ctx, arr[e.Index])
		if !ok {
			return false, nil
		}
		if e.BindIdx >= 0 {
			idx := e.BindIdx
			val := arr[e.Index]
			binds = append(binds, func(c *EvalCtx) { c.Locals.Set(idx, val) })
		}
		if bind != nil {
			binds = append(binds, bind)
		}
	}
	return true, func(c *EvalCtx) {
		for _, b := range binds {
			b(c)
		}
	}
}
