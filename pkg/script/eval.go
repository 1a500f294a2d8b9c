package script

import (
	"fmt"

	"github.com/fluxcore/fluxcore/pkg/path"
	"github.com/fluxcore/fluxcore/pkg/value"
)

// LocalStack holds declared local variable slots for one script invocation.
// Slots are pre-sized at parse time (script.md locals are statically
// counted), matching tremor-script's LocalStack indexing into a fixed Vec.
type LocalStack struct {
	slots []value.Value
	init  []bool
}

// NewLocalStack allocates n uninitialized local slots.
func NewLocalStack(n int) *LocalStack {
	return &LocalStack{slots: make([]value.Value, n), init: make([]bool, n)}
}

// Get returns (value, initialized, inBounds), matching path.Roots.LocalGet.
func (l *LocalStack) Get(idx int) (value.Value, bool, bool) {
	if idx < 0 || idx >= len(l.slots) {
		return value.Value{}, false, false
	}
	return l.slots[idx], l.init[idx], true
}

// Set assigns a local slot, marking it initialized.
func (l *LocalStack) Set(idx int, v value.Value) {
	if idx < 0 || idx >= len(l.slots) {
		return
	}
	l.slots[idx] = v
	l.init[idx] = true
}

// EvalCtx carries the roots (event/meta/consts) and mutable locals for one
// evaluation of an expression tree. Built-ins are resolved through Builtins.
type EvalCtx struct {
	Event     value.Value
	Meta      value.Value
	Consts    []value.Value
	Locals    *LocalStack
	Builtins  *Registry
	MaxDepth  int
	depth     int
}

func (c *EvalCtx) roots() path.Roots {
	return path.Roots{
		LocalGet: c.Locals.Get,
		Const: func(idx int) (value.Value, bool) {
			if idx < 0 || idx >= len(c.Consts) {
				return value.Value{}, false
			}
			return c.Consts[idx], true
		},
		Meta:  c.Meta,
		Event: c.Event,
	}
}

// ErrDepthExceeded is returned when expression evaluation recurses past
// EvalCtx.MaxDepth, guarding against unbounded recursion in comprehensions
// and nested patches/merges.
var ErrDepthExceeded = fmt.Errorf("script: max evaluation depth exceeded")

// Eval evaluates e, tracking and restoring recursion depth.
func Eval(ctx *EvalCtx, e Expr) (value.Value, error) {
	if ctx.MaxDepth > 0 && ctx.depth >= ctx.MaxDepth {
		return value.Value{}, ErrDepthExceeded
	}
	ctx.depth++
	defer func() { ctx.depth-- }()
	return e.eval(ctx)
}

func (l Literal) eval(_ *EvalCtx) (value.Value, error) { return l.Value, nil }

func (p PathExpr) eval(ctx *EvalCtx) (value.Value, error) {
	return path.Resolve(p.Path, ctx.roots())
}

func (p Present) eval(ctx *EvalCtx) (value.Value, error) {
	return value.Bool(path.Present(p.Path, ctx.roots())), nil
}

func (r Record) eval(ctx *EvalCtx) (value.Value, error) {
	pairs := make([]value.Pair, 0, len(r.Fields))
	for _, f := range r.Fields {
		kv, err := Eval(ctx, f.Key)
		if err != nil {
			return value.Value{}, err
		}
		key, ok := kv.AsStr()
		if !ok {
			return value.Value{}, fmt.Errorf("script: record key must be a string, got %s", kv.Kind())
		}
		vv, err := Eval(ctx, f.Value)
		if err != nil {
			return value.Value{}, err
		}
		pairs = append(pairs, value.P(key, vv))
	}
	return value.Object(pairs...), nil
}

func (l List) eval(ctx *EvalCtx) (value.Value, error) {
	elems := make([]value.Value, len(l.Elements))
	for i, e := range l.Elements {
		v, err := Eval(ctx, e)
		if err != nil {
			return value.Value{}, err
		}
		elems[i] = v
	}
	return value.Array(elems...), nil
}

func (iv Invoke) eval(ctx *EvalCtx) (value.Value, error) {
	fn, ok := ctx.Builtins.Lookup(iv.Module, iv.Name)
	if !ok {
		return value.Value{}, fmt.Errorf("script: unknown function %s::%s", iv.Module, iv.Name)
	}
	args := make([]value.Value, len(iv.Args))
	for i, a := range iv.Args {
		v, err := Eval(ctx, a)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}
	return fn(args)
}

func (l Local) eval(ctx *EvalCtx) (value.Value, error) {
	v, init, inBounds := ctx.Locals.Get(l.Idx)
	if !inBounds {
		return value.Value{}, fmt.Errorf("script: local slot %d out of bounds", l.Idx)
	}
	if !init {
		return value.Value{}, fmt.Errorf("script: local slot %d read before assignment", l.Idx)
	}
	return v, nil
}

func (a LocalAssign) eval(ctx *EvalCtx) (value.Value, error) {
	v, err := Eval(ctx, a.Value)
	if err != nil {
		return value.Value{}, err
	}
	ctx.Locals.Set(a.Idx, v)
	return v, nil
}

func (u UnaryOp) eval(ctx *EvalCtx) (value.Value, error) {
	v, err := Eval(ctx, u.Expr)
	if err != nil {
		return value.Value{}, err
	}
	switch u.Op {
	case "-":
		if i, ok := v.AsI64(); ok {
			return value.I64(-i), nil
		}
		if f, ok := v.AsF64(); ok {
			return value.F64(-f), nil
		}
		return value.Value{}, fmt.Errorf("script: unary - on non-numeric %s", v.Kind())
	case "!":
		b, ok := v.AsBool()
		if !ok {
			return value.Value{}, fmt.Errorf("script: unary ! on non-bool %s", v.Kind())
		}
		return value.Bool(!b), nil
	default:
		return value.Value{}, fmt.Errorf("script: unknown unary operator %q", u.Op)
	}
}

func (b BinaryOp) eval(ctx *EvalCtx) (value.Value, error) {
	if b.Op == "and" {
		lv, err := Eval(ctx, b.Left)
		if err != nil {
			return value.Value{}, err
		}
		lb, ok := lv.AsBool()
		if !ok {
			return value.Value{}, fmt.Errorf("script: 'and' left side not bool")
		}
		if !lb {
			return value.Bool(false), nil
		}
		rv, err := Eval(ctx, b.Right)
		if err != nil {
			return value.Value{}, err
		}
		rb, ok := rv.AsBool()
		if !ok {
			return value.Value{}, fmt.Errorf("script: 'and' right side not bool")
		}
		return value.Bool(rb), nil
	}
	if b.Op == "or" {
		lv, err := Eval(ctx, b.Left)
		if err != nil {
			return value.Value{}, err
		}
		lb, ok := lv.AsBool()
		if !ok {
			return value.Value{}, fmt.Errorf("script: 'or' left side not bool")
		}
		if lb {
			return value.Bool(true), nil
		}
		rv, err := Eval(ctx, b.Right)
		if err != nil {
			return value.Value{}, err
		}
		rb, ok := rv.AsBool()
		if !ok {
			return value.Value{}, fmt.Errorf("script: 'or' right side not bool")
		}
		return value.Bool(rb), nil
	}

	lv, err := Eval(ctx, b.Left)
	if err != nil {
		return value.Value{}, err
	}
	rv, err := Eval(ctx, b.Right)
	if err != nil {
		return value.Value{}, err
	}
	return applyBinary(b.Op, lv, rv)
}

func applyBinary(op string, lv, rv value.Value) (value.Value, error) {
	switch op {
	case "==":
		return value.Bool(value.Equal(lv, rv)), nil
	case "!=":
		return value.Bool(!value.Equal(lv, rv)), nil
	}

	if lv.Kind() == value.KindI64 && rv.Kind() == value.KindI64 {
		li, _ := lv.AsI64()
		ri, _ := rv.AsI64()
		switch op {
		case "+":
			return value.I64(li + ri), nil
		case "-":
			return value.I64(li - ri), nil
		case "*":
			return value.I64(li * ri), nil
		case "/":
			if ri == 0 {
				return value.Value{}, fmt.Errorf("script: integer division by zero")
			}
			return value.I64(li / ri), nil
		case "%":
			if ri == 0 {
				return value.Value{}, fmt.Errorf("script: integer modulo by zero")
			}
			return value.I64(li % ri), nil
		case "<":
			return value.Bool(li < ri), nil
		case "<=":
			return value.Bool(li <= ri), nil
		case ">":
			return value.Bool(li > ri), nil
		case ">=":
			return value.Bool(li >= ri), nil
		}
	}

	if numeric(lv) && numeric(rv) {
		lf := asF64(lv)
		rf := asF64(rv)
		switch op {
		case "+":
			return value.F64(lf + rf), nil
		case "-":
			return value.F64(lf - rf), nil
		case "*":
			return value.F64(lf * rf), nil
		case "/":
			return value.F64(lf / rf), nil
		case "<":
			return value.Bool(lf < rf), nil
		case "<=":
			return value.Bool(lf <= rf), nil
		case ">":
			return value.Bool(lf > rf), nil
		case ">=":
			return value.Bool(lf >= rf), nil
		}
	}

	if op == "+" {
		ls, lok := lv.AsStr()
		rs, rok := rv.AsStr()
		if lok && rok {
			return value.String(ls + rs), nil
		}
	}

	return value.Value{}, fmt.Errorf("script: binary operator %q not defined for %s %s", op, lv.Kind(), rv.Kind())
}

func numeric(v value.Value) bool {
	return v.Kind() == value.KindI64 || v.Kind() == value.KindF64
}

func asF64(v value.Value) float64 {
	if f, ok := v.AsF64(); ok {
		return f
	}
	i, _ := v.AsI64()
	return float64(i)
}

func (p Patch) eval(ctx *EvalCtx) (value.Value, error) {
	target, err := Eval(ctx, p.Target)
	if err != nil {
		return value.Value{}, err
	}
	if target.IsNull() {
		target = value.Object()
	}
	if target.Kind() != value.KindObject {
		return value.Value{}, fmt.Errorf("script: patch target must be an object, got %s", target.Kind())
	}
	for i, op := range p.Ops {
		switch op.Kind {
		case PatchInsert:
			if _, present := target.Get(op.Key); present {
				return value.Value{}, fmt.Errorf("script: patch insert: key %q already present", op.Key)
			}
			v, err := Eval(ctx, op.Value)
			if err != nil {
				return value.Value{}, err
			}
			target = target.WithField(op.Key, v)
		case PatchUpdate:
			if _, present := target.Get(op.Key); !present {
				return value.Value{}, fmt.Errorf("script: patch update: key %q absent", op.Key)
			}
			v, err := Eval(ctx, op.Value)
			if err != nil {
				return value.Value{}, err
			}
			target = target.WithField(op.Key, v)
		case PatchUpsert:
			v, err := Eval(ctx, op.Value)
			if err != nil {
				return value.Value{}, err
			}
			target = target.WithField(op.Key, v)
		case PatchErase:
			target = target.WithoutField(op.Key)
		case PatchMerge:
			cur, _ := target.Get(op.Key)
			src, err := Eval(ctx, op.Value)
			if err != nil {
				return value.Value{}, err
			}
			target = target.WithField(op.Key, mergeValues(cur, src))
		case PatchCopy:
			from := p.CopyFrom[i]
			v, present := target.Get(from)
			if !present {
				return value.Value{}, fmt.Errorf("script: patch copy: source key %q absent", from)
			}
			target = target.WithField(op.Key, v)
		case PatchMove:
			from := p.CopyFrom[i]
			v, present := target.Get(from)
			if !present {
				return value.Value{}, fmt.Errorf("script: patch move: source key %q absent", from)
			}
			target = target.WithoutField(from).WithField(op.Key, v)
		case PatchDefault:
			if _, present := target.Get(op.Key); !present {
				v, err := Eval(ctx, op.Value)
				if err != nil {
					return value.Value{}, err
				}
				target = target.WithField(op.Key, v)
			}
		default:
			return value.Value{}, fmt.Errorf("script: unknown patch op kind %d", op.Kind)
		}
	}
	return target, nil
}

func (m Merge) eval(ctx *EvalCtx) (value.Value, error) {
	target, err := Eval(ctx, m.Target)
	if err != nil {
		return value.Value{}, err
	}
	src, err := Eval(ctx, m.Source)
	if err != nil {
		return value.Value{}, err
	}
	return mergeValues(target, src), nil
}

// mergeValues recursively merges src into target: a null field in src
// erases the corresponding target field, nested objects merge recursively,
// and any other value overwrites, mirroring tremor-script's merge semantics.
func mergeValues(target, src value.Value) value.Value {
	if src.Kind() != value.KindObject {
		return src
	}
	if target.Kind() != value.KindObject {
		target = value.Object()
	}
	out := target
	for _, k := range src.ObjectKeys() {
		sv, _ := src.Get(k)
		if sv.IsNull() {
			out = out.WithoutField(k)
			continue
		}
		if sv.Kind() == value.KindObject {
			cur, _ := out.Get(k)
			out = out.WithField(k, mergeValues(cur, sv))
			continue
		}
		out = out.WithField(k, sv)
	}
	return out
}

func (m Match) eval(ctx *EvalCtx) (value.Value, error) {
	target, err := Eval(ctx, m.Target)
	if err != nil {
		return value.Value{}, err
	}
	for _, clause := range m.Clauses {
		ok, bind := clause.Pattern.match(ctx, target)
		if !ok {
			continue
		}
		if bind != nil {
			bind(ctx)
		}
		if clause.Guard != nil {
			gv, err := Eval(ctx, clause.Guard)
			if err != nil {
				return value.Value{}, err
			}
			gb, ok := gv.AsBool()
			if !ok || !gb {
				continue
			}
		}
		return Eval(ctx, clause.Body)
	}
	return value.Value{}, fmt.Errorf("script: match: no clause matched")
}

func (c Comprehension) eval(ctx *EvalCtx) (value.Value, error) {
	src, err := Eval(ctx, c.Source)
	if err != nil {
		return value.Value{}, err
	}
	switch src.Kind() {
	case value.KindArray:
		arr, _ := src.AsArray()
		var out []value.Value
		for i, elem := range arr {
			if c.KeyLocal >= 0 {
				ctx.Locals.Set(c.KeyLocal, value.I64(int64(i)))
			}
			ctx.Locals.Set(c.ValueLocal, elem)
			if c.Guard != nil {
				gv, err := Eval(ctx, c.Guard)
				if err != nil {
					return value.Value{}, err
				}
				if gb, ok := gv.AsBool(); !ok || !gb {
					continue
				}
			}
			bv, err := Eval(ctx, c.Body)
			if err != nil {
				return value.Value{}, err
			}
			out = append(out, bv)
		}
		return value.Array(out...), nil
	case value.KindObject:
		obj, _ := src.AsObject()
		var out []value.Value
		for _, k := range src.ObjectKeys() {
			v := obj[k]
			if c.KeyLocal >= 0 {
				ctx.Locals.Set(c.KeyLocal, value.String(k))
			}
			ctx.Locals.Set(c.ValueLocal, v)
			if c.Guard != nil {
				gv, err := Eval(ctx, c.Guard)
				if err != nil {
					return value.Value{}, err
				}
				if gb, ok := gv.AsBool(); !ok || !gb {
					continue
				}
			}
			bv, err := Eval(ctx, c.Body)
			if err != nil {
				return value.Value{}, err
			}
			out = append(out, bv)
		}
		return value.Array(out...), nil
	default:
		return value.Value{}, fmt.Errorf("script: comprehension source must be array or object, got %s", src.Kind())
	}
}
