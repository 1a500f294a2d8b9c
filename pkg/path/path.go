// Package path implements segmented path resolution over value.Value trees,
// ported from tremor-script's present()/resolve() walk
// (original_source/tremor-script/src/interpreter/imut_expr.rs), including
// sub-range tracking for chained range selectors.
package path

import (
	"fmt"

	"github.com/fluxcore/fluxcore/pkg/value"
)

// RootKind selects which document a Path is rooted at.
type RootKind int

const (
	RootLocal RootKind = iota
	RootConst
	RootMeta
	RootEvent
)

// Segment is one step of a Path.
type Segment struct {
	Kind SegmentKind
	// Id is used by SegID.
	Id string
	// Idx is used by SegIdx.
	Idx int64
	// Element is used by SegElement; it must evaluate to an I64 or String.
	Element func() (value.Value, error)
	// RangeStart/RangeEnd are used by SegRange; both must evaluate to
	// non-negative integers.
	RangeStart func() (value.Value, error)
	RangeEnd   func() (value.Value, error)
}

// SegmentKind tags a Segment variant.
type SegmentKind int

const (
	SegID SegmentKind = iota
	SegIdx
	SegElement
	SegRange
)

// Path is a root plus an ordered list of segments.
type Path struct {
	Root     RootKind
	LocalIdx int
	ConstIdx int
	Segments []Segment
}

// BadKeyError reports a missing object field, carrying sibling keys for
// diagnostics as spec.md §4.2 requires.
type BadKeyError struct {
	Key        string
	Candidates []string
}

func (e *BadKeyError) Error() string {
	return fmt.Sprintf("path: bad key %q (known keys: %v)", e.Key, e.Candidates)
}

// BadIndexError reports an out-of-range array index.
type BadIndexError struct {
	Index int64
	Len   int
}

func (e *BadIndexError) Error() string {
	return fmt.Sprintf("path: index %d out of range (len=%d)", e.Index, e.Len)
}

// TypeConflictError reports a selector applied to an incompatible value kind.
type TypeConflictError struct {
	Expected string
	Got      value.Kind
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf("path: type conflict: expected %s, got %s", e.Expected, e.Got)
}

// Roots supplies the documents a Path may be rooted at. LocalGet returns
// (value, initialized, inBounds) matching LocalStack.Get semantics: initialized=false
// signals an uninitialized-but-declared slot (bad-key, not out-of-bounds).
type Roots struct {
	LocalGet func(idx int) (value.Value, bool, bool) // value, initialized, inBounds
	Const    func(idx int) (value.Value, bool)
	Meta     value.Value
	Event    value.Value
}

type subrange struct {
	start, end int
	active     bool
}

// Resolve walks path against the given roots and returns the resolved value,
// or an error (BadKeyError/BadIndexError/TypeConflictError) if the walk fails.
func Resolve(p Path, r Roots) (value.Value, error) {
	cur, err := rootValue(p, r)
	if err != nil {
		return value.Value{}, err
	}
	var sr subrange
	for _, seg := range p.Segments {
		cur, sr, err = step(cur, sr, seg, true)
		if err != nil {
			return value.Value{}, err
		}
	}
	return cur, nil
}

// Present reports whether path resolves successfully, without surfacing the
// specific error.
func Present(p Path, r Roots) bool {
	cur, err := rootValue(p, r)
	if err != nil {
		return false
	}
	var sr subrange
	for _, seg := range p.Segments {
		var perr error
		cur, sr, perr = step(cur, sr, seg, false)
		if perr != nil {
			return false
		}
	}
	return true
}

func rootValue(p Path, r Roots) (value.Value, error) {
	switch p.Root {
	case RootLocal:
		v, initialized, inBounds := r.LocalGet(p.LocalIdx)
		if !inBounds {
			return value.Value{}, fmt.Errorf("path: local slot %d out of bounds (invariant violation)", p.LocalIdx)
		}
		if !initialized {
			return value.Value{}, &BadKeyError{Key: "<uninitialized local>"}
		}
		return v, nil
	case RootConst:
		v, ok := r.Const(p.ConstIdx)
		if !ok {
			return value.Value{}, fmt.Errorf("path: const slot %d out of bounds (invariant violation)", p.ConstIdx)
		}
		return v, nil
	case RootMeta:
		return r.Meta, nil
	case RootEvent:
		return r.Event, nil
	default:
		return value.Value{}, fmt.Errorf("path: unknown root kind %d", p.Root)
	}
}

// step resolves one segment against cur/sr. When strict is true, failures
// are surfaced as the specific resolve error; when false (Present mode),
// any failure is reported uniformly via a sentinel error (caller only checks
// err != nil).
func step(cur value.Value, sr subrange, seg Segment, strict bool) (value.Value, subrange, error) {
	fail := func(err error) (value.Value, subrange, error) {
		if strict {
			return value.Value{}, subrange{}, err
		}
		return value.Value{}, subrange{}, errAbsent
	}

	switch seg.Kind {
	case SegID:
		obj, ok := cur.AsObject()
		if !ok {
			return fail(&TypeConflictError{Expected: "object", Got: cur.Kind()})
		}
		v, ok := obj[seg.Id]
		if !ok {
			return fail(&BadKeyError{Key: seg.Id, Candidates: cur.ObjectKeys()})
		}
		return v, subrange{}, nil

	case SegIdx:
		arr, ok := cur.AsArray()
		if !ok {
			return fail(&TypeConflictError{Expected: "array", Got: cur.Kind()})
		}
		start, end := 0, len(arr)
		if sr.active {
			start, end = sr.start, sr.end
		}
		idx := int(seg.Idx) + start
		if idx >= end || idx < 0 || idx >= len(arr) {
			return fail(&BadIndexError{Index: seg.Idx, Len: end - start})
		}
		return arr[idx], subrange{}, nil

	case SegElement:
		ev, err := seg.Element()
		if err != nil {
			return fail(err)
		}
		if arr, ok := cur.AsArray(); ok {
			idx, ok := ev.AsI64()
			if !ok {
				return fail(&TypeConflictError{Expected: "i64 index", Got: ev.Kind()})
			}
			start, end := 0, len(arr)
			if sr.active {
				start, end = sr.start, sr.end
			}
			i := int(idx) + start
			if i >= end || i < 0 || i >= len(arr) {
				return fail(&BadIndexError{Index: idx, Len: end - start})
			}
			return arr[i], subrange{}, nil
		}
		if obj, ok := cur.AsObject(); ok {
			key, ok := ev.AsStr()
			if !ok {
				return fail(&TypeConflictError{Expected: "string key", Got: ev.Kind()})
			}
			v, ok := obj[key]
			if !ok {
				return fail(&BadKeyError{Key: key, Candidates: cur.ObjectKeys()})
			}
			return v, subrange{}, nil
		}
		return fail(&TypeConflictError{Expected: "array or object", Got: cur.Kind()})

	case SegRange:
		arr, ok := cur.AsArray()
		if !ok {
			return fail(&TypeConflictError{Expected: "array", Got: cur.Kind()})
		}
		start, end := 0, len(arr)
		if sr.active {
			start, end = sr.start, sr.end
		}
		sv, err := seg.RangeStart()
		if err != nil {
			return fail(err)
		}
		su, ok := sv.AsU64()
		if !ok {
			return fail(&TypeConflictError{Expected: "unsigned range start", Got: sv.Kind()})
		}
		ev, err := seg.RangeEnd()
		if err != nil {
			return fail(err)
		}
		eu, ok := ev.AsU64()
		if !ok {
			return fail(&TypeConflictError{Expected: "unsigned range end", Got: ev.Kind()})
		}
		rs := int(su) + start
		re := int(eu) + start
		if re > end || rs > re {
			return fail(&BadIndexError{Index: int64(re), Len: end - start})
		}
		// cur becomes the sliced array itself, so the subrange passed to
		// the next segment is rebased to 0 — it must not also carry the
		// original array's offset, or that offset would be applied twice.
		sliced := value.Array(arr[rs:re]...)
		return sliced, subrange{start: 0, end: re - rs, active: true}, nil

	default:
		return fail(fmt.Errorf("path: unknown segment kind %d", seg.Kind))
	}
}

var errAbsent = fmt.Errorf("path: absent")
