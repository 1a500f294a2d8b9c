// Package script implements the tree-walking expression interpreter that
// backs the Classifier and Grouper stages, ported from tremor-script's
// immutable-expression evaluator
// (original_source/tremor-script/src/interpreter/imut_expr.rs).
package script

import (
	"github.com/fluxcore/fluxcore/pkg/path"
	"github.com/fluxcore/fluxcore/pkg/value"
)

// Expr is any evaluable script expression node.
type Expr interface {
	eval(ctx *EvalCtx) (value.Value, error)
}

// Literal is a constant value.
type Literal struct{ Value value.Value }

// PathExpr resolves a path.Path against the event/meta/local/const roots.
type PathExpr struct{ Path path.Path }

// Present evaluates to true/false depending on whether Path resolves.
type Present struct{ Path path.Path }

// Field is one key/value entry of a Record literal. The key may itself be
// computed (script permits `"#{expr}": value` style keys via Key being an
// Expr that must evaluate to a string).
type Field struct {
	Key   Expr
	Value Expr
}

// Record is an object literal; fields evaluate left to right, later keys
// overwrite earlier ones (matching value.Object's last-wins semantics).
type Record struct{ Fields []Field }

// List is an array literal; elements evaluate left to right.
type List struct{ Elements []Expr }

// Invoke calls a built-in function by (module, name) with positional args,
// evaluated left to right. All built-ins are pure.
type Invoke struct {
	Module string
	Name   string
	Args   []Expr
}

// Local reads a declared local variable slot.
type Local struct{ Idx int }

// LocalAssign evaluates Value and binds it into local slot Idx, then
// yields the assigned value (script assignment is itself an expression).
type LocalAssign struct {
	Idx   int
	Value Expr
}

// UnaryOp applies a unary operator.
type UnaryOp struct {
	Op   string // "-", "!"
	Expr Expr
}

// BinaryOp applies a binary operator. And/Or short-circuit.
type BinaryOp struct {
	Op          string
	Left, Right Expr
}

// PatchOp is one operation of a Patch expression.
type PatchOp struct {
	Kind  PatchKind
	Key   string
	Value Expr // nil for Erase
}

// PatchKind tags a PatchOp variant, mirroring tremor-script's patch operations.
type PatchKind int

const (
	PatchInsert PatchKind = iota // fails if key already present
	PatchUpdate                  // fails if key absent
	PatchUpsert                  // insert or update
	PatchErase                   // remove key, tolerant of absence
	PatchMerge                   // recursive merge at key
	PatchCopy                    // copy one field to another key
	PatchMove                    // copy then erase source
	PatchDefault                 // set only if key absent
)

// Patch evaluates Target then applies Ops in order, producing a new object.
type Patch struct {
	Target Expr
	Ops    []PatchOp
	// CopyFrom names the source key for PatchCopy/PatchMove ops, keyed by
	// the op's position in Ops (only meaningful for those kinds).
	CopyFrom map[int]string
}

// Merge evaluates Target then recursively merges Source into it: null
// values in Source erase the corresponding key, objects merge recursively,
// anything else overwrites.
type Merge struct {
	Target Expr
	Source Expr
}

// MatchClause is one branch of a Match expression.
type MatchClause struct {
	Pattern Pattern
	Guard   Expr // nil if absent
	Body    Expr
}

// Match evaluates Target once, then tries each clause's pattern in order
// against it, taking the first clause whose pattern matches and whose
// optional guard (evaluated with any pattern bindings visible) is true.
type Match struct {
	Target  Expr
	Clauses []MatchClause
}

// Comprehension iterates Source (object or array). For arrays, ValueLocal
// receives each element and KeyLocal (if >= 0) receives the integer index;
// for objects, KeyLocal receives the field name and ValueLocal the field
// value. Guard, if non-nil, filters iterations. Body's results collect into
// an array for both array and object sources.
type Comprehension struct {
	Source     Expr
	KeyLocal   int // -1 if unused
	ValueLocal int
	Guard      Expr
	Body       Expr
}

// Pattern is a match-clause pattern.
type Pattern interface {
	match(ctx *EvalCtx, v value.Value) (bool, func(*EvalCtx))
}
