// Package ast declares the expression tree evaluated by package eval.
//
// Trees are produced by a front end, usually package syn, and are already structurally valid.
// They are never modified by evaluation and can be evaluated any number of times.
package ast

import (
	"fmt"

	"github.com/smackem/redis-q-sub000/val"
)

// Pos is a source position. The zero value means unknown.
type Pos struct {
	Line, Col int
}

func (p Pos) Start() Pos { return p }

// Loc returns the position as line:col text.
func (p Pos) Loc() string {
	if p.Line == 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Expr is implemented by all expression nodes.
type Expr interface {
	Start() Pos
	expr()
}

type (
	// Lit is a constant value.
	Lit struct {
		Pos
		Val val.Value
	}
	// Ident resolves a name in the scope chain.
	Ident struct {
		Pos
		Name string
	}
	// Call invokes a registered function.
	Call struct {
		Pos
		Name string
		Args []Expr
	}
	// Binary applies an infix operator, including the short-circuit operators.
	Binary struct {
		Pos
		Op   val.Op
		L, R Expr
	}
	Unary struct {
		Pos
		Op val.Op
		X  Expr
	}
	// Cond is the ternary operator.
	Cond struct {
		Pos
		Test, Then, Else Expr
	}
	Index struct {
		Pos
		X, Idx Expr
	}
	// Field accesses a named tuple slot.
	Field struct {
		Pos
		X    Expr
		Name string
	}
	Throw struct {
		Pos
		X Expr
	}
	ListLit struct {
		Pos
		Elems []Expr
	}
	// TupleLit constructs a tuple. Shape is nil for tuples without names.
	TupleLit struct {
		Pos
		Elems []Expr
		Shape *val.Shape
	}
	// Let binds a name in the evaluating scope and returns the bound value.
	Let struct {
		Pos
		Name string
		X    Expr
	}
	// From is a query pipeline. The first clause is always a FromClause.
	// Eager queries are drained into a list, otherwise the result is a lazy sequence.
	From struct {
		Pos
		Clauses []Clause
		Select  Expr
		Eager   bool
	}
)

func (*Lit) expr()      {}
func (*Ident) expr()    {}
func (*Call) expr()     {}
func (*Binary) expr()   {}
func (*Unary) expr()    {}
func (*Cond) expr()     {}
func (*Index) expr()    {}
func (*Field) expr()    {}
func (*Throw) expr()    {}
func (*ListLit) expr()  {}
func (*TupleLit) expr() {}
func (*Let) expr()      {}
func (*From) expr()     {}

// Clause is implemented by the query pipeline clauses.
type Clause interface {
	Start() Pos
	clause()
}

type (
	// FromClause binds Name to each element of Src. Nested from clauses form a cross join.
	FromClause struct {
		Pos
		Name string
		Src  Expr
	}
	LetClause struct {
		Pos
		Name string
		X    Expr
	}
	WhereClause struct {
		Pos
		X Expr
	}
	// LimitClause yields the window [Offset, Offset+Count). A nil Count is unbounded and
	// a nil Offset is zero.
	LimitClause struct {
		Pos
		Count  Expr
		Offset Expr
	}
	OrderClause struct {
		Pos
		Key  Expr
		Desc bool
	}
	// GroupClause groups Val by Key and binds each group as tuple (key, values) to Into.
	GroupClause struct {
		Pos
		Val, Key Expr
		Into     string
	}
)

func (*FromClause) clause()  {}
func (*LetClause) clause()   {}
func (*WhereClause) clause() {}
func (*LimitClause) clause() {}
func (*OrderClause) clause() {}
func (*GroupClause) clause() {}

// GroupShape is the shape of the tuples bound by group clauses.
var GroupShape = &val.Shape{Names: []string{"key", "values"}}
