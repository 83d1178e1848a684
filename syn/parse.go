package syn

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/smackem/redis-q-sub000/ast"
	"github.com/smackem/redis-q-sub000/val"
)

// keywords cannot be used as identifiers.
var keywords = map[string]bool{
	"from": true, "in": true, "where": true, "let": true, "select": true, "orderby": true,
	"ascending": true, "descending": true, "group": true, "by": true, "into": true,
	"limit": true, "offset": true, "true": true, "false": true, "null": true, "throw": true,
	"match": true,
}

// Parse parses a single statement, either a top level let binding or an expression.
//
// A query on the right side of a top level let is marked eager, so that the bound value can be
// used more than once.
func Parse(src string) (ast.Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	var x ast.Expr
	if p.isKeyword("let") {
		x, err = p.letStmt()
	} else {
		x, err = p.expr()
	}
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.typ != tEOF {
		return nil, p.errf(t, "unexpected %s after expression", t)
	}
	return x, nil
}

// ParseExpr parses a single expression.
func ParseExpr(src string) (ast.Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.typ != tEOF {
		return nil, p.errf(t, "unexpected %s after expression", t)
	}
	return x, nil
}

type parser struct {
	toks []token
	i    int
}

func newParser(src string) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }
func (p *parser) peekN(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) take() token {
	t := p.toks[p.i]
	if t.typ != tEOF {
		p.i++
	}
	return t
}

func (p *parser) errf(t token, f string, args ...interface{}) error {
	return &Error{Pos: t.pos, Msg: fmt.Sprintf(f, args...)}
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.typ == tPunct && t.txt == s
}

func (p *parser) isKeyword(s string) bool {
	t := p.peek()
	return t.typ == tIdent && t.txt == s
}

func (p *parser) punct(s string) bool {
	if p.isPunct(s) {
		p.i++
		return true
	}
	return false
}

func (p *parser) keyword(s string) bool {
	if p.isKeyword(s) {
		p.i++
		return true
	}
	return false
}

func (p *parser) needPunct(s string) (token, error) {
	t := p.peek()
	if !p.punct(s) {
		return t, p.errf(t, "expected %q got %s", s, t)
	}
	return t, nil
}

func (p *parser) needKeyword(s string) error {
	if t := p.peek(); !p.keyword(s) {
		return p.errf(t, "expected %s got %s", s, t)
	}
	return nil
}

func (p *parser) ident() (token, error) {
	t := p.peek()
	if t.typ != tIdent || keywords[t.txt] {
		return t, p.errf(t, "expected identifier got %s", t)
	}
	p.i++
	return t, nil
}

func (p *parser) letStmt() (ast.Expr, error) {
	start := p.take()
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if _, err = p.needPunct("="); err != nil {
		return nil, err
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	if f, ok := x.(*ast.From); ok {
		f.Eager = true
	}
	return &ast.Let{Pos: start.pos, Name: name.txt, X: x}, nil
}

func (p *parser) expr() (ast.Expr, error) {
	if p.isKeyword("from") {
		return p.from()
	}
	x, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); p.punct("?") {
		then, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err = p.needPunct(":"); err != nil {
			return nil, err
		}
		els, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &ast.Cond{Pos: t.pos, Test: x, Then: then, Else: els}, nil
	}
	return x, nil
}

type binop struct {
	op    val.Op
	bp    int
	right bool
}

var binops = map[string]binop{
	"??":    {val.OpCoalesce, 10, true},
	"||":    {val.OpOr, 20, false},
	"&&":    {val.OpAnd, 30, false},
	"==":    {val.OpEq, 40, false},
	"!=":    {val.OpNe, 40, false},
	"<":     {val.OpLt, 40, false},
	"<=":    {val.OpLe, 40, false},
	">":     {val.OpGt, 40, false},
	">=":    {val.OpGe, 40, false},
	"=~":    {val.OpMatch, 40, false},
	"!~":    {val.OpNotMatch, 40, false},
	"match": {val.OpMatch, 40, false},
	"..":    {val.OpRange, 50, false},
	"+":     {val.OpAdd, 60, false},
	"-":     {val.OpSub, 60, false},
	"*":     {val.OpMul, 70, false},
	"/":     {val.OpDiv, 70, false},
	"%":     {val.OpMod, 70, false},
}

func (p *parser) infix() (binop, bool) {
	t := p.peek()
	if t.typ != tPunct && !(t.typ == tIdent && t.txt == "match") {
		return binop{}, false
	}
	b, ok := binops[t.txt]
	return b, ok
}

// binary parses operator expressions with a binding power above min.
func (p *parser) binary(min int) (ast.Expr, error) {
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		b, ok := p.infix()
		if !ok || b.bp <= min {
			return x, nil
		}
		t := p.take()
		next := b.bp
		if b.right {
			next--
		}
		var y ast.Expr
		if p.isKeyword("from") {
			y, err = p.from()
		} else {
			y, err = p.binary(next)
		}
		if err != nil {
			return nil, err
		}
		x = &ast.Binary{Pos: t.pos, Op: b.op, L: x, R: y}
	}
}

var unops = map[string]val.Op{
	"-": val.OpNeg,
	"+": val.OpPos,
	"!": val.OpNot,
	"~": val.OpBitNot,
}

func (p *parser) unary() (ast.Expr, error) {
	t := p.peek()
	if op, ok := unops[t.txt]; ok && t.typ == tPunct {
		p.i++
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if l, ok := x.(*ast.Lit); ok && op == val.OpNeg {
			// fold negative number literals
			switch v := l.Val.(type) {
			case val.Int:
				return &ast.Lit{Pos: t.pos, Val: -v}, nil
			case val.Real:
				return &ast.Lit{Pos: t.pos, Val: -v}, nil
			}
		}
		return &ast.Unary{Pos: t.pos, Op: op, X: x}, nil
	}
	if p.keyword("throw") {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.Throw{Pos: t.pos, X: x}, nil
	}
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	return p.postfix(x)
}

func (p *parser) postfix(x ast.Expr) (ast.Expr, error) {
	for {
		t := p.peek()
		switch {
		case p.punct("["):
			idx, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err = p.needPunct("]"); err != nil {
				return nil, err
			}
			x = &ast.Index{Pos: t.pos, X: x, Idx: idx}
		case p.punct("."):
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			x = &ast.Field{Pos: t.pos, X: x, Name: name.txt}
		case p.isPunct("("):
			id, ok := x.(*ast.Ident)
			if !ok {
				return nil, p.errf(t, "only named functions can be called")
			}
			p.i++
			args, err := p.list(")")
			if err != nil {
				return nil, err
			}
			x = &ast.Call{Pos: id.Pos, Name: id.Name, Args: args}
		default:
			return x, nil
		}
	}
}

// list parses comma separated expressions up to and including the closing token.
func (p *parser) list(end string) ([]ast.Expr, error) {
	var res []ast.Expr
	if p.punct(end) {
		return res, nil
	}
	for {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		res = append(res, x)
		if p.punct(end) {
			return res, nil
		}
		if _, err = p.needPunct(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) primary() (ast.Expr, error) {
	t := p.take()
	switch t.typ {
	case tInt:
		n, err := strconv.ParseInt(t.txt, 10, 64)
		if err != nil {
			return nil, p.errf(t, "invalid integer %s", t.txt)
		}
		return &ast.Lit{Pos: t.pos, Val: val.Int(n)}, nil
	case tReal:
		f, err := strconv.ParseFloat(t.txt, 64)
		if err != nil {
			return nil, p.errf(t, "invalid real %s", t.txt)
		}
		return &ast.Lit{Pos: t.pos, Val: val.Real(f)}, nil
	case tStr:
		return &ast.Lit{Pos: t.pos, Val: val.Str(t.txt)}, nil
	case tChar:
		r, _ := utf8.DecodeRuneInString(t.txt)
		return &ast.Lit{Pos: t.pos, Val: val.Char(r)}, nil
	case tIdent:
		switch t.txt {
		case "true":
			return &ast.Lit{Pos: t.pos, Val: val.True}, nil
		case "false":
			return &ast.Lit{Pos: t.pos, Val: val.False}, nil
		case "null":
			return &ast.Lit{Pos: t.pos, Val: val.Null{}}, nil
		case "from":
			p.i--
			return p.from()
		}
		if keywords[t.txt] {
			return nil, p.errf(t, "unexpected keyword %s", t.txt)
		}
		return &ast.Ident{Pos: t.pos, Name: t.txt}, nil
	case tPunct:
		switch t.txt {
		case "(":
			return p.paren(t)
		case "[":
			elems, err := p.list("]")
			if err != nil {
				return nil, err
			}
			return &ast.ListLit{Pos: t.pos, Elems: elems}, nil
		}
	}
	return nil, p.errf(t, "unexpected %s", t)
}

// paren parses a parenthesized expression or a tuple literal with optionally named items.
func (p *parser) paren(start token) (ast.Expr, error) {
	var (
		elems []ast.Expr
		names []string
		named bool
	)
	for {
		name := ""
		if t := p.peek(); t.typ == tIdent && !keywords[t.txt] {
			if n := p.peekN(1); n.typ == tPunct && n.txt == ":" {
				p.i += 2
				name, named = t.txt, true
			}
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, x)
		names = append(names, name)
		if p.punct(")") {
			break
		}
		if _, err = p.needPunct(","); err != nil {
			return nil, err
		}
	}
	if len(elems) == 1 {
		if named {
			return nil, p.errf(start, "tuple needs at least two items")
		}
		return elems[0], nil
	}
	var shape *val.Shape
	if named {
		shape = &val.Shape{Names: names}
	}
	return &ast.TupleLit{Pos: start.pos, Elems: elems, Shape: shape}, nil
}

func (p *parser) from() (ast.Expr, error) {
	start := p.peek()
	head, err := p.fromClause()
	if err != nil {
		return nil, err
	}
	res := &ast.From{Pos: start.pos, Clauses: []ast.Clause{head}}
	for {
		t := p.peek()
		if t.typ != tIdent {
			return nil, p.errf(t, "expected query clause or select got %s", t)
		}
		var c ast.Clause
		switch t.txt {
		case "select":
			p.i++
			res.Select, err = p.expr()
			if err != nil {
				return nil, err
			}
			return res, nil
		case "from":
			c, err = p.fromClause()
		case "let":
			p.i++
			c, err = p.letClause(t)
		case "where":
			p.i++
			var x ast.Expr
			x, err = p.expr()
			c = &ast.WhereClause{Pos: t.pos, X: x}
		case "limit":
			p.i++
			c, err = p.limitClause(t)
		case "orderby":
			p.i++
			c, err = p.orderClause(t)
		case "group":
			p.i++
			c, err = p.groupClause(t)
		default:
			return nil, p.errf(t, "expected query clause or select got %s", t)
		}
		if err != nil {
			return nil, err
		}
		res.Clauses = append(res.Clauses, c)
	}
}

func (p *parser) fromClause() (*ast.FromClause, error) {
	t := p.peek()
	if err := p.needKeyword("from"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err = p.needKeyword("in"); err != nil {
		return nil, err
	}
	src, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ast.FromClause{Pos: t.pos, Name: name.txt, Src: src}, nil
}

func (p *parser) letClause(t token) (ast.Clause, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if _, err = p.needPunct("="); err != nil {
		return nil, err
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ast.LetClause{Pos: t.pos, Name: name.txt, X: x}, nil
}

func (p *parser) limitClause(t token) (ast.Clause, error) {
	c := &ast.LimitClause{Pos: t.pos}
	if !p.keyword("all") {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		c.Count = x
	}
	if p.keyword("offset") {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		c.Offset = x
	}
	return c, nil
}

func (p *parser) orderClause(t token) (ast.Clause, error) {
	key, err := p.expr()
	if err != nil {
		return nil, err
	}
	c := &ast.OrderClause{Pos: t.pos, Key: key}
	if p.keyword("descending") {
		c.Desc = true
	} else {
		p.keyword("ascending")
	}
	return c, nil
}

func (p *parser) groupClause(t token) (ast.Clause, error) {
	v, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err = p.needKeyword("by"); err != nil {
		return nil, err
	}
	key, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err = p.needKeyword("into"); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	return &ast.GroupClause{Pos: t.pos, Val: v, Key: key, Into: name.txt}, nil
}
