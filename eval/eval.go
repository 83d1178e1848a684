// Package eval evaluates expression trees against a scope chain.
//
// Evaluation is single threaded and cooperative. It only suspends when calling the data source
// or pulling the next element of a sequence, and checks the context at each of these points.
// Evaluation fails with either a *RuntimeError or a *Cancelled error.
package eval

import (
	"context"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/ast"
	"github.com/smackem/redis-q-sub000/val"
)

// Evaluate evaluates x in env and returns the resulting value.
//
// Query expressions return lazy sequences unless marked eager. The sequence still reads from
// env and the data source and must be consumed before they are discarded.
func Evaluate(ctx context.Context, x ast.Expr, env *Env) (res val.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, errorf(x.Start(), "internal failure: %v", r)
		}
	}()
	res, err = eval(ctx, x, env)
	if err != nil {
		return nil, wrap(x.Start(), err)
	}
	return res, nil
}

// Collect reads the list, range or sequence v into a list, limited by the row cap of env.
func Collect(ctx context.Context, env *Env, v val.Value) (val.List, error) {
	l, err := val.Materialize(ctx, v, env.MaxRows())
	if err != nil {
		return nil, wrap(ast.Pos{}, err)
	}
	return l, nil
}

func eval(ctx context.Context, x ast.Expr, env *Env) (val.Value, error) {
	switch x := x.(type) {
	case *ast.Lit:
		return x.Val, nil
	case *ast.Ident:
		v, err := env.Resolve(x.Name)
		if err != nil {
			return nil, wrap(x.Pos, err)
		}
		return v, nil
	case *ast.Call:
		return evalCall(ctx, x, env)
	case *ast.Binary:
		return evalBinary(ctx, x, env)
	case *ast.Unary:
		a, err := eval(ctx, x.X, env)
		if err != nil {
			return nil, err
		}
		v, err := val.Unary(x.Op, a)
		return v, wrap(x.Pos, err)
	case *ast.Cond:
		t, err := evalTruth(ctx, x.Test, env)
		if err != nil {
			return nil, err
		}
		if t {
			return eval(ctx, x.Then, env)
		}
		return eval(ctx, x.Else, env)
	case *ast.Index:
		a, err := eval(ctx, x.X, env)
		if err != nil {
			return nil, err
		}
		i, err := eval(ctx, x.Idx, env)
		if err != nil {
			return nil, err
		}
		v, err := subscript(a, i)
		return v, wrap(x.Pos, err)
	case *ast.Field:
		a, err := eval(ctx, x.X, env)
		if err != nil {
			return nil, err
		}
		t, ok := a.(*val.Tuple)
		if !ok {
			return nil, errorf(x.Pos, "field %s of %s value", x.Name, a.Kind())
		}
		v, ok := t.Field(x.Name)
		if !ok {
			return nil, errorf(x.Pos, "tuple has no field %s", x.Name)
		}
		return v, nil
	case *ast.Throw:
		v, err := eval(ctx, x.X, env)
		if err != nil {
			return nil, err
		}
		return nil, &RuntimeError{Pos: x.Pos, Err: errors.New(val.String(v)), Thrown: v}
	case *ast.ListLit:
		res := make(val.List, 0, len(x.Elems))
		for _, el := range x.Elems {
			v, err := eval(ctx, el, env)
			if err != nil {
				return nil, err
			}
			res = append(res, v)
		}
		return res, nil
	case *ast.TupleLit:
		vals := make([]val.Value, 0, len(x.Elems))
		for _, el := range x.Elems {
			v, err := eval(ctx, el, env)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		t, err := val.NewTuple(x.Shape, vals...)
		if err != nil {
			return nil, wrap(x.Pos, err)
		}
		return t, nil
	case *ast.Let:
		v, err := eval(ctx, x.X, env)
		if err != nil {
			return nil, err
		}
		env.Bind(x.Name, v)
		return v, nil
	case *ast.From:
		return evalFrom(ctx, x, env)
	}
	return nil, errorf(x.Start(), "unexpected expression %T", x)
}

func evalTruth(ctx context.Context, x ast.Expr, env *Env) (bool, error) {
	v, err := eval(ctx, x, env)
	if err != nil {
		return false, err
	}
	t, err := val.Truth(v)
	return t, wrap(x.Start(), err)
}

func evalCall(ctx context.Context, x *ast.Call, env *Env) (val.Value, error) {
	f, err := env.Registry().Lookup(x.Name, len(x.Args))
	if err != nil {
		return nil, wrap(x.Pos, err)
	}
	args := make([]val.Value, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := eval(ctx, a, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	if err := ctx.Err(); err != nil {
		return nil, &Cancelled{Err: err}
	}
	res, err := f(ctx, env, args)
	if err != nil {
		if normalized(err) {
			return nil, err
		}
		return nil, wrap(x.Pos, errors.WithMessage(err, x.Name))
	}
	if res == nil {
		return val.Null{}, nil
	}
	return res, nil
}

func evalBinary(ctx context.Context, x *ast.Binary, env *Env) (val.Value, error) {
	switch x.Op {
	case val.OpOr, val.OpAnd:
		l, err := evalTruth(ctx, x.L, env)
		if err != nil {
			return nil, err
		}
		if l == (x.Op == val.OpOr) {
			return val.Bool(l), nil
		}
		r, err := evalTruth(ctx, x.R, env)
		if err != nil {
			return nil, err
		}
		return val.Bool(r), nil
	case val.OpCoalesce:
		l, err := eval(ctx, x.L, env)
		if err != nil {
			return nil, err
		}
		if !isNull(l) {
			return l, nil
		}
		return eval(ctx, x.R, env)
	}
	l, err := eval(ctx, x.L, env)
	if err != nil {
		return nil, err
	}
	r, err := eval(ctx, x.R, env)
	if err != nil {
		return nil, err
	}
	v, err := val.Binary(x.Op, l, r)
	return v, wrap(x.Pos, err)
}

// isNull returns whether v is null or an absent data source reply.
func isNull(v val.Value) bool {
	switch v := v.(type) {
	case val.Null:
		return true
	case val.Raw:
		return v.Nil
	}
	return false
}

func subscript(a, i val.Value) (val.Value, error) {
	if isNull(a) || isNull(i) {
		return val.Null{}, nil
	}
	if val.IsText(i.Kind()) {
		switch a.(type) {
		case val.Str, val.Raw:
			return val.Select(val.String(a), val.String(i))
		}
		return nil, errors.Errorf("cannot subscript %s with %s", a.Kind(), i.Kind())
	}
	n, ok := i.(val.Int)
	if !ok {
		return nil, errors.Errorf("cannot subscript %s with %s", a.Kind(), i.Kind())
	}
	switch a := a.(type) {
	case val.List:
		idx, err := index(int64(n), int64(len(a)))
		if err != nil {
			return nil, err
		}
		return a[idx], nil
	case *val.Tuple:
		idx, err := index(int64(n), int64(len(a.Vals)))
		if err != nil {
			return nil, err
		}
		return a.Vals[idx], nil
	case val.Range:
		idx, err := index(int64(n), a.Len())
		if err != nil {
			return nil, err
		}
		return val.Int(a.Start + idx), nil
	case val.Str, val.Key, val.Raw:
		s := val.String(a)
		idx, err := index(int64(n), int64(utf8.RuneCountInString(s)))
		if err != nil {
			return nil, err
		}
		for _, r := range s {
			if idx == 0 {
				return val.Char(r), nil
			}
			idx--
		}
	}
	return nil, errors.Errorf("cannot subscript %s with %s", a.Kind(), i.Kind())
}

// index resolves negative indices against length n and checks the bounds.
func index(i, n int64) (int64, error) {
	o := i
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, errors.Errorf("index %d out of range for length %d", o, n)
	}
	return i, nil
}
