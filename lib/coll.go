package lib

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/val"
)

func registerColl(reg *eval.Registry) {
	reg.MustAdd("count", 1, count).
		MustAdd("sum", 1, sum).
		MustAdd("avg", 1, avg).
		MustAdd("min", 1, extreme(-1)).
		MustAdd("max", 1, extreme(1)).
		MustAdd("first", 1, first).
		MustAdd("last", 1, last).
		MustAdd("distinct", 1, distinct).
		MustAdd("collect", 1, collect).
		MustAdd("reverse", 1, reverse).
		MustAdd("join", 2, join).
		MustAdd("any", 1, anyOf).
		MustAdd("size", 1, size)
}

func count(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	var n int64
	err := each(ctx, env, args[0], func(val.Value) error {
		n++
		return nil
	})
	return val.Int(n), err
}

// number returns v as int or real. Text is parsed, preferring integers.
func number(v val.Value) (val.Value, error) {
	switch v := v.(type) {
	case val.Int, val.Real:
		return v, nil
	case val.Char:
		return val.Int(v), nil
	case val.Str, val.Key, val.Raw:
		s := strings.TrimSpace(val.String(v))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return val.Int(n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return val.Real(f), nil
		}
		return nil, errors.Errorf("%q is not a number", s)
	}
	return nil, errors.Errorf("%s is not a number", v.Kind())
}

// total adds all non-null elements of v and returns the sum and the number of summands.
func total(ctx context.Context, env *eval.Env, v val.Value) (val.Value, int64, error) {
	var acc val.Value = val.Int(0)
	var n int64
	err := each(ctx, env, v, func(e val.Value) error {
		if isNull(e) {
			return nil
		}
		x, err := number(e)
		if err != nil {
			return err
		}
		n++
		acc, err = val.Arith(val.OpAdd, acc, x)
		return err
	})
	return acc, n, err
}

func sum(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	acc, _, err := total(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func avg(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	acc, n, err := total(ctx, env, args[0])
	if err != nil || n == 0 {
		return val.Null{}, err
	}
	f, err := val.ToReal(acc)
	if err != nil {
		return nil, err
	}
	return val.Real(f / float64(n)), nil
}

// extreme returns the minimum for dir -1 and the maximum for dir 1, skipping nulls.
func extreme(dir int) fn {
	return func(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
		var res val.Value = val.Null{}
		err := each(ctx, env, args[0], func(e val.Value) error {
			if isNull(e) {
				return nil
			}
			if isNull(res) {
				res = e
				return nil
			}
			c, err := val.Compare(e, res)
			if err != nil {
				return err
			}
			if c == dir {
				res = e
			}
			return nil
		})
		return res, err
	}
}

func first(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	s, err := val.Enumerate(args[0])
	if err != nil {
		return nil, err
	}
	defer s.Close()
	e, ok, err := s.Next(ctx)
	if err != nil || !ok {
		return val.Null{}, err
	}
	return e, nil
}

func last(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	var res val.Value = val.Null{}
	err := each(ctx, env, args[0], func(e val.Value) error {
		res = e
		return nil
	})
	return res, err
}

// bucket returns a coarse hash for v. Equal values always share a bucket.
func bucket(v val.Value) string {
	k := v.Kind()
	switch {
	case val.IsNullish(v), val.IsText(k) && val.String(v) == "":
		return "null"
	case val.IsNum(k):
		f, _ := val.ToReal(v)
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	case val.IsText(k):
		return "s:" + val.String(v)
	}
	return k.String() + ":" + val.Format(v)
}

// distinct returns the elements of a collection without duplicates in first seen order.
func distinct(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	seen := make(map[string][]val.Value)
	res := val.List{}
	err := each(ctx, env, args[0], func(e val.Value) error {
		b := bucket(e)
		for _, o := range seen[b] {
			if val.Equal(o, e) {
				return nil
			}
		}
		seen[b] = append(seen[b], e)
		res = append(res, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func collect(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	return eval.Collect(ctx, env, args[0])
}

// reverse returns the reversed text or collection.
func reverse(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	if val.IsText(args[0].Kind()) {
		rs := []rune(val.String(args[0]))
		for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
			rs[i], rs[j] = rs[j], rs[i]
		}
		return val.Str(rs), nil
	}
	l, err := eval.Collect(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	res := make(val.List, len(l))
	for i, e := range l {
		res[len(l)-1-i] = e
	}
	return res, nil
}

func join(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	sep := val.String(args[0])
	var b strings.Builder
	i := 0
	err := each(ctx, env, args[1], func(e val.Value) error {
		if i++; i > 1 {
			b.WriteString(sep)
		}
		b.WriteString(val.String(e))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val.Str(b.String()), nil
}

// anyOf returns whether a collection has at least one element. It pulls at most one element.
func anyOf(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	s, err := val.Enumerate(args[0])
	if err != nil {
		return nil, err
	}
	defer s.Close()
	_, ok, err := s.Next(ctx)
	if err != nil {
		return nil, err
	}
	return val.Bool(ok), nil
}

// size returns the number of elements of a collection or tuple or the characters of text.
func size(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	switch v := args[0].(type) {
	case val.Null:
		return val.Int(0), nil
	case val.Str, val.Key, val.Raw:
		return val.Int(len([]rune(val.String(v)))), nil
	case val.List:
		return val.Int(len(v)), nil
	case val.Range:
		return val.Int(v.Len()), nil
	case *val.Tuple:
		return val.Int(len(v.Vals)), nil
	case *val.Seq:
		return count(ctx, env, args)
	}
	return nil, errors.Errorf("%s has no size", args[0].Kind())
}
