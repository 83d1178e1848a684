// Package lib provides the built-in functions of the query language.
//
// Data source functions issue one command per call and convert the reply. Collection functions
// accept lists, ranges and sequences. Those that drain or materialize their argument are bound
// by the row cap of the evaluation.
package lib

import (
	"context"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/val"
)

// ErrNoSource is returned by data source functions if the evaluation has no data source.
var ErrNoSource = errors.New("no data source configured")

// Register adds all built-in functions to reg and returns it.
func Register(reg *eval.Registry) *eval.Registry {
	registerData(reg)
	registerColl(reg)
	registerScalar(reg)
	return reg
}

// Default returns a new registry with all built-in functions.
func Default() *eval.Registry {
	return Register(eval.NewRegistry())
}

type fn = func(context.Context, *eval.Env, []val.Value) (val.Value, error)

// unary returns a function applying f to its only argument.
func unary(f func(val.Value) (val.Value, error)) fn {
	return func(_ context.Context, _ *eval.Env, args []val.Value) (val.Value, error) {
		return f(args[0])
	}
}

// isNull returns whether v is null or an absent payload.
func isNull(v val.Value) bool {
	switch v := v.(type) {
	case val.Null:
		return true
	case val.Raw:
		return v.Nil
	}
	return false
}

// each calls f for every element of the list, range or sequence v. It fails with a cap error
// after the row cap of env.
func each(ctx context.Context, env *eval.Env, v val.Value, f func(val.Value) error) error {
	n, limit := 0, env.MaxRows()
	return val.Drain(ctx, v, func(e val.Value) error {
		if n++; limit > 0 && n > limit {
			return &val.CapError{Max: limit}
		}
		return f(e)
	})
}
