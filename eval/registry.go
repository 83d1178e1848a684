package eval

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/val"
)

// Func is a host function. It receives already evaluated arguments and may read the data source
// through env. Functions may return lazy sequences that defer further work.
type Func func(ctx context.Context, env *Env, args []val.Value) (val.Value, error)

// Registry maps function names and parameter counts to host functions.
// It is populated before evaluation and only read afterwards.
type Registry struct {
	funcs map[string]map[int]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]map[int]Func)}
}

// Add registers f as name with arity parameters. A name can be registered with different
// arities, but registering the same name and arity twice is an error.
func (r *Registry) Add(name string, arity int, f Func) error {
	if name == "" || f == nil || arity < 0 {
		return errors.Errorf("invalid function registration %q/%d", name, arity)
	}
	fs := r.funcs[name]
	if fs == nil {
		fs = make(map[int]Func, 1)
		r.funcs[name] = fs
	}
	if fs[arity] != nil {
		return errors.Errorf("duplicate function %s/%d", name, arity)
	}
	fs[arity] = f
	return nil
}

// MustAdd calls Add and panics on error. It is meant for package level registrations.
func (r *Registry) MustAdd(name string, arity int, f Func) *Registry {
	if err := r.Add(name, arity, f); err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the function for name and arity. It returns errors wrapping ErrNotFound if
// no function has that name and ErrArity if none with that name takes arity arguments.
func (r *Registry) Lookup(name string, arity int) (Func, error) {
	fs := r.funcs[name]
	if len(fs) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	f := fs[arity]
	if f == nil {
		return nil, errors.Wrapf(ErrArity, "%s takes %v arguments, got %d",
			name, r.Arities(name), arity)
	}
	return f, nil
}

// Arities returns the sorted parameter counts registered for name.
func (r *Registry) Arities(name string) []int {
	res := make([]int, 0, len(r.funcs[name]))
	for n := range r.funcs[name] {
		res = append(res, n)
	}
	sort.Ints(res)
	return res
}

// Names returns the sorted names of all registered functions.
func (r *Registry) Names() []string {
	res := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}
