package eval

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/val"
)

// DefaultMaxRows is the row cap of materializing operations when no other cap is configured.
const DefaultMaxRows = 100000

// Env is one scope of the evaluation context. Each scope owns a flat map of bindings and
// references its parent scope. The root scope additionally provides the function registry,
// the data source and the evaluation limits, which are shared by all scopes.
//
// Scopes are not safe for concurrent use. Independent evaluations use independent roots.
type Env struct {
	par  *Env
	vars map[string]val.Value
	*root
}

type root struct {
	reg     *Registry
	src     src.Source
	log     log.Logger
	maxRows int
}

// Option configures a root scope.
type Option func(*root)

// WithLogger sets the logger used by the evaluation.
func WithLogger(l log.Logger) Option {
	return func(r *root) { r.log = l }
}

// WithMaxRows sets the row cap for operations that materialize sequences. A cap less or equal
// zero means unlimited.
func WithMaxRows(n int) Option {
	return func(r *root) { r.maxRows = n }
}

// NewRoot returns a root scope for the data source s and the function registry reg.
// Both may be nil for evaluations that do not use them.
func NewRoot(s src.Source, reg *Registry, opts ...Option) *Env {
	if reg == nil {
		reg = NewRegistry()
	}
	r := &root{reg: reg, src: s, log: log.Root, maxRows: DefaultMaxRows}
	for _, o := range opts {
		o(r)
	}
	return &Env{root: r}
}

// Inherit returns a new empty child scope of par.
func Inherit(par *Env) *Env {
	return &Env{par: par, root: par.root}
}

// Inherit returns a new empty child scope of e.
func (e *Env) Inherit() *Env { return Inherit(e) }

// Parent returns the parent scope or nil for the root.
func (e *Env) Parent() *Env { return e.par }

func (e *Env) Registry() *Registry { return e.reg }
func (e *Env) Source() src.Source  { return e.src }
func (e *Env) Log() log.Logger     { return e.log }
func (e *Env) MaxRows() int        { return e.maxRows }

// Bind inserts or overwrites name in this scope only. Bindings of parent scopes are shadowed.
func (e *Env) Bind(name string, v val.Value) {
	if e.vars == nil {
		e.vars = make(map[string]val.Value, 4)
	}
	e.vars[name] = v
}

// Lookup returns the innermost binding of name.
func (e *Env) Lookup(name string) (val.Value, bool) {
	for s := e; s != nil; s = s.par {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Resolve returns the innermost binding of name or an error.
func (e *Env) Resolve(name string) (val.Value, error) {
	v, ok := e.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnresolved, "%s", name)
	}
	return v, nil
}

// Snapshot is an independent flat copy of all bindings visible from a scope.
type Snapshot map[string]val.Value

// Snapshot returns a copy of every name visible from e. Inner bindings win over outer ones.
// The result shares no mutable state with the scope chain.
func (e *Env) Snapshot() Snapshot {
	n := 0
	for s := e; s != nil; s = s.par {
		n += len(s.vars)
	}
	res := make(Snapshot, n)
	for s := e; s != nil; s = s.par {
		for k, v := range s.vars {
			if _, ok := res[k]; !ok {
				res[k] = v
			}
		}
	}
	return res
}

// RestoreAll binds every entry of snap in this scope, overwriting existing bindings.
func (e *Env) RestoreAll(snap Snapshot) {
	if e.vars == nil {
		e.vars = make(map[string]val.Value, len(snap))
	}
	for k, v := range snap {
		e.vars[k] = v
	}
}

// Names returns the sorted names visible from e.
func (e *Env) Names() []string {
	snap := e.Snapshot()
	res := make([]string, 0, len(snap))
	for k := range snap {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
