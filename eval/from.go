package eval

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/ast"
	"github.com/smackem/redis-q-sub000/val"
)

// stage is one clause of a query pipeline. A successful next call establishes the bindings of
// the next row in the shared pipeline scope. Stages pull from their upstream stage on demand.
type stage interface {
	next(ctx context.Context) (bool, error)
	close()
}

func evalFrom(ctx context.Context, x *ast.From, env *Env) (val.Value, error) {
	if len(x.Clauses) == 0 {
		return nil, errorf(x.Pos, "query without from clause")
	}
	if _, ok := x.Clauses[0].(*ast.FromClause); !ok {
		return nil, errorf(x.Pos, "query must start with a from clause")
	}
	// a lazy query outlives the row that created it, so it reads a frozen copy of the
	// bindings visible now instead of the live scope of an enclosing pipeline
	frozen := env.Inherit()
	frozen.RestoreAll(env.Snapshot())
	q := &query{x: x, sc: frozen.Inherit()}
	var last stage
	for _, c := range x.Clauses {
		s, err := q.stage(c, last)
		if err != nil {
			return nil, err
		}
		last = s
	}
	q.last = last
	seq := val.NewSeq(q)
	if !x.Eager {
		return seq, nil
	}
	l, err := val.Materialize(ctx, seq, env.MaxRows())
	if err != nil {
		return nil, wrap(x.Pos, err)
	}
	return l, nil
}

// query is the iterator behind the sequence returned for a query expression. All stages share
// one scope that is mutated in place for every row.
type query struct {
	x    *ast.From
	sc   *Env
	last stage
}

func (q *query) stage(c ast.Clause, up stage) (stage, error) {
	switch c := c.(type) {
	case *ast.FromClause:
		return &fromStage{q: q, c: c, up: up}, nil
	case *ast.LetClause:
		return &letStage{q: q, c: c, up: up}, nil
	case *ast.WhereClause:
		return &whereStage{q: q, c: c, up: up}, nil
	case *ast.LimitClause:
		return &limitStage{q: q, c: c, up: up}, nil
	case *ast.OrderClause:
		return &orderStage{q: q, c: c, up: up}, nil
	case *ast.GroupClause:
		return &groupStage{q: q, c: c, up: up}, nil
	}
	return nil, errorf(c.Start(), "unexpected clause %T", c)
}

func (q *query) Next(ctx context.Context) (res val.Value, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, ok, err = nil, false, errorf(q.x.Pos, "internal failure: %v", r)
		}
	}()
	ok, err = q.last.next(ctx)
	if err != nil || !ok {
		return nil, false, wrap(q.x.Pos, err)
	}
	res, err = eval(ctx, q.x.Select, q.sc)
	if err != nil {
		return nil, false, wrap(q.x.Select.Start(), err)
	}
	return res, true, nil
}

func (q *query) Close() error {
	q.last.close()
	return nil
}

// rowCap returns an error if n rows exceed the row cap of the query scope.
func (q *query) rowCap(pos ast.Pos, n int) error {
	if m := q.sc.MaxRows(); m > 0 && n > m {
		return wrap(pos, &val.CapError{Max: m})
	}
	return nil
}

// fromStage binds a name to each element of its source. As head stage it evaluates the source
// once. With an upstream stage it evaluates the source anew for every upstream row, which
// produces the cross join of both.
type fromStage struct {
	q    *query
	c    *ast.FromClause
	up   stage
	seq  *val.Seq
	done bool
}

func (s *fromStage) next(ctx context.Context) (bool, error) {
	for !s.done {
		if s.seq == nil {
			if s.up != nil {
				ok, err := s.up.next(ctx)
				if err != nil || !ok {
					s.done = true
					return false, err
				}
			}
			v, err := eval(ctx, s.c.Src, s.q.sc)
			if err != nil {
				return false, err
			}
			seq, err := val.Enumerate(v)
			if err != nil {
				return false, wrap(s.c.Src.Start(), err)
			}
			s.seq = seq
		}
		v, ok, err := s.seq.Next(ctx)
		if err != nil {
			return false, wrap(s.c.Pos, err)
		}
		if ok {
			s.q.sc.Bind(s.c.Name, v)
			return true, nil
		}
		s.seq = nil
		s.done = s.up == nil
	}
	return false, nil
}

func (s *fromStage) close() {
	s.done = true
	if s.seq != nil {
		s.seq.Close()
		s.seq = nil
	}
	if s.up != nil {
		s.up.close()
	}
}

type letStage struct {
	q  *query
	c  *ast.LetClause
	up stage
}

func (s *letStage) next(ctx context.Context) (bool, error) {
	ok, err := s.up.next(ctx)
	if err != nil || !ok {
		return false, err
	}
	v, err := eval(ctx, s.c.X, s.q.sc)
	if err != nil {
		return false, err
	}
	s.q.sc.Bind(s.c.Name, v)
	return true, nil
}

func (s *letStage) close() { s.up.close() }

type whereStage struct {
	q  *query
	c  *ast.WhereClause
	up stage
}

func (s *whereStage) next(ctx context.Context) (bool, error) {
	for {
		ok, err := s.up.next(ctx)
		if err != nil || !ok {
			return false, err
		}
		t, err := evalTruth(ctx, s.c.X, s.q.sc)
		if err != nil {
			return false, err
		}
		if t {
			return true, nil
		}
	}
}

func (s *whereStage) close() { s.up.close() }

// limitStage yields the rows in the window [off, off+n). Count and offset are evaluated once
// when the first row is requested. Upstream is not pulled past the end of the window.
type limitStage struct {
	q      *query
	c      *ast.LimitClause
	up     stage
	init   bool
	n, off int64
	pos    int64
}

func (s *limitStage) next(ctx context.Context) (bool, error) {
	if !s.init {
		if err := s.setup(ctx); err != nil {
			return false, err
		}
		s.init = true
	}
	for s.pos < s.off {
		if s.n == 0 {
			break
		}
		ok, err := s.up.next(ctx)
		if err != nil || !ok {
			s.n = 0
			return false, err
		}
		s.pos++
	}
	if s.n == 0 || s.pos-s.off >= s.n {
		s.close()
		return false, nil
	}
	ok, err := s.up.next(ctx)
	if err != nil || !ok {
		s.n = 0
		return false, err
	}
	s.pos++
	return true, nil
}

func (s *limitStage) setup(ctx context.Context) error {
	s.n = math.MaxInt64
	if s.c.Count != nil {
		n, err := s.arg(ctx, s.c.Count, "count")
		if err != nil {
			return err
		}
		if n >= 0 {
			s.n = n
		}
	}
	if s.c.Offset != nil {
		off, err := s.arg(ctx, s.c.Offset, "offset")
		if err != nil {
			return err
		}
		if off > 0 {
			s.off = off
		}
	}
	return nil
}

// arg evaluates a limit argument. Null returns -1.
func (s *limitStage) arg(ctx context.Context, x ast.Expr, name string) (int64, error) {
	v, err := eval(ctx, x, s.q.sc)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case val.Null:
		return -1, nil
	case val.Int:
		if v < 0 {
			return 0, errorf(x.Start(), "limit %s must not be negative, got %d", name, v)
		}
		return int64(v), nil
	}
	return 0, errorf(x.Start(), "limit %s must be an int, got %s", name, v.Kind())
}

func (s *limitStage) close() { s.up.close() }

// row is a buffered row of a reordering stage with the bindings it was produced with.
type row struct {
	key  val.Value
	snap Snapshot
}

// orderStage drains upstream, sorts the rows by key and replays them with their bindings.
type orderStage struct {
	q    *query
	c    *ast.OrderClause
	up   stage
	rows []row
	idx  int
	done bool
}

func (s *orderStage) next(ctx context.Context) (bool, error) {
	if !s.done {
		if err := s.drain(ctx); err != nil {
			return false, err
		}
		s.done = true
	}
	if s.idx >= len(s.rows) {
		s.rows = nil
		return false, nil
	}
	s.q.sc.RestoreAll(s.rows[s.idx].snap)
	s.rows[s.idx] = row{}
	s.idx++
	return true, nil
}

func (s *orderStage) drain(ctx context.Context) error {
	for {
		ok, err := s.up.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		k, err := eval(ctx, s.c.Key, s.q.sc)
		if err != nil {
			return err
		}
		s.rows = append(s.rows, row{key: k, snap: s.q.sc.Snapshot()})
		if err := s.q.rowCap(s.c.Pos, len(s.rows)); err != nil {
			return err
		}
	}
	var cerr error
	sort.SliceStable(s.rows, func(i, j int) bool {
		if cerr != nil {
			return false
		}
		c, err := val.Compare(s.rows[i].key, s.rows[j].key)
		if err != nil {
			cerr = err
			return false
		}
		if s.c.Desc {
			return c > 0
		}
		return c < 0
	})
	if cerr != nil {
		s.rows = nil
		return wrap(s.c.Key.Start(), cerr)
	}
	s.q.sc.Log().Debug("query rows ordered", "rows", len(s.rows), "at", s.c.Pos.Loc())
	return nil
}

func (s *orderStage) close() {
	s.done, s.rows = true, nil
	s.up.close()
}

// group is one group of a group stage with the bindings of the row that opened it.
type group struct {
	key  val.Value
	vals val.List
	snap Snapshot
}

// groupStage drains upstream and yields one row per distinct key in the order the keys were
// first seen. Keys are equal if the comparer says so.
type groupStage struct {
	q      *query
	c      *ast.GroupClause
	up     stage
	groups []*group
	idx    int
	done   bool
}

func (s *groupStage) next(ctx context.Context) (bool, error) {
	if !s.done {
		if err := s.drain(ctx); err != nil {
			return false, err
		}
		s.done = true
	}
	if s.idx >= len(s.groups) {
		s.groups = nil
		return false, nil
	}
	g := s.groups[s.idx]
	s.groups[s.idx] = nil
	s.idx++
	s.q.sc.RestoreAll(g.snap)
	t, err := val.NewTuple(ast.GroupShape, g.key, g.vals)
	if err != nil {
		return false, wrap(s.c.Pos, err)
	}
	s.q.sc.Bind(s.c.Into, t)
	return true, nil
}

func (s *groupStage) drain(ctx context.Context) error {
	idx := make(map[string]*group)
	var rows int
	for {
		ok, err := s.up.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		rows++
		if err := s.q.rowCap(s.c.Pos, rows); err != nil {
			return err
		}
		k, err := eval(ctx, s.c.Key, s.q.sc)
		if err != nil {
			return err
		}
		v, err := eval(ctx, s.c.Val, s.q.sc)
		if err != nil {
			return err
		}
		h, err := hashKey(k)
		if err != nil {
			return wrap(s.c.Key.Start(), err)
		}
		g := idx[h]
		if g == nil {
			g = &group{key: k, snap: s.q.sc.Snapshot()}
			idx[h] = g
			s.groups = append(s.groups, g)
		}
		g.vals = append(g.vals, v)
	}
	s.q.sc.Log().Debug("query rows grouped", "rows", rows, "groups", len(s.groups),
		"at", s.c.Pos.Loc())
	return nil
}

func (s *groupStage) close() {
	s.done, s.groups = true, nil
	s.up.close()
}

// hashKey returns a string that is equal for two keys exactly if the comparer considers the
// keys equal. Keys the comparer cannot order are rejected.
func hashKey(k val.Value) (string, error) {
	switch k := k.(type) {
	case val.Null:
		return "null", nil
	case val.Bool:
		if k {
			return "b:t", nil
		}
		return "b:f", nil
	case val.Int:
		return "n:" + strconv.FormatInt(int64(k), 10), nil
	case val.Char:
		return "n:" + strconv.FormatInt(int64(k), 10), nil
	case val.Real:
		f := float64(k)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return "n:" + strconv.FormatInt(int64(f), 10), nil
		}
		return "r:" + strconv.FormatFloat(f, 'g', -1, 64), nil
	case val.Str, val.Key, val.Raw:
		return "s:" + val.String(k), nil
	case val.Time:
		return "t:" + strconv.FormatInt(k.UnixNano(), 10), nil
	case val.Dur:
		return "d:" + strconv.FormatInt(int64(k), 10), nil
	}
	return "", errors.Wrapf(val.ErrIncomparable, "group key of kind %s", k.Kind())
}
