package eval

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/syn"
	"github.com/smackem/redis-q-sub000/val"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"from x in [1, 2, 3] select x + 1", "[2, 3, 4]"},
		{"from x in [1, 2, 3] from y in [1, 2] select x + y", "[2, 3, 3, 4, 4, 5]"},
		{"from x in 1..3 from y in 1..x select (x, y)",
			"[(1, 1), (2, 1), (2, 2), (3, 1), (3, 2), (3, 3)]"},
		{"from n in [2, 1, 5, 4, 3] let sq = n * n orderby n select sq", "[1, 4, 9, 16, 25]"},
		{"from x in 0..5 group x + 100 by x / 3 into g select g",
			"[(key: 0, values: [100, 101, 102]), (key: 1, values: [103, 104, 105])]"},
		{"from x in [1, 2, 3] limit 2 offset 1 select x", "[2, 3]"},
		{"from x in [1, 2, 3] limit 2 offset 3 select x", "[]"},
		{"from x in [1, 2, 3] limit 5 select x", "[1, 2, 3]"},
		{"from x in [1, 2, 3] limit 0 select x", "[]"},
		{"from x in [1, 2, 3] limit all offset 1 select x", "[2, 3]"},
		{"from x in [1, 2, 3] limit null offset null select x", "[1, 2, 3]"},
		{"from x in [] select x", "[]"},
		{"from x in 3..1 select x", "[]"},
		{"from x in 1..10 where x % 2 == 0 select x", "[2, 4, 6, 8, 10]"},
		{"from x in 1..10 where x > 3 limit 2 select x * 10", "[40, 50]"},
		{"from x in [3, 1, 2] orderby x descending select x", "[3, 2, 1]"},
		{"from x in [3, 1, 2] orderby x ascending select x", "[1, 2, 3]"},
		{"from x in ['b', null, 'a'] orderby x select x", "[null, 'a', 'b']"},
		{"from p in [(1, 'a'), (0, 'b'), (1, 'c'), (0, 'd')] orderby p[0] select p[1]",
			"['b', 'd', 'a', 'c']"},
		{"from p in [(1, 'a'), (0, 'b'), (1, 'c'), (0, 'd')] orderby p[0] descending select p[1]",
			"['a', 'c', 'b', 'd']"},
		{"from n in [3, 1, 2] let a = n * 10 orderby n descending let b = a + n select (n, a, b)",
			"[(3, 30, 33), (2, 20, 22), (1, 10, 11)]"},
		{"from w in ['b', 'a', 'b', 'c', 'a', 'b'] group w by w into g " +
			"orderby count(g.values) descending select g.key", "['b', 'a', 'c']"},
		{"from x in [1, 1.0, 2, 2.5, c'a', 97] group x by x into g select count(g.values)",
			"[2, 1, 1, 2]"},
		{"from x in 1..6 let odd = x % 2 == 1 group x by odd into g select (g.key, odd, x)",
			"[(true, true, 1), (false, false, 2)]"},
		{"from x in 1..3 from y in [] select x", "[]"},
		{"from x in 1..2 let xs = from y in 1..x select y * x select count(xs)", "[1, 2]"},
		{"from x in 1..3 where x > 1 from y in [x, -x] limit 3 select y", "[2, -2, 3]"},
		{"from x in [[1, 2], [3]] from y in x select y", "[1, 2, 3]"},
		{"from x in [1, 2] select (from y in [10] select x + y)", "[[11], [12]]"},
		{"from n in [2, 1] let s = from y in [0] select n orderby n select s", "[[1], [2]]"},
	}
	var calls int
	for _, test := range tests {
		got, err := run(t, testEnv(t, &calls), test.src)
		if err != nil {
			t.Errorf("eval %s: %v", test.src, err)
			continue
		}
		if s := val.Format(got); s != test.want {
			t.Errorf("eval %s\nwant %s\n got %s", test.src, test.want, s)
		}
	}
}

func TestFromErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"from x in 5 select x", "not enumerable"},
		{"from x in [1, 'a'] orderby x select x", "cannot be compared"},
		{"from x in [[1], [2]] group x by x into g select g", "cannot be compared"},
		{"from x in 1..3 limit -1 select x", "must not be negative"},
		{"from x in 1..3 limit 'a' select x", "must be an int"},
		{"from x in 1..3 where x select x", ""},
		{"from x in 1..3 where [x] select x", "cannot convert"},
		{"from x in 1..3 select x / (x - 2)", "division by zero"},
		{"from x in 1..3 select y", "unresolved"},
	}
	var calls int
	for _, test := range tests {
		_, err := run(t, testEnv(t, &calls), test.src)
		if test.want == "" {
			if err != nil {
				t.Errorf("eval %s: %v", test.src, err)
			}
			continue
		}
		var re *RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("eval %s want runtime error got %v", test.src, err)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("eval %s want error %q got %v", test.src, test.want, err)
		}
	}
}

func TestFromLazy(t *testing.T) {
	tests := []struct {
		src   string
		want  string
		pulls int
	}{
		{"from x in gen() limit 3 select x", "[1, 2, 3]", 3},
		{"from x in gen() limit 0 select x", "[]", 0},
		{"from x in gen() limit 2 offset 2 select x", "[3, 4]", 4},
		{"from x in gen() where x % 3 == 0 limit 2 select x", "[3, 6]", 6},
		{"from x in gen() limit 4 orderby -x select x", "[4, 3, 2, 1]", 4},
		{"from x in 1..2 from y in gen() limit 3 select (x, y)", "[(1, 1), (1, 2), (1, 3)]", 3},
	}
	for _, test := range tests {
		var calls int
		got, err := run(t, testEnv(t, &calls), test.src)
		if err != nil {
			t.Errorf("eval %s: %v", test.src, err)
			continue
		}
		if s := val.Format(got); s != test.want {
			t.Errorf("eval %s want %s got %s", test.src, test.want, s)
		}
		if calls != test.pulls {
			t.Errorf("eval %s want %d pulls got %d", test.src, test.pulls, calls)
		}
	}
}

func TestFromSinglePass(t *testing.T) {
	var calls int
	env := testEnv(t, &calls)
	x, err := syn.Parse("from x in 1..3 select x")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := context.Background()
	v, err := Evaluate(ctx, x, env)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	l, err := Collect(ctx, env, v)
	if err != nil || len(l) != 3 {
		t.Fatalf("first pass want 3 rows got %v %v", l, err)
	}
	l, err = Collect(ctx, env, v)
	if err != nil || len(l) != 0 {
		t.Errorf("second pass want no rows got %v %v", l, err)
	}
	// a query evaluated twice yields two independent sequences
	w, err := Evaluate(ctx, x, env)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if l, err = Collect(ctx, env, w); err != nil || len(l) != 3 {
		t.Errorf("second evaluation want 3 rows got %v %v", l, err)
	}
	if _, ok := env.Lookup("x"); ok {
		t.Errorf("query binding leaked into the evaluating scope")
	}
}

func TestRowCap(t *testing.T) {
	tests := []struct {
		src string
		cap bool
	}{
		{"from x in 0..2 orderby x select x", false},
		{"from x in 0..3 orderby x select x", true},
		{"from x in 0..2 group x by x into g select g", false},
		{"from x in 0..3 group x by 0 into g select g", true},
		{"let a = from x in 0..3 select x", true},
		{"from x in 0..9 limit 3 select x", false},
		{"from x in 0..9 where x > 6 select x", false},
		{"from x in 0..9 select x", true},
		{"count(0..3)", true},
	}
	for _, test := range tests {
		var calls int
		_, err := run(t, testEnv(t, &calls, WithMaxRows(3)), test.src)
		var ce *val.CapError
		if got := errors.As(err, &ce); got != test.cap {
			t.Errorf("eval %s want cap error %v got %v", test.src, test.cap, err)
			continue
		}
		if test.cap {
			var re *RuntimeError
			if !errors.As(err, &re) || ce.Max != 3 {
				t.Errorf("eval %s want runtime error with cap 3 got %v", test.src, err)
			}
		}
	}
}

func TestHashKey(t *testing.T) {
	tests := []struct {
		a, b val.Value
	}{
		{val.Int(1), val.Real(1)},
		{val.Char('a'), val.Int(97)},
		{val.Str("a"), val.Key("a")},
		{val.Str("a"), val.Payload("a")},
		{val.Null{}, val.Null{}},
	}
	for _, test := range tests {
		ha, err := hashKey(test.a)
		if err != nil {
			t.Fatalf("hash %v: %v", test.a, err)
		}
		hb, err := hashKey(test.b)
		if err != nil {
			t.Fatalf("hash %v: %v", test.b, err)
		}
		c, err := val.Compare(test.a, test.b)
		if err != nil {
			t.Fatalf("compare %v %v: %v", test.a, test.b, err)
		}
		if (ha == hb) != (c == 0) {
			t.Errorf("hash %v %v want equal %v got %s %s", test.a, test.b, c == 0, ha, hb)
		}
	}
	if h, _ := hashKey(val.Real(1.5)); h == "n:1" {
		t.Errorf("hash 1.5 collides with 1")
	}
}
