package lib

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/src/srcmem"
	"github.com/smackem/redis-q-sub000/syn"
	"github.com/smackem/redis-q-sub000/val"
)

const fixture = `
strings:
  user:1:name: alice
  user:2:name: bob
  counter: "42"
hashes:
  user:1: {name: alice, age: "31"}
  user:2: {name: bob, age: "27"}
lists:
  queue: [a, b, c, d]
sets:
  tags: [red, blue, green]
zsets:
  scores: {alice: 3.5, bob: 1, carol: 2}
`

func testSource(t *testing.T) *srcmem.Backend {
	f, err := srcmem.ReadFixture(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	b := srcmem.New()
	if err = b.Load(f); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return b
}

func testEnv(t *testing.T, s src.Source, opts ...eval.Option) *eval.Env {
	opts = append([]eval.Option{eval.WithLogger(&log.Testing{TB: t})}, opts...)
	return eval.NewRoot(s, Default(), opts...)
}

func run(ctx context.Context, t *testing.T, env *eval.Env, raw string) (string, error) {
	t.Helper()
	x, err := syn.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	v, err := eval.Evaluate(ctx, x, env)
	if err != nil {
		return "", err
	}
	if s, ok := v.(*val.Seq); ok {
		l, err := eval.Collect(ctx, env, s)
		if err != nil {
			return "", err
		}
		v = l
	}
	return val.Format(v), nil
}

func TestData(t *testing.T) {
	env := testEnv(t, testSource(t))
	tests := []struct {
		raw  string
		want string
	}{
		{"count(keys('user:*'))", "4"},
		{"count(keys())", "8"},
		{"get('user:1:name')", "alice"},
		{"get('missing')", "null"},
		{"get('missing') ?? 'none'", "none"},
		{"mget(['user:1:name', 'nope'])", "['alice', null]"},
		{"mget([])", "[]"},
		{"exists('queue')", "true"},
		{"exists('nope')", "false"},
		{"type('scores')", "zset"},
		{"type('nope')", "none"},
		{"strlen('counter')", "2"},
		{"hget('user:1', 'age')", "31"},
		{"hgetall('user:1')", "[(field: 'age', value: '31'), (field: 'name', value: 'alice')]"},
		{"from h in hgetall('user:1') where h.field == 'name' select h.value", "['alice']"},
		{"hkeys('user:1')", "['age', 'name']"},
		{"hvals('user:2')", "['27', 'bob']"},
		{"hlen('user:2')", "2"},
		{"lrange('queue', 0, -1)", "['a', 'b', 'c', 'd']"},
		{"llen('queue')", "4"},
		{"lindex('queue', 1)", "b"},
		{"smembers('tags')", "['blue', 'green', 'red']"},
		{"scard('tags')", "3"},
		{"sismember('tags', 'red')", "true"},
		{"zrange('scores', 0, 1)", "['bob', 'carol']"},
		{"zcard('scores')", "3"},
		{"zscore('scores', 'alice')", "3.5"},
		{"zscore('scores', 'dave')", "null"},
		{"ttl('tags')", "-1"},
		{"cmd('ping', null)", "PONG"},
		{"cmd('hlen', ['user:1'])", "2"},
		{"from k in keys('user:?:name') orderby k descending select get(k)", "['bob', 'alice']"},
		{"sum(from k in keys('user:*') where type(k) == 'hash' select hget(k, 'age'))", "58"},
		{"from k in keys('user:*') where type(k) == 'hash' " +
			"orderby int(hget(k, 'age')) select (name: hget(k, 'name'), age: int(hget(k, 'age')))",
			"[(name: 'bob', age: 27), (name: 'alice', age: 31)]"},
		{"stats()", "[]"},
	}
	ctx := context.Background()
	for _, test := range tests {
		got, err := run(ctx, t, env, test.raw)
		if err != nil {
			t.Errorf("eval %s: %v", test.raw, err)
			continue
		}
		if got != test.want {
			t.Errorf("for %s want %s got %s", test.raw, test.want, got)
		}
	}
}

func TestColl(t *testing.T) {
	env := testEnv(t, nil)
	tests := []struct {
		raw  string
		want string
	}{
		{"count([])", "0"},
		{"count(1..5)", "5"},
		{"count(from x in 1..10 where x % 2 == 0 select x)", "5"},
		{"sum([1, 2, 3])", "6"},
		{"sum([1, 2.5, null])", "3.5"},
		{"sum([])", "0"},
		{"avg([1, 2, 3, 4])", "2.5"},
		{"avg([])", "null"},
		{"min([3, 1, 2])", "1"},
		{"max(['b', 'c', 'a'])", "c"},
		{"min([])", "null"},
		{"max([null, 2, null])", "2"},
		{"first(1..3)", "1"},
		{"first([])", "null"},
		{"last(1..3)", "3"},
		{"distinct([1, 1.0, 'a', 'a', 2])", "[1, 'a', 2]"},
		{"distinct([(1, 2), (1, 2), (2, 1)])", "[(1, 2), (2, 1)]"},
		{"collect(1..3)", "[1, 2, 3]"},
		{"reverse([1, 2, 3])", "[3, 2, 1]"},
		{"reverse('abc')", "cba"},
		{"join(', ', ['a', 1, 'b'])", "a, 1, b"},
		{"join('-', [])", ""},
		{"any([])", "false"},
		{"any(from x in 1..3 where x > 2 select x)", "true"},
		{"size((1, 2, 3))", "3"},
		{"size(1..4)", "4"},
		{"size(from x in 1..3 select x)", "3"},
	}
	ctx := context.Background()
	for _, test := range tests {
		got, err := run(ctx, t, env, test.raw)
		if err != nil {
			t.Errorf("eval %s: %v", test.raw, err)
			continue
		}
		if got != test.want {
			t.Errorf("for %s want %s got %s", test.raw, test.want, got)
		}
	}
}

func TestScalar(t *testing.T) {
	env := testEnv(t, nil)
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	Now = func() time.Time { return now }
	defer func() { Now = time.Now }()
	tests := []struct {
		raw  string
		want string
	}{
		{"int('42') + 1", "43"},
		{"int(2.7)", "2"},
		{"int(null)", "null"},
		{"real('2.5')", "2.5"},
		{"string(12) + 'a'", "12a"},
		{"bool('')", "false"},
		{"bool(3)", "true"},
		{"lower('AbC')", "abc"},
		{"upper('AbC')", "ABC"},
		{"trim('  x ')", "x"},
		{"split('a,b', ',')", "['a', 'b']"},
		{"split('', ',')", "[]"},
		{"len('héllo')", "5"},
		{"len([1, 2])", "2"},
		{"contains('hello', 'ell')", "true"},
		{"contains([1, 2], 2.0)", "true"},
		{"contains([1, 2], 3)", "false"},
		{"contains(null, 3)", "false"},
		{"startsWith('hello', 'he')", "true"},
		{"endsWith('hello', 'he')", "false"},
		{"replace('a-b-c', '-', '+')", "a+b+c"},
		{"typeof(key('a'))", "key"},
		{"typeof(1..2)", "range"},
		{"typeof(null)", "null"},
		{"now()", "2024-05-06T07:08:09Z"},
		{"timestamp('2024-01-02T03:04:05Z')", "2024-01-02T03:04:05Z"},
		{"timestamp('2024-01-02') + duration('24h')", "2024-01-03T00:00:00Z"},
		{"seconds(timestamp(60))", "60"},
		{"duration('1m30s')", "1m30s"},
		{"duration(90)", "1m30s"},
		{"seconds(duration(90))", "90.0"},
		{"now() - duration(60) < now()", "true"},
	}
	ctx := context.Background()
	for _, test := range tests {
		got, err := run(ctx, t, env, test.raw)
		if err != nil {
			t.Errorf("eval %s: %v", test.raw, err)
			continue
		}
		if got != test.want {
			t.Errorf("for %s want %s got %s", test.raw, test.want, got)
		}
	}
}

func TestErrors(t *testing.T) {
	env := testEnv(t, testSource(t))
	tests := []struct {
		raw  string
		want error
		msg  string
	}{
		{"get('user:1')", src.ErrWrongType, "get"},
		{"cmd('flushall', null)", src.ErrUnsupported, "FLUSHALL"},
		{"nope(1)", eval.ErrNotFound, "nope"},
		{"get()", eval.ErrArity, "takes [1] arguments"},
		{"min([1, 'a'])", val.ErrIncomparable, "min"},
		{"count(1)", nil, "not enumerable"},
		{"sum(['x'])", nil, "not a number"},
		{"timestamp('soon')", nil, "invalid timestamp"},
		{"seconds(1)", nil, "cannot convert int"},
	}
	ctx := context.Background()
	for _, test := range tests {
		_, err := run(ctx, t, env, test.raw)
		var re *eval.RuntimeError
		if !errors.As(err, &re) {
			t.Errorf("for %s want runtime error got %v", test.raw, err)
			continue
		}
		if test.want != nil && !errors.Is(err, test.want) {
			t.Errorf("for %s want %v got %v", test.raw, test.want, err)
		}
		if !strings.Contains(err.Error(), test.msg) {
			t.Errorf("for %s want message with %q got %v", test.raw, test.msg, err)
		}
	}
}

func TestRowCap(t *testing.T) {
	env := testEnv(t, testSource(t), eval.WithMaxRows(3))
	ctx := context.Background()
	for _, raw := range []string{
		"count(1..4)", "collect(keys())", "distinct(1..10)", "sum(1..4)", "join(',', keys())",
	} {
		_, err := run(ctx, t, env, raw)
		var ce *val.CapError
		if !errors.As(err, &ce) || ce.Max != 3 {
			t.Errorf("for %s want row cap error got %v", raw, err)
		}
	}
	got, err := run(ctx, t, env, "first(keys())")
	if err != nil || got != "counter" {
		t.Errorf("want counter got %s %v", got, err)
	}
}

func TestNoSource(t *testing.T) {
	env := testEnv(t, nil)
	_, err := run(context.Background(), t, env, "get('a')")
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("want no source error got %v", err)
	}
}

func TestStats(t *testing.T) {
	s := src.Instrument(testSource(t))
	env := testEnv(t, s)
	ctx := context.Background()
	for _, raw := range []string{"get('counter')", "get('nope')", "count(keys('user:*'))"} {
		if _, err := run(ctx, t, env, raw); err != nil {
			t.Fatalf("eval %s: %v", raw, err)
		}
	}
	got, err := run(ctx, t, env, "from s in stats() select (s.cmd, s.count)")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if want := "[('GET', 2), ('SCAN', 5)]"; got != want {
		t.Errorf("want %s got %s", want, got)
	}
}

func TestCancel(t *testing.T) {
	env := testEnv(t, testSource(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run(ctx, t, env, "count(keys())")
	if !eval.IsCancelled(err) {
		t.Errorf("want cancelled got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context canceled got %v", err)
	}
}
