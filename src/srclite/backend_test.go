package srclite

import (
	"context"
	"strings"
	"testing"

	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/src/srcmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFixture = `
strings:
  user:1:name: alice
  user:2:name: bob
  counter: "42"
hashes:
  user:1: {name: alice, age: "31"}
lists:
  queue: [a, b, c, d]
sets:
  tags: [red, blue, green]
zsets:
  scores: {alice: 3.5, bob: 1, carol: 2}
`

func testBackend(t *testing.T) *Backend {
	f, err := srcmem.ReadFixture(strings.NewReader(testFixture))
	require.NoError(t, err)
	b := New(":memory:", &log.Testing{TB: t})
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.Load(context.Background(), f))
	return b
}

func TestDo(t *testing.T) {
	b := testBackend(t)
	tests := []struct {
		cmd  string
		args []interface{}
		want interface{}
	}{
		{"PING", nil, "PONG"},
		{"GET", []interface{}{"user:1:name"}, "alice"},
		{"GET", []interface{}{"missing"}, nil},
		{"MGET", []interface{}{"user:1:name", "missing", "user:1"}, []interface{}{"alice", nil, nil}},
		{"EXISTS", []interface{}{"user:1", "missing", "queue"}, int64(2)},
		{"TYPE", []interface{}{"scores"}, "zset"},
		{"TYPE", []interface{}{"missing"}, "none"},
		{"STRLEN", []interface{}{"counter"}, int64(2)},
		{"HGET", []interface{}{"user:1", "age"}, "31"},
		{"HGET", []interface{}{"user:1", "missing"}, nil},
		{"HGETALL", []interface{}{"user:1"}, map[string]string{"name": "alice", "age": "31"}},
		{"HKEYS", []interface{}{"user:1"}, []interface{}{"age", "name"}},
		{"HVALS", []interface{}{"user:1"}, []interface{}{"31", "alice"}},
		{"HLEN", []interface{}{"user:1"}, int64(2)},
		{"LRANGE", []interface{}{"queue", 0, -1}, []interface{}{"a", "b", "c", "d"}},
		{"LRANGE", []interface{}{"queue", 1, 2}, []interface{}{"b", "c"}},
		{"LRANGE", []interface{}{"queue", -2, 100}, []interface{}{"c", "d"}},
		{"LRANGE", []interface{}{"queue", 3, 1}, []interface{}{}},
		{"LLEN", []interface{}{"queue"}, int64(4)},
		{"LINDEX", []interface{}{"queue", -1}, "d"},
		{"LINDEX", []interface{}{"queue", 9}, nil},
		{"SMEMBERS", []interface{}{"tags"}, []interface{}{"blue", "green", "red"}},
		{"SCARD", []interface{}{"tags"}, int64(3)},
		{"SISMEMBER", []interface{}{"tags", "red"}, int64(1)},
		{"SISMEMBER", []interface{}{"tags", "pink"}, int64(0)},
		{"ZRANGE", []interface{}{"scores", 0, -1}, []interface{}{"bob", "carol", "alice"}},
		{"ZRANGE", []interface{}{"scores", 0, 0, "WITHSCORES"}, []interface{}{[]interface{}{"bob", 1.0}}},
		{"ZCARD", []interface{}{"scores"}, int64(3)},
		{"ZSCORE", []interface{}{"scores", "alice"}, 3.5},
		{"ZSCORE", []interface{}{"scores", "dave"}, nil},
		{"TTL", []interface{}{"queue"}, int64(-1)},
		{"TTL", []interface{}{"missing"}, int64(-2)},
		{"DBSIZE", nil, int64(7)},
	}
	ctx := context.Background()
	for _, test := range tests {
		got, err := b.Do(ctx, test.cmd, test.args...)
		if assert.NoError(t, err, "%s %v", test.cmd, test.args) {
			assert.Equal(t, test.want, got, "%s %v", test.cmd, test.args)
		}
	}
	_, err := b.Do(ctx, "GET", "user:1")
	assert.ErrorIs(t, err, src.ErrWrongType)
	_, err = b.Do(ctx, "SET", "a", "b")
	assert.ErrorIs(t, err, src.ErrUnsupported)
}

func TestKeys(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	it, err := b.Keys(ctx, "user:*")
	require.NoError(t, err)
	var keys []string
	for {
		k, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"user:1", "user:1:name", "user:2:name"}, keys)
}

func TestKeysPaged(t *testing.T) {
	f := &srcmem.Fixture{Strings: make(map[string]string)}
	for i := 0; i < 250; i++ {
		f.Strings[strings.Repeat("k", 1+i/26)+string(rune('a'+i%26))] = "v"
	}
	b := New(":memory:", &log.Testing{TB: t})
	defer b.Close()
	ctx := context.Background()
	require.NoError(t, b.Load(ctx, f))
	it, err := b.Keys(ctx, "*")
	require.NoError(t, err)
	n := 0
	last := ""
	for {
		k, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Greater(t, k, last)
		last = k
		n++
	}
	assert.Equal(t, 250, n)
}

func TestLoadReplaces(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Load(ctx, &srcmem.Fixture{Lists: map[string][]string{"queue": {"z"}}}))
	res, err := b.Do(ctx, "LRANGE", "queue", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"z"}, res)
}
