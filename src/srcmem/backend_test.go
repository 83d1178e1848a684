package srcmem

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/src"
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
  user:2: {name: bob, age: "27"}
lists:
  queue: [a, b, c, d]
sets:
  tags: [red, blue, green]
zsets:
  scores: {alice: 3.5, bob: 1, carol: 2}
ttls:
  queue: 90s
`

func testBackend(t *testing.T) *Backend {
	f, err := ReadFixture(strings.NewReader(testFixture))
	require.NoError(t, err)
	b := New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Now = func() time.Time { return now }
	require.NoError(t, b.Load(f))
	return b
}

func keys(t *testing.T, b *Backend, pattern string) []string {
	ctx := context.Background()
	it, err := b.Keys(ctx, pattern)
	require.NoError(t, err)
	defer it.Close()
	var res []string
	for {
		k, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return res
		}
		res = append(res, k)
	}
}

func TestKeys(t *testing.T) {
	b := testBackend(t)
	assert.Equal(t, []string{"user:1", "user:1:name", "user:2", "user:2:name"}, keys(t, b, "user:*"))
	assert.Equal(t, []string{"user:1:name", "user:2:name"}, keys(t, b, "user:?:name"))
	assert.Equal(t, []string{"user:1", "user:2"}, keys(t, b, "user:[12]"))
	assert.Empty(t, keys(t, b, "nope*"))
	assert.Len(t, keys(t, b, "*"), 8)
}

func TestDo(t *testing.T) {
	b := testBackend(t)
	tests := []struct {
		cmd  string
		args []interface{}
		want interface{}
	}{
		{"ping", nil, "PONG"},
		{"GET", []interface{}{"user:1:name"}, "alice"},
		{"get", []interface{}{"missing"}, nil},
		{"MGET", []interface{}{"user:1:name", "missing", "user:1"}, []interface{}{"alice", nil, nil}},
		{"EXISTS", []interface{}{"user:1", "missing", "queue"}, int64(2)},
		{"TYPE", []interface{}{"user:1"}, "hash"},
		{"TYPE", []interface{}{"scores"}, "zset"},
		{"TYPE", []interface{}{"missing"}, "none"},
		{"STRLEN", []interface{}{"counter"}, int64(2)},
		{"HGET", []interface{}{"user:2", "age"}, "27"},
		{"HGET", []interface{}{"user:2", "missing"}, nil},
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
		{"ZRANGE", []interface{}{"scores", 0, 0, "withscores"}, []interface{}{[]interface{}{"bob", 1.0}}},
		{"ZCARD", []interface{}{"scores"}, int64(3)},
		{"ZSCORE", []interface{}{"scores", "alice"}, 3.5},
		{"ZSCORE", []interface{}{"scores", "dave"}, nil},
		{"TTL", []interface{}{"queue"}, int64(90)},
		{"TTL", []interface{}{"tags"}, int64(-1)},
		{"TTL", []interface{}{"missing"}, int64(-2)},
		{"DBSIZE", nil, int64(8)},
	}
	ctx := context.Background()
	for _, test := range tests {
		got, err := b.Do(ctx, test.cmd, test.args...)
		if assert.NoError(t, err, "%s %v", test.cmd, test.args) {
			assert.Equal(t, test.want, got, "%s %v", test.cmd, test.args)
		}
	}
}

func TestDoErrors(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	_, err := b.Do(ctx, "GET", "user:1")
	assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)
	_, err = b.Do(ctx, "FLUSHALL")
	assert.True(t, errors.Is(err, src.ErrUnsupported), "got %v", err)
	_, err = b.Do(ctx, "GET")
	assert.ErrorContains(t, err, "wrong number of arguments")
	_, err = b.Do(ctx, "LRANGE", "queue", "a", 1)
	assert.ErrorContains(t, err, "not an integer")
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.Do(cctx, "GET", "counter")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrites(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	do := func(cmd string, args ...interface{}) interface{} {
		res, err := b.Do(ctx, cmd, args...)
		require.NoError(t, err, "%s %v", cmd, args)
		return res
	}
	assert.Equal(t, "OK", do("SET", "n", 7))
	assert.Equal(t, "7", do("GET", "n"))
	assert.Equal(t, int64(1), do("HSET", "h", "a", 1))
	assert.Equal(t, int64(6), do("RPUSH", "queue", "e", "f"))
	assert.Equal(t, int64(1), do("SADD", "tags", "red", "pink"))
	assert.Equal(t, int64(1), do("ZADD", "scores", 5, "dave", 0.5, "bob"))
	assert.Equal(t, []interface{}{"bob", "carol", "alice", "dave"}, do("ZRANGE", "scores", 0, -1))
	assert.Equal(t, int64(2), do("DEL", "n", "h", "missing"))
	assert.Equal(t, int64(1), do("EXPIRE", "tags", 10))
	assert.Equal(t, int64(10), do("TTL", "tags"))
}

func TestExpiry(t *testing.T) {
	b := testBackend(t)
	now := b.Now()
	b.Now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.NotContains(t, keys(t, b, "*"), "queue")
	res, err := b.Do(context.Background(), "LLEN", "queue")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res)
}

func TestReadFixturePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(testFixture), 0644))
	f, err := os.Create(filepath.Join(dir, "b.yml.gz"))
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("strings: {counter: '43', extra: x}\n---\nsets: {more: [a]}\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	b, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	res, err := b.Do(ctx, "GET", "counter")
	require.NoError(t, err)
	assert.Equal(t, "43", res)
	res, err = b.Do(ctx, "SMEMBERS", "more")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a"}, res)
	res, err = b.Do(ctx, "GET", "user:2:name")
	require.NoError(t, err)
	assert.Equal(t, "bob", res)

	_, err = Open(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
