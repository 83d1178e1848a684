package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/smackem/redis-q-sub000/cfg"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/srv"
	"github.com/smackem/redis-q-sub000/val"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var memFlags = []string{"--source", "mem", "--fixture", "testdata/keys.yaml", "--log-level", "error"}

func run(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	cmd := newRoot()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(in))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"count(keys('user:*'))", "2\n"},
		{"from k in keys('user:*') orderby k select get(k)", "['alice', 'bob']\n"},
		{"hget('user:1', 'age')", "31\n"},
		{"lrange('queue', 0, -1)", "['a', 'b', 'c']\n"},
	}
	for _, test := range tests {
		got, err := run(t, "", append([]string{"eval", test.expr}, memFlags...)...)
		require.NoError(t, err, test.expr)
		assert.Equal(t, test.want, got, test.expr)
	}
	_, err := run(t, "", append([]string{"eval", "1 +"}, memFlags...)...)
	assert.Error(t, err)
	_, err = run(t, "", "eval", "1", "--source", "nope")
	assert.Error(t, err)
}

func TestRepl(t *testing.T) {
	in := strings.Join([]string{
		"# comment",
		"let names = from k in keys('user:*') orderby k select get(k)",
		"count(names)",
		":env",
		"bogus(",
		":nope",
		":stats",
		":quit",
		"1 + 1",
	}, "\n")
	got, err := run(t, in, append([]string{"repl"}, memFlags...)...)
	require.NoError(t, err)
	assert.Contains(t, got, "= ['alice', 'bob']\n= 2\n")
	assert.Contains(t, got, "names = ['alice', 'bob']\n")
	assert.Contains(t, got, "error: ")
	assert.Contains(t, got, "unknown command :nope")
	assert.Contains(t, got, "GET")
	assert.NotContains(t, got, "= 2\n= 2")
}

func TestComplete(t *testing.T) {
	a := &app{log: log.Discard}
	s := &session{app: a, env: a.newEnv(nil)}
	s.env.Bind("hello", val.Int(1))
	assert.Equal(t, []string{"count(hello", "count(hget(", "count(hgetall(", "count(hkeys(", "count(hlen(",
		"count(hvals("}, s.complete("count(h"))
	assert.Equal(t, []string{"1 + hello"}, s.complete("1 + hel"))
	assert.Nil(t, s.complete("1 + "))
}

func TestParse(t *testing.T) {
	got, err := run(t, "", "parse", "1 + x")
	require.NoError(t, err)
	assert.Contains(t, got, "ast.Binary")
	assert.Contains(t, got, "Name: (string) (len=1) \"x\"")
}

func TestServeRemote(t *testing.T) {
	c := cfg.Default()
	c.Source, c.Fixture = cfg.Mem, "testdata/keys.yaml"
	a := &app{conf: c, log: log.Discard}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, ln, srv.Config{Timeout: time.Second, Rate: rate.Inf})
	}()
	url := "ws://" + ln.Addr().String() + "/ws"

	got, err := run(t, "", append([]string{"eval", "--remote", url, "upper(get('user:1:name'))"},
		memFlags...)...)
	require.NoError(t, err)
	assert.Equal(t, "ALICE\n", got)
	_, err = run(t, "", append([]string{"eval", "--remote", url, "throw 'no'"}, memFlags...)...)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "runtime error at 1:1")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServiceRouter(t *testing.T) {
	var got []string
	r := serviceRouter(hub.RouterFunc(func(m *hub.Msg) {
		got = append(got, m.Subj)
	}), &log.Testing{TB: t})
	for _, subj := range []string{hub.SubjSignon, srv.SubjEval, "bogus", srv.SubjFuncs, hub.SubjSignoff} {
		r.Route(&hub.Msg{Subj: subj})
	}
	assert.Equal(t, []string{hub.SubjSignon, srv.SubjEval, srv.SubjFuncs, hub.SubjSignoff}, got)
}
